package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/zkvoting/eligibility/crypto/commitment"
	"github.com/zkvoting/eligibility/storage"
	"github.com/zkvoting/eligibility/storage/registry"
	"github.com/zkvoting/eligibility/types"
	"go.vocdoni.io/dvote/db/metadb"
)

var testRoll = []types.RollEntry{
	{ID: "12345678901", FirstName: "Ayşe", LastName: "Kaya", Age: 34},
	{ID: "98765432109", FirstName: "Mehmet", LastName: "Demir", Age: 45},
	{ID: "55566677788", FirstName: "Sevgi", LastName: "Özkan", Age: 16},
}

func newTestService(t *testing.T, adminEnabled bool) *Eligibility {
	t.Helper()
	database := metadb.NewTest(t)
	codec, err := commitment.NewCodec(commitment.Secret{Salt: "test-salt", Pepper: "test-pepper"})
	qt.Assert(t, err, qt.IsNil)

	reg := registry.New(database, codec)
	qt.Assert(t, reg.Build(testRoll, "test roll"), qt.IsNil)

	svc, err := New(Config{
		Codec:        codec,
		Registry:     reg,
		Ledger:       storage.New(database, codec.Salt()),
		AdminEnabled: adminEnabled,
	})
	qt.Assert(t, err, qt.IsNil)
	return svc
}

func TestVerifyAndReserveAccepted(t *testing.T) {
	svc := newTestService(t, false)
	identity := testRoll[0].Identity()

	auth, err := svc.VerifyAndReserve(context.Background(), identity)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, auth.Nullifier, qt.Not(qt.HasLen), 0)
	qt.Assert(t, auth.OfVotingAge, qt.IsTrue)
	qt.Assert(t, auth.CensusRoot, qt.Not(qt.HasLen), 0)

	// The nullifier is the identifier commitment.
	idC, err := svc.codec.CommitID(identity.ID)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, auth.Nullifier.Equal(idC), qt.IsTrue)

	voted, err := svc.HasVoted(identity.ID)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, voted, qt.IsTrue)
}

func TestVerifyAndReserveRepeat(t *testing.T) {
	svc := newTestService(t, false)
	identity := testRoll[1].Identity()

	_, err := svc.VerifyAndReserve(context.Background(), identity)
	qt.Assert(t, err, qt.IsNil)
	_, err = svc.VerifyAndReserve(context.Background(), identity)
	qt.Assert(t, err, qt.ErrorIs, ErrAlreadyVoted)
}

func TestVerifyAndReserveUnknownIdentity(t *testing.T) {
	svc := newTestService(t, false)

	_, err := svc.VerifyAndReserve(context.Background(), types.Identity{
		ID:        "11122233344",
		FirstName: "Nobody",
		LastName:  "Anywhere",
		Age:       50,
	})
	qt.Assert(t, err, qt.ErrorIs, ErrNotEligible)

	voted, err := svc.HasVoted("11122233344")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, voted, qt.IsFalse)
}

// A single wrong field means a different commitment, so a voter submitting a
// wrong age is indistinguishable from a stranger.
func TestVerifyAndReserveWrongAge(t *testing.T) {
	svc := newTestService(t, false)
	identity := testRoll[0].Identity()
	identity.Age = 31

	_, err := svc.VerifyAndReserve(context.Background(), identity)
	qt.Assert(t, err, qt.ErrorIs, ErrNotEligible)

	// The failed attempt consumed nothing: the correct data still works.
	voted, err := svc.HasVoted(identity.ID)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, voted, qt.IsFalse)

	identity.Age = 34
	auth, err := svc.VerifyAndReserve(context.Background(), identity)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, auth.OfVotingAge, qt.IsTrue)
}

// Registry membership and voting age are independent facts: a minor on the
// roll is authorized with the age flag lowered, and the decision of what to
// do with that flag belongs to the caller.
func TestVerifyAndReserveMinor(t *testing.T) {
	svc := newTestService(t, false)

	auth, err := svc.VerifyAndReserve(context.Background(), testRoll[2].Identity())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, auth.OfVotingAge, qt.IsFalse)
}

func TestVerifyAndReserveInvalidInput(t *testing.T) {
	svc := newTestService(t, false)
	for _, identity := range []types.Identity{
		{ID: "12a45678901", FirstName: "Ayşe", LastName: "Kaya", Age: 34},
		{ID: "", FirstName: "Ayşe", LastName: "Kaya", Age: 34},
		{ID: "12345678901", FirstName: "", LastName: "Kaya", Age: 34},
		{ID: "12345678901", FirstName: "Ayşe", LastName: "", Age: 34},
		{ID: "12345678901", FirstName: "Ayşe", LastName: "Kaya", Age: -1},
		{ID: "12345678901", FirstName: "Ayşe", LastName: "Kaya", Age: 200},
	} {
		_, err := svc.VerifyAndReserve(context.Background(), identity)
		qt.Assert(t, err, qt.ErrorIs, ErrInvalidInput)
	}
}

func TestVerifyAndReserveCancelledContext(t *testing.T) {
	svc := newTestService(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.VerifyAndReserve(ctx, testRoll[0].Identity())
	qt.Assert(t, err, qt.ErrorIs, context.Canceled)

	// A cancelled attempt never reaches the ledger.
	voted, err := svc.HasVoted(testRoll[0].ID)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, voted, qt.IsFalse)
}

func TestVerifyAndReserveConcurrent(t *testing.T) {
	svc := newTestService(t, false)
	identity := testRoll[0].Identity()

	const callers = 50
	var accepted, duplicated atomic.Int64
	var wg sync.WaitGroup
	wg.Add(callers)
	for range callers {
		go func() {
			defer wg.Done()
			_, err := svc.VerifyAndReserve(context.Background(), identity)
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, ErrAlreadyVoted):
				duplicated.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	qt.Assert(t, accepted.Load(), qt.Equals, int64(1))
	qt.Assert(t, duplicated.Load(), qt.Equals, int64(callers-1))

	count, err := svc.VotedCount()
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, count, qt.Equals, 1)
}

func TestUnbuiltRegistryFailsClosed(t *testing.T) {
	database := metadb.NewTest(t)
	codec, err := commitment.NewCodec(commitment.Secret{Salt: "test-salt", Pepper: "test-pepper"})
	qt.Assert(t, err, qt.IsNil)

	svc, err := New(Config{
		Codec:    codec,
		Registry: registry.New(database, codec),
		Ledger:   storage.New(database, codec.Salt()),
	})
	qt.Assert(t, err, qt.IsNil)

	_, err = svc.VerifyAndReserve(context.Background(), testRoll[0].Identity())
	qt.Assert(t, err, qt.ErrorIs, ErrNotEligible)
}

func TestRegistryProof(t *testing.T) {
	svc := newTestService(t, false)

	proof, err := svc.RegistryProof(testRoll[0].Identity())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, proof.Existence, qt.IsTrue)

	root, size := svc.RegistryRoot()
	qt.Assert(t, proof.Root.Equal(root), qt.IsTrue)
	qt.Assert(t, size, qt.Equals, len(testRoll))
	qt.Assert(t, registry.VerifyProof(proof.Key, proof.Value, proof.Root, proof.Siblings), qt.IsTrue)
}

func TestAdminOperationsDisabled(t *testing.T) {
	svc := newTestService(t, false)

	qt.Assert(t, svc.RebuildRegistry("does-not-matter.json"), qt.ErrorIs, ErrAdminDisabled)
	qt.Assert(t, svc.ResetLedger(), qt.ErrorIs, ErrAdminDisabled)
	qt.Assert(t, svc.ExportSnapshots("a.json", "b.json"), qt.ErrorIs, ErrAdminDisabled)
}

func TestResetLedger(t *testing.T) {
	svc := newTestService(t, true)
	identity := testRoll[0].Identity()

	_, err := svc.VerifyAndReserve(context.Background(), identity)
	qt.Assert(t, err, qt.IsNil)
	_, err = svc.VerifyAndReserve(context.Background(), identity)
	qt.Assert(t, err, qt.ErrorIs, ErrAlreadyVoted)

	qt.Assert(t, svc.ResetLedger(), qt.IsNil)

	auth, err := svc.VerifyAndReserve(context.Background(), identity)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, auth.Nullifier, qt.Not(qt.HasLen), 0)
}

func TestRebuildRegistry(t *testing.T) {
	svc := newTestService(t, true)

	newRoll := []types.RollEntry{
		{ID: "44455566677", FirstName: "Deniz", LastName: "Aslan", Age: 29},
	}
	data, err := json.Marshal(newRoll)
	qt.Assert(t, err, qt.IsNil)
	rollPath := filepath.Join(t.TempDir(), "roll.json")
	qt.Assert(t, os.WriteFile(rollPath, data, 0o600), qt.IsNil)

	qt.Assert(t, svc.RebuildRegistry(rollPath), qt.IsNil)

	// The old roll is gone, the new one is live.
	_, err = svc.VerifyAndReserve(context.Background(), testRoll[0].Identity())
	qt.Assert(t, err, qt.ErrorIs, ErrNotEligible)
	auth, err := svc.VerifyAndReserve(context.Background(), newRoll[0].Identity())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, auth.OfVotingAge, qt.IsTrue)
}

func TestExportSnapshots(t *testing.T) {
	svc := newTestService(t, true)
	_, err := svc.VerifyAndReserve(context.Background(), testRoll[0].Identity())
	qt.Assert(t, err, qt.IsNil)

	dir := t.TempDir()
	registryPath := filepath.Join(dir, "registry.json")
	ledgerPath := filepath.Join(dir, "ledger.json")
	qt.Assert(t, svc.ExportSnapshots(registryPath, ledgerPath), qt.IsNil)

	var reg types.RegistrySnapshot
	data, err := os.ReadFile(registryPath)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, json.Unmarshal(data, &reg), qt.IsNil)
	qt.Assert(t, reg.HashedPeople, qt.HasLen, len(testRoll))
	qt.Assert(t, reg.Salt, qt.Equals, "test-salt")

	var ledger types.LedgerSnapshot
	data, err = os.ReadFile(ledgerPath)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, json.Unmarshal(data, &ledger), qt.IsNil)
	qt.Assert(t, ledger.VotedHashes, qt.HasLen, 1)
}
