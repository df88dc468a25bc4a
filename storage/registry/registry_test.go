package registry

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/zkvoting/eligibility/crypto/commitment"
	"github.com/zkvoting/eligibility/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

var testRoll = []types.RollEntry{
	{ID: "12345678901", FirstName: "Ayşe", LastName: "Kaya", Age: 30},
	{ID: "23456789012", FirstName: "Mehmet", LastName: "Demir", Age: 45},
	{ID: "34567890123", FirstName: "Sevgi", LastName: "Özkan", Age: 33},
}

func newTestCodec(t *testing.T) *commitment.Codec {
	codec, err := commitment.NewCodec(commitment.Secret{Salt: "test_salt", Pepper: "test_pepper"})
	qt.Assert(t, err, qt.IsNil)
	return codec
}

func TestRegistryFailsClosedWhenUnbuilt(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t)
	reg := New(metadb.NewTest(t), codec)

	qt.Assert(t, reg.Built(), qt.IsFalse)
	qt.Assert(t, reg.Root(), qt.IsNil)
	qt.Assert(t, reg.Size(), qt.Equals, 0)

	c, err := codec.CommitID("12345678901")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, reg.ContainsID(c), qt.IsFalse)

	p, err := codec.CommitIdentity(testRoll[0].Identity())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, reg.ContainsPerson(p), qt.IsFalse)

	_, err = reg.GenProof(p)
	qt.Assert(t, err, qt.ErrorIs, ErrNotBuilt)
}

func TestRegistryBuildAndContains(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t)
	reg := New(metadb.NewTest(t), codec)

	err := reg.Build(testRoll, "test roll")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, reg.Built(), qt.IsTrue)
	qt.Assert(t, reg.Size(), qt.Equals, len(testRoll))
	qt.Assert(t, len(reg.Root()) > 0, qt.IsTrue)

	for _, entry := range testRoll {
		idC, err := codec.CommitID(entry.ID)
		qt.Assert(t, err, qt.IsNil)
		qt.Assert(t, reg.ContainsID(idC), qt.IsTrue)

		personC, err := codec.CommitIdentity(entry.Identity())
		qt.Assert(t, err, qt.IsNil)
		qt.Assert(t, reg.ContainsPerson(personC), qt.IsTrue)
	}

	// An identity with a single wrong field must not match.
	wrongAge, err := codec.CommitPerson("12345678901", "Ayşe", "Kaya", 31)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, reg.ContainsPerson(wrongAge), qt.IsFalse)

	unknown, err := codec.CommitID("99999999999")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, reg.ContainsID(unknown), qt.IsFalse)
}

func TestRegistryProofRoundTrip(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t)
	reg := New(metadb.NewTest(t), codec)
	qt.Assert(t, reg.Build(testRoll, "test roll"), qt.IsNil)

	personC, err := codec.CommitIdentity(testRoll[1].Identity())
	qt.Assert(t, err, qt.IsNil)

	proof, err := reg.GenProof(personC)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, proof.Existence, qt.IsTrue)
	qt.Assert(t, VerifyProof(proof.Key, proof.Value, proof.Root, proof.Siblings), qt.IsTrue)
}

func TestRegistryPersistsAcrossInstances(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t)
	database := metadb.NewTest(t)

	reg1 := New(database, codec)
	qt.Assert(t, reg1.Build(testRoll, "test roll"), qt.IsNil)
	root := reg1.Root()

	// A second registry on the same database must load the build.
	reg2 := New(database, codec)
	qt.Assert(t, reg2.Built(), qt.IsTrue)
	qt.Assert(t, reg2.Root().Equal(root), qt.IsTrue)

	personC, err := codec.CommitIdentity(testRoll[0].Identity())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, reg2.ContainsPerson(personC), qt.IsTrue)
}

func TestRegistryRebuildReplacesContents(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t)
	reg := New(metadb.NewTest(t), codec)
	qt.Assert(t, reg.Build(testRoll, "first roll"), qt.IsNil)

	oldPerson, err := codec.CommitIdentity(testRoll[0].Identity())
	qt.Assert(t, err, qt.IsNil)

	newRoll := []types.RollEntry{
		{ID: "45678901234", FirstName: "Fatma", LastName: "Çelik", Age: 52},
	}
	qt.Assert(t, reg.Build(newRoll, "second roll"), qt.IsNil)

	qt.Assert(t, reg.ContainsPerson(oldPerson), qt.IsFalse)
	newPerson, err := codec.CommitIdentity(newRoll[0].Identity())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, reg.ContainsPerson(newPerson), qt.IsTrue)
	qt.Assert(t, reg.Size(), qt.Equals, 1)
}

func TestRegistryBuildFromIDs(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t)
	reg := New(metadb.NewTest(t), codec)

	qt.Assert(t, reg.BuildFromIDs([]string{"12345678901", "23456789012"}, "ids only"), qt.IsNil)

	idC, err := codec.CommitID("12345678901")
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, reg.ContainsID(idC), qt.IsTrue)

	// Person-level queries against an identifier-only build always fail.
	personC, err := codec.CommitIdentity(testRoll[0].Identity())
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, reg.ContainsPerson(personC), qt.IsFalse)
}

func TestRegistryBuildRejectsMalformedRoll(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t)
	reg := New(metadb.NewTest(t), codec)

	badRoll := []types.RollEntry{
		{ID: "not-a-number", FirstName: "Ayşe", LastName: "Kaya", Age: 30},
	}
	qt.Assert(t, reg.Build(badRoll, "bad roll"), qt.IsNotNil)
	qt.Assert(t, reg.Built(), qt.IsFalse)
}

func TestLoadRollFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// Missing file fails.
	_, err := LoadRollFile(filepath.Join(dir, "missing.json"))
	qt.Assert(t, err, qt.IsNotNil)

	// Valid roll loads.
	path := filepath.Join(dir, "roll.json")
	content := `[
		{"id": "12345678901", "first_name": "Ayşe", "last_name": "Kaya", "age": 30},
		{"id": "23456789012", "first_name": "Mehmet", "last_name": "Demir", "age": 45}
	]`
	qt.Assert(t, os.WriteFile(path, []byte(content), 0o600), qt.IsNil)
	roll, err := LoadRollFile(path)
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, roll, qt.HasLen, 2)
	qt.Assert(t, roll[0].FirstName, qt.Equals, "Ayşe")

	// Duplicate identifiers are rejected.
	dup := `[
		{"id": "12345678901", "first_name": "Ayşe", "last_name": "Kaya", "age": 30},
		{"id": "12345678901", "first_name": "Ayşe", "last_name": "Kaya", "age": 30}
	]`
	dupPath := filepath.Join(dir, "dup.json")
	qt.Assert(t, os.WriteFile(dupPath, []byte(dup), 0o600), qt.IsNil)
	_, err = LoadRollFile(dupPath)
	qt.Assert(t, err, qt.IsNotNil)

	// Corrupt JSON is rejected.
	corruptPath := filepath.Join(dir, "corrupt.json")
	qt.Assert(t, os.WriteFile(corruptPath, []byte("{not json"), 0o600), qt.IsNil)
	_, err = LoadRollFile(corruptPath)
	qt.Assert(t, err, qt.IsNotNil)
}

func TestRegistryDurabilityAcrossReopen(t *testing.T) {
	t.Parallel()
	codec := newTestCodec(t)
	dir := t.TempDir()

	database, err := metadb.New(db.TypePebble, dir)
	qt.Assert(t, err, qt.IsNil)
	reg := New(database, codec)
	qt.Assert(t, reg.Build(testRoll, "test roll"), qt.IsNil)
	root := reg.Root()
	qt.Assert(t, database.Close(), qt.IsNil)

	database, err = metadb.New(db.TypePebble, dir)
	qt.Assert(t, err, qt.IsNil)
	defer database.Close()
	reg = New(database, codec)
	qt.Assert(t, reg.Built(), qt.IsTrue)
	qt.Assert(t, reg.Root().Equal(root), qt.IsTrue)
}
