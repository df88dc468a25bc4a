package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/zkvoting/eligibility/log"
	"github.com/zkvoting/eligibility/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// LedgerEntry is the persisted record of a claimed vote. It carries enough
// metadata for an auditor to recompute the commitment given the roll and the
// pepper; the pepper itself is never stored.
type LedgerEntry struct {
	Commitment types.HexBytes `cbor:"commitment"`
	Algorithm  string         `cbor:"algorithm"`
	Salt       string         `cbor:"salt"`
	ReservedAt time.Time      `cbor:"reservedAt"`
}

// TryReserve atomically claims a vote for the given commitment. It returns
// true exactly once per commitment system-wide, including across restarts:
// the first caller inserts the entry and has it committed to disk before
// true is returned; every other caller, concurrent or later, gets false.
//
// A commit failure returns an error, never true, so a reservation that is
// not durable is not reported as made. Note this is the only authoritative
// duplicate-vote decision; HasVoted is advisory.
func (s *Storage) TryReserve(commitment types.HexBytes) (bool, error) {
	if len(commitment) == 0 {
		return false, fmt.Errorf("empty commitment")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	rd := prefixeddb.NewPrefixedReader(s.db, ledgerPrefix)
	if _, err := rd.Get(commitment); err == nil {
		return false, nil
	} else if !errors.Is(err, db.ErrKeyNotFound) {
		return false, fmt.Errorf("read ledger: %w", err)
	}

	entry := LedgerEntry{
		Commitment: commitment,
		Algorithm:  types.AlgorithmSHA256,
		Salt:       s.salt,
		ReservedAt: time.Now().UTC(),
	}
	val, err := encodeArtifact(entry)
	if err != nil {
		return false, fmt.Errorf("encode ledger entry: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), ledgerPrefix)
	if err := wTx.Set(commitment, val); err != nil {
		wTx.Discard()
		return false, fmt.Errorf("write ledger entry: %w", err)
	}
	if err := wTx.Commit(); err != nil {
		return false, fmt.Errorf("commit ledger entry: %w", err)
	}
	return true, nil
}

// HasVoted reports whether the commitment is present in the ledger. It is a
// read-only probe for UI hinting; reservation decisions must rely on the
// return value of TryReserve only.
func (s *Storage) HasVoted(commitment types.HexBytes) (bool, error) {
	if len(commitment) == 0 {
		return false, fmt.Errorf("empty commitment")
	}
	rd := prefixeddb.NewPrefixedReader(s.db, ledgerPrefix)
	if _, err := rd.Get(commitment); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("read ledger: %w", err)
	}
	return true, nil
}

// CountVoted returns the number of commitments in the ledger.
func (s *Storage) CountVoted() (int, error) {
	rd := prefixeddb.NewPrefixedReader(s.db, ledgerPrefix)
	count := 0
	if err := rd.Iterate(nil, func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		return 0, fmt.Errorf("iterate ledger: %w", err)
	}
	return count, nil
}

// VotedCommitments returns every commitment currently in the ledger, in
// lexicographic key order.
func (s *Storage) VotedCommitments() ([]types.HexBytes, error) {
	rd := prefixeddb.NewPrefixedReader(s.db, ledgerPrefix)
	var voted []types.HexBytes
	if err := rd.Iterate(nil, func(k, _ []byte) bool {
		voted = append(voted, append(types.HexBytes(nil), k...))
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return voted, nil
}

// ResetLedger removes every entry from the ledger. It nullifies the
// anti-replay guarantee for every voter, so it is reserved for test and demo
// environments; callers gate it behind an explicit admin switch.
func (s *Storage) ResetLedger() error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var keys [][]byte
	rd := prefixeddb.NewPrefixedReader(s.db, ledgerPrefix)
	if err := rd.Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, append([]byte(nil), k...))
		return true
	}); err != nil {
		return fmt.Errorf("iterate ledger: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), ledgerPrefix)
	for _, k := range keys {
		if err := wTx.Delete(k); err != nil {
			wTx.Discard()
			return fmt.Errorf("delete ledger entry: %w", err)
		}
	}
	if err := wTx.Commit(); err != nil {
		return fmt.Errorf("commit ledger reset: %w", err)
	}
	log.Warnw("vote ledger reset", "removed", len(keys))
	return nil
}

// ExportLedgerSnapshot writes the audit snapshot of the ledger to path,
// replacing any previous file atomically.
func (s *Storage) ExportLedgerSnapshot(path string) error {
	voted, err := s.VotedCommitments()
	if err != nil {
		return err
	}
	snapshot := types.LedgerSnapshot{
		VotedHashes: voted,
		Salt:        s.salt,
		Algorithm:   types.AlgorithmSHA256,
		Description: "commitments of identities that have already claimed a vote",
	}
	return WriteJSONAtomic(path, snapshot)
}
