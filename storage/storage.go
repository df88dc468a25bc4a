// Package storage persists the mutable state of the eligibility service on a
// prefixed key-value database. The only mutable artifact is the vote ledger:
// the set of commitments that have already claimed a vote. The following
// prefixes are used:
//   - 'vl/' for ledger entries (one per voted commitment)
//
// The eligibility registry lives in the registry subpackage under its own
// prefixes of the same database.
package storage

import (
	"sync"

	"go.vocdoni.io/dvote/db"
)

var (
	// ledgerPrefix is the key prefix of the voted-commitment entries.
	ledgerPrefix = []byte("vl/")
)

// Storage is the durable vote ledger. The reserve operation is guarded by a
// global lock so that the read-check-write over the persisted set is atomic
// with respect to concurrent callers; reads go straight to the database,
// which is safe for concurrent use.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
	salt       string
}

// New creates a Storage instance on the given database. The salt is recorded
// in every persisted ledger entry for audit purposes (the pepper never is).
func New(database db.Database, salt string) *Storage {
	return &Storage{db: database, salt: salt}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	s.db.Close()
}
