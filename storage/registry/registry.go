// Package registry implements the eligibility registry: the immutable set of
// commitments representing identities authorized to vote. The registry is
// built once from a plaintext roll by an explicit administrative action and
// is read-only for the lifetime of the serving process.
//
// A registry that was never built, or whose persisted state cannot be
// loaded, fails closed: every membership query answers false. An empty or
// broken roll must never be treated as "anyone is eligible".
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/vocdoni/arbo"
	"github.com/zkvoting/eligibility/crypto/commitment"
	"github.com/zkvoting/eligibility/log"
	"github.com/zkvoting/eligibility/storage"
	"github.com/zkvoting/eligibility/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// referencePrefix holds the build reference record.
	referencePrefix = []byte("rr/")
	// idSetPrefix holds the identifier-level commitments.
	idSetPrefix = []byte("ri/")
	// personSetPrefix holds the full-person commitments.
	personSetPrefix = []byte("rp/")
	// treePrefix, suffixed with the build ID, holds the Merkle tree nodes.
	treePrefix = []byte("rt/")

	referenceKey = []byte("current")

	treeHashFunction = arbo.HashFunctionSha256
)

// ErrNotBuilt is returned by operations that need a built registry.
var ErrNotBuilt = fmt.Errorf("eligibility registry has not been built")

// Reference is the persisted record describing the current build. It is the
// provenance metadata exported with snapshots; it never includes the pepper.
type Reference struct {
	BuildID     uuid.UUID `cbor:"buildId"`
	Algorithm   string    `cbor:"algorithm"`
	Salt        string    `cbor:"salt"`
	Description string    `cbor:"description"`
	IDCount     int       `cbor:"idCount"`
	PersonCount int       `cbor:"personCount"`
	Root        []byte    `cbor:"root"`
	BuiltAt     time.Time `cbor:"builtAt"`
}

// Proof is a Merkle inclusion proof of a commitment in the registry tree,
// consumable by the external proof layer.
type Proof struct {
	Root      types.HexBytes `json:"root"`
	Key       types.HexBytes `json:"key"`
	Value     types.HexBytes `json:"value"`
	Siblings  types.HexBytes `json:"siblings"`
	Existence bool           `json:"-"`
}

// Registry is the persistent eligibility registry. Queries after Build (or a
// successful load at construction) require no locking beyond the read lock
// taken to snapshot the reference, since the backing sets are never mutated
// outside an explicit rebuild.
type Registry struct {
	mu    sync.RWMutex
	db    db.Database
	codec *commitment.Codec
	ref   *Reference
	tree  *arbo.Tree
}

// New returns a Registry on the given database. If a previous build exists
// it is loaded; if no build exists, or the persisted state is corrupt, the
// registry serves fail-closed until an explicit Build succeeds.
func New(database db.Database, codec *commitment.Codec) *Registry {
	r := &Registry{db: database, codec: codec}
	if err := r.loadReference(); err != nil {
		if errors.Is(err, ErrNotBuilt) {
			log.Warnw("no eligibility registry found, serving fail-closed")
		} else {
			log.Warnw("cannot load eligibility registry, serving fail-closed", "err", err.Error())
		}
	}
	return r
}

func (r *Registry) loadReference() error {
	rd := prefixeddb.NewPrefixedReader(r.db, referencePrefix)
	data, err := rd.Get(referenceKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotBuilt
		}
		return fmt.Errorf("read registry reference: %w", err)
	}
	var ref Reference
	if err := cbor.Unmarshal(data, &ref); err != nil {
		return fmt.Errorf("decode registry reference: %w", err)
	}
	tree, err := r.openTree(ref.BuildID)
	if err != nil {
		return fmt.Errorf("open registry tree: %w", err)
	}
	root, err := tree.Root()
	if err != nil {
		return fmt.Errorf("registry tree root: %w", err)
	}
	if !bytes.Equal(root, ref.Root) {
		return fmt.Errorf("registry tree root mismatch")
	}
	r.mu.Lock()
	r.ref = &ref
	r.tree = tree
	r.mu.Unlock()
	log.Infow("loaded eligibility registry",
		"buildId", ref.BuildID.String(),
		"ids", ref.IDCount,
		"people", ref.PersonCount)
	return nil
}

func (r *Registry) openTree(buildID uuid.UUID) (*arbo.Tree, error) {
	return arbo.NewTree(arbo.Config{
		Database:     prefixeddb.NewPrefixedDatabase(r.db, buildTreePrefix(buildID)),
		MaxLevels:    types.RegistryTreeMaxLevels,
		HashFunction: treeHashFunction,
	})
}

func buildTreePrefix(buildID uuid.UUID) []byte {
	return append(append([]byte(nil), treePrefix...), buildID[:]...)
}

// leafKey truncates a commitment to the tree key length, the same way the
// commitments are keyed inside the Merkle tree.
func leafKey(c types.HexBytes) []byte {
	return c[:types.RegistryTreeMaxLevels/8]
}

// Build replaces the registry contents with the commitments of the given
// roll. It is an explicit administrative action, equivalent to deploying a
// new authorized-voter list; the serving path never triggers it. Malformed
// roll entries abort the build before any previous state is touched.
func (r *Registry) Build(roll []types.RollEntry, provenance string) error {
	idCommitments := make([]types.HexBytes, 0, len(roll))
	personCommitments := make([]types.HexBytes, 0, len(roll))
	for i, entry := range roll {
		idC, err := r.codec.CommitID(entry.ID)
		if err != nil {
			return fmt.Errorf("roll entry %d: %w", i, err)
		}
		personC, err := r.codec.CommitIdentity(entry.Identity())
		if err != nil {
			return fmt.Errorf("roll entry %d: %w", i, err)
		}
		idCommitments = append(idCommitments, idC)
		personCommitments = append(personCommitments, personC)
	}
	return r.build(idCommitments, personCommitments, provenance)
}

// BuildFromIDs builds a registry from identifiers only. Person-level queries
// against such a registry always answer false.
func (r *Registry) BuildFromIDs(ids []string, provenance string) error {
	idCommitments := make([]types.HexBytes, 0, len(ids))
	for i, id := range ids {
		c, err := r.codec.CommitID(id)
		if err != nil {
			return fmt.Errorf("roll identifier %d: %w", i, err)
		}
		idCommitments = append(idCommitments, c)
	}
	return r.build(idCommitments, nil, provenance)
}

func (r *Registry) build(idCommitments, personCommitments []types.HexBytes, provenance string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	oldRef := r.ref

	// Wipe the previous membership sets.
	for _, prefix := range [][]byte{idSetPrefix, personSetPrefix} {
		if err := r.wipePrefix(prefix); err != nil {
			return err
		}
	}

	buildID := uuid.New()
	tree, err := r.openTree(buildID)
	if err != nil {
		return fmt.Errorf("create registry tree: %w", err)
	}

	if err := r.writeSet(idSetPrefix, idCommitments); err != nil {
		return err
	}
	if err := r.writeSet(personSetPrefix, personCommitments); err != nil {
		return err
	}

	// The tree covers the person commitments when present, otherwise the
	// identifier commitments, so there is always a root to hand to the
	// proof layer.
	treeLeaves := personCommitments
	if len(treeLeaves) == 0 {
		treeLeaves = idCommitments
	}
	for _, c := range treeLeaves {
		if err := tree.Add(leafKey(c), c); err != nil {
			return fmt.Errorf("add registry leaf: %w", err)
		}
	}
	root, err := tree.Root()
	if err != nil {
		return fmt.Errorf("registry tree root: %w", err)
	}

	ref := &Reference{
		BuildID:     buildID,
		Algorithm:   types.AlgorithmSHA256,
		Salt:        r.codec.Salt(),
		Description: provenance,
		IDCount:     len(idCommitments),
		PersonCount: len(personCommitments),
		Root:        root,
		BuiltAt:     time.Now().UTC(),
	}
	data, err := cbor.Marshal(ref)
	if err != nil {
		return fmt.Errorf("encode registry reference: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(r.db.WriteTx(), referencePrefix)
	if err := wTx.Set(referenceKey, data); err != nil {
		wTx.Discard()
		return fmt.Errorf("write registry reference: %w", err)
	}
	if err := wTx.Commit(); err != nil {
		return fmt.Errorf("commit registry reference: %w", err)
	}

	r.ref = ref
	r.tree = tree

	// Drop the previous build's tree nodes in the background.
	if oldRef != nil {
		go func(id uuid.UUID) {
			if n, err := r.wipeTree(id); err != nil {
				log.Warnw("cannot remove previous registry tree", "err", err.Error())
			} else {
				log.Debugw("removed previous registry tree", "nodes", n)
			}
		}(oldRef.BuildID)
	}

	log.Infow("built eligibility registry",
		"buildId", buildID.String(),
		"ids", len(idCommitments),
		"people", len(personCommitments),
		"provenance", provenance)
	return nil
}

func (r *Registry) writeSet(prefix []byte, commitments []types.HexBytes) error {
	if len(commitments) == 0 {
		return nil
	}
	wTx := prefixeddb.NewPrefixedWriteTx(r.db.WriteTx(), prefix)
	for _, c := range commitments {
		if err := wTx.Set(c, []byte{1}); err != nil {
			wTx.Discard()
			return fmt.Errorf("write registry set: %w", err)
		}
	}
	return wTx.Commit()
}

func (r *Registry) wipePrefix(prefix []byte) error {
	database := prefixeddb.NewPrefixedDatabase(r.db, prefix)
	wTx := database.WriteTx()
	if err := database.Iterate(nil, func(k, _ []byte) bool {
		if err := wTx.Delete(k); err != nil {
			log.Warnw("cannot remove registry key", "err", err.Error())
		}
		return true
	}); err != nil {
		wTx.Discard()
		return fmt.Errorf("iterate registry set: %w", err)
	}
	return wTx.Commit()
}

func (r *Registry) wipeTree(buildID uuid.UUID) (int, error) {
	database := prefixeddb.NewPrefixedDatabase(r.db, buildTreePrefix(buildID))
	wTx := database.WriteTx()
	count := 0
	if err := database.Iterate(nil, func(k, _ []byte) bool {
		if err := wTx.Delete(k); err == nil {
			count++
		}
		return true
	}); err != nil {
		wTx.Discard()
		return 0, err
	}
	return count, wTx.Commit()
}

// ContainsPerson reports whether the full-person commitment belongs to the
// registry. An unbuilt or broken registry answers false for every query.
func (r *Registry) ContainsPerson(c types.HexBytes) bool {
	return r.contains(personSetPrefix, c)
}

// ContainsID reports whether the identifier-level commitment belongs to the
// registry. Fail-closed like ContainsPerson.
func (r *Registry) ContainsID(c types.HexBytes) bool {
	return r.contains(idSetPrefix, c)
}

func (r *Registry) contains(prefix []byte, c types.HexBytes) bool {
	r.mu.RLock()
	built := r.ref != nil
	r.mu.RUnlock()
	if !built || len(c) == 0 {
		return false
	}
	rd := prefixeddb.NewPrefixedReader(r.db, prefix)
	_, err := rd.Get(c)
	return err == nil
}

// Built reports whether the registry holds a loaded build.
func (r *Registry) Built() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ref != nil
}

// Root returns the Merkle root of the current build, or nil when unbuilt.
func (r *Registry) Root() types.HexBytes {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ref == nil {
		return nil
	}
	return append(types.HexBytes(nil), r.ref.Root...)
}

// Size returns the number of entries in the current build.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ref == nil {
		return 0
	}
	if r.ref.PersonCount > 0 {
		return r.ref.PersonCount
	}
	return r.ref.IDCount
}

// Reference returns a copy of the current build reference.
func (r *Registry) Reference() (Reference, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ref == nil {
		return Reference{}, ErrNotBuilt
	}
	return *r.ref, nil
}

// GenProof generates a Merkle inclusion proof for a commitment of the
// current build.
func (r *Registry) GenProof(c types.HexBytes) (*Proof, error) {
	r.mu.RLock()
	tree := r.tree
	ref := r.ref
	r.mu.RUnlock()
	if ref == nil || tree == nil {
		return nil, ErrNotBuilt
	}
	key, value, siblings, existence, err := tree.GenProof(leafKey(c))
	if err != nil {
		return nil, fmt.Errorf("generate registry proof: %w", err)
	}
	return &Proof{
		Root:      append(types.HexBytes(nil), ref.Root...),
		Key:       key,
		Value:     value,
		Siblings:  siblings,
		Existence: existence,
	}, nil
}

// VerifyProof checks a Merkle inclusion proof against a registry root.
func VerifyProof(key, value, root, siblings []byte) bool {
	valid, err := arbo.CheckProof(treeHashFunction, key, value, root, siblings)
	if err != nil {
		return false
	}
	return valid
}

// ExportSnapshot writes the read-only registry export to path, replacing any
// previous file atomically. The snapshot carries the salt and algorithm but
// never the pepper.
func (r *Registry) ExportSnapshot(path string) error {
	ref, err := r.Reference()
	if err != nil {
		return err
	}
	ids, err := r.listSet(idSetPrefix)
	if err != nil {
		return err
	}
	people, err := r.listSet(personSetPrefix)
	if err != nil {
		return err
	}
	snapshot := types.RegistrySnapshot{
		HashedIDs:    ids,
		HashedPeople: people,
		Salt:         ref.Salt,
		Algorithm:    ref.Algorithm,
		Description:  ref.Description,
		Root:         ref.Root,
		BuildID:      ref.BuildID.String(),
	}
	return storage.WriteJSONAtomic(path, snapshot)
}

func (r *Registry) listSet(prefix []byte) ([]types.HexBytes, error) {
	rd := prefixeddb.NewPrefixedReader(r.db, prefix)
	var out []types.HexBytes
	if err := rd.Iterate(nil, func(k, _ []byte) bool {
		out = append(out, append(types.HexBytes(nil), k...))
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate registry set: %w", err)
	}
	return out, nil
}
