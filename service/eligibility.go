// Package service orchestrates the commitment codec, the eligibility
// registry and the vote ledger into the verify-and-reserve operation exposed
// to the external proof and UI layers.
package service

import (
	"context"
	"fmt"

	"github.com/zkvoting/eligibility/crypto/commitment"
	"github.com/zkvoting/eligibility/log"
	"github.com/zkvoting/eligibility/storage"
	"github.com/zkvoting/eligibility/storage/registry"
	"github.com/zkvoting/eligibility/types"
)

// Rejection reasons. They are coarse sentinel values: no identity field ever
// appears in an error surfaced to a caller.
var (
	// ErrInvalidInput is returned when the identity fails shape validation.
	ErrInvalidInput = fmt.Errorf("invalid input")
	// ErrNotEligible is returned when the full-person commitment is not in
	// the eligibility registry.
	ErrNotEligible = fmt.Errorf("not eligible")
	// ErrAlreadyVoted is returned when the identifier commitment already
	// claimed a vote.
	ErrAlreadyVoted = fmt.Errorf("already voted")
	// ErrAdminDisabled is returned by administrative operations when the
	// service runs without the admin surface enabled.
	ErrAdminDisabled = fmt.Errorf("administrative operations are disabled")
)

// Authorization is the successful outcome of VerifyAndReserve. The Nullifier
// is the identifier commitment: an opaque token the external proof layer may
// use to bind the vote without learning the identity. OfVotingAge is the only
// age-derived datum that leaves the service; the raw age never does.
type Authorization struct {
	Nullifier    types.HexBytes `json:"nullifier"`
	OfVotingAge  bool           `json:"of_voting_age"`
	CensusRoot   types.HexBytes `json:"census_root"`
	RegistrySize int            `json:"-"`
}

// Eligibility answers "may this identity vote, and if so, atomically claim
// that right". It holds no mutable state of its own; all durable state lives
// in the ledger and the registry.
type Eligibility struct {
	codec        *commitment.Codec
	registry     *registry.Registry
	ledger       *storage.Storage
	adminEnabled bool
}

// Config wires an Eligibility service.
type Config struct {
	Codec    *commitment.Codec
	Registry *registry.Registry
	Ledger   *storage.Storage
	// AdminEnabled gates RebuildRegistry and ResetLedger. Leave false in
	// any live election.
	AdminEnabled bool
}

// New creates an Eligibility service. All three collaborators are required.
func New(cfg Config) (*Eligibility, error) {
	if cfg.Codec == nil || cfg.Registry == nil || cfg.Ledger == nil {
		return nil, fmt.Errorf("missing eligibility service dependencies")
	}
	return &Eligibility{
		codec:        cfg.Codec,
		registry:     cfg.Registry,
		ledger:       cfg.Ledger,
		adminEnabled: cfg.AdminEnabled,
	}, nil
}

// VerifyAndReserve validates the identity, checks it against the eligibility
// registry and atomically claims its vote right. The gates short-circuit in
// order: InvalidInput, NotEligible, AlreadyVoted. A non-eligible identity
// never consumes a reservation, and under concurrent calls for the same
// identity exactly one caller receives an Authorization.
//
// The context only bounds the caller's wait: a reservation that was durably
// committed before cancellation stands. A caller that times out after
// submitting must treat its status as unknown and resolve it via HasVoted.
func (e *Eligibility) VerifyAndReserve(ctx context.Context, identity types.Identity) (*Authorization, error) {
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	personC, err := e.codec.CommitIdentity(identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !e.registry.ContainsPerson(personC) {
		return nil, ErrNotEligible
	}

	idC, err := e.codec.CommitID(identity.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	reserved, err := e.ledger.TryReserve(idC)
	if err != nil {
		return nil, fmt.Errorf("reserve vote: %w", err)
	}
	if !reserved {
		return nil, ErrAlreadyVoted
	}

	log.Debugw("vote right reserved", "nullifier", idC.String())
	return &Authorization{
		Nullifier:    idC,
		OfVotingAge:  identity.OfVotingAge(),
		CensusRoot:   e.registry.Root(),
		RegistrySize: e.registry.Size(),
	}, nil
}

// HasVoted reports whether the identifier has already claimed a vote. It is
// a UI hint only; the authoritative decision is the return value of
// VerifyAndReserve.
func (e *Eligibility) HasVoted(id string) (bool, error) {
	idC, err := e.codec.CommitID(id)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return e.ledger.HasVoted(idC)
}

// RegistryRoot returns the Merkle root of the current registry build (nil
// when no registry is loaded) together with its size.
func (e *Eligibility) RegistryRoot() (types.HexBytes, int) {
	return e.registry.Root(), e.registry.Size()
}

// RegistryProof generates a registry inclusion proof for the full-person
// commitment of the given identity, for consumption by the proof layer.
func (e *Eligibility) RegistryProof(identity types.Identity) (*registry.Proof, error) {
	if err := identity.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	personC, err := e.codec.CommitIdentity(identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return e.registry.GenProof(personC)
}

// RebuildRegistry replaces the eligibility registry with the roll at
// rollPath. It is an explicit administrative action and is refused unless
// admin operations are enabled.
func (e *Eligibility) RebuildRegistry(rollPath string) error {
	if !e.adminEnabled {
		return ErrAdminDisabled
	}
	roll, err := registry.LoadRollFile(rollPath)
	if err != nil {
		return err
	}
	log.Warnw("rebuilding eligibility registry", "roll", rollPath, "entries", len(roll))
	return e.registry.Build(roll, fmt.Sprintf("rebuilt from %s", rollPath))
}

// ResetLedger clears the vote ledger. Admin/test only: it nullifies the
// anti-replay guarantee for every voter.
func (e *Eligibility) ResetLedger() error {
	if !e.adminEnabled {
		return ErrAdminDisabled
	}
	log.Warnw("resetting vote ledger")
	return e.ledger.ResetLedger()
}

// ExportSnapshots writes the registry and ledger audit snapshots into dir.
func (e *Eligibility) ExportSnapshots(registryPath, ledgerPath string) error {
	if !e.adminEnabled {
		return ErrAdminDisabled
	}
	if err := e.registry.ExportSnapshot(registryPath); err != nil {
		return fmt.Errorf("export registry snapshot: %w", err)
	}
	if err := e.ledger.ExportLedgerSnapshot(ledgerPath); err != nil {
		return fmt.Errorf("export ledger snapshot: %w", err)
	}
	return nil
}

// VotedCount returns the number of commitments in the ledger.
func (e *Eligibility) VotedCount() (int, error) {
	return e.ledger.CountVoted()
}
