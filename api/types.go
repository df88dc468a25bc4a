package api

import (
	"github.com/zkvoting/eligibility/types"
)

// VerifyRequest is the body of POST /eligibility/verify. The identity fields
// exist only for the duration of the request; the server never stores or
// logs them.
type VerifyRequest struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Age       int    `json:"age"`
}

// Identity converts the request into the service identity value.
func (r VerifyRequest) Identity() types.Identity {
	return types.Identity{ID: r.ID, FirstName: r.FirstName, LastName: r.LastName, Age: r.Age}
}

// VerifyResponse is the successful outcome of a verify-and-reserve call. The
// nullifier is an opaque token for the external proof layer.
type VerifyResponse struct {
	Nullifier   types.HexBytes `json:"nullifier"`
	OfVotingAge bool           `json:"of_voting_age"`
	CensusRoot  types.HexBytes `json:"census_root"`
}

// VotedResponse is the body of GET /eligibility/voted/{id}.
type VotedResponse struct {
	Voted bool `json:"voted"`
}

// RegistryRootResponse is the body of GET /registry/root.
type RegistryRootResponse struct {
	Root types.HexBytes `json:"root"`
	Size int            `json:"size"`
}

// RebuildRequest is the body of POST /admin/registry/rebuild.
type RebuildRequest struct {
	RollPath string `json:"roll_path"`
}

// ExportRequest is the body of POST /admin/export.
type ExportRequest struct {
	RegistryPath string `json:"registry_path"`
	LedgerPath   string `json:"ledger_path"`
}
