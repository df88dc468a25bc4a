package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/zkvoting/eligibility/log"
	"github.com/zkvoting/eligibility/service"
	"github.com/zkvoting/eligibility/storage/registry"
)

// verifyAndReserve handles POST /eligibility/verify. It runs the full
// pipeline and, on success, returns the nullifier the proof layer binds the
// vote to. Rejections map to stable error codes without echoing any identity
// field back.
func (a *API) verifyAndReserve(w http.ResponseWriter, r *http.Request) {
	req := &VerifyRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Write(w)
		return
	}
	auth, err := a.eligibility.VerifyAndReserve(r.Context(), req.Identity())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, &VerifyResponse{
		Nullifier:   auth.Nullifier,
		OfVotingAge: auth.OfVotingAge,
		CensusRoot:  auth.CensusRoot,
	})
}

// hasVoted handles GET /eligibility/voted/{id}. The answer is a UI hint; the
// authoritative at-most-once decision is made by verifyAndReserve.
func (a *API) hasVoted(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, VotedURLParam)
	voted, err := a.eligibility.HasVoted(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, &VotedResponse{Voted: voted})
}

// registryRoot handles GET /registry/root.
func (a *API) registryRoot(w http.ResponseWriter, r *http.Request) {
	root, size := a.eligibility.RegistryRoot()
	if root == nil {
		ErrResourceNotFound.Withf("no eligibility registry loaded").Write(w)
		return
	}
	httpWriteJSON(w, &RegistryRootResponse{Root: root, Size: size})
}

// registryProof handles POST /registry/proof. The body carries the same
// identity shape as the verify call; the response is the Merkle proof of the
// person commitment against the current registry root.
func (a *API) registryProof(w http.ResponseWriter, r *http.Request) {
	req := &VerifyRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Write(w)
		return
	}
	proof, err := a.eligibility.RegistryProof(req.Identity())
	if err != nil {
		if errors.Is(err, registry.ErrNotBuilt) {
			ErrResourceNotFound.Withf("no eligibility registry loaded").Write(w)
			return
		}
		writeServiceError(w, err)
		return
	}
	httpWriteJSON(w, proof)
}

// writeServiceError translates service sentinel errors into typed API errors.
// Anything unrecognized is an internal error; its detail stays in the server
// log and only the generic message reaches the caller.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		ErrInvalidInput.Write(w)
	case errors.Is(err, service.ErrNotEligible):
		ErrNotEligible.Write(w)
	case errors.Is(err, service.ErrAlreadyVoted):
		ErrAlreadyVoted.Write(w)
	case errors.Is(err, service.ErrAdminDisabled):
		ErrAdminDisabled.Write(w)
	default:
		log.Errorw(err, "eligibility request failed")
		ErrGenericInternalServerError.Write(w)
	}
}
