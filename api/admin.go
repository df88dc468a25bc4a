package api

import (
	"encoding/json"
	"net/http"

	"github.com/zkvoting/eligibility/log"
)

// rebuildRegistry handles POST /admin/registry/rebuild. The roll path is a
// server-side path: the roll file itself never travels through the API.
func (a *API) rebuildRegistry(w http.ResponseWriter, r *http.Request) {
	req := &RebuildRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Write(w)
		return
	}
	if req.RollPath == "" {
		ErrInvalidInput.Withf("missing roll_path").Write(w)
		return
	}
	if err := a.eligibility.RebuildRegistry(req.RollPath); err != nil {
		writeServiceError(w, err)
		return
	}
	root, size := a.eligibility.RegistryRoot()
	log.Infow("eligibility registry rebuilt", "root", root.String(), "size", size)
	httpWriteJSON(w, &RegistryRootResponse{Root: root, Size: size})
}

// resetLedger handles POST /admin/ledger/reset. It erases every reservation,
// so it only exists behind the admin switch.
func (a *API) resetLedger(w http.ResponseWriter, r *http.Request) {
	if err := a.eligibility.ResetLedger(); err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteOK(w)
}

// exportSnapshots handles POST /admin/export. The snapshot files are written
// on the server; the response only confirms the operation.
func (a *API) exportSnapshots(w http.ResponseWriter, r *http.Request) {
	req := &ExportRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Write(w)
		return
	}
	if req.RegistryPath == "" || req.LedgerPath == "" {
		ErrInvalidInput.Withf("missing snapshot paths").Write(w)
		return
	}
	if err := a.eligibility.ExportSnapshots(req.RegistryPath, req.LedgerPath); err != nil {
		writeServiceError(w, err)
		return
	}
	httpWriteOK(w)
}
