package types

// RegistrySnapshot is the read-only export of the eligibility registry for
// offline distribution. It carries the salt and algorithm so an auditor can
// recompute commitments, but never the pepper.
type RegistrySnapshot struct {
	HashedIDs    []HexBytes `json:"hashed_ids"`
	HashedPeople []HexBytes `json:"hashed_people"`
	Salt         string     `json:"salt"`
	Algorithm    string     `json:"algorithm"`
	Description  string     `json:"description"`
	Root         HexBytes   `json:"root"`
	BuildID      string     `json:"build_id"`
}

// LedgerSnapshot is the audit export of the vote ledger.
type LedgerSnapshot struct {
	VotedHashes []HexBytes `json:"voted_hashes"`
	Salt        string     `json:"salt"`
	Algorithm   string     `json:"algorithm"`
	Description string     `json:"description"`
}
