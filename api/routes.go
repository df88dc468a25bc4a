package api

const (
	// PingEndpoint is the endpoint for checking the API status.
	PingEndpoint = "/ping"
	// VerifyEndpoint is the endpoint for the verify-and-reserve operation.
	VerifyEndpoint = "/eligibility/verify"
	// VotedURLParam is the URL parameter carrying the plain identifier.
	VotedURLParam = "id"
	// VotedEndpoint is the read-only "have I voted" hint endpoint.
	VotedEndpoint = "/eligibility/voted/{" + VotedURLParam + "}"
	// RegistryRootEndpoint exposes the registry Merkle root for the proof
	// layer.
	RegistryRootEndpoint = "/registry/root"
	// RegistryProofEndpoint generates a registry inclusion proof.
	RegistryProofEndpoint = "/registry/proof"
	// AdminRebuildEndpoint rebuilds the eligibility registry from a roll
	// file. Gated behind the admin switch.
	AdminRebuildEndpoint = "/admin/registry/rebuild"
	// AdminResetEndpoint clears the vote ledger. Gated behind the admin
	// switch.
	AdminResetEndpoint = "/admin/ledger/reset"
	// AdminExportEndpoint writes registry and ledger audit snapshots.
	AdminExportEndpoint = "/admin/export"
)
