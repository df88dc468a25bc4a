package types

const (
	// AlgorithmSHA256 is the digest algorithm recorded in every exported
	// registry and ledger artifact.
	AlgorithmSHA256 = "SHA-256"

	// MinVotingAge is the threshold from which the of-voting-age flag
	// handed to the proof layer is derived. The raw age never leaves the
	// service.
	MinVotingAge = 18

	// MaxAge is the upper bound accepted for an identity's age field.
	MaxAge = 150

	// RegistryTreeMaxLevels is the depth of the registry Merkle tree. Leaf
	// keys are commitments truncated to RegistryTreeMaxLevels/8 bytes.
	RegistryTreeMaxLevels = 160
)
