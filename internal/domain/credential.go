package domain

// CredentialScheme tags which generation of password material a record holds.
type CredentialScheme string

const (
	// SchemeLegacySalted is the first generation: hex SHA-256 of salt + "--" + password.
	SchemeLegacySalted CredentialScheme = "legacy_sha256"

	// SchemeAdaptive is the current generation: a bcrypt hash.
	SchemeAdaptive CredentialScheme = "bcrypt"
)

// Credential is the persisted password material of a user.
// Exactly one generation is populated: Salt and Digest for SchemeLegacySalted,
// Hash for SchemeAdaptive.
type Credential struct {
	Scheme CredentialScheme

	// Salt and Digest are set for legacy records only.
	Salt   string
	Digest string

	// Hash is the bcrypt hash for adaptive records.
	Hash string
}

// IsLegacy reports whether the material predates bcrypt.
func (c Credential) IsLegacy() bool {
	return c.Scheme == SchemeLegacySalted
}

// IsZero reports whether no material is present.
func (c Credential) IsZero() bool {
	return c.Scheme == "" && c.Salt == "" && c.Digest == "" && c.Hash == ""
}
