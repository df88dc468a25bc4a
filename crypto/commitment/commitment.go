// Package commitment implements the one-way commitment scheme that turns raw
// identity attributes into unlinkable tokens. A commitment is the SHA-256
// digest of the secret salt, the identity fields in a fixed order and the
// secret pepper. Commitments are the only form of an identity allowed to
// cross into persistent storage or logs.
package commitment

import (
	"crypto/sha256"
	"fmt"
	"strconv"

	"github.com/zkvoting/eligibility/types"
)

// Secret is the process-wide secret material mixed into every commitment.
// The salt may be distributed together with exported artifacts; the pepper
// must only ever be supplied through the runtime environment.
//
// Changing either value invalidates every previously issued commitment: a
// registry or ledger built under the old secrets cannot recognize tokens
// computed under the new ones. This is intentional rotation-as-reset
// behavior, not data loss.
type Secret struct {
	Salt   string
	Pepper string
}

// Validate checks that both secret values are present.
func (s Secret) Validate() error {
	if s.Salt == "" {
		return fmt.Errorf("empty salt")
	}
	if s.Pepper == "" {
		return fmt.Errorf("empty pepper")
	}
	return nil
}

// Codec computes commitments under a fixed Secret. It is stateless beyond
// the secret material and safe for concurrent use.
type Codec struct {
	secret Secret
}

// NewCodec returns a Codec bound to the given secret material.
func NewCodec(secret Secret) (*Codec, error) {
	if err := secret.Validate(); err != nil {
		return nil, fmt.Errorf("invalid secret material: %w", err)
	}
	return &Codec{secret: secret}, nil
}

// Salt returns the distributable half of the secret material, recorded in
// exported artifacts so auditors can recompute commitments.
func (c *Codec) Salt() string {
	return c.secret.Salt
}

// CommitID computes the commitment over the identifier alone. It keys the
// vote ledger, so duplicate-vote checks depend only on the identifier.
// Field order: salt, id, pepper.
func (c *Codec) CommitID(id string) (types.HexBytes, error) {
	if err := types.ValidateIDNumber(id); err != nil {
		return nil, fmt.Errorf("commit id: %w", err)
	}
	return c.digest(id), nil
}

// CommitPerson computes the commitment over the identifier plus the
// biographic fields. It keys the eligibility registry, so a match requires
// the submitted data to agree exactly with the authorized roll.
// Field order: salt, id, first name, last name, age (canonical decimal
// text), pepper.
func (c *Codec) CommitPerson(id, firstName, lastName string, age int) (types.HexBytes, error) {
	if err := types.ValidateIDNumber(id); err != nil {
		return nil, fmt.Errorf("commit person: %w", err)
	}
	if firstName == "" || lastName == "" {
		return nil, fmt.Errorf("commit person: empty name field")
	}
	if age < 0 || age > types.MaxAge {
		return nil, fmt.Errorf("commit person: age out of bounds")
	}
	return c.digest(id, firstName, lastName, strconv.Itoa(age)), nil
}

// CommitIdentity is CommitPerson over an Identity value.
func (c *Codec) CommitIdentity(identity types.Identity) (types.HexBytes, error) {
	return c.CommitPerson(identity.ID, identity.FirstName, identity.LastName, identity.Age)
}

func (c *Codec) digest(fields ...string) types.HexBytes {
	h := sha256.New()
	h.Write([]byte(c.secret.Salt))
	for _, f := range fields {
		h.Write([]byte(f))
	}
	h.Write([]byte(c.secret.Pepper))
	return h.Sum(nil)
}
