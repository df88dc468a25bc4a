package types

import (
	"fmt"
	"strings"
	"unicode"
)

// Identity carries the secret attributes of a voter for the duration of a
// single verification call. It is never persisted and never logged; only
// commitments derived from it may reach storage.
type Identity struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Age       int    `json:"age"`
}

// RollEntry is one record of the authorized-voter roll file consumed when
// building the eligibility registry. Same shape as Identity, but it lives in
// the administrative input path rather than the serving path.
type RollEntry struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Age       int    `json:"age"`
}

// Identity returns the roll entry as an Identity value.
func (r RollEntry) Identity() Identity {
	return Identity{ID: r.ID, FirstName: r.FirstName, LastName: r.LastName, Age: r.Age}
}

// Validate checks the shape of the identity: non-empty numeric identifier,
// non-empty names and an age within [0, MaxAge]. The error text carries no
// field values.
func (i Identity) Validate() error {
	if err := ValidateIDNumber(i.ID); err != nil {
		return err
	}
	if strings.TrimSpace(i.FirstName) == "" || strings.TrimSpace(i.LastName) == "" {
		return fmt.Errorf("empty name field")
	}
	if i.Age < 0 || i.Age > MaxAge {
		return fmt.Errorf("age out of bounds")
	}
	return nil
}

// OfVotingAge derives the boolean flag forwarded to the proof layer.
func (i Identity) OfVotingAge() bool {
	return i.Age >= MinVotingAge
}

// ValidateIDNumber checks that an identifier is non-empty and made of digits
// only.
func ValidateIDNumber(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("empty identifier")
	}
	for _, r := range id {
		if !unicode.IsDigit(r) {
			return fmt.Errorf("identifier contains non-digit characters")
		}
	}
	return nil
}
