package domain

import dErrors "consentry/pkg/domain-errors"

// Identity is an opaque ledger account reference. It supports equality and
// nothing else: the off-chain registration service that maps identities to
// natural persons is an unverified hint, and nothing in this module can
// confirm a key's real-world owner.
//
// Usage: construct via ParseIdentity at trust boundaries; the zero value is
// never a valid party.
type Identity string

// ZeroIdentity is the null account. It is rejected wherever a party,
// recipient, processor, or delegate is named.
const ZeroIdentity Identity = ""

// ParseIdentity constructs an Identity from external input.
//
// Errors: returns CodeValidation when the value is empty; no other errors
// are expected.
func ParseIdentity(s string) (Identity, error) {
	if s == "" {
		return ZeroIdentity, dErrors.New(dErrors.CodeValidation, "identity cannot be empty")
	}
	return Identity(s), nil
}

// IsZero reports whether the identity is the null account.
func (i Identity) IsZero() bool { return i == ZeroIdentity }

func (i Identity) String() string { return string(i) }
