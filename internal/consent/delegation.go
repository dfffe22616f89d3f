package consent

import (
	"consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

// AddDelegate registers an identity with full subject authority over grant
// and revoke on this record only. Delegation is per record, never global,
// and delegate authority does not extend to delegate management itself: a
// delegate calling this fails like any other non-subject.
//
// The Forbidden code (rather than the generic Unauthorized) keeps delegate
// management failures distinguishable in logs and alerts.
//
// Errors: CodeForbidden for non-subject callers; CodeValidation for the zero
// identity, the subject itself, the controller, or a full delegate set.
func (c *CollectionConsent) AddDelegate(identity, caller domain.Identity) error {
	if caller != c.Subject {
		return dErrors.New(dErrors.CodeForbidden, "only the data subject may manage delegates")
	}
	if identity.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "delegate cannot be the zero identity")
	}
	if identity == c.Subject {
		return dErrors.New(dErrors.CodeValidation, "subject cannot delegate to itself")
	}
	if identity == c.Controller {
		return dErrors.New(dErrors.CodeValidation, "controller cannot hold subject authority")
	}
	if c.IsDelegate(identity) {
		return nil
	}
	if len(c.Delegates) >= domain.MaxDelegates {
		return dErrors.Newf(dErrors.CodeValidation, "delegates exceed the maximum of %d", domain.MaxDelegates)
	}
	c.Delegates = append(c.Delegates, identity)
	return nil
}

// RemoveDelegate withdraws an identity's subject authority. Subject only;
// removing an identity that is not a delegate is a no-op.
func (c *CollectionConsent) RemoveDelegate(identity, caller domain.Identity) error {
	if caller != c.Subject {
		return dErrors.New(dErrors.CodeForbidden, "only the data subject may manage delegates")
	}
	out := c.Delegates[:0]
	for _, d := range c.Delegates {
		if d != identity {
			out = append(out, d)
		}
	}
	c.Delegates = out
	return nil
}

// IsDelegate reports whether the identity currently holds delegated subject
// authority on this record.
func (c *CollectionConsent) IsDelegate(identity domain.Identity) bool {
	for _, d := range c.Delegates {
		if d == identity {
			return true
		}
	}
	return false
}
