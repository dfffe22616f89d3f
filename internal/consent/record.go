// Package consent implements the consent authorization state machine: the
// Collection Consent record, its dependent Processing Consent records, and
// the delegation set, mutated one operation at a time in the total order the
// external ledger imposes.
//
// Records are never deleted. Revocation flips grant flags or removes
// purposes; the history of every transition remains on the ledger and on the
// audit stream, and collaborators must not assume erasure.
package consent

import (
	"consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

// CollectionConsent is the root authorization unit between one data subject
// and one data controller.
//
// Invariant: Verify is a strict conjunction over the two independently owned
// grant flags and the validity window. A single party's grant must never
// satisfy it; the legacy behavior where it could is a documented defect, not
// a supported mode.
type CollectionConsent struct {
	ID         string          `json:"id"`
	Subject    domain.Identity `json:"subject"`
	Controller domain.Identity `json:"controller"`

	// Recipients may only grow through controller-initiated processing
	// consent creation under the open-processors policy. Entries are unique.
	Recipients []domain.Identity `json:"recipients"`

	DataFlags       domain.DataFlags `json:"dataFlags"`
	CreatedAt       int64            `json:"createdAt"`
	DurationSeconds int64            `json:"durationSeconds"`

	// Purposes shrink through RevokePurpose and never grow after creation.
	// Revocation may legitimately empty the set.
	Purposes []domain.Purpose `json:"purposes"`

	DSGranted bool `json:"dsGranted"`
	DCGranted bool `json:"dcGranted"`

	// Delegates act with full subject authority on grant and revoke for this
	// record only. Managed exclusively by the subject.
	Delegates []domain.Identity `json:"delegates,omitempty"`

	// Processing maps each processor to its single consent record. One
	// record per processor covering all of its purposes; this shape is
	// load-bearing for RevokeAllForProcessor.
	Processing map[domain.Identity]*ProcessingConsent `json:"processing,omitempty"`

	// Seq counts applied mutations, for optimistic store writes.
	Seq uint64 `json:"seq"`
}

// CreateParams carries the construction input for a collection consent.
type CreateParams struct {
	Subject         domain.Identity
	Controller      domain.Identity
	Recipients      []domain.Identity
	DataFlags       domain.DataFlags
	DurationSeconds int64
	Purposes        []domain.Purpose
}

// New validates params and builds a record with both grant flags down.
//
// Role collisions (subject acting as controller or recipient, controller
// listed as recipient) are rejected: self-consent was possible in the legacy
// contracts but serves no product requirement here.
//
// Errors: CodeValidation for any malformed input; the record is never
// partially constructed.
func New(id string, p CreateParams, createdAt int64) (*CollectionConsent, error) {
	if p.Subject.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "subject cannot be the zero identity")
	}
	if p.Controller.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "controller cannot be the zero identity")
	}
	if p.Subject == p.Controller {
		return nil, dErrors.New(dErrors.CodeValidation, "subject and controller must be distinct parties")
	}
	if len(p.Recipients) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "recipients cannot be empty")
	}
	recipients, err := dedupeIdentities(p.Recipients)
	if err != nil {
		return nil, err
	}
	if len(recipients) > domain.MaxRecipients {
		return nil, dErrors.Newf(dErrors.CodeValidation, "recipients exceed the maximum of %d", domain.MaxRecipients)
	}
	for _, r := range recipients {
		if r == p.Subject {
			return nil, dErrors.New(dErrors.CodeValidation, "subject cannot be a recipient of its own record")
		}
		if r == p.Controller {
			return nil, dErrors.New(dErrors.CodeValidation, "controller cannot be a recipient of its own record")
		}
	}
	if _, err := domain.ParseDataFlags(uint32(p.DataFlags)); err != nil {
		return nil, err
	}
	if p.DurationSeconds <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "duration must be strictly positive")
	}
	if p.DurationSeconds > domain.MaxDurationSeconds {
		return nil, dErrors.Newf(dErrors.CodeValidation, "duration exceeds the maximum of %d seconds", domain.MaxDurationSeconds)
	}
	if len(p.Purposes) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "purposes cannot be empty")
	}
	purposes := domain.DedupePurposes(p.Purposes)
	for _, purpose := range purposes {
		if !purpose.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown purpose %d", uint8(purpose))
		}
	}

	return &CollectionConsent{
		ID:              id,
		Subject:         p.Subject,
		Controller:      p.Controller,
		Recipients:      recipients,
		DataFlags:       p.DataFlags,
		CreatedAt:       createdAt,
		DurationSeconds: p.DurationSeconds,
		Purposes:        purposes,
		Processing:      make(map[domain.Identity]*ProcessingConsent),
	}, nil
}

// Grant records the caller's side of the two-party grant. Granting an
// already granted side is a no-op, never an error, so retries through the
// ordering layer cannot corrupt state.
//
// Errors: CodeUnauthorized when the caller is neither the subject, a
// delegate, nor the controller.
func (c *CollectionConsent) Grant(caller domain.Identity) error {
	switch {
	case c.ActsForSubject(caller):
		c.DSGranted = true
	case caller == c.Controller:
		c.DCGranted = true
	default:
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not a party to this record")
	}
	return nil
}

// Revoke clears the caller's side of the grant. Revoking a flag that was
// never granted is a permitted no-op. Revocation acts forward only: it
// changes future authorization decisions and erases nothing.
func (c *CollectionConsent) Revoke(caller domain.Identity) error {
	switch {
	case c.ActsForSubject(caller):
		c.DSGranted = false
	case caller == c.Controller:
		c.DCGranted = false
	default:
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not a party to this record")
	}
	return nil
}

// Verify reports whether the record authorizes anything at the given ledger
// time: both parties granted and the window not elapsed. Pure; no state is
// touched, and callers may invoke it arbitrarily often. Results are valid
// only at the instant queried and must never be cached.
func (c *CollectionConsent) Verify(now int64) bool {
	return c.DSGranted && c.DCGranted && now < c.windowEnd()
}

// Status names the record's position in the state machine for diagnostics:
// expired, active, partially_granted, or created. Expired is reported
// whenever the window has elapsed regardless of grant state; re-granting
// cannot reopen an elapsed window.
func (c *CollectionConsent) Status(now int64) string {
	switch {
	case c.Expired(now):
		return "expired"
	case c.DSGranted && c.DCGranted:
		return "active"
	case c.DSGranted || c.DCGranted:
		return "partially_granted"
	default:
		return "created"
	}
}

// Expired reports whether the validity window has elapsed, independent of
// grant state. Diagnostic only: Verify already folds this in.
func (c *CollectionConsent) Expired(now int64) bool {
	return now >= c.windowEnd()
}

func (c *CollectionConsent) windowEnd() int64 {
	return domain.CheckedWindowEnd(c.CreatedAt, c.DurationSeconds)
}

// Authorize answers whether recipient may access the requested categories
// right now: the record verifies, the recipient is named, and the request is
// a strict subset of the granted mask.
//
// Errors: CodeValidation for a zero or undefined-bit request; "not
// authorized" on well-formed input is false, never an error.
func (c *CollectionConsent) Authorize(recipient domain.Identity, requested domain.DataFlags, now int64) (bool, error) {
	if recipient.IsZero() {
		return false, dErrors.New(dErrors.CodeValidation, "recipient cannot be the zero identity")
	}
	if _, err := domain.ParseDataFlags(uint32(requested)); err != nil {
		return false, err
	}
	return c.Verify(now) && c.isRecipient(recipient) && c.DataFlags.Contains(requested), nil
}

// ActsForSubject reports whether caller holds data-subject authority over
// this record: the subject itself or a registered delegate.
func (c *CollectionConsent) ActsForSubject(caller domain.Identity) bool {
	if caller == c.Subject {
		return true
	}
	for _, d := range c.Delegates {
		if d == caller {
			return true
		}
	}
	return false
}

func (c *CollectionConsent) isRecipient(identity domain.Identity) bool {
	for _, r := range c.Recipients {
		if r == identity {
			return true
		}
	}
	return false
}

// HasPurpose reports whether the purpose is still on the record.
func (c *CollectionConsent) HasPurpose(purpose domain.Purpose) bool {
	for _, p := range c.Purposes {
		if p == purpose {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so stores can hand out records without aliasing
// the single authoritative state.
func (c *CollectionConsent) Clone() *CollectionConsent {
	cp := *c
	cp.Recipients = append([]domain.Identity(nil), c.Recipients...)
	cp.Purposes = append([]domain.Purpose(nil), c.Purposes...)
	cp.Delegates = append([]domain.Identity(nil), c.Delegates...)
	cp.Processing = make(map[domain.Identity]*ProcessingConsent, len(c.Processing))
	for proc, pc := range c.Processing {
		cp.Processing[proc] = pc.clone()
	}
	return &cp
}

func dedupeIdentities(ids []domain.Identity) ([]domain.Identity, error) {
	seen := make(map[domain.Identity]struct{}, len(ids))
	out := make([]domain.Identity, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() {
			return nil, dErrors.New(dErrors.CodeValidation, "identity cannot be the zero identity")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
