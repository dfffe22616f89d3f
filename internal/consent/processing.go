package consent

import (
	"consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

// ProcessingConsent is a per-processor sub-authorization under a collection
// consent. It carries its own two-party grant cycle but shares the parent's
// validity window; purpose-scoped revocation on the parent propagates here
// without recreating the record.
type ProcessingConsent struct {
	Processor domain.Identity  `json:"processor"`
	Purposes  []domain.Purpose `json:"purposes"`
	DSGranted bool             `json:"dsGranted"`
	DCGranted bool             `json:"dcGranted"`
	CreatedAt int64            `json:"createdAt"`
}

// ProcessingPolicy selects how processors relate to the parent's recipient
// list at creation time.
type ProcessingPolicy struct {
	// OpenProcessors restores the legacy behavior: a processor need not be
	// a recipient yet, and creation appends it to the recipient list. The
	// default requires prior membership.
	OpenProcessors bool
}

// CreateProcessingConsent instantiates the single processing record for a
// processor, scoped to a subset of the parent's purposes. Controller-only,
// and only while the parent verifies.
//
// Errors: CodeUnauthorized for non-controller callers or a non-verifying
// parent; CodeValidation for a zero processor, purposes outside the parent,
// or a non-recipient processor under the closed policy; CodeConflict when
// the processor already has a record.
func (c *CollectionConsent) CreateProcessingConsent(processor domain.Identity, purposes []domain.Purpose, caller domain.Identity, now int64, policy ProcessingPolicy) (*ProcessingConsent, error) {
	if caller != c.Controller {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "only the controller may create processing consents")
	}
	if !c.Verify(now) {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "parent record does not currently verify")
	}
	if processor.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "processor cannot be the zero identity")
	}
	if processor == c.Subject || processor == c.Controller {
		return nil, dErrors.New(dErrors.CodeValidation, "processor must be distinct from the record parties")
	}
	if len(purposes) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "purposes cannot be empty")
	}
	purposes = domain.DedupePurposes(purposes)
	for _, p := range purposes {
		if !c.HasPurpose(p) {
			return nil, dErrors.Newf(dErrors.CodeValidation, "purpose %s is not on the parent record", p)
		}
	}
	if _, exists := c.Processing[processor]; exists {
		return nil, dErrors.New(dErrors.CodeConflict, "processor already has a processing consent")
	}
	if len(c.Processing) >= domain.MaxProcessors {
		return nil, dErrors.Newf(dErrors.CodeValidation, "processing consents exceed the maximum of %d", domain.MaxProcessors)
	}
	if !c.isRecipient(processor) {
		if !policy.OpenProcessors {
			return nil, dErrors.New(dErrors.CodeValidation, "processor is not a recipient of this record")
		}
		// The open policy makes creation the one mutation path for the
		// recipient list.
		if len(c.Recipients) >= domain.MaxRecipients {
			return nil, dErrors.Newf(dErrors.CodeValidation, "recipients exceed the maximum of %d", domain.MaxRecipients)
		}
		c.Recipients = append(c.Recipients, processor)
	}

	pc := &ProcessingConsent{
		Processor: processor,
		Purposes:  purposes,
		CreatedAt: now,
	}
	c.Processing[processor] = pc
	return pc, nil
}

// ProcessingFor returns the processor's record.
//
// Errors: CodeNotFound when the processor has none.
func (c *CollectionConsent) ProcessingFor(processor domain.Identity) (*ProcessingConsent, error) {
	pc, ok := c.Processing[processor]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "no processing consent for processor %s", processor)
	}
	return pc, nil
}

// GrantProcessing mirrors the parent's two-party grant on the processor's
// record. Idempotent.
//
// Errors: CodeNotFound when the processor has no record; CodeUnauthorized
// when the caller is not a party.
func (c *CollectionConsent) GrantProcessing(processor, caller domain.Identity) error {
	pc, err := c.ProcessingFor(processor)
	if err != nil {
		return err
	}
	switch {
	case c.ActsForSubject(caller):
		pc.DSGranted = true
	case caller == c.Controller:
		pc.DCGranted = true
	default:
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not a party to this record")
	}
	return nil
}

// RevokeProcessing clears the caller's side on the processor's record.
// Idempotent; revoking an ungranted flag is a no-op.
func (c *CollectionConsent) RevokeProcessing(processor, caller domain.Identity) error {
	pc, err := c.ProcessingFor(processor)
	if err != nil {
		return err
	}
	switch {
	case c.ActsForSubject(caller):
		pc.DSGranted = false
	case caller == c.Controller:
		pc.DCGranted = false
	default:
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not a party to this record")
	}
	return nil
}

// VerifyForPurpose reports whether the processor is currently authorized to
// act under the purpose: its record is active within the parent's window and
// the purpose survives on the record. Pure and uncacheable, like Verify.
func (pc *ProcessingConsent) VerifyForPurpose(purpose domain.Purpose, parentWindowEnd int64, now int64) bool {
	return pc.Active(parentWindowEnd, now) && pc.hasPurpose(purpose)
}

// Active applies the same two-party AND and time rule as the parent record.
func (pc *ProcessingConsent) Active(parentWindowEnd int64, now int64) bool {
	return pc.DSGranted && pc.DCGranted && now < parentWindowEnd
}

// VerifyProcessingForPurpose resolves the processor's record and evaluates
// VerifyForPurpose against this record's window.
//
// Errors: CodeNotFound when the processor has no record; CodeValidation for
// a purpose outside the enumeration.
func (c *CollectionConsent) VerifyProcessingForPurpose(processor domain.Identity, purpose domain.Purpose, now int64) (bool, error) {
	if !purpose.IsValid() {
		return false, dErrors.Newf(dErrors.CodeValidation, "unknown purpose %d", uint8(purpose))
	}
	pc, err := c.ProcessingFor(processor)
	if err != nil {
		return false, err
	}
	return pc.VerifyForPurpose(purpose, c.windowEnd(), now), nil
}

// RevokePurpose removes the purpose from this record and from every
// processing consent referencing it, in one mutation: no observer under the
// ledger's total order can see the purpose gone from one but not the other.
// Subject authority only. Removing an absent purpose is a no-op.
//
// Errors: CodeUnauthorized for callers without subject authority;
// CodeValidation for purposes outside the enumeration.
func (c *CollectionConsent) RevokePurpose(purpose domain.Purpose, caller domain.Identity) error {
	if !c.ActsForSubject(caller) {
		return dErrors.New(dErrors.CodeUnauthorized, "only the data subject or a delegate may revoke a purpose")
	}
	if !purpose.IsValid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown purpose %d", uint8(purpose))
	}
	c.Purposes = removePurpose(c.Purposes, purpose)
	for _, pc := range c.Processing {
		pc.Purposes = removePurpose(pc.Purposes, purpose)
	}
	return nil
}

// RevokeAllForProcessor invalidates every grant on the processor's record.
// Subject authority only. The record itself survives so the processor's
// history stays addressable.
//
// Errors: CodeUnauthorized for callers without subject authority;
// CodeNotFound when the processor has no record.
func (c *CollectionConsent) RevokeAllForProcessor(processor, caller domain.Identity) error {
	if !c.ActsForSubject(caller) {
		return dErrors.New(dErrors.CodeUnauthorized, "only the data subject or a delegate may revoke a processor")
	}
	pc, err := c.ProcessingFor(processor)
	if err != nil {
		return err
	}
	pc.DSGranted = false
	pc.DCGranted = false
	return nil
}

func (pc *ProcessingConsent) hasPurpose(purpose domain.Purpose) bool {
	for _, p := range pc.Purposes {
		if p == purpose {
			return true
		}
	}
	return false
}

func (pc *ProcessingConsent) clone() *ProcessingConsent {
	cp := *pc
	cp.Purposes = append([]domain.Purpose(nil), pc.Purposes...)
	return &cp
}

func removePurpose(purposes []domain.Purpose, purpose domain.Purpose) []domain.Purpose {
	out := purposes[:0]
	for _, p := range purposes {
		if p != purpose {
			out = append(out, p)
		}
	}
	return out
}
