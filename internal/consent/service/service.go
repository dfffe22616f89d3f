// Package service applies consent operations in the ledger's total order and
// answers point-in-time queries. Every mutation is load-apply-save under the
// sequencer: the record either transitions completely or not at all, and
// whichever order the ledger finally imposes on conflicting submissions
// yields a deterministic result.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"consentry/internal/consent"
	"consentry/internal/consent/store"
	"consentry/internal/ledger"
	"consentry/internal/platform/metrics"
	"consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
	audit "consentry/pkg/platform/audit"
	"consentry/pkg/platform/sentinel"
)

// Service owns the consent state machine's interaction with the ledger
// order, the store, and the audit stream.
type Service struct {
	store   store.Store
	seq     *ledger.Sequencer
	clock   ledger.Clock
	policy  consent.ProcessingPolicy
	auditCh chan<- audit.Event
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// New wires a service. auditCh may be nil to disable audit emission (tests);
// metrics may be nil for the same reason.
func New(st store.Store, seq *ledger.Sequencer, clock ledger.Clock, policy consent.ProcessingPolicy, auditCh chan<- audit.Event, m *metrics.Metrics) *Service {
	return &Service{
		store:   st,
		seq:     seq,
		clock:   clock,
		policy:  policy,
		auditCh: auditCh,
		metrics: m,
		tracer:  otel.Tracer("consentry/consent"),
	}
}

// Create validates and persists a new collection consent record with both
// grant flags down. The record ID is assigned here; creation is itself an
// operation in the ledger order.
//
// Replay surfaces differently here than on mutations. A replayed mutation is
// indistinguishable from its own success and returns nil; a replayed Create
// cannot return the record the original call made, because the operation ID
// carries no mapping back to the record ID it was assigned. It returns
// CodeConflict so the caller knows to recover the record via ListBySubject
// instead of treating a nil record as success.
func (s *Service) Create(ctx context.Context, opID string, params consent.CreateParams) (*consent.CollectionConsent, error) {
	ctx, span := s.tracer.Start(ctx, "consent.Create")
	defer span.End()

	var created *consent.CollectionConsent
	err := s.seq.Apply(ctx, s.opID(opID), func() error {
		record, err := consent.New(uuid.NewString(), params, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.store.Save(ctx, record); err != nil {
			return s.translate(err)
		}
		created = record
		return nil
	})
	if err != nil {
		s.metrics.IncOperationFailure("create", string(dErrors.CodeOf(err)))
		return nil, err
	}
	if created == nil {
		// Replayed operation ID. Unlike mutate, there is no record to hand
		// back, so the replay is surfaced instead of swallowed.
		return nil, dErrors.New(dErrors.CodeConflict, "operation already applied")
	}
	s.metrics.IncOperation("create")
	s.emit(audit.Event{
		Action:   audit.ActionRecordCreated,
		RecordID: created.ID,
		Caller:   params.Subject.String(),
	})
	return created.Clone(), nil
}

// Grant applies the caller's grant to the record.
func (s *Service) Grant(ctx context.Context, opID, recordID string, caller domain.Identity) error {
	return s.mutate(ctx, "grant", opID, recordID, caller, audit.Event{Action: audit.ActionConsentGranted},
		func(record *consent.CollectionConsent) error {
			return record.Grant(caller)
		})
}

// Revoke applies the caller's revoke to the record.
func (s *Service) Revoke(ctx context.Context, opID, recordID string, caller domain.Identity) error {
	return s.mutate(ctx, "revoke", opID, recordID, caller, audit.Event{Action: audit.ActionConsentRevoked},
		func(record *consent.CollectionConsent) error {
			return record.Revoke(caller)
		})
}

// CreateProcessing instantiates the processor's processing consent under the
// record.
func (s *Service) CreateProcessing(ctx context.Context, opID, recordID string, processor domain.Identity, purposes []domain.Purpose, caller domain.Identity) error {
	event := audit.Event{Action: audit.ActionProcessingCreated, Processor: processor.String()}
	return s.mutate(ctx, "create_processing", opID, recordID, caller, event,
		func(record *consent.CollectionConsent) error {
			_, err := record.CreateProcessingConsent(processor, purposes, caller, s.clock.Now(), s.policy)
			return err
		})
}

// GrantProcessing applies the caller's grant to the processor's record.
func (s *Service) GrantProcessing(ctx context.Context, opID, recordID string, processor, caller domain.Identity) error {
	event := audit.Event{Action: audit.ActionProcessingGranted, Processor: processor.String()}
	return s.mutate(ctx, "grant_processing", opID, recordID, caller, event,
		func(record *consent.CollectionConsent) error {
			return record.GrantProcessing(processor, caller)
		})
}

// RevokeProcessing applies the caller's revoke to the processor's record.
func (s *Service) RevokeProcessing(ctx context.Context, opID, recordID string, processor, caller domain.Identity) error {
	event := audit.Event{Action: audit.ActionProcessingRevoked, Processor: processor.String()}
	return s.mutate(ctx, "revoke_processing", opID, recordID, caller, event,
		func(record *consent.CollectionConsent) error {
			return record.RevokeProcessing(processor, caller)
		})
}

// RevokePurpose removes the purpose from the record and every processing
// consent in one ledger operation.
func (s *Service) RevokePurpose(ctx context.Context, opID, recordID string, purpose domain.Purpose, caller domain.Identity) error {
	event := audit.Event{Action: audit.ActionPurposeRevoked, Purpose: purpose.String()}
	return s.mutate(ctx, "revoke_purpose", opID, recordID, caller, event,
		func(record *consent.CollectionConsent) error {
			return record.RevokePurpose(purpose, caller)
		})
}

// RevokeAllForProcessor invalidates the processor's processing consent.
func (s *Service) RevokeAllForProcessor(ctx context.Context, opID, recordID string, processor, caller domain.Identity) error {
	event := audit.Event{Action: audit.ActionProcessorRevoked, Processor: processor.String()}
	return s.mutate(ctx, "revoke_processor", opID, recordID, caller, event,
		func(record *consent.CollectionConsent) error {
			return record.RevokeAllForProcessor(processor, caller)
		})
}

// AddDelegate registers a delegate on the record.
func (s *Service) AddDelegate(ctx context.Context, opID, recordID string, delegate, caller domain.Identity) error {
	event := audit.Event{Action: audit.ActionDelegateAdded}
	return s.mutate(ctx, "add_delegate", opID, recordID, caller, event,
		func(record *consent.CollectionConsent) error {
			return record.AddDelegate(delegate, caller)
		})
}

// RemoveDelegate withdraws a delegate from the record.
func (s *Service) RemoveDelegate(ctx context.Context, opID, recordID string, delegate, caller domain.Identity) error {
	event := audit.Event{Action: audit.ActionDelegateRemoved}
	return s.mutate(ctx, "remove_delegate", opID, recordID, caller, event,
		func(record *consent.CollectionConsent) error {
			return record.RemoveDelegate(delegate, caller)
		})
}

// Get returns the record for inspection.
func (s *Service) Get(ctx context.Context, recordID string) (*consent.CollectionConsent, error) {
	record, err := s.store.Get(ctx, recordID)
	if err != nil {
		return nil, s.translate(err)
	}
	return record, nil
}

// ListBySubject returns every record where the identity is the data subject.
func (s *Service) ListBySubject(ctx context.Context, subject domain.Identity) ([]*consent.CollectionConsent, error) {
	return s.store.ListBySubject(ctx, subject)
}

// Now exposes current ledger time to collaborators that compose queries.
func (s *Service) Now() int64 { return s.clock.Now() }

func (s *Service) mutate(ctx context.Context, op, opID, recordID string, caller domain.Identity, event audit.Event, fn func(*consent.CollectionConsent) error) error {
	ctx, span := s.tracer.Start(ctx, "consent."+op)
	defer span.End()

	applied := false
	err := s.seq.Apply(ctx, s.opID(opID), func() error {
		record, err := s.store.Get(ctx, recordID)
		if err != nil {
			return s.translate(err)
		}
		if err := fn(record); err != nil {
			// Rejected operations leave no trace in the store.
			return err
		}
		record.Seq++
		if err := s.store.Update(ctx, record); err != nil {
			return s.translate(err)
		}
		applied = true
		return nil
	})
	if err != nil {
		s.metrics.IncOperationFailure(op, string(dErrors.CodeOf(err)))
		return err
	}
	if !applied {
		// Replayed operation ID: the original application was already
		// counted and audited.
		return nil
	}

	s.metrics.IncOperation(op)
	event.RecordID = recordID
	event.Caller = caller.String()
	s.emit(event)
	return nil
}

// opID defaults a missing client-supplied operation ID. A generated ID gets
// no replay protection across retries, which is safe because every mutation
// is idempotent.
func (s *Service) opID(opID string) string {
	if opID == "" {
		return uuid.NewString()
	}
	return opID
}

func (s *Service) translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "consent record not found")
	case errors.Is(err, sentinel.ErrConflict):
		// The sequencer serializes writers, so a sequence race means the
		// store was mutated outside the ledger order.
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "record state moved outside the ledger order")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeInternal, "store unavailable")
	default:
		return err
	}
}

func (s *Service) emit(event audit.Event) {
	if s.auditCh == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Category = event.Action.Category()
	event.Timestamp = time.Now().UTC()
	select {
	case s.auditCh <- event:
	default:
		// Audit must never block a consent operation.
	}
}
