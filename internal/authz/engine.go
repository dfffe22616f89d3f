// Package authz is the stateless authorization query engine resource
// servers consult before every data release. Each call re-derives its answer
// from current record state and ledger time; nothing here caches, and
// callers must not either. A cached positive decision is exactly the
// stale-authorization hole revocation immediacy exists to close.
package authz

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"consentry/internal/consent"
	"consentry/internal/ledger"
	"consentry/internal/platform/metrics"
	"consentry/pkg/domain"
	audit "consentry/pkg/platform/audit"
)

// RecordSource resolves current record state. Implemented by the consent
// service; the engine never holds records between calls.
type RecordSource interface {
	Get(ctx context.Context, recordID string) (*consent.CollectionConsent, error)
}

// Engine composes record-level checks into point-in-time decisions.
type Engine struct {
	records RecordSource
	clock   ledger.Clock
	metrics *metrics.Metrics
	auditCh chan<- audit.Event
	tracer  trace.Tracer
}

// New wires an engine. auditCh may be nil to disable decision auditing;
// metrics may be nil for the same reason.
func New(records RecordSource, clock ledger.Clock, m *metrics.Metrics, auditCh chan<- audit.Event) *Engine {
	return &Engine{
		records: records,
		clock:   clock,
		metrics: m,
		auditCh: auditCh,
		tracer:  otel.Tracer("consentry/authz"),
	}
}

// Verify reports whether the record currently authorizes anything: both
// parties granted, window not elapsed.
//
// Errors: CodeNotFound for an unknown record; "not authorized" is false,
// never an error.
func (e *Engine) Verify(ctx context.Context, recordID string) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "authz.Verify")
	defer span.End()

	record, err := e.records.Get(ctx, recordID)
	if err != nil {
		return false, err
	}
	return record.Verify(e.clock.Now()), nil
}

// Authorize answers whether recipient may access the requested categories
// right now. The decision is valid only at this instant; the resource server
// must re-query before every sensitive action.
//
// Errors: CodeNotFound for an unknown record; CodeValidation for a zero or
// undefined-bit request.
func (e *Engine) Authorize(ctx context.Context, recordID string, recipient domain.Identity, requested domain.DataFlags) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "authz.Authorize")
	defer span.End()

	record, err := e.records.Get(ctx, recordID)
	if err != nil {
		return false, err
	}
	allowed, err := record.Authorize(recipient, requested, e.clock.Now())
	if err != nil {
		return false, err
	}
	e.metrics.IncAuthorizationDecision(allowed)
	e.emit(audit.Event{
		RecordID: recordID,
		Caller:   recipient.String(),
		Decision: decisionLabel(allowed),
		Reason:   "authorize " + requested.String(),
	})
	return allowed, nil
}

// VerifyForPurpose reports whether processor may act under the purpose right
// now: the parent record verifies and the processor's own record is active
// with the purpose still on it.
//
// Errors: CodeNotFound for an unknown record or a processor with no
// processing consent; CodeValidation for a purpose outside the enumeration.
func (e *Engine) VerifyForPurpose(ctx context.Context, recordID string, processor domain.Identity, purpose domain.Purpose) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "authz.VerifyForPurpose")
	defer span.End()

	record, err := e.records.Get(ctx, recordID)
	if err != nil {
		return false, err
	}
	now := e.clock.Now()
	active, err := record.VerifyProcessingForPurpose(processor, purpose, now)
	if err != nil {
		return false, err
	}
	allowed := record.Verify(now) && active
	e.metrics.IncAuthorizationDecision(allowed)
	e.emit(audit.Event{
		RecordID:  recordID,
		Processor: processor.String(),
		Purpose:   purpose.String(),
		Decision:  decisionLabel(allowed),
	})
	return allowed, nil
}

func decisionLabel(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}

// emit publishes an operations-category decision event without ever blocking
// a query.
func (e *Engine) emit(event audit.Event) {
	if e.auditCh == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Action = audit.ActionAuthorizationCheck
	event.Category = audit.ActionAuthorizationCheck.Category()
	event.Timestamp = time.Now().UTC()
	select {
	case e.auditCh <- event:
	default:
	}
}
