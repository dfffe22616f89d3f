package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentry/internal/consent"
	"consentry/internal/consent/store"
	"consentry/internal/ledger"
	"consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
	audit "consentry/pkg/platform/audit"
	"consentry/pkg/platform/sentinel"
)

const (
	subject    = domain.Identity("ds-alice")
	controller = domain.Identity("dc-acme")
	processor  = domain.Identity("proc-analytics")
	delegate   = domain.Identity("ds-delegate")
	attacker   = domain.Identity("mallory")

	startAt = int64(1_700_000_000)
)

type fixture struct {
	svc     *Service
	store   *store.MemoryStore
	clock   *ledger.ManualClock
	auditCh chan audit.Event
}

func newFixture(t *testing.T, policy consent.ProcessingPolicy) *fixture {
	t.Helper()
	st := store.NewMemoryStore()
	clock := ledger.NewManualClock(startAt)
	auditCh := make(chan audit.Event, 64)
	seq := ledger.NewSequencer(ledger.NewMemoryReplaySet())
	return &fixture{
		svc:     New(st, seq, clock, policy, auditCh, nil),
		store:   st,
		clock:   clock,
		auditCh: auditCh,
	}
}

func (f *fixture) drainAudit() []audit.Event {
	var out []audit.Event
	for {
		select {
		case e := <-f.auditCh:
			out = append(out, e)
		default:
			return out
		}
	}
}

func createParams() consent.CreateParams {
	return consent.CreateParams{
		Subject:         subject,
		Controller:      controller,
		Recipients:      []domain.Identity{processor},
		DataFlags:       domain.DataName | domain.DataEmail,
		DurationSeconds: 3600,
		Purposes:        []domain.Purpose{domain.PurposeMarketing, domain.PurposeAnalytics},
	}
}

func TestCreateAndFetch(t *testing.T) {
	f := newFixture(t, consent.ProcessingPolicy{})
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "op-create", createParams())
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)
	assert.Equal(t, startAt, record.CreatedAt)
	assert.False(t, record.DSGranted)
	assert.False(t, record.DCGranted)

	got, err := f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)

	records, err := f.svc.ListBySubject(ctx, subject)
	require.NoError(t, err)
	require.Len(t, records, 1)

	events := f.drainAudit()
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionRecordCreated, events[0].Action)
	assert.Equal(t, record.ID, events[0].RecordID)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, consent.ProcessingPolicy{})
	params := createParams()
	params.DurationSeconds = 0

	_, err := f.svc.Create(context.Background(), "", params)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	assert.Empty(t, f.drainAudit(), "rejected operations leave no audit trace")
}

func TestCreateReplayedOperationID(t *testing.T) {
	f := newFixture(t, consent.ProcessingPolicy{})
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "op-1", createParams())
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, "op-1", createParams())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	records, err := f.svc.ListBySubject(ctx, subject)
	require.NoError(t, err)
	require.Len(t, records, 1, "the replay must not create a second record")
	assert.Equal(t, record.ID, records[0].ID)
}

func TestGrantRevokeLifecycle(t *testing.T) {
	f := newFixture(t, consent.ProcessingPolicy{})
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "", createParams())
	require.NoError(t, err)

	require.NoError(t, f.svc.Grant(ctx, "", record.ID, subject))
	got, err := f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, got.Verify(f.svc.Now()), "one-sided grant is not valid consent")

	require.NoError(t, f.svc.Grant(ctx, "", record.ID, controller))
	got, err = f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, got.Verify(f.svc.Now()))
	assert.Equal(t, uint64(2), got.Seq)

	require.NoError(t, f.svc.Revoke(ctx, "", record.ID, subject))
	got, err = f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, got.Verify(f.svc.Now()))
}

func TestExpiryUnderLedgerClock(t *testing.T) {
	f := newFixture(t, consent.ProcessingPolicy{})
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "", createParams())
	require.NoError(t, err)
	require.NoError(t, f.svc.Grant(ctx, "", record.ID, subject))
	require.NoError(t, f.svc.Grant(ctx, "", record.ID, controller))

	got, err := f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, got.Verify(f.svc.Now()))

	f.clock.Advance(3600)
	assert.False(t, got.Verify(f.svc.Now()), "window elapsed")
	assert.Equal(t, "expired", got.Status(f.svc.Now()))
}

func TestMutationReplayIsDroppedSilently(t *testing.T) {
	f := newFixture(t, consent.ProcessingPolicy{})
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "", createParams())
	require.NoError(t, err)
	f.drainAudit()

	require.NoError(t, f.svc.Grant(ctx, "op-grant", record.ID, subject))
	// A resubmission under the same operation ID succeeds without applying.
	require.NoError(t, f.svc.Revoke(ctx, "op-grant", record.ID, subject))

	got, err := f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, got.DSGranted, "the replayed revoke must not have run")
	assert.Equal(t, uint64(1), got.Seq)

	events := f.drainAudit()
	require.Len(t, events, 1, "the replay must not be audited twice")
	assert.Equal(t, audit.ActionConsentGranted, events[0].Action)
}

// flakyStore fails a configured number of updates before behaving normally,
// standing in for a store that drops out mid-operation.
type flakyStore struct {
	*store.MemoryStore
	updateFailures int
}

func (s *flakyStore) Update(ctx context.Context, record *consent.CollectionConsent) error {
	if s.updateFailures > 0 {
		s.updateFailures--
		return sentinel.ErrUnavailable
	}
	return s.MemoryStore.Update(ctx, record)
}

// A mutation that fails on store trouble must not burn its operation ID. The
// caller retries under the same ID, and that retry has to apply rather than
// be mistaken for a replay of a success that never happened.
func TestMutationRetryAfterStoreFailure(t *testing.T) {
	st := &flakyStore{MemoryStore: store.NewMemoryStore(), updateFailures: 1}
	clock := ledger.NewManualClock(startAt)
	seq := ledger.NewSequencer(ledger.NewMemoryReplaySet())
	svc := New(st, seq, clock, consent.ProcessingPolicy{}, nil, nil)
	ctx := context.Background()

	record, err := svc.Create(ctx, "", createParams())
	require.NoError(t, err)
	require.NoError(t, svc.Grant(ctx, "", record.ID, subject))
	require.NoError(t, svc.Grant(ctx, "", record.ID, controller))

	err = svc.Revoke(ctx, "op-revoke", record.ID, subject)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

	got, err := svc.Get(ctx, record.ID)
	require.NoError(t, err)
	require.True(t, got.Verify(svc.Now()), "the failed revoke must not have applied")

	require.NoError(t, svc.Revoke(ctx, "op-revoke", record.ID, subject))
	got, err = svc.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, got.Verify(svc.Now()), "the retried revoke must have applied")
}

func TestUnauthorizedMutationLeavesNoTrace(t *testing.T) {
	f := newFixture(t, consent.ProcessingPolicy{})
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "", createParams())
	require.NoError(t, err)
	f.drainAudit()

	err = f.svc.Grant(ctx, "", record.ID, attacker)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	got, err := f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.False(t, got.DSGranted)
	assert.False(t, got.DCGranted)
	assert.Equal(t, uint64(0), got.Seq)
	assert.Empty(t, f.drainAudit())
}

func TestMissingRecordTranslation(t *testing.T) {
	f := newFixture(t, consent.ProcessingPolicy{})
	ctx := context.Background()

	err := f.svc.Grant(ctx, "", "no-such-record", subject)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))

	_, err = f.svc.Get(ctx, "no-such-record")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestProcessingFlow(t *testing.T) {
	f := newFixture(t, consent.ProcessingPolicy{})
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "", createParams())
	require.NoError(t, err)
	require.NoError(t, f.svc.Grant(ctx, "", record.ID, subject))
	require.NoError(t, f.svc.Grant(ctx, "", record.ID, controller))

	purposes := []domain.Purpose{domain.PurposeMarketing, domain.PurposeAnalytics}
	require.NoError(t, f.svc.CreateProcessing(ctx, "", record.ID, processor, purposes, controller))
	require.NoError(t, f.svc.GrantProcessing(ctx, "", record.ID, processor, subject))
	require.NoError(t, f.svc.GrantProcessing(ctx, "", record.ID, processor, controller))

	got, err := f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	ok, err := got.VerifyProcessingForPurpose(processor, domain.PurposeMarketing, f.svc.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	// Purpose revocation propagates through the record and the processing
	// consent in one operation.
	require.NoError(t, f.svc.RevokePurpose(ctx, "", record.ID, domain.PurposeMarketing, subject))
	got, err = f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	ok, err = got.VerifyProcessingForPurpose(processor, domain.PurposeMarketing, f.svc.Now())
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = got.VerifyProcessingForPurpose(processor, domain.PurposeAnalytics, f.svc.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.svc.RevokeAllForProcessor(ctx, "", record.ID, processor, subject))
	got, err = f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	ok, err = got.VerifyProcessingForPurpose(processor, domain.PurposeAnalytics, f.svc.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenProcessorsPolicy(t *testing.T) {
	f := newFixture(t, consent.ProcessingPolicy{OpenProcessors: true})
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "", createParams())
	require.NoError(t, err)
	require.NoError(t, f.svc.Grant(ctx, "", record.ID, subject))
	require.NoError(t, f.svc.Grant(ctx, "", record.ID, controller))

	outsider := domain.Identity("proc-mailer")
	require.NoError(t, f.svc.CreateProcessing(ctx, "", record.ID, outsider,
		[]domain.Purpose{domain.PurposeMarketing}, controller))

	got, err := f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Recipients, outsider)
}

func TestDelegateFlow(t *testing.T) {
	f := newFixture(t, consent.ProcessingPolicy{})
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "", createParams())
	require.NoError(t, err)

	require.NoError(t, f.svc.AddDelegate(ctx, "", record.ID, delegate, subject))
	require.NoError(t, f.svc.Grant(ctx, "", record.ID, delegate))
	require.NoError(t, f.svc.Grant(ctx, "", record.ID, controller))

	got, err := f.svc.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, got.Verify(f.svc.Now()), "a delegate grant carries subject authority")

	require.NoError(t, f.svc.RemoveDelegate(ctx, "", record.ID, delegate, subject))
	err = f.svc.Revoke(ctx, "", record.ID, delegate)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t, consent.ProcessingPolicy{})
	ctx := context.Background()

	record, err := f.svc.Create(ctx, "", createParams())
	require.NoError(t, err)
	require.NoError(t, f.svc.Grant(ctx, "", record.ID, subject))
	require.NoError(t, f.svc.Grant(ctx, "", record.ID, controller))
	require.NoError(t, f.svc.Revoke(ctx, "", record.ID, subject))

	events := f.drainAudit()
	require.Len(t, events, 4)

	actions := make([]audit.Action, 0, len(events))
	for _, e := range events {
		actions = append(actions, e.Action)
		assert.NotEmpty(t, e.ID)
		assert.NotZero(t, e.Timestamp)
		assert.NotEmpty(t, e.Category)
	}
	assert.Equal(t, []audit.Action{
		audit.ActionRecordCreated,
		audit.ActionConsentGranted,
		audit.ActionConsentGranted,
		audit.ActionConsentRevoked,
	}, actions)
}
