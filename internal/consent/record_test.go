package consent

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentry/pkg/domain"
	dErrors "consentry/pkg/domain-errors"
)

const (
	subject    = domain.Identity("ds-alice")
	controller = domain.Identity("dc-acme")
	processor1 = domain.Identity("proc-analytics")
	processor2 = domain.Identity("proc-mailer")
	delegate   = domain.Identity("ds-delegate")
	attacker   = domain.Identity("mallory")

	createdAt = int64(1_700_000_000)
	oneDay    = int64(86_400)
)

func defaultParams() CreateParams {
	return CreateParams{
		Subject:         subject,
		Controller:      controller,
		Recipients:      []domain.Identity{processor1},
		DataFlags:       domain.DataName | domain.DataEmail | domain.DataPhone,
		DurationSeconds: oneDay,
		Purposes:        []domain.Purpose{domain.PurposeMarketing, domain.PurposeAnalytics},
	}
}

func newRecord(t *testing.T) *CollectionConsent {
	t.Helper()
	record, err := New("rec-1", defaultParams(), createdAt)
	require.NoError(t, err)
	return record
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"empty recipients", func(p *CreateParams) { p.Recipients = nil }},
		{"zero recipient", func(p *CreateParams) { p.Recipients = []domain.Identity{domain.ZeroIdentity} }},
		{"zero subject", func(p *CreateParams) { p.Subject = domain.ZeroIdentity }},
		{"zero controller", func(p *CreateParams) { p.Controller = domain.ZeroIdentity }},
		{"subject equals controller", func(p *CreateParams) { p.Controller = p.Subject }},
		{"subject as recipient", func(p *CreateParams) { p.Recipients = append(p.Recipients, p.Subject) }},
		{"controller as recipient", func(p *CreateParams) { p.Recipients = append(p.Recipients, p.Controller) }},
		{"recipients over cap", func(p *CreateParams) {
			p.Recipients = nil
			for i := 0; i <= domain.MaxRecipients; i++ {
				p.Recipients = append(p.Recipients, domain.Identity(fmt.Sprintf("proc-%d", i)))
			}
		}},
		{"zero duration", func(p *CreateParams) { p.DurationSeconds = 0 }},
		{"negative duration", func(p *CreateParams) { p.DurationSeconds = -1 }},
		{"duration over ceiling", func(p *CreateParams) { p.DurationSeconds = domain.MaxDurationSeconds + 1 }},
		{"zero data flags", func(p *CreateParams) { p.DataFlags = 0 }},
		{"undefined data flag bits", func(p *CreateParams) { p.DataFlags = domain.DataFlags(1 << 30) }},
		{"empty purposes", func(p *CreateParams) { p.Purposes = nil }},
		{"unknown purpose", func(p *CreateParams) { p.Purposes = []domain.Purpose{99} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := defaultParams()
			tt.mutate(&params)
			_, err := New("rec-x", params, createdAt)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "want validation error, got %v", err)
		})
	}
}

func TestNewStartsUngranted(t *testing.T) {
	record := newRecord(t)
	assert.False(t, record.DSGranted)
	assert.False(t, record.DCGranted)
	assert.False(t, record.Verify(createdAt))
	assert.Equal(t, "created", record.Status(createdAt))
}

func TestNewDeduplicatesRecipients(t *testing.T) {
	params := defaultParams()
	params.Recipients = []domain.Identity{processor1, processor2, processor1}
	record, err := New("rec-x", params, createdAt)
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{processor1, processor2}, record.Recipients)
}

// A single party's grant must never satisfy Verify. The legacy contracts had
// exactly this defect; both one-sided states are asserted false explicitly.
func TestVerifyRequiresBothParties(t *testing.T) {
	t.Run("subject only", func(t *testing.T) {
		record := newRecord(t)
		require.NoError(t, record.Grant(subject))
		assert.False(t, record.Verify(createdAt))
		assert.Equal(t, "partially_granted", record.Status(createdAt))
	})

	t.Run("controller only", func(t *testing.T) {
		record := newRecord(t)
		require.NoError(t, record.Grant(controller))
		assert.False(t, record.Verify(createdAt))
	})
}

func TestGrantOrderIndependence(t *testing.T) {
	t.Run("subject then controller", func(t *testing.T) {
		record := newRecord(t)
		require.NoError(t, record.Grant(subject))
		require.NoError(t, record.Grant(controller))
		assert.True(t, record.Verify(createdAt))
	})

	t.Run("controller then subject", func(t *testing.T) {
		record := newRecord(t)
		require.NoError(t, record.Grant(controller))
		require.NoError(t, record.Grant(subject))
		assert.True(t, record.Verify(createdAt))
	})
}

func TestGrantIdempotent(t *testing.T) {
	record := newRecord(t)
	require.NoError(t, record.Grant(subject))
	require.NoError(t, record.Grant(subject))
	require.NoError(t, record.Grant(subject))
	assert.True(t, record.DSGranted)
	assert.False(t, record.Verify(createdAt))

	require.NoError(t, record.Grant(controller))
	require.NoError(t, record.Grant(controller))
	assert.True(t, record.Verify(createdAt))
}

func TestGrantUnauthorized(t *testing.T) {
	record := newRecord(t)
	err := record.Grant(attacker)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.False(t, record.DSGranted)
	assert.False(t, record.DCGranted)
}

func TestRevokeImmediacy(t *testing.T) {
	t.Run("subject revoke", func(t *testing.T) {
		record := newRecord(t)
		require.NoError(t, record.Grant(subject))
		require.NoError(t, record.Grant(controller))
		require.True(t, record.Verify(createdAt))

		require.NoError(t, record.Revoke(subject))
		assert.False(t, record.Verify(createdAt))
	})

	t.Run("controller revoke", func(t *testing.T) {
		record := newRecord(t)
		require.NoError(t, record.Grant(subject))
		require.NoError(t, record.Grant(controller))

		require.NoError(t, record.Revoke(controller))
		assert.False(t, record.Verify(createdAt))
	})
}

func TestRevokeIdempotentAndUngrantedNoop(t *testing.T) {
	record := newRecord(t)
	// Revoking before any grant is a permitted no-op.
	require.NoError(t, record.Revoke(subject))
	require.NoError(t, record.Revoke(subject))
	assert.False(t, record.DSGranted)
}

func TestRevokeUnauthorized(t *testing.T) {
	record := newRecord(t)
	require.NoError(t, record.Grant(subject))
	require.NoError(t, record.Grant(controller))

	err := record.Revoke(attacker)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.True(t, record.Verify(createdAt), "state must be unchanged after unauthorized revoke")
}

func TestExpiry(t *testing.T) {
	params := defaultParams()
	params.DurationSeconds = 60
	record, err := New("rec-x", params, createdAt)
	require.NoError(t, err)
	require.NoError(t, record.Grant(subject))
	require.NoError(t, record.Grant(controller))

	assert.True(t, record.Verify(createdAt+30))
	assert.True(t, record.Verify(createdAt+59))
	// The window is half-open: invalid exactly at createdAt+duration.
	assert.False(t, record.Verify(createdAt+60))
	assert.False(t, record.Verify(createdAt+65))
	assert.Equal(t, "expired", record.Status(createdAt+65))

	// Re-granting cannot reopen an elapsed window.
	require.NoError(t, record.Grant(subject))
	require.NoError(t, record.Grant(controller))
	assert.False(t, record.Verify(createdAt+65))
}

func TestAuthorize(t *testing.T) {
	record := newRecord(t)
	require.NoError(t, record.Grant(subject))
	require.NoError(t, record.Grant(controller))

	granted := domain.DataName | domain.DataEmail | domain.DataPhone

	t.Run("full grant for named recipient", func(t *testing.T) {
		ok, err := record.Authorize(processor1, granted, createdAt)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("subset allowed", func(t *testing.T) {
		ok, err := record.Authorize(processor1, domain.DataName, createdAt)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("superset denied", func(t *testing.T) {
		ok, err := record.Authorize(processor1, granted|domain.DataAddress, createdAt)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unnamed recipient denied", func(t *testing.T) {
		ok, err := record.Authorize(attacker, domain.DataName, createdAt)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("zero flags rejected", func(t *testing.T) {
		_, err := record.Authorize(processor1, 0, createdAt)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("undefined bits rejected", func(t *testing.T) {
		_, err := record.Authorize(processor1, domain.DataFlags(1<<20), createdAt)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("zero recipient rejected", func(t *testing.T) {
		_, err := record.Authorize(domain.ZeroIdentity, domain.DataName, createdAt)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("denied after revoke", func(t *testing.T) {
		require.NoError(t, record.Revoke(subject))
		ok, err := record.Authorize(processor1, domain.DataName, createdAt)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestCloneIsolation(t *testing.T) {
	record := newRecord(t)
	require.NoError(t, record.Grant(subject))
	require.NoError(t, record.Grant(controller))
	_, err := record.CreateProcessingConsent(processor1, []domain.Purpose{domain.PurposeMarketing}, controller, createdAt, ProcessingPolicy{})
	require.NoError(t, err)

	clone := record.Clone()
	require.NoError(t, clone.Revoke(subject))
	clone.Purposes = nil
	clone.Processing[processor1].DSGranted = true

	assert.True(t, record.Verify(createdAt), "mutating a clone must not touch the original")
	assert.Len(t, record.Purposes, 2)
	assert.False(t, record.Processing[processor1].DSGranted)
}
