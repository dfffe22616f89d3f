// Package audit captures the append-only trail of consent operations and
// authorization decisions. Revocation never erases anything in this system;
// the audit stream is where that permanence is surfaced to collaborators.
package audit

import (
	"context"
	"time"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance:
	// every consent state transition. Long retention, tamper-evident
	// storage.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for debugging and visibility:
	// authorization checks, replay drops. Short retention, samplable.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from the consent service for every applied operation and
// authorization decision. Transport-agnostic so stores and sinks can fan
// out.
type Event struct {
	ID        string        `json:"id"`
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	Action    Action        `json:"action"`
	RecordID  string        `json:"recordId,omitempty"`
	Caller    string        `json:"caller,omitempty"`
	Processor string        `json:"processor,omitempty"`
	Purpose   string        `json:"purpose,omitempty"`
	Decision  string        `json:"decision,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	RequestID string        `json:"requestId,omitempty"`
}

// Action names an auditable consent event.
type Action string

const (
	ActionRecordCreated      Action = "record_created"
	ActionConsentGranted     Action = "consent_granted"
	ActionConsentRevoked     Action = "consent_revoked"
	ActionProcessingCreated  Action = "processing_created"
	ActionProcessingGranted  Action = "processing_granted"
	ActionProcessingRevoked  Action = "processing_revoked"
	ActionPurposeRevoked     Action = "purpose_revoked"
	ActionProcessorRevoked   Action = "processor_revoked"
	ActionDelegateAdded      Action = "delegate_added"
	ActionDelegateRemoved    Action = "delegate_removed"
	ActionAuthorizationCheck Action = "authorization_checked"
)

// eventCategories maps each action to its category. Every consent state
// transition is compliance-grade; checks are operational.
var eventCategories = map[Action]EventCategory{
	ActionRecordCreated:      CategoryCompliance,
	ActionConsentGranted:     CategoryCompliance,
	ActionConsentRevoked:     CategoryCompliance,
	ActionProcessingCreated:  CategoryCompliance,
	ActionProcessingGranted:  CategoryCompliance,
	ActionProcessingRevoked:  CategoryCompliance,
	ActionPurposeRevoked:     CategoryCompliance,
	ActionProcessorRevoked:   CategoryCompliance,
	ActionDelegateAdded:      CategoryCompliance,
	ActionDelegateRemoved:    CategoryCompliance,
	ActionAuthorizationCheck: CategoryOperations,
}

// Category resolves the action's category, defaulting to operations for
// unknown actions so nothing is silently dropped.
func (a Action) Category() EventCategory {
	if c, ok := eventCategories[a]; ok {
		return c
	}
	return CategoryOperations
}

// Store appends events to a durable sink.
type Store interface {
	Append(ctx context.Context, event Event) error
}
