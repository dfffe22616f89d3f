package domain

import dErrors "consentry/pkg/domain-errors"

// Purpose identifies why data may be processed. Invariant: the value must be
// one of the supported processing purposes; purposes form a closed
// enumeration so that purpose-scoped revocation is always well defined.
//
// Usage: construct via ParsePurpose at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type Purpose uint8

// Supported processing purposes.
const (
	PurposeMarketing Purpose = 0
	PurposeAnalytics Purpose = 1
	PurposeResearch  Purpose = 2
)

// validPurposes is the single source of truth for valid purposes.
var validPurposes = map[Purpose]string{
	PurposeMarketing: "marketing",
	PurposeAnalytics: "analytics",
	PurposeResearch:  "research",
}

// ParsePurpose constructs a Purpose from external input.
//
// Errors: returns CodeValidation when the value is outside the enumeration;
// no other errors are expected.
func ParsePurpose(raw uint8) (Purpose, error) {
	p := Purpose(raw)
	if !p.IsValid() {
		return 0, dErrors.Newf(dErrors.CodeValidation, "unknown purpose %d", raw)
	}
	return p, nil
}

// IsValid checks if the purpose is one of the supported enum values.
func (p Purpose) IsValid() bool {
	_, ok := validPurposes[p]
	return ok
}

// String returns the purpose label, or "unknown" outside the enumeration.
func (p Purpose) String() string {
	if name, ok := validPurposes[p]; ok {
		return name
	}
	return "unknown"
}

// DedupePurposes removes duplicates while preserving first-seen order.
// Construction treats duplicate purposes as caller sloppiness, not an error.
func DedupePurposes(purposes []Purpose) []Purpose {
	if len(purposes) == 0 {
		return purposes
	}
	seen := make(map[Purpose]struct{}, len(purposes))
	out := make([]Purpose, 0, len(purposes))
	for _, p := range purposes {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
