package domain

import "math"

// Bounds on record collections and validity windows. Caps are enforced at
// construction and mutation time so a single record can never grow without
// limit; growth past a cap fails validation rather than truncating.
const (
	// MaxDurationSeconds caps a validity window at ten years. Combined with
	// checked addition this keeps createdAt+duration from ever wrapping.
	MaxDurationSeconds int64 = 10 * 365 * 24 * 3600

	MaxRecipients = 64
	MaxDelegates  = 16
	MaxProcessors = 64
)

// CheckedWindowEnd returns createdAt+durationSeconds, saturating at the
// int64 ceiling instead of wrapping. Callers validate duration bounds
// separately; saturation here is the arithmetic backstop.
func CheckedWindowEnd(createdAt, durationSeconds int64) int64 {
	if durationSeconds > 0 && createdAt > math.MaxInt64-durationSeconds {
		return math.MaxInt64
	}
	return createdAt + durationSeconds
}
