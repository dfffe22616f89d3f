package domain

import (
	"strings"

	dErrors "consentry/pkg/domain-errors"
)

// DataFlags is a bitmask over the closed, versioned enumeration of personal
// data categories. Invariant: only bits defined in the current category
// version may ever be set; undefined bits are rejected at the boundary, not
// masked off.
//
// Usage: construct via ParseDataFlags when accepting external input; direct
// casting bypasses validation.
type DataFlags uint32

// Version 1 data categories. Adding a category is a new version: extend the
// constants, extend validDataFlagsMask, and never reuse a retired bit.
const (
	DataName    DataFlags = 1 << 0
	DataEmail   DataFlags = 1 << 1
	DataAddress DataFlags = 1 << 2
	DataPhone   DataFlags = 1 << 3
)

// validDataFlagsMask is the single source of truth for defined bits.
const validDataFlagsMask = DataName | DataEmail | DataAddress | DataPhone

var dataFlagNames = []struct {
	flag DataFlags
	name string
}{
	{DataName, "name"},
	{DataEmail, "email"},
	{DataAddress, "address"},
	{DataPhone, "phone"},
}

// ParseDataFlags constructs DataFlags from a raw bitmask.
//
// Errors: returns CodeValidation when the mask is zero or contains bits
// outside the defined category set.
func ParseDataFlags(raw uint32) (DataFlags, error) {
	f := DataFlags(raw)
	if f == 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "data flags cannot be zero")
	}
	if f&^validDataFlagsMask != 0 {
		return 0, dErrors.Newf(dErrors.CodeValidation, "undefined data category bits: %#x", uint32(f&^validDataFlagsMask))
	}
	return f, nil
}

// Contains reports whether every bit of want is set in f. This is the strict
// subset law used by authorization: a request for any category outside the
// granted mask fails as a whole.
func (f DataFlags) Contains(want DataFlags) bool {
	return want&^f == 0
}

// String renders the set categories for logs and diagnostics.
func (f DataFlags) String() string {
	if f == 0 {
		return "none"
	}
	parts := make([]string, 0, len(dataFlagNames))
	for _, e := range dataFlagNames {
		if f&e.flag != 0 {
			parts = append(parts, e.name)
		}
	}
	return strings.Join(parts, "|")
}
