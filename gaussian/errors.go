package gaussian

import (
	"fmt"
	"strings"
)

// availableFieldSample caps how many of a file's fields an InvalidFormatError
// reports; past that the listing stops being diagnostic and starts being
// noise.
const availableFieldSample = 20

// InvalidFormatError reports a source file that cannot be decoded as Gaussian
// splat data. It names the specific missing fields and samples the fields the
// file did carry so the user can tell a truncated export from the wrong file
// entirely. It is non-retryable without a different input.
type InvalidFormatError struct {
	// Missing lists the required fields (or field variants) absent from
	// the source.
	Missing []string

	// Inconsistent lists fields whose value counts disagree with the
	// source's point count.
	Inconsistent []string

	// Available samples the fields present in the source, truncated to
	// availableFieldSample entries.
	Available []string

	// Truncated reports whether Available was cut short.
	Truncated bool
}

func newInvalidFormatError(missing, available []string) *InvalidFormatError {
	e := &InvalidFormatError{Missing: missing}
	e.sampleAvailable(available)
	return e
}

func newInconsistentFormatError(inconsistent, available []string) *InvalidFormatError {
	e := &InvalidFormatError{Inconsistent: inconsistent}
	e.sampleAvailable(available)
	return e
}

func (e *InvalidFormatError) sampleAvailable(available []string) {
	e.Available = available
	if len(available) > availableFieldSample {
		e.Available = available[:availableFieldSample]
		e.Truncated = true
	}
}

func (e *InvalidFormatError) Error() string {
	var b strings.Builder
	b.WriteString("not a valid Gaussian splat source")
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing: %s", strings.Join(e.Missing, ", "))
	}
	if len(e.Inconsistent) > 0 {
		fmt.Fprintf(&b, "; inconsistent: %s", strings.Join(e.Inconsistent, ", "))
	}
	fmt.Fprintf(&b, "; available fields: %s", strings.Join(e.Available, ", "))
	if e.Truncated {
		b.WriteString(", ...")
	}
	return b.String()
}

// IsInvalidFormat reports whether err (or its cause chain) is an
// InvalidFormatError.
func IsInvalidFormat(err error) bool {
	for err != nil {
		if _, ok := err.(*InvalidFormatError); ok {
			return true
		}
		cause, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = cause.Unwrap()
	}
	return false
}
