package llm

import (
	"errors"
	"fmt"
)

// GenerationError reports a failed model call.
//
// # Description
//
// Fatal distinguishes errors no retry can fix (bad credentials, model not
// installed) from transient ones (timeouts, 5xx, connection resets).
// Callers decide per call site whether a non-fatal generation failure is
// recoverable; the final synthesis call treats any GenerationError as
// fatal to the request.
type GenerationError struct {
	Provider string
	Attempts int
	Fatal    bool
	Err      error
}

func (e *GenerationError) Error() string {
	if e.Fatal {
		return fmt.Sprintf("generation failed (%s, fatal): %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("generation failed (%s, %d attempts): %v", e.Provider, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError reports whether err is (or wraps) a GenerationError,
// returning it when so.
func IsGenerationError(err error) (*GenerationError, bool) {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsFatalGeneration reports whether err is a generation error that retrying
// cannot fix.
func IsFatalGeneration(err error) bool {
	ge, ok := IsGenerationError(err)
	return ok && ge.Fatal
}
