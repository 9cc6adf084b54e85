// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cot

import (
	"errors"
	"fmt"
)

// DecompositionError reports a failed or unusable decomposition attempt.
//
// It is always recoverable: the caller falls back to treating the original
// question as a single-step plan. The type exists so fallbacks can be
// counted and logged with their cause.
type DecompositionError struct {
	Question string
	Reason   string
	Err      error
}

func (e *DecompositionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decomposition failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decomposition failed: %s", e.Reason)
}

func (e *DecompositionError) Unwrap() error { return e.Err }

// IsDecompositionError reports whether err is (or wraps) a
// DecompositionError.
func IsDecompositionError(err error) bool {
	var de *DecompositionError
	return errors.As(err, &de)
}
