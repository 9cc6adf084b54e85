// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retrieval fetches and reranks document evidence from the vector
// store.
package retrieval

import (
	"errors"
	"fmt"
)

// RetrievalError reports a failed retrieval round.
//
// Retrieval failures are recoverable: the reasoner records the step as
// degraded and continues, and the pipeline falls back to generation from
// whatever evidence exists.
type RetrievalError struct {
	Collection string
	Attempts   int
	Err        error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed (collection %s, %d attempts): %v", e.Collection, e.Attempts, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// IsRetrievalError reports whether err is (or wraps) a RetrievalError.
func IsRetrievalError(err error) bool {
	var re *RetrievalError
	return errors.As(err, &re)
}
