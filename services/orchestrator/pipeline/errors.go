// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"errors"
	"fmt"
)

// ConfigurationError is the only error class that propagates to the
// caller. Everything else is absorbed as degraded state.
//
// Remediation tells the operator what to fix; it is safe to surface to
// users because it never contains prompt or document text.
type ConfigurationError struct {
	Reason      string
	Remediation string
	Err         error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pipeline configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("pipeline configuration error: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err is (or wraps) a
// ConfigurationError, returning it when so.
func IsConfigurationError(err error) (*ConfigurationError, bool) {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
