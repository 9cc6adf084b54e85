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
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianQuery/services/orchestrator/cot"
)

// Pipeline defaults.
const (
	DefaultTopK           = 8
	DefaultRequestTimeout = 120 * time.Second
)

// Config is the process-wide pipeline configuration.
type Config struct {
	// TopK is the evidence count for the initial retrieval round.
	TopK int

	// RequestTimeout is the per-request overall deadline.
	RequestTimeout time.Duration

	// Reasoner configures per-step behavior.
	Reasoner cot.ReasonerConfig
}

// DefaultPipelineConfig returns production defaults.
func DefaultPipelineConfig() Config {
	return Config{
		TopK:           DefaultTopK,
		RequestTimeout: DefaultRequestTimeout,
		Reasoner:       cot.DefaultReasonerConfig(),
	}
}

// LoadConfigFromEnv builds a Config from environment variables, falling
// back to defaults for anything unset or unparseable.
//
// Variables: RETRIEVAL_TOP_K, REQUEST_DEADLINE_SECONDS,
// STEP_TIMEOUT_SECONDS, MAX_PARALLEL_STEPS.
func LoadConfigFromEnv() Config {
	cfg := DefaultPipelineConfig()
	cfg.TopK = getEnvInt("RETRIEVAL_TOP_K", cfg.TopK)
	cfg.RequestTimeout = time.Duration(getEnvInt("REQUEST_DEADLINE_SECONDS",
		int(cfg.RequestTimeout/time.Second))) * time.Second
	cfg.Reasoner.StepTimeout = time.Duration(getEnvInt("STEP_TIMEOUT_SECONDS",
		int(cfg.Reasoner.StepTimeout/time.Second))) * time.Second
	cfg.Reasoner.ParallelSteps = int64(getEnvInt("MAX_PARALLEL_STEPS",
		int(cfg.Reasoner.ParallelSteps)))
	return cfg
}

// getEnvInt reads an integer environment variable with a default.
func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
		slog.Warn("Invalid integer in environment variable, using default",
			"key", key, "default", defaultValue)
	}
	return defaultValue
}
