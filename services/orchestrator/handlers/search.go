// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianQuery/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianQuery/services/orchestrator/pipeline"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var searchTracer = otel.Tracer("aleutian.query.handlers")

// maxRequestBodyBytes bounds the request body read.
const maxRequestBodyBytes = 1 << 20

// HandleSearch answers POST /v1/search.
//
// # Description
//
// Decodes the request strictly (unknown fields are rejected, so legacy
// opaque configuration blobs fail at the door), validates it, and hands
// it to the pipeline. Degraded answers still return 200; only
// configuration errors surface as 503 with remediation guidance.
func HandleSearch(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := searchTracer.Start(c.Request.Context(), "HandleSearch")
		defer span.End()

		requestID := uuid.New().String()
		c.Header("X-Request-Id", requestID)
		span.SetAttributes(attribute.String("request_id", requestID))

		var request datatypes.SearchRequest
		decoder := json.NewDecoder(http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodyBytes))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("Failed to decode search request JSON", "request_id", requestID, "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if err := request.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		span.SetAttributes(
			attribute.String("collection_id", request.CollectionID),
			attribute.Bool("cot_config_present", request.CoTConfig != nil),
		)

		slog.Info("Received search request",
			"request_id", requestID,
			"collection_id", request.CollectionID,
			"user_id", request.UserID)

		response, err := p.ExecuteSearch(ctx, &request)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			var cfgErr *pipeline.ConfigurationError
			if errors.As(err, &cfgErr) {
				slog.Error("Search pipeline misconfigured",
					"request_id", requestID,
					"reason", cfgErr.Reason,
					"remediation", cfgErr.Remediation)
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"error":       cfgErr.Reason,
					"remediation": cfgErr.Remediation,
				})
				return
			}
			slog.Error("Search pipeline failed", "request_id", requestID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, response)
	}
}
