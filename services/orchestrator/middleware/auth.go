// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the query service.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization
// header and compares it against the key configured for the deployment.
//
//	Request
//	   │
//	   ▼
//	APIKeyAuth
//	   │
//	   ├─► Extract token from "Authorization: Bearer <token>"
//	   │
//	   └─► Constant-time compare against QUERY_API_KEY
//	           │
//	           ▼
//	       Handler
//
// # Open Source Behavior
//
// When QUERY_API_KEY is unset the middleware admits every request. This
// keeps single-user local deployments working without any authentication
// infrastructure.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth creates a Gin middleware that authenticates requests
// against the QUERY_API_KEY environment variable.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin.
//
// # Limitations
//
//   - Only supports Bearer token authentication.
//   - Reads the key once at setup; key rotation needs a restart.
func APIKeyAuth() gin.HandlerFunc {
	key := os.Getenv("QUERY_API_KEY")
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		token := extractBearerToken(c)
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}
		c.Next()
	}
}

// extractBearerToken extracts the token from the Authorization header.
//
// The "Bearer" prefix is case-insensitive per RFC 7235. Returns empty
// string if the header is missing or malformed.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	// Expected format: "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
