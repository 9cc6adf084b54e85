// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// This generic function encapsulates the marshal/unmarshal pattern required
// to convert Weaviate's dynamic response (map[string]models.JSONObject) into
// a strongly-typed Go struct. The target type T must have json tags matching
// the expected response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from the Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if the response is nil or parsing fails.
//
// # Limitations
//
//   - Type mismatches result in zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// DocumentHit is one retrieved chunk from the document class.
//
// The field names mirror the Weaviate schema; certainty arrives through
// the _additional block and is always in [0,1] regardless of the distance
// metric configured on the class.
type DocumentHit struct {
	Content      string `json:"content"`
	Source       string `json:"source"`
	DocumentName string `json:"document_name"`
	PageNumber   int    `json:"page_number"`
	ChunkIndex   int    `json:"chunk_index"`
	Additional   struct {
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// DocumentSearchResponse is the Get-query response shape for document
// retrieval. The class name is a dynamic key, hence the map.
type DocumentSearchResponse struct {
	Get map[string][]DocumentHit `json:"Get"`
}
