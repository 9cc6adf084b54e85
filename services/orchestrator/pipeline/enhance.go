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
	"strings"

	"github.com/AleutianAI/AleutianQuery/services/orchestrator/ragcontext"
)

// enhancementEntityLimit caps how many conversation entities enrich the
// retrieval query.
const enhancementEntityLimit = 3

// enhanceQuery widens the retrieval query with the conversation topic and
// the most-mentioned entities.
//
// The enhanced string is used only for embedding and vector search. It is
// never passed to prompt formatting, so conversation terms cannot reach
// the answer-bearing region through this path.
func enhanceQuery(question string, conv ragcontext.ConversationContext) string {
	if conv.Empty() {
		return question
	}
	var extra []string
	if conv.CurrentTopic != "" {
		extra = append(extra, conv.CurrentTopic)
	}
	for _, e := range conv.TopEntities(enhancementEntityLimit) {
		if !strings.Contains(strings.ToLower(question), strings.ToLower(e.EntityText)) {
			extra = append(extra, e.EntityText)
		}
	}
	if len(extra) == 0 {
		return question
	}
	return question + " " + strings.Join(extra, " ")
}
