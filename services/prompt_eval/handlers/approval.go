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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/approval"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
)

// Approve runs the approval gate for a candidate prompt version.
//
// A structured rejection is a successful evaluation of the gate, so it
// returns 200 with approved=false and the failed checks. Precondition
// violations (wrong run state, wrong dataset role) return 409.
func Approve(gate *approval.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")
		var req datatypes.ApproveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}

		detection, rejection, err := gate.Approve(c.Request.Context(), code, req.PromptVersionID, req.RunID)
		if err != nil {
			if errors.Is(err, approval.ErrRunNotCompleted) ||
				errors.Is(err, approval.ErrRunMismatch) ||
				errors.Is(err, approval.ErrNotHeldOutDataset) {
				abortWithError(c, http.StatusConflict, err)
				return
			}
			abortWithError(c, statusForError(err), err)
			return
		}
		if rejection != nil {
			c.JSON(http.StatusOK, gin.H{"approved": false, "rejection": rejection})
			return
		}

		slog.Info("prompt version approved via API",
			"detection", code, "prompt_version", req.PromptVersionID)
		c.JSON(http.StatusOK, gin.H{"approved": true, "detection": detection})
	}
}
