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

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/hil"
)

// ApplyCorrection applies a reviewer correction to one prediction and
// returns the updated prediction with the run's recomputed metrics.
//
// An explicit null corrected_label clears any existing correction; an
// absent corrected_label, error tag or reviewer note leaves that field
// unchanged, so a tag-only or note-only edit never touches the label.
func ApplyCorrection(service *hil.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		predictionID := c.Param("id")
		var req datatypes.CorrectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}

		correction := hil.Correction{
			ReviewerNote: req.ReviewerNote,
			Propagate:    req.Propagate,
		}
		if req.CorrectedLabel.Set {
			if req.CorrectedLabel.Value == nil {
				correction.ClearLabel = true
			} else {
				label := datatypes.Label(*req.CorrectedLabel.Value)
				correction.CorrectedLabel = &label
			}
		}
		if req.ErrorTag != nil {
			tag := datatypes.ErrorTag(*req.ErrorTag)
			correction.ErrorTag = &tag
		}

		pred, summary, err := service.Apply(c.Request.Context(), predictionID, correction)
		if err != nil {
			if errors.Is(err, hil.ErrProtectedDataset) {
				abortWithError(c, http.StatusConflict, err)
				return
			}
			abortWithError(c, statusForError(err), err)
			return
		}

		slog.Info("correction applied via API",
			"prediction_id", predictionID, "propagate", req.Propagate)
		c.JSON(http.StatusOK, gin.H{"prediction": pred, "metrics": summary})
	}
}
