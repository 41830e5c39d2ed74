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
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/engine"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/storage"
)

// StartRun creates a run and executes it asynchronously. The response is
// 202 with the run id; clients poll GET /v1/runs/:id for progress.
func StartRun(store *storage.Store, executor *engine.Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.StartRunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}

		run, err := executor.CreateRun(c.Request.Context(), req.DetectionCode, req.PromptVersionID, req.DatasetID)
		if err != nil {
			abortWithError(c, statusForError(err), err)
			return
		}

		workers := engine.ClampConcurrency(req.Concurrency)
		// Execution outlives the HTTP request; only process exit stops it.
		go func() {
			if err := executor.Execute(context.Background(), run.ID, workers); err != nil {
				slog.Error("run execution failed", "run_id", run.ID, "error", err)
			}
		}()

		c.JSON(http.StatusAccepted, gin.H{
			"run_id":       run.ID,
			"status":       run.Status,
			"total_images": run.TotalImages,
			"concurrency":  workers,
		})
	}
}

// GetRun returns a run with its progress counters and, once completed,
// its metrics summary.
func GetRun(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := store.GetRun(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, statusForError(err), err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// ListRuns returns runs, optionally filtered by ?detection=CODE.
func ListRuns(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		runs, err := store.ListRuns(c.Request.Context(), c.Query("detection"))
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
	}
}

// ListRunPredictions returns every prediction of a run.
func ListRunPredictions(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := store.GetRun(c.Request.Context(), id); err != nil {
			abortWithError(c, statusForError(err), err)
			return
		}
		predictions, err := store.ListPredictions(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"predictions": predictions, "count": len(predictions)})
	}
}

// AddRunFeedback appends an accepted/rejected prompt suggestion to a
// run's feedback log.
func AddRunFeedback(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var req datatypes.FeedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}

		entry := datatypes.FeedbackEntry{
			Suggestion: req.Suggestion,
			Accepted:   req.Accepted,
			Note:       req.Note,
			CreatedAt:  time.Now().UTC(),
		}
		err := store.UpdateRun(c.Request.Context(), id, func(r *datatypes.Run) error {
			r.Feedback = append(r.Feedback, entry)
			return nil
		})
		if err != nil {
			abortWithError(c, statusForError(err), err)
			return
		}
		slog.Info("run feedback recorded", "run_id", id, "accepted", req.Accepted)
		c.JSON(http.StatusOK, gin.H{"run_id": id, "feedback": entry})
	}
}
