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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianVision/pkg/validation"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/storage"
)

// validateItemIDs checks the client-chosen item ids; blank ids are assigned
// server-side and skipped here.
func validateItemIDs(inputs []datatypes.DatasetItemInput) error {
	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if in.ID != "" {
			ids = append(ids, in.ID)
		}
	}
	return validation.ValidateItemIDs(ids)
}

// itemsFromInputs converts request items to stored items, assigning ids
// where the client left them blank.
func itemsFromInputs(datasetID string, inputs []datatypes.DatasetItemInput, now time.Time) []datatypes.DatasetItem {
	items := make([]datatypes.DatasetItem, 0, len(inputs))
	for _, in := range inputs {
		id := in.ID
		if id == "" {
			id = uuid.NewString()
		}
		items = append(items, datatypes.DatasetItem{
			ID:          id,
			DatasetID:   datasetID,
			ImageRef:    in.ImageRef,
			Description: in.Description,
			GroundTruth: datatypes.Label(in.GroundTruth),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return items
}

// CreateDataset creates a dataset with an optional initial item list and
// computes its fingerprint.
func CreateDataset(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateDatasetRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		if err := validateItemIDs(req.Items); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		if _, err := store.GetDetection(c.Request.Context(), req.DetectionCode); err != nil {
			abortWithError(c, statusForError(err), err)
			return
		}

		now := time.Now().UTC()
		dataset := &datatypes.Dataset{
			ID:            uuid.NewString(),
			DetectionCode: req.DetectionCode,
			Name:          req.Name,
			Role:          datatypes.SplitRole(req.Role),
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := store.PutDataset(c.Request.Context(), dataset); err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		if len(req.Items) > 0 {
			items := itemsFromInputs(dataset.ID, req.Items, now)
			if err := store.ReplaceItems(c.Request.Context(), dataset.ID, items); err != nil {
				abortWithError(c, http.StatusInternalServerError, err)
				return
			}
		}

		created, err := store.GetDataset(c.Request.Context(), dataset.ID)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		slog.Info("dataset created",
			"dataset_id", created.ID, "detection", created.DetectionCode,
			"role", string(created.Role), "size", created.Size)
		c.JSON(http.StatusCreated, created)
	}
}

// ListDatasets returns datasets, optionally filtered by ?detection=CODE.
func ListDatasets(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		datasets, err := store.ListDatasets(c.Request.Context(), c.Query("detection"))
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"datasets": datasets, "count": len(datasets)})
	}
}

// GetDataset returns one dataset with its current size and fingerprint.
func GetDataset(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		dataset, err := store.GetDataset(c.Request.Context(), c.Param("id"))
		if err != nil {
			abortWithError(c, statusForError(err), err)
			return
		}
		c.JSON(http.StatusOK, dataset)
	}
}

// ListDatasetItems returns a dataset's items in canonical order.
func ListDatasetItems(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := store.GetDataset(c.Request.Context(), id); err != nil {
			abortWithError(c, statusForError(err), err)
			return
		}
		items, err := store.ListItems(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
	}
}

// ReplaceDatasetItems replaces the full item list of a dataset and
// recomputes its size and fingerprint.
func ReplaceDatasetItems(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		var req datatypes.ReplaceItemsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		if err := validateItemIDs(req.Items); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		if _, err := store.GetDataset(c.Request.Context(), id); err != nil {
			abortWithError(c, statusForError(err), err)
			return
		}

		now := time.Now().UTC()
		items := itemsFromInputs(id, req.Items, now)
		if err := store.ReplaceItems(c.Request.Context(), id, items); err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		updated, err := store.GetDataset(c.Request.Context(), id)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		slog.Info("dataset items replaced",
			"dataset_id", id, "size", updated.Size, "fingerprint", updated.Fingerprint)
		c.JSON(http.StatusOK, updated)
	}
}
