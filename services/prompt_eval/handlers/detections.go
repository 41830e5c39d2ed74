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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianVision/pkg/validation"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/storage"
)

// CreateDetection registers a new detection task.
func CreateDetection(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateDetectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		// Codes become storage key segments, so they carry a restricted
		// alphabet on top of struct validation.
		if err := validation.ValidateDetectionCode(req.Code); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}

		// Codes are client-chosen identifiers; creating twice is a conflict.
		if _, err := store.GetDetection(c.Request.Context(), req.Code); err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "detection already exists", "code": req.Code})
			return
		} else if !errors.Is(err, storage.ErrNotFound) {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}

		now := time.Now().UTC()
		detection := &datatypes.Detection{
			Code:        req.Code,
			DisplayName: req.DisplayName,
			Description: req.Description,
			LabelPolicy: req.LabelPolicy,
			Rubric:      req.Rubric,
			Thresholds:  req.Thresholds,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := store.PutDetection(c.Request.Context(), detection); err != nil {
			slog.Error("failed to persist detection", "code", req.Code, "error", err)
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		slog.Info("detection created", "code", detection.Code)
		c.JSON(http.StatusCreated, detection)
	}
}

// ListDetections returns all registered detections.
func ListDetections(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		detections, err := store.ListDetections(c.Request.Context())
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"detections": detections, "count": len(detections)})
	}
}

// GetDetection returns one detection by code.
func GetDetection(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		detection, err := store.GetDetection(c.Request.Context(), c.Param("code"))
		if err != nil {
			abortWithError(c, statusForError(err), err)
			return
		}
		c.JSON(http.StatusOK, detection)
	}
}

// CreatePromptVersion snapshots a new immutable prompt version under a
// detection. The detection's label policy and rubric are copied into the
// version so later detection edits cannot change what this version means.
func CreatePromptVersion(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")
		var req datatypes.CreatePromptVersionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}

		detection, err := store.GetDetection(c.Request.Context(), code)
		if err != nil {
			abortWithError(c, statusForError(err), err)
			return
		}

		pv := &datatypes.PromptVersion{
			ID:                uuid.NewString(),
			DetectionCode:     detection.Code,
			Name:              req.Name,
			SystemInstruction: req.SystemInstruction,
			UserTemplate:      req.UserTemplate,
			LabelPolicy:       detection.LabelPolicy,
			Rubric:            detection.Rubric,
			Decoding:          req.Decoding,
			CreatedAt:         time.Now().UTC(),
		}
		if err := store.PutPromptVersion(c.Request.Context(), pv); err != nil {
			slog.Error("failed to persist prompt version", "detection", code, "error", err)
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		slog.Info("prompt version created", "detection", code, "version_id", pv.ID)
		c.JSON(http.StatusCreated, pv)
	}
}

// ListPromptVersions returns all prompt versions of a detection.
func ListPromptVersions(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := c.Param("code")
		if _, err := store.GetDetection(c.Request.Context(), code); err != nil {
			abortWithError(c, statusForError(err), err)
			return
		}
		versions, err := store.ListPromptVersions(c.Request.Context(), code)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"prompt_versions": versions, "count": len(versions)})
	}
}

// GetPromptVersion returns one prompt version of a detection.
func GetPromptVersion(store *storage.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		pv, err := store.GetPromptVersion(c.Request.Context(), c.Param("code"), c.Param("versionId"))
		if err != nil {
			abortWithError(c, statusForError(err), err)
			return
		}
		c.JSON(http.StatusOK, pv)
	}
}
