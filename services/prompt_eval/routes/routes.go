// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/approval"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/engine"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/handlers"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/hil"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/storage"
)

// SetupRoutes registers every endpoint of the prompt_eval service.
func SetupRoutes(router *gin.Engine, store *storage.Store, executor *engine.Executor,
	corrections *hil.Service, gate *approval.Gate) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		detections := v1.Group("/detections")
		{
			detections.POST("", handlers.CreateDetection(store))
			detections.GET("", handlers.ListDetections(store))
			detections.GET("/:code", handlers.GetDetection(store))
			detections.POST("/:code/prompts", handlers.CreatePromptVersion(store))
			detections.GET("/:code/prompts", handlers.ListPromptVersions(store))
			detections.GET("/:code/prompts/:versionId", handlers.GetPromptVersion(store))
			detections.POST("/:code/approve", handlers.Approve(gate))
		}
		datasets := v1.Group("/datasets")
		{
			datasets.POST("", handlers.CreateDataset(store))
			datasets.GET("", handlers.ListDatasets(store))
			datasets.GET("/:id", handlers.GetDataset(store))
			datasets.GET("/:id/items", handlers.ListDatasetItems(store))
			datasets.PUT("/:id/items", handlers.ReplaceDatasetItems(store))
		}
		runs := v1.Group("/runs")
		{
			runs.POST("", handlers.StartRun(store, executor))
			runs.GET("", handlers.ListRuns(store))
			runs.GET("/:id", handlers.GetRun(store))
			runs.GET("/:id/predictions", handlers.ListRunPredictions(store))
			runs.POST("/:id/feedback", handlers.AddRunFeedback(store))
		}
		v1.POST("/predictions/:id/correction", handlers.ApplyCorrection(corrections))
	}
}
