// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/approval"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/engine"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/hil"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/inference"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/routes"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/storage"
)

// echoProvider answers DETECTED for refs containing "yes".
type echoProvider struct{}

func (echoProvider) Infer(_ context.Context, _ inference.PromptConfig, _ string, imageRef string) (string, error) {
	decision := datatypes.LabelNotDetected
	if bytes.Contains([]byte(imageRef), []byte("yes")) {
		decision = datatypes.LabelDetected
	}
	return fmt.Sprintf(
		`{"detection_code":"diving_board","decision":"%s","confidence":0.9,"evidence":"e"}`,
		decision), nil
}

type testServer struct {
	router *gin.Engine
	store  *storage.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewStore(db, logger)
	executor := engine.NewExecutor(store, echoProvider{}, logger)
	corrections := hil.NewService(store, logger)
	gate := approval.NewGate(store, executor, logger)

	router := gin.New()
	routes.SetupRoutes(router, store, executor, corrections, gate)
	return &testServer{router: router, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out),
			"body: %s", rec.Body.String())
	}
	return rec.Code
}

// seedWorkflow drives the API through detection, prompt version and
// dataset creation, returning the created ids.
func seedWorkflow(t *testing.T, ts *testServer, role string, refs []string) (pvID, datasetID string) {
	t.Helper()
	minF1 := 0.5
	code := ts.do(t, "POST", "/v1/detections", map[string]any{
		"code":         "diving_board",
		"display_name": "Diving board visible",
		"thresholds":   datatypes.Thresholds{PrimaryMetric: datatypes.MetricF1, MinF1: &minF1},
	}, nil)
	// Re-creating the same detection in later calls is a conflict, which
	// seedWorkflow tolerates so tests can layer datasets.
	require.Contains(t, []int{http.StatusCreated, http.StatusConflict}, code)

	var pv struct {
		ID string `json:"id"`
	}
	status := ts.do(t, "POST", "/v1/detections/diving_board/prompts", map[string]any{
		"system_instruction": "You are a strict visual classifier.",
		"user_template":      "Decide {{DETECTION_CODE}}.",
		"decoding":           map[string]any{"model": "gpt-4o"},
	}, &pv)
	require.Equal(t, http.StatusCreated, status)

	items := make([]map[string]any, 0, len(refs))
	for i, ref := range refs {
		gt := "NOT_DETECTED"
		if bytes.Contains([]byte(ref), []byte("yes")) {
			gt = "DETECTED"
		}
		items = append(items, map[string]any{
			"id":           fmt.Sprintf("item-%02d", i),
			"image_ref":    ref,
			"ground_truth": gt,
		})
	}
	var ds struct {
		ID          string `json:"id"`
		Size        int    `json:"size"`
		Fingerprint string `json:"fingerprint"`
	}
	status = ts.do(t, "POST", "/v1/datasets", map[string]any{
		"detection_code": "diving_board",
		"name":           "test set",
		"role":           role,
		"items":          items,
	}, &ds)
	require.Equal(t, http.StatusCreated, status)
	require.Equal(t, len(refs), ds.Size)
	require.Len(t, ds.Fingerprint, 16)

	return pv.ID, ds.ID
}

func startAndAwaitRun(t *testing.T, ts *testServer, pvID, datasetID string) string {
	t.Helper()
	var started struct {
		RunID string `json:"run_id"`
	}
	status := ts.do(t, "POST", "/v1/runs", map[string]any{
		"detection_code":    "diving_board",
		"prompt_version_id": pvID,
		"dataset_id":        datasetID,
		"concurrency":       2,
	}, &started)
	require.Equal(t, http.StatusAccepted, status)

	require.Eventually(t, func() bool {
		run, err := ts.store.GetRun(context.Background(), started.RunID)
		return err == nil && run.Status == datatypes.StatusCompleted
	}, 5*time.Second, 20*time.Millisecond, "run never completed")
	return started.RunID
}

// TestRunWorkflow tests the full happy path over HTTP: create everything,
// run, poll, inspect predictions.
func TestRunWorkflow(t *testing.T) {
	ts := newTestServer(t)
	pvID, dsID := seedWorkflow(t, ts, "ITERATION",
		[]string{"https://img.test/yes-1.jpg", "https://img.test/no-1.jpg", "https://img.test/yes-2.jpg"})

	runID := startAndAwaitRun(t, ts, pvID, dsID)

	var run struct {
		Status          string                    `json:"status"`
		ProcessedImages int                       `json:"processed_images"`
		TotalImages     int                       `json:"total_images"`
		Metrics         *datatypes.MetricsSummary `json:"metrics"`
	}
	status := ts.do(t, "GET", "/v1/runs/"+runID, nil, &run)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 3, run.ProcessedImages)
	require.NotNil(t, run.Metrics)
	// The echo provider agrees with every ground truth label.
	assert.InDelta(t, 1.0, run.Metrics.F1, 1e-9)

	var predictions struct {
		Count int `json:"count"`
	}
	status = ts.do(t, "GET", "/v1/runs/"+runID+"/predictions", nil, &predictions)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 3, predictions.Count)
}

// TestStartRun_UnknownReferences tests 404 mapping before run creation.
func TestStartRun_UnknownReferences(t *testing.T) {
	ts := newTestServer(t)
	pvID, _ := seedWorkflow(t, ts, "ITERATION", []string{"https://img.test/yes-1.jpg"})

	status := ts.do(t, "POST", "/v1/runs", map[string]any{
		"detection_code":    "diving_board",
		"prompt_version_id": pvID,
		"dataset_id":        "missing",
	}, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

// TestCorrectionEndpoint tests a HIL correction with metrics recompute and
// the protected-dataset conflict.
func TestCorrectionEndpoint(t *testing.T) {
	ts := newTestServer(t)
	pvID, dsID := seedWorkflow(t, ts, "ITERATION",
		[]string{"https://img.test/yes-1.jpg", "https://img.test/no-1.jpg"})
	runID := startAndAwaitRun(t, ts, pvID, dsID)

	predictions, err := ts.store.ListPredictions(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, predictions, 2)

	var result struct {
		Prediction datatypes.Prediction     `json:"prediction"`
		Metrics    datatypes.MetricsSummary `json:"metrics"`
	}
	status := ts.do(t, "POST", "/v1/predictions/"+predictions[0].ID+"/correction", map[string]any{
		"corrected_label": "NOT_DETECTED",
		"error_tag":       "BAD_LABEL",
		"reviewer_note":   "frame is blurry",
		"propagate":       true,
	}, &result)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, result.Prediction.CorrectedLabel)
	assert.Equal(t, datatypes.LabelNotDetected, *result.Prediction.CorrectedLabel)
	assert.Equal(t, "frame is blurry", result.Prediction.ReviewerNote)
}

// TestCorrectionEndpoint_TagOnlyEditKeepsLabel tests that an edit carrying
// only an error tag or note leaves an earlier corrected label in place,
// and that only an explicit null clears it.
func TestCorrectionEndpoint_TagOnlyEditKeepsLabel(t *testing.T) {
	ts := newTestServer(t)
	pvID, dsID := seedWorkflow(t, ts, "ITERATION",
		[]string{"https://img.test/yes-1.jpg", "https://img.test/no-1.jpg"})
	runID := startAndAwaitRun(t, ts, pvID, dsID)

	predictions, err := ts.store.ListPredictions(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, predictions, 2)
	predID := predictions[0].ID
	path := "/v1/predictions/" + predID + "/correction"

	var result struct {
		Prediction datatypes.Prediction     `json:"prediction"`
		Metrics    datatypes.MetricsSummary `json:"metrics"`
	}
	status := ts.do(t, "POST", path, map[string]any{
		"corrected_label": "NOT_DETECTED",
	}, &result)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, result.Prediction.CorrectedLabel)
	correctedMetrics := result.Metrics

	status = ts.do(t, "POST", path, map[string]any{
		"error_tag":     "AMBIGUOUS",
		"reviewer_note": "second look requested",
	}, &result)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, result.Prediction.CorrectedLabel,
		"tag-only edit must not clear the corrected label")
	assert.Equal(t, datatypes.LabelNotDetected, *result.Prediction.CorrectedLabel)
	assert.Equal(t, correctedMetrics, result.Metrics,
		"tag-only edit must not move the run's metrics")

	// An explicit null is the clear signal. The cleared label is omitted
	// from the response (omitempty), so decode into a zeroed struct to
	// avoid keeping the stale pointer from the previous call.
	result.Prediction = datatypes.Prediction{}
	status = ts.do(t, "POST", path, map[string]any{
		"corrected_label": nil,
	}, &result)
	require.Equal(t, http.StatusOK, status)
	assert.Nil(t, result.Prediction.CorrectedLabel)
}

// TestCorrectionEndpoint_ProtectedDataset tests the 409 on propagation
// into a held-out dataset.
func TestCorrectionEndpoint_ProtectedDataset(t *testing.T) {
	ts := newTestServer(t)
	pvID, dsID := seedWorkflow(t, ts, "HELD_OUT_EVAL", []string{"https://img.test/yes-1.jpg"})
	runID := startAndAwaitRun(t, ts, pvID, dsID)

	predictions, err := ts.store.ListPredictions(context.Background(), runID)
	require.NoError(t, err)
	require.Len(t, predictions, 1)

	status := ts.do(t, "POST", "/v1/predictions/"+predictions[0].ID+"/correction", map[string]any{
		"corrected_label": "NOT_DETECTED",
		"propagate":       true,
	}, nil)
	assert.Equal(t, http.StatusConflict, status)
}

// TestApprovalEndpoint tests approval over a completed held-out run.
func TestApprovalEndpoint(t *testing.T) {
	ts := newTestServer(t)
	pvID, dsID := seedWorkflow(t, ts, "HELD_OUT_EVAL",
		[]string{"https://img.test/yes-1.jpg", "https://img.test/no-1.jpg"})
	runID := startAndAwaitRun(t, ts, pvID, dsID)

	var result struct {
		Approved  bool `json:"approved"`
		Detection struct {
			ApprovedVersionID string `json:"approved_version_id"`
		} `json:"detection"`
	}
	status := ts.do(t, "POST", "/v1/detections/diving_board/approve", map[string]any{
		"prompt_version_id": pvID,
		"run_id":            runID,
	}, &result)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, result.Approved)
	assert.Equal(t, pvID, result.Detection.ApprovedVersionID)
}

// TestApprovalEndpoint_WrongDatasetRole tests the 409 precondition when
// the run executed against an iteration dataset.
func TestApprovalEndpoint_WrongDatasetRole(t *testing.T) {
	ts := newTestServer(t)
	pvID, dsID := seedWorkflow(t, ts, "ITERATION", []string{"https://img.test/yes-1.jpg"})
	runID := startAndAwaitRun(t, ts, pvID, dsID)

	status := ts.do(t, "POST", "/v1/detections/diving_board/approve", map[string]any{
		"prompt_version_id": pvID,
		"run_id":            runID,
	}, nil)
	assert.Equal(t, http.StatusConflict, status)
}

// TestValidationFailures tests 400 mapping for malformed requests.
func TestValidationFailures(t *testing.T) {
	ts := newTestServer(t)

	status := ts.do(t, "POST", "/v1/detections", map[string]any{"display_name": "no code"}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Codes with key-delimiter characters are refused before storage.
	status = ts.do(t, "POST", "/v1/detections", map[string]any{
		"code": "bad:code", "display_name": "B",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	ts.do(t, "POST", "/v1/detections", map[string]any{
		"code": "d", "display_name": "D",
	}, nil)
	status = ts.do(t, "POST", "/v1/detections/d/prompts", map[string]any{
		"system_instruction": "s",
		"user_template":      "no placeholder here",
		"decoding":           map[string]any{"model": "gpt-4o"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

// TestHealthEndpoint tests liveness.
func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	var health struct {
		Status string `json:"status"`
	}
	status := ts.do(t, "GET", "/health", nil, &health)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", health.Status)
}
