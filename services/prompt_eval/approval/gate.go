// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package approval decides whether a prompt version may become the
// approved version of a detection.
//
// The gate is a two-state machine per detection (no approved version, or
// approved version X) whose only transition is an explicit approve
// action. Failures are reported, never retried; approving again after a
// rejection is idempotent and safe.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/observability"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/storage"
)

// Precondition errors: request-level misuse, distinct from a structured
// rejection.
var (
	ErrRunNotCompleted   = errors.New("run has not completed")
	ErrRunMismatch       = errors.New("run does not belong to the candidate prompt version")
	ErrNotHeldOutDataset = errors.New("approval requires a run on a HELD_OUT_EVAL dataset")
)

// GoldenRunner executes a fresh evaluation run for the regression check.
// Satisfied by *engine.Executor.
type GoldenRunner interface {
	RunToCompletion(ctx context.Context, detectionCode, promptVersionID, datasetID string, concurrency int) (*datatypes.Run, error)
}

// ThresholdFailure reports one threshold the candidate missed.
type ThresholdFailure struct {
	Metric   datatypes.MetricName `json:"metric"`
	Required float64              `json:"required"`
	Actual   float64              `json:"actual"`
}

// RegressionFailure reports a golden-set primary-metric regression
// against the previously approved version.
type RegressionFailure struct {
	Metric    datatypes.MetricName `json:"metric"`
	Prior     float64              `json:"prior"`
	Candidate float64              `json:"candidate"`
}

// Rejection is the structured "which check failed and why" result. A
// rejection leaves all state untouched.
type Rejection struct {
	// Check is "threshold", "golden_threshold" or "golden_regression".
	Check      string             `json:"check"`
	Failures   []ThresholdFailure `json:"failures,omitempty"`
	Regression *RegressionFailure `json:"regression,omitempty"`
}

// Gate evaluates approval requests.
type Gate struct {
	store  *storage.Store
	runner GoldenRunner
	logger *slog.Logger

	// goldenConcurrency is the worker count for regression runs.
	goldenConcurrency int
}

// NewGate creates the approval gate with its injected dependencies.
func NewGate(store *storage.Store, runner GoldenRunner, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:             store,
		runner:            runner,
		logger:            logger,
		goldenConcurrency: datatypes.DefaultConcurrency,
	}
}

// Approve runs the approval state machine for a candidate prompt version.
//
// # Description
//
// Preconditions: the run must be completed, belong to the candidate
// version, and have executed against a HELD_OUT_EVAL dataset of the
// detection. Then:
//
//  1. Threshold check on the held-out metrics (inclusive >=).
//  2. If a GOLDEN dataset exists: fresh golden run, threshold check on
//     golden metrics, and primary-metric non-regression against the
//     previously approved version's recorded golden metrics. No GOLDEN
//     dataset means regression checking is skipped entirely.
//  3. On success only: persist the golden regression result on the
//     candidate and flip the detection's approved-version pointer.
//
// Outputs:
//   - *datatypes.Detection: The updated detection on success, else nil.
//   - *Rejection: Structured check failure, nil on success.
//   - error: Precondition violations and infrastructure failures.
func (g *Gate) Approve(ctx context.Context, detectionCode, promptVersionID, runID string) (*datatypes.Detection, *Rejection, error) {
	detection, err := g.store.GetDetection(ctx, detectionCode)
	if err != nil {
		return nil, nil, fmt.Errorf("detection %s: %w", detectionCode, err)
	}
	candidate, err := g.store.GetPromptVersion(ctx, detectionCode, promptVersionID)
	if err != nil {
		return nil, nil, fmt.Errorf("prompt version %s: %w", promptVersionID, err)
	}
	run, err := g.store.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("run %s: %w", runID, err)
	}

	if run.Status != datatypes.StatusCompleted || run.Metrics == nil {
		return nil, nil, fmt.Errorf("run %s: %w", runID, ErrRunNotCompleted)
	}
	if run.PromptVersionID != candidate.ID || run.DetectionCode != detection.Code {
		return nil, nil, fmt.Errorf("run %s: %w", runID, ErrRunMismatch)
	}
	dataset, err := g.store.GetDataset(ctx, run.DatasetID)
	if err != nil {
		return nil, nil, fmt.Errorf("dataset %s: %w", run.DatasetID, err)
	}
	if dataset.Role != datatypes.SplitHeldOutEval {
		return nil, nil, fmt.Errorf("dataset %s has role %s: %w", dataset.ID, dataset.Role, ErrNotHeldOutDataset)
	}

	// Check 1: thresholds on held-out metrics.
	if failures := checkThresholds(detection.Thresholds, *run.Metrics); len(failures) > 0 {
		observability.ApprovalsTotal.WithLabelValues("threshold_failed").Inc()
		g.logger.Info("approval rejected on held-out thresholds",
			"detection", detectionCode, "prompt_version", promptVersionID, "failures", len(failures))
		return nil, &Rejection{Check: "threshold", Failures: failures}, nil
	}

	// Check 2: golden regression, only when a golden set exists.
	var regression *datatypes.GoldenRegressionResult
	golden, err := g.store.FindGoldenDataset(ctx, detectionCode)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		g.logger.Info("no golden dataset, regression check skipped", "detection", detectionCode)
	case err != nil:
		return nil, nil, fmt.Errorf("find golden dataset: %w", err)
	default:
		result, rejection, err := g.goldenCheck(ctx, detection, candidate, golden)
		if err != nil {
			return nil, nil, err
		}
		if rejection != nil {
			return nil, rejection, nil
		}
		regression = result
	}

	// Success: persist the regression result, then flip the pointer.
	if regression != nil {
		candidate.GoldenRegression = regression
		if err := g.store.PutPromptVersion(ctx, candidate); err != nil {
			return nil, nil, fmt.Errorf("persist regression result: %w", err)
		}
	}
	detection.ApprovedVersionID = candidate.ID
	detection.UpdatedAt = time.Now().UTC()
	if err := g.store.PutDetection(ctx, detection); err != nil {
		return nil, nil, fmt.Errorf("persist approved version pointer: %w", err)
	}

	observability.ApprovalsTotal.WithLabelValues("approved").Inc()
	g.logger.Info("prompt version approved",
		"detection", detectionCode, "prompt_version", candidate.ID,
		"golden_checked", regression != nil)
	return detection, nil, nil
}

// goldenCheck runs fresh inference on the golden set and applies the
// threshold and non-regression checks to its metrics.
func (g *Gate) goldenCheck(ctx context.Context, detection *datatypes.Detection, candidate *datatypes.PromptVersion, golden *datatypes.Dataset) (*datatypes.GoldenRegressionResult, *Rejection, error) {
	goldenRun, err := g.runner.RunToCompletion(ctx, detection.Code, candidate.ID, golden.ID, g.goldenConcurrency)
	if err != nil {
		return nil, nil, fmt.Errorf("golden run: %w", err)
	}
	goldenMetrics := *goldenRun.Metrics

	if failures := checkThresholds(detection.Thresholds, goldenMetrics); len(failures) > 0 {
		observability.ApprovalsTotal.WithLabelValues("threshold_failed").Inc()
		g.logger.Info("approval rejected on golden thresholds",
			"detection", detection.Code, "prompt_version", candidate.ID)
		return nil, &Rejection{Check: "golden_threshold", Failures: failures}, nil
	}

	var priorMetrics *datatypes.MetricsSummary
	if detection.ApprovedVersionID != "" {
		prior, err := g.store.GetPromptVersion(ctx, detection.Code, detection.ApprovedVersionID)
		if err != nil {
			return nil, nil, fmt.Errorf("prior approved version %s: %w", detection.ApprovedVersionID, err)
		}
		if prior.GoldenRegression != nil {
			pm := prior.GoldenRegression.GoldenMetrics
			priorMetrics = &pm
			metric := detection.Thresholds.PrimaryMetric
			priorVal := pm.Metric(metric)
			candidateVal := goldenMetrics.Metric(metric)
			if candidateVal < priorVal {
				observability.ApprovalsTotal.WithLabelValues("regression_failed").Inc()
				g.logger.Info("approval rejected on golden regression",
					"detection", detection.Code, "metric", string(metric),
					"prior", priorVal, "candidate", candidateVal)
				return nil, &Rejection{
					Check: "golden_regression",
					Regression: &RegressionFailure{
						Metric:    metric,
						Prior:     priorVal,
						Candidate: candidateVal,
					},
				}, nil
			}
		}
	}

	return &datatypes.GoldenRegressionResult{
		Passed:        true,
		GoldenRunID:   goldenRun.ID,
		GoldenMetrics: goldenMetrics,
		PriorMetrics:  priorMetrics,
		CheckedAt:     time.Now().UTC(),
	}, nil, nil
}

// checkThresholds returns one failure per configured minimum the summary
// does not meet. Comparisons are inclusive: actual >= required passes.
func checkThresholds(t datatypes.Thresholds, m datatypes.MetricsSummary) []ThresholdFailure {
	var failures []ThresholdFailure
	if t.MinPrecision != nil && m.Precision < *t.MinPrecision {
		failures = append(failures, ThresholdFailure{Metric: datatypes.MetricPrecision, Required: *t.MinPrecision, Actual: m.Precision})
	}
	if t.MinRecall != nil && m.Recall < *t.MinRecall {
		failures = append(failures, ThresholdFailure{Metric: datatypes.MetricRecall, Required: *t.MinRecall, Actual: m.Recall})
	}
	if t.MinF1 != nil && m.F1 < *t.MinF1 {
		failures = append(failures, ThresholdFailure{Metric: datatypes.MetricF1, Required: *t.MinF1, Actual: m.F1})
	}
	return failures
}
