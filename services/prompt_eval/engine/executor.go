// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine contains the evaluation run executor and the metrics
// engine.
//
// The executor fans bounded-concurrency inference calls out over a
// dataset: a fixed set of workers claims item indexes from a shared
// atomic cursor, so fast workers pick up the slack of slow ones instead
// of idling behind a static partition. Every prediction is persisted the
// moment it is computed and the run's progress counter is bumped per
// item, so a killed process leaves a partially-processed run with
// accurate, queryable progress. A killed run is not resumed; callers
// start a new one.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/inference"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/observability"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/prompt"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/schema"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/storage"
)

// MetricsSink receives a completed run's metrics summary. Sinks are
// best-effort: failures are logged, never fatal to the run.
type MetricsSink interface {
	RecordRunMetrics(ctx context.Context, run *datatypes.Run) error
}

// Executor orchestrates evaluation runs.
//
// # Thread Safety
//
// Safe for concurrent use; each Execute call owns its run.
type Executor struct {
	store    *storage.Store
	provider inference.Provider
	logger   *slog.Logger
	sinks    []MetricsSink
}

// NewExecutor creates an executor with its injected dependencies. The
// store and provider are required; sinks are optional.
func NewExecutor(store *storage.Store, provider inference.Provider, logger *slog.Logger, sinks ...MetricsSink) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{store: store, provider: provider, logger: logger, sinks: sinks}
}

// ClampConcurrency normalizes a requested worker count: 0 selects the
// default, everything else is clamped to [1, MaxConcurrency].
func ClampConcurrency(n int) int {
	if n == 0 {
		return datatypes.DefaultConcurrency
	}
	if n < 1 {
		return 1
	}
	if n > datatypes.MaxConcurrency {
		return datatypes.MaxConcurrency
	}
	return n
}

// CreateRun validates the referenced entities and persists a new running
// Run with a frozen prompt snapshot and the dataset's current
// fingerprint.
//
// # Description
//
// Missing detection, prompt version or dataset surface as
// storage.ErrNotFound before any Run exists; the engine never creates a
// run against missing inputs. The prompt snapshot compiles the user
// template (detection-code substitution plus label-policy and rubric
// sections) so later prompt edits cannot change what this run meant.
func (e *Executor) CreateRun(ctx context.Context, detectionCode, promptVersionID, datasetID string) (*datatypes.Run, error) {
	detection, err := e.store.GetDetection(ctx, detectionCode)
	if err != nil {
		return nil, fmt.Errorf("detection %s: %w", detectionCode, err)
	}
	pv, err := e.store.GetPromptVersion(ctx, detectionCode, promptVersionID)
	if err != nil {
		return nil, fmt.Errorf("prompt version %s: %w", promptVersionID, err)
	}
	dataset, err := e.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, err)
	}
	if dataset.DetectionCode != detection.Code {
		return nil, fmt.Errorf("dataset %s belongs to detection %s, not %s", datasetID, dataset.DetectionCode, detection.Code)
	}
	items, err := e.store.ListItems(ctx, datasetID)
	if err != nil {
		return nil, fmt.Errorf("list items of dataset %s: %w", datasetID, err)
	}

	run := &datatypes.Run{
		ID:                 uuid.NewString(),
		DetectionCode:      detection.Code,
		PromptVersionID:    pv.ID,
		DatasetID:          dataset.ID,
		DatasetFingerprint: datatypes.ComputeFingerprint(items),
		Status:             datatypes.StatusRunning,
		Prompt: datatypes.PromptSnapshot{
			SystemInstruction: pv.SystemInstruction,
			CompiledUser:      prompt.Compile(pv, detection.Code),
			Decoding:          pv.Decoding,
		},
		TotalImages: len(items),
		StartedAt:   time.Now().UTC(),
	}
	if err := e.store.PutRun(ctx, run); err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}

	observability.RunsTotal.WithLabelValues("started").Inc()
	e.logger.Info("run created",
		"run_id", run.ID, "detection", run.DetectionCode,
		"dataset", run.DatasetID, "total_images", run.TotalImages)
	return run, nil
}

// Execute processes every item of the run's dataset and completes the run.
//
// # Description
//
// A pool of `concurrency` workers pulls item indexes from a shared atomic
// cursor. Per item: call the provider, validate the response against the
// output contract, persist the prediction immediately, bump the progress
// counter. Provider errors are folded into parse-failure predictions
// carrying the error text as the raw response; one bad item never aborts
// the run. Metrics are computed once, after all items were attempted,
// and the run is only then marked completed.
//
// There is no mid-run cancellation; ctx is threaded to inference calls
// for per-call timeouts only.
//
// Outputs:
//   - error: Non-nil only for storage failures, the one genuinely fatal
//     condition mid-run.
func (e *Executor) Execute(ctx context.Context, runID string, concurrency int) error {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	items, err := e.store.ListItems(ctx, run.DatasetID)
	if err != nil {
		return fmt.Errorf("list items of dataset %s: %w", run.DatasetID, err)
	}
	if len(items) != run.TotalImages {
		// The dataset changed between CreateRun and Execute. The run's
		// counters are sized at creation, so refuse rather than mislead.
		return fmt.Errorf("dataset %s has %d items but run %s expects %d", run.DatasetID, len(items), runID, run.TotalImages)
	}

	workers := ClampConcurrency(concurrency)
	started := time.Now()
	e.logger.Info("run executing", "run_id", runID, "workers", workers, "items", len(items))

	var cursor int64
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			observability.ActiveWorkers.Inc()
			defer observability.ActiveWorkers.Dec()
			for {
				idx := int(atomic.AddInt64(&cursor, 1)) - 1
				if idx >= len(items) {
					return nil
				}
				if err := e.processItem(gctx, run, &items[idx]); err != nil {
					return err
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("run %s aborted: %w", runID, err)
	}

	predictions, err := e.store.ListPredictions(ctx, runID)
	if err != nil {
		return fmt.Errorf("list predictions of run %s: %w", runID, err)
	}
	summary := ComputeMetrics(predictions)

	now := time.Now().UTC()
	err = e.store.UpdateRun(ctx, runID, func(r *datatypes.Run) error {
		r.Status = datatypes.StatusCompleted
		r.Metrics = &summary
		r.CompletedAt = &now
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete run %s: %w", runID, err)
	}

	observability.RunsTotal.WithLabelValues("completed").Inc()
	observability.RunDurationSeconds.Observe(time.Since(started).Seconds())
	e.logger.Info("run completed",
		"run_id", runID,
		"f1", summary.F1,
		"parse_failure_rate", summary.ParseFailureRate,
		"duration", time.Since(started).Round(time.Millisecond).String())

	e.notifySinks(ctx, runID)
	return nil
}

// processItem runs one inference call and persists its prediction. Never
// returns an error for provider or schema failures, only for storage.
func (e *Executor) processItem(ctx context.Context, run *datatypes.Run, item *datatypes.DatasetItem) error {
	cfg := inference.PromptConfig{
		SystemInstruction: run.Prompt.SystemInstruction,
		UserInstruction:   run.Prompt.CompiledUser,
		Decoding:          run.Prompt.Decoding,
	}

	pred := datatypes.Prediction{
		ID:          uuid.NewString(),
		RunID:       run.ID,
		ItemID:      item.ID,
		GroundTruth: item.GroundTruth,
		CreatedAt:   time.Now().UTC(),
	}

	raw, err := e.provider.Infer(ctx, cfg, run.DetectionCode, item.ImageRef)
	if err != nil {
		// Provider errors are parse failures with the error text in place
		// of a raw response, identical to a schema violation downstream.
		observability.InferenceCallsTotal.WithLabelValues("provider_error").Inc()
		observability.ParseFailuresTotal.Inc()
		pred.ParseOK = false
		pred.RawResponse = err.Error()
		e.logger.Warn("inference failed",
			"run_id", run.ID, "item_id", item.ID, "error", err)
	} else {
		observability.InferenceCallsTotal.WithLabelValues("ok").Inc()
		pred.RawResponse = raw
		res := schema.Validate(raw)
		if res.ParseOK {
			decision := res.Decision
			confidence := res.Confidence
			pred.ParseOK = true
			pred.Decision = &decision
			pred.Confidence = &confidence
			pred.Evidence = res.Evidence
		} else {
			observability.ParseFailuresTotal.Inc()
			pred.ParseOK = false
			e.logger.Debug("schema violation",
				"run_id", run.ID, "item_id", item.ID, "reason", res.Reason)
		}
	}

	if err := e.store.PutPrediction(ctx, &pred); err != nil {
		return fmt.Errorf("persist prediction for item %s: %w", item.ID, err)
	}
	if err := e.store.IncrementRunProgress(ctx, run.ID); err != nil {
		return fmt.Errorf("bump progress for item %s: %w", item.ID, err)
	}
	return nil
}

// RunToCompletion creates a run and executes it synchronously, returning
// the completed run. Used by the approval gate's golden regression check,
// which needs fresh inference rather than a reused summary.
func (e *Executor) RunToCompletion(ctx context.Context, detectionCode, promptVersionID, datasetID string, concurrency int) (*datatypes.Run, error) {
	run, err := e.CreateRun(ctx, detectionCode, promptVersionID, datasetID)
	if err != nil {
		return nil, err
	}
	if err := e.Execute(ctx, run.ID, concurrency); err != nil {
		return nil, err
	}
	completed, err := e.store.GetRun(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if completed.Status != datatypes.StatusCompleted || completed.Metrics == nil {
		return nil, errors.New("run finished without metrics")
	}
	return completed, nil
}

func (e *Executor) notifySinks(ctx context.Context, runID string) {
	if len(e.sinks) == 0 {
		return
	}
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		e.logger.Warn("metrics sink skipped, run reload failed", "run_id", runID, "error", err)
		return
	}
	for _, sink := range e.sinks {
		if err := sink.RecordRunMetrics(ctx, run); err != nil {
			e.logger.Warn("metrics sink write failed", "run_id", runID, "error", err)
		}
	}
}
