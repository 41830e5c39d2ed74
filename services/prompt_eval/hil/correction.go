// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hil applies human-in-the-loop reviewer corrections to
// predictions and keeps downstream state consistent.
package hil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/engine"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/storage"
)

// ErrProtectedDataset indicates a propagation attempt into a dataset
// whose role forbids ground-truth edits (anything but ITERATION).
var ErrProtectedDataset = errors.New("corrections may only propagate into ITERATION datasets")

// Correction is one reviewer edit. Nil fields leave the prediction's
// corresponding HIL field unchanged, except CorrectedLabel: ClearLabel
// distinguishes "clear the correction" from "leave it alone".
type Correction struct {
	CorrectedLabel *datatypes.Label
	ClearLabel     bool
	ErrorTag       *datatypes.ErrorTag
	ReviewerNote   *string

	// Propagate copies the corrected label into the source dataset
	// item's ground truth. Only honored for ITERATION datasets.
	Propagate bool
}

// Service applies corrections and triggers metrics recomputation.
type Service struct {
	store  *storage.Store
	logger *slog.Logger
}

// NewService creates the correction service.
func NewService(store *storage.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Apply updates one prediction's HIL fields, optionally propagates the
// corrected label into the source dataset item, and recomputes the run's
// metrics summary from the full updated prediction set.
//
// # Description
//
// The recomputation is always a full rebuild via engine.ComputeMetrics;
// corrections never patch the confusion matrix incrementally. Propagation
// into GOLDEN or HELD_OUT_EVAL datasets is refused with
// ErrProtectedDataset before any mutation happens.
//
// Outputs:
//   - *datatypes.Prediction: The updated prediction.
//   - *datatypes.MetricsSummary: The recomputed run summary.
//   - error: storage.ErrNotFound for unknown predictions,
//     ErrProtectedDataset for refused propagation.
func (s *Service) Apply(ctx context.Context, predictionID string, c Correction) (*datatypes.Prediction, *datatypes.MetricsSummary, error) {
	pred, err := s.store.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, nil, fmt.Errorf("prediction %s: %w", predictionID, err)
	}

	// Check propagation eligibility before mutating anything.
	var item *datatypes.DatasetItem
	if c.Propagate && c.CorrectedLabel != nil {
		run, err := s.store.GetRun(ctx, pred.RunID)
		if err != nil {
			return nil, nil, fmt.Errorf("run %s: %w", pred.RunID, err)
		}
		dataset, err := s.store.GetDataset(ctx, run.DatasetID)
		if err != nil {
			return nil, nil, fmt.Errorf("dataset %s: %w", run.DatasetID, err)
		}
		if dataset.Role != datatypes.SplitIteration {
			return nil, nil, fmt.Errorf("dataset %s has role %s: %w", dataset.ID, dataset.Role, ErrProtectedDataset)
		}
		item, err = s.store.GetItem(ctx, dataset.ID, pred.ItemID)
		if err != nil {
			return nil, nil, fmt.Errorf("item %s: %w", pred.ItemID, err)
		}
	}

	now := time.Now().UTC()
	err = s.store.UpdatePrediction(ctx, predictionID, func(p *datatypes.Prediction) error {
		if c.ClearLabel {
			p.CorrectedLabel = nil
		} else if c.CorrectedLabel != nil {
			label := *c.CorrectedLabel
			p.CorrectedLabel = &label
		}
		if c.ErrorTag != nil {
			tag := *c.ErrorTag
			p.Tag = &tag
		}
		if c.ReviewerNote != nil {
			p.ReviewerNote = *c.ReviewerNote
		}
		p.CorrectedAt = &now
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("update prediction %s: %w", predictionID, err)
	}

	if item != nil {
		item.GroundTruth = *c.CorrectedLabel
		item.UpdatedAt = now
		if err := s.store.PutItem(ctx, item); err != nil {
			return nil, nil, fmt.Errorf("propagate label to item %s: %w", item.ID, err)
		}
		s.logger.Info("correction propagated to dataset item",
			"item_id", item.ID, "dataset_id", item.DatasetID, "label", string(*c.CorrectedLabel))
	}

	summary, err := s.RecomputeRunMetrics(ctx, pred.RunID)
	if err != nil {
		return nil, nil, err
	}

	updated, err := s.store.GetPrediction(ctx, predictionID)
	if err != nil {
		return nil, nil, fmt.Errorf("reload prediction %s: %w", predictionID, err)
	}

	s.logger.Info("correction applied",
		"prediction_id", predictionID, "run_id", pred.RunID, "propagated", item != nil)
	return updated, summary, nil
}

// RecomputeRunMetrics rebuilds a run's metrics summary from its full
// prediction set and persists it.
func (s *Service) RecomputeRunMetrics(ctx context.Context, runID string) (*datatypes.MetricsSummary, error) {
	predictions, err := s.store.ListPredictions(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list predictions of run %s: %w", runID, err)
	}
	summary := engine.ComputeMetrics(predictions)
	err = s.store.UpdateRun(ctx, runID, func(r *datatypes.Run) error {
		r.Metrics = &summary
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist metrics of run %s: %w", runID, err)
	}
	return &summary, nil
}
