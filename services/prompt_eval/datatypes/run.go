// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"time"
)

// RunStatus is the lifecycle state of an evaluation run. There is no
// "failed" status: per-item failures fold into parse_failure_rate and a
// killed process simply leaves a run in StatusRunning with accurate
// progress counters.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
)

// PromptSnapshot freezes the prompt text and decoding parameters at run
// start so later prompt edits do not retroactively alter the
// interpretation of past runs.
type PromptSnapshot struct {
	SystemInstruction string         `json:"system_instruction"`
	CompiledUser      string         `json:"compiled_user"`
	Decoding          DecodingParams `json:"decoding"`
}

// FeedbackEntry records an accepted or rejected prompt suggestion made
// while reviewing this run's results.
type FeedbackEntry struct {
	Suggestion string    `json:"suggestion"`
	Accepted   bool      `json:"accepted"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Run is one execution of a PromptVersion against a Dataset.
//
// # Description
//
// ProcessedImages and TotalImages are the polling progress interface:
// ProcessedImages is monotonically non-decreasing and reaches TotalImages
// exactly when every item has been attempted. Metrics is nil while the run
// is in flight and is recomputed after each HIL correction.
type Run struct {
	ID                 string          `json:"id"`
	DetectionCode      string          `json:"detection_code"`
	PromptVersionID    string          `json:"prompt_version_id"`
	DatasetID          string          `json:"dataset_id"`
	DatasetFingerprint string          `json:"dataset_fingerprint"`
	Status             RunStatus       `json:"status"`
	Prompt             PromptSnapshot  `json:"prompt"`
	TotalImages        int             `json:"total_images"`
	ProcessedImages    int             `json:"processed_images"`
	Metrics            *MetricsSummary `json:"metrics,omitempty"`
	Feedback           []FeedbackEntry `json:"feedback,omitempty"`
	StartedAt          time.Time       `json:"started_at"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
}

// ErrorTag categorizes why a reviewer considered a prediction wrong.
type ErrorTag string

const (
	TagFalsePositive ErrorTag = "FALSE_POSITIVE"
	TagFalseNegative ErrorTag = "FALSE_NEGATIVE"
	TagBadLabel      ErrorTag = "BAD_LABEL"
	TagAmbiguous     ErrorTag = "AMBIGUOUS"
	TagParseFailure  ErrorTag = "PARSE_FAILURE"
)

// Prediction is the outcome of one inference call: one per (run, item).
//
// # Description
//
// GroundTruth is the label as captured at run time, independent of later
// dataset edits. CorrectedLabel, Tag, ReviewerNote and CorrectedAt are the
// HIL fields, the only part of a Prediction that is mutable after creation.
// A nil Decision together with ParseOK=false marks an uninterpretable
// response (schema violation or provider error); RawResponse then carries
// the error description instead of model output.
type Prediction struct {
	ID          string `json:"id"`
	RunID       string `json:"run_id"`
	ItemID      string `json:"item_id"`
	GroundTruth Label  `json:"ground_truth,omitempty"`

	Decision    *Label   `json:"decision,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Evidence    string   `json:"evidence,omitempty"`
	ParseOK     bool     `json:"parse_ok"`
	RawResponse string   `json:"raw_response"`

	CorrectedLabel *Label     `json:"corrected_label,omitempty"`
	Tag            *ErrorTag  `json:"tag,omitempty"`
	ReviewerNote   string     `json:"reviewer_note,omitempty"`
	CorrectedAt    *time.Time `json:"corrected_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// EffectiveGroundTruth returns the corrected label when set, else the
// ground truth captured at run time.
func (p *Prediction) EffectiveGroundTruth() Label {
	if p.CorrectedLabel != nil && p.CorrectedLabel.IsSet() {
		return *p.CorrectedLabel
	}
	return p.GroundTruth
}
