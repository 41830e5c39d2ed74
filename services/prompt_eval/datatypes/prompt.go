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

// DetectionCodePlaceholder is the literal token in a user instruction
// template that is replaced with the detection code at compile time.
const DetectionCodePlaceholder = "{{DETECTION_CODE}}"

// DecodingParams are the model decoding parameters frozen into a prompt
// version. Pointer fields are optional; nil means "use the backend default".
type DecodingParams struct {
	Model       string   `json:"model"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// GoldenRegressionResult records the outcome of the golden-set regression
// check performed during approval. It is the only field of a PromptVersion
// that is written after creation.
type GoldenRegressionResult struct {
	Passed        bool            `json:"passed"`
	GoldenRunID   string          `json:"golden_run_id"`
	GoldenMetrics MetricsSummary  `json:"golden_metrics"`
	PriorMetrics  *MetricsSummary `json:"prior_metrics,omitempty"`
	CheckedAt     time.Time       `json:"checked_at"`
}

// PromptVersion is an immutable-once-created snapshot of the instructions
// and decoding parameters used to query the inference provider.
//
// # Description
//
// SystemInstruction and UserTemplate are the entire prompt surface.
// UserTemplate contains the DetectionCodePlaceholder token; LabelPolicy and
// Rubric are snapshots taken from the Detection at creation time so that
// later detection edits do not change what an old version meant.
//
// # Assumptions
//
//   - A version belongs to exactly one Detection (DetectionCode).
//   - Only GoldenRegression is mutated after creation, by the approval gate.
type PromptVersion struct {
	ID                string                  `json:"id"`
	DetectionCode     string                  `json:"detection_code"`
	Name              string                  `json:"name,omitempty"`
	SystemInstruction string                  `json:"system_instruction"`
	UserTemplate      string                  `json:"user_template"`
	LabelPolicy       string                  `json:"label_policy,omitempty"`
	Rubric            []RubricCriterion       `json:"rubric,omitempty"`
	Decoding          DecodingParams          `json:"decoding"`
	GoldenRegression  *GoldenRegressionResult `json:"golden_regression,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
}
