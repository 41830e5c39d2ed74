// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data structures for the prompt_eval service.
//
// This file contains the Detection entity: the identity of one binary
// visual-detection task (e.g. "is a diving board visible"). Prompt versions,
// datasets and runs all hang off a Detection by its code.
package datatypes

import (
	"time"
)

// MetricName identifies a metric dimension used for thresholds and the
// regression gate.
type MetricName string

const (
	MetricPrecision MetricName = "precision"
	MetricRecall    MetricName = "recall"
	MetricF1        MetricName = "f1"
)

// RubricCriterion is one ordered entry of a detection's decision rubric.
// Criteria are rendered into the compiled user prompt in order.
type RubricCriterion struct {
	Order int    `json:"order"`
	Text  string `json:"text"`
}

// Thresholds holds the minimum metric values a candidate prompt version must
// meet on a held-out evaluation run before it can be approved.
//
// # Description
//
// PrimaryMetric names the dimension used by the golden-set regression gate
// (a candidate must not score below the previously approved version on it).
// The Min* fields are optional: a nil minimum means "not enforced". All
// comparisons are inclusive (>=).
type Thresholds struct {
	PrimaryMetric MetricName `json:"primary_metric"`
	MinPrecision  *float64   `json:"min_precision,omitempty"`
	MinRecall     *float64   `json:"min_recall,omitempty"`
	MinF1         *float64   `json:"min_f1,omitempty"`
}

// Detection is a named binary visual-classification task.
//
// # Description
//
// A Detection owns its prompt versions and datasets. ApprovedVersionID is
// the pointer mutated only by the approval gate; it is empty until a prompt
// version has passed the threshold and regression checks.
//
// # Fields
//
//   - Code: Unique identifier, used in storage keys and prompt templates.
//   - LabelPolicy: Free text describing what counts as DETECTED.
//   - Rubric: Ordered decision criteria appended to compiled prompts.
//   - Thresholds: Approval gate configuration.
//   - ApprovedVersionID: Currently approved PromptVersion id, or empty.
type Detection struct {
	Code              string            `json:"code"`
	DisplayName       string            `json:"display_name"`
	Description       string            `json:"description,omitempty"`
	LabelPolicy       string            `json:"label_policy,omitempty"`
	Rubric            []RubricCriterion `json:"rubric,omitempty"`
	Thresholds        Thresholds        `json:"thresholds"`
	ApprovedVersionID string            `json:"approved_version_id,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
