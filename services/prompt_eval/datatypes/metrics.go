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

// MetricsSummary is the confusion-matrix summary for one run's predictions.
//
// # Description
//
// Counts cover only the labeled subset: predictions whose effective ground
// truth is DETECTED or NOT_DETECTED. All rates are rounded to four decimal
// places and are 0 (never NaN) when their denominator is empty.
// ParseFailures counts labeled items whose response could not be
// interpreted; those items are folded into the matrix conservatively
// (FN on positive ground truth, TN on negative).
type MetricsSummary struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	FalseNegatives int `json:"false_negatives"`
	TrueNegatives  int `json:"true_negatives"`
	TotalLabeled   int `json:"total_labeled"`
	ParseFailures  int `json:"parse_failures"`

	Precision        float64 `json:"precision"`
	Recall           float64 `json:"recall"`
	F1               float64 `json:"f1"`
	Accuracy         float64 `json:"accuracy"`
	Prevalence       float64 `json:"prevalence"`
	ParseFailureRate float64 `json:"parse_failure_rate"`
}

// Metric returns the named primary-metric dimension, used by the approval
// gate's regression comparison.
func (m MetricsSummary) Metric(name MetricName) float64 {
	switch name {
	case MetricPrecision:
		return m.Precision
	case MetricRecall:
		return m.Recall
	default:
		return m.F1
	}
}
