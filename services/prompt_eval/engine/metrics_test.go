// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
)

func labeled(gt datatypes.Label, decision datatypes.Label) datatypes.Prediction {
	d := decision
	return datatypes.Prediction{GroundTruth: gt, ParseOK: true, Decision: &d}
}

func parseFailure(gt datatypes.Label) datatypes.Prediction {
	return datatypes.Prediction{GroundTruth: gt, ParseOK: false, RawResponse: "not json"}
}

// TestComputeMetrics_WorkedExample tests a full summary on a small mixed
// prediction set: two hits, one false positive, one parse failure on
// DETECTED ground truth.
func TestComputeMetrics_WorkedExample(t *testing.T) {
	predictions := []datatypes.Prediction{
		labeled(datatypes.LabelDetected, datatypes.LabelDetected),
		labeled(datatypes.LabelDetected, datatypes.LabelDetected),
		parseFailure(datatypes.LabelDetected),
		labeled(datatypes.LabelNotDetected, datatypes.LabelDetected),
	}
	m := ComputeMetrics(predictions)

	assert.Equal(t, 2, m.TruePositives)
	assert.Equal(t, 1, m.FalsePositives)
	assert.Equal(t, 1, m.FalseNegatives)
	assert.Equal(t, 0, m.TrueNegatives)
	assert.Equal(t, 4, m.TotalLabeled)
	assert.Equal(t, 1, m.ParseFailures)

	assert.InDelta(t, 0.6667, m.Precision, 1e-9)
	assert.InDelta(t, 0.6667, m.Recall, 1e-9)
	assert.InDelta(t, 0.6667, m.F1, 1e-9)
	assert.InDelta(t, 0.5, m.Accuracy, 1e-9)
	assert.InDelta(t, 0.75, m.Prevalence, 1e-9)
	assert.InDelta(t, 0.25, m.ParseFailureRate, 1e-9)
}

// TestComputeMetrics_ParseFailureAttribution tests the conservative
// attribution rule: uninterpretable output claims no detection, so it is a
// false negative on DETECTED ground truth and a true negative otherwise.
func TestComputeMetrics_ParseFailureAttribution(t *testing.T) {
	m := ComputeMetrics([]datatypes.Prediction{
		parseFailure(datatypes.LabelDetected),
		parseFailure(datatypes.LabelNotDetected),
	})

	assert.Equal(t, 1, m.FalseNegatives)
	assert.Equal(t, 1, m.TrueNegatives)
	assert.Equal(t, 0, m.TruePositives)
	assert.Equal(t, 0, m.FalsePositives)
	assert.Equal(t, 2, m.ParseFailures)
	assert.InDelta(t, 1.0, m.ParseFailureRate, 1e-9)
}

// TestComputeMetrics_UnlabeledExcluded tests that predictions without
// effective ground truth leave every counter untouched.
func TestComputeMetrics_UnlabeledExcluded(t *testing.T) {
	m := ComputeMetrics([]datatypes.Prediction{
		labeled(datatypes.LabelUnset, datatypes.LabelDetected),
		parseFailure(datatypes.LabelUnset),
		labeled(datatypes.LabelDetected, datatypes.LabelDetected),
	})

	assert.Equal(t, 1, m.TotalLabeled)
	assert.Equal(t, 1, m.TruePositives)
	assert.Equal(t, 0, m.ParseFailures, "unlabeled parse failures must not count")
}

// TestComputeMetrics_CorrectedLabelOverrides tests that a reviewer
// correction replaces the run-time ground truth in the matrix.
func TestComputeMetrics_CorrectedLabelOverrides(t *testing.T) {
	p := labeled(datatypes.LabelNotDetected, datatypes.LabelDetected)
	corrected := datatypes.LabelDetected
	p.CorrectedLabel = &corrected

	m := ComputeMetrics([]datatypes.Prediction{p})

	assert.Equal(t, 1, m.TruePositives, "corrected FP should become TP")
	assert.Equal(t, 0, m.FalsePositives)
}

// TestComputeMetrics_ZeroDenominators tests the 0-not-NaN policy on empty
// and degenerate inputs.
func TestComputeMetrics_ZeroDenominators(t *testing.T) {
	empty := ComputeMetrics(nil)
	assert.Zero(t, empty.Precision)
	assert.Zero(t, empty.Recall)
	assert.Zero(t, empty.F1)
	assert.Zero(t, empty.Accuracy)
	assert.Zero(t, empty.Prevalence)
	assert.Zero(t, empty.ParseFailureRate)

	// All-negative ground truth with all-negative decisions: no positives
	// anywhere, every rate with a positive denominator stays defined.
	allNeg := ComputeMetrics([]datatypes.Prediction{
		labeled(datatypes.LabelNotDetected, datatypes.LabelNotDetected),
		labeled(datatypes.LabelNotDetected, datatypes.LabelNotDetected),
	})
	assert.Zero(t, allNeg.Precision)
	assert.Zero(t, allNeg.Recall)
	assert.Zero(t, allNeg.F1)
	assert.InDelta(t, 1.0, allNeg.Accuracy, 1e-9)
}

// TestComputeMetrics_MatrixSumsToTotal tests the invariant
// TP+FP+FN+TN == TotalLabeled over a varied set.
func TestComputeMetrics_MatrixSumsToTotal(t *testing.T) {
	predictions := []datatypes.Prediction{
		labeled(datatypes.LabelDetected, datatypes.LabelDetected),
		labeled(datatypes.LabelDetected, datatypes.LabelNotDetected),
		labeled(datatypes.LabelNotDetected, datatypes.LabelDetected),
		labeled(datatypes.LabelNotDetected, datatypes.LabelNotDetected),
		parseFailure(datatypes.LabelDetected),
		parseFailure(datatypes.LabelNotDetected),
		labeled(datatypes.LabelUnset, datatypes.LabelDetected),
	}
	m := ComputeMetrics(predictions)

	require.Equal(t, 6, m.TotalLabeled)
	assert.Equal(t, m.TotalLabeled,
		m.TruePositives+m.FalsePositives+m.FalseNegatives+m.TrueNegatives)
}

// TestComputeMetrics_Idempotent tests that recomputation over the same
// input yields an identical summary.
func TestComputeMetrics_Idempotent(t *testing.T) {
	predictions := []datatypes.Prediction{
		labeled(datatypes.LabelDetected, datatypes.LabelDetected),
		labeled(datatypes.LabelNotDetected, datatypes.LabelDetected),
		parseFailure(datatypes.LabelDetected),
	}

	first := ComputeMetrics(predictions)
	second := ComputeMetrics(predictions)
	assert.Equal(t, first, second)
}

// TestComputeMetrics_Rounding tests 4-decimal rounding on a repeating
// fraction.
func TestComputeMetrics_Rounding(t *testing.T) {
	// One TP and two FP: precision 1/3.
	m := ComputeMetrics([]datatypes.Prediction{
		labeled(datatypes.LabelDetected, datatypes.LabelDetected),
		labeled(datatypes.LabelNotDetected, datatypes.LabelDetected),
		labeled(datatypes.LabelNotDetected, datatypes.LabelDetected),
	})
	assert.InDelta(t, 0.3333, m.Precision, 1e-9)
}
