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
	"math"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
)

// ComputeMetrics converts a run's predictions into a confusion-matrix
// summary.
//
// # Description
//
// Pure and deterministic: no side effects, safe to call repeatedly. Used
// both at run completion and after every HIL correction (corrections
// never patch the matrix incrementally; the summary is always rebuilt
// from the full prediction list to avoid drift).
//
// Only predictions whose effective ground truth (corrected label if set,
// else the run-time ground truth) is DETECTED or NOT_DETECTED are counted.
//
// Parse-failure attribution is deliberate and asymmetric: an
// uninterpretable response is treated as "no detection claimed", so it
// counts as a false negative on DETECTED ground truth and a true negative
// on NOT_DETECTED ground truth. Changing this would silently shift every
// historical metrics comparison.
//
// All rates are rounded to 4 decimal places and are 0, never NaN, on an
// empty denominator.
func ComputeMetrics(predictions []datatypes.Prediction) datatypes.MetricsSummary {
	var m datatypes.MetricsSummary
	detectedTruth := 0

	for i := range predictions {
		p := &predictions[i]
		truth := p.EffectiveGroundTruth()
		if !truth.IsSet() {
			continue
		}
		m.TotalLabeled++
		if truth == datatypes.LabelDetected {
			detectedTruth++
		}

		if !p.ParseOK || p.Decision == nil {
			m.ParseFailures++
			if truth == datatypes.LabelDetected {
				m.FalseNegatives++
			} else {
				m.TrueNegatives++
			}
			continue
		}

		switch {
		case truth == datatypes.LabelDetected && *p.Decision == datatypes.LabelDetected:
			m.TruePositives++
		case truth == datatypes.LabelNotDetected && *p.Decision == datatypes.LabelDetected:
			m.FalsePositives++
		case truth == datatypes.LabelDetected && *p.Decision == datatypes.LabelNotDetected:
			m.FalseNegatives++
		default:
			m.TrueNegatives++
		}
	}

	m.Precision = round4(ratio(float64(m.TruePositives), float64(m.TruePositives+m.FalsePositives)))
	m.Recall = round4(ratio(float64(m.TruePositives), float64(m.TruePositives+m.FalseNegatives)))
	m.F1 = round4(ratio(2*m.Precision*m.Recall, m.Precision+m.Recall))
	m.Accuracy = round4(ratio(float64(m.TruePositives+m.TrueNegatives), float64(m.TotalLabeled)))
	m.Prevalence = round4(ratio(float64(detectedTruth), float64(m.TotalLabeled)))
	m.ParseFailureRate = round4(ratio(float64(m.ParseFailures), float64(m.TotalLabeled)))

	return m
}

// ratio returns num/den, or 0 when the denominator is 0.
func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
