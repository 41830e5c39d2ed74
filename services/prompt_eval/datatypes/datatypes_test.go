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
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestComputeFingerprint tests determinism and sensitivity of the dataset
// content hash.
func TestComputeFingerprint(t *testing.T) {
	items := []DatasetItem{
		{ID: "a", GroundTruth: LabelDetected},
		{ID: "b", GroundTruth: LabelNotDetected},
	}

	first := ComputeFingerprint(items)
	assert.Len(t, first, 16)
	assert.Equal(t, strings.ToLower(first), first)
	assert.Equal(t, first, ComputeFingerprint(items), "same input, same hash")

	// Label changes, item id changes and order changes all move the hash.
	relabeled := []DatasetItem{
		{ID: "a", GroundTruth: LabelDetected},
		{ID: "b", GroundTruth: LabelDetected},
	}
	assert.NotEqual(t, first, ComputeFingerprint(relabeled))

	reordered := []DatasetItem{items[1], items[0]}
	assert.NotEqual(t, first, ComputeFingerprint(reordered))

	// Fields outside (id, label) do not participate.
	decorated := []DatasetItem{
		{ID: "a", GroundTruth: LabelDetected, ImageRef: "changed", Description: "x"},
		{ID: "b", GroundTruth: LabelNotDetected},
	}
	assert.Equal(t, first, ComputeFingerprint(decorated))
}

// TestLabelIsSet tests the unset sentinel.
func TestLabelIsSet(t *testing.T) {
	assert.True(t, LabelDetected.IsSet())
	assert.True(t, LabelNotDetected.IsSet())
	assert.False(t, LabelUnset.IsSet())
	assert.False(t, Label("MAYBE").IsSet())
}

// TestValidSplitRole tests the closed role enum.
func TestValidSplitRole(t *testing.T) {
	for _, role := range []SplitRole{SplitGolden, SplitIteration, SplitHeldOutEval, SplitCustom} {
		assert.True(t, ValidSplitRole(role))
	}
	assert.False(t, ValidSplitRole(SplitRole("TRAINING")))
	assert.False(t, ValidSplitRole(SplitRole("")))
}

// TestEffectiveGroundTruth tests correction override semantics.
func TestEffectiveGroundTruth(t *testing.T) {
	p := Prediction{GroundTruth: LabelNotDetected}
	assert.Equal(t, LabelNotDetected, p.EffectiveGroundTruth())

	corrected := LabelDetected
	p.CorrectedLabel = &corrected
	assert.Equal(t, LabelDetected, p.EffectiveGroundTruth())

	unset := LabelUnset
	p.CorrectedLabel = &unset
	assert.Equal(t, LabelNotDetected, p.EffectiveGroundTruth(),
		"an unset corrected label must not mask the run-time ground truth")
}

// =============================================================================
// Request Validation
// =============================================================================

func TestCreateDetectionRequestValidation(t *testing.T) {
	valid := CreateDetectionRequest{Code: "diving_board", DisplayName: "Diving board"}
	assert.NoError(t, valid.Validate())

	missingCode := CreateDetectionRequest{DisplayName: "x"}
	assert.Error(t, missingCode.Validate())

	oversized := valid
	oversized.LabelPolicy = strings.Repeat("a", MaxInstructionBytes+1)
	assert.Error(t, oversized.Validate())
}

func TestCreatePromptVersionRequestValidation(t *testing.T) {
	valid := CreatePromptVersionRequest{
		SystemInstruction: "You are a visual classifier.",
		UserTemplate:      "Decide {{DETECTION_CODE}} for this image.",
		Decoding:          DecodingParams{Model: "gpt-4o"},
	}
	require.NoError(t, valid.Validate())

	noToken := valid
	noToken.UserTemplate = "Decide for this image."
	assert.Error(t, noToken.Validate(), "template without the code placeholder must fail")

	noModel := valid
	noModel.Decoding.Model = ""
	assert.Error(t, noModel.Validate())

	badTemp := valid
	temp := float32(3.5)
	badTemp.Decoding.Temperature = &temp
	assert.Error(t, badTemp.Validate())

	okTemp := valid
	temp2 := float32(0.2)
	okTemp.Decoding.Temperature = &temp2
	assert.NoError(t, okTemp.Validate())
}

func TestCreateDatasetRequestValidation(t *testing.T) {
	valid := CreateDatasetRequest{
		DetectionCode: "diving_board",
		Name:          "iteration set",
		Role:          "ITERATION",
		Items: []DatasetItemInput{
			{ImageRef: "https://img.test/a.jpg", GroundTruth: "DETECTED"},
			{ImageRef: "https://img.test/b.jpg"},
		},
	}
	require.NoError(t, valid.Validate())

	badRole := valid
	badRole.Role = "TRAINING"
	assert.Error(t, badRole.Validate())

	badLabel := valid
	badLabel.Items = []DatasetItemInput{{ImageRef: "r", GroundTruth: "MAYBE"}}
	assert.Error(t, badLabel.Validate())
}

func TestCorrectionRequestValidation(t *testing.T) {
	detected := "DETECTED"
	valid := CorrectionRequest{
		CorrectedLabel: OptionalLabel{Set: true, Value: &detected},
		Propagate:      true,
	}
	require.NoError(t, valid.Validate())

	// Note-only edit with no label field at all is fine.
	note := "mislabeled frame"
	noteOnly := CorrectionRequest{ReviewerNote: &note}
	assert.NoError(t, noteOnly.Validate())

	bad := "MAYBE"
	badLabel := CorrectionRequest{CorrectedLabel: OptionalLabel{Set: true, Value: &bad}}
	assert.Error(t, badLabel.Validate())

	badTag := "WRONG_REASON"
	invalid := CorrectionRequest{ErrorTag: &badTag}
	assert.Error(t, invalid.Validate())
}

// TestCorrectionRequestLabelTriState tests that decoding distinguishes an
// absent corrected_label from an explicit null and from a value.
func TestCorrectionRequestLabelTriState(t *testing.T) {
	var absent CorrectionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"error_tag":"AMBIGUOUS"}`), &absent))
	assert.False(t, absent.CorrectedLabel.Set)

	var cleared CorrectionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"corrected_label":null}`), &cleared))
	assert.True(t, cleared.CorrectedLabel.Set)
	assert.Nil(t, cleared.CorrectedLabel.Value)

	var set CorrectionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"corrected_label":"DETECTED"}`), &set))
	assert.True(t, set.CorrectedLabel.Set)
	require.NotNil(t, set.CorrectedLabel.Value)
	assert.Equal(t, "DETECTED", *set.CorrectedLabel.Value)

	var notAString CorrectionRequest
	assert.Error(t, json.Unmarshal([]byte(`{"corrected_label":7}`), &notAString))
}

func TestStartRunRequestValidation(t *testing.T) {
	valid := StartRunRequest{DetectionCode: "d", PromptVersionID: "p", DatasetID: "ds"}
	assert.NoError(t, valid.Validate())

	tooMany := valid
	tooMany.Concurrency = 13
	assert.Error(t, tooMany.Validate())

	negative := valid
	negative.Concurrency = -1
	assert.Error(t, negative.Validate())
}
