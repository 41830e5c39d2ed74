// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Request and response types for the prompt_eval HTTP API.
//
// Validation uses go-playground/validator tags plus custom validators
// registered in init(). Handlers call Validate() before touching storage.
package datatypes

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxInstructionBytes bounds system/user instruction text.
	MaxInstructionBytes = 64 * 1024

	// MaxItemsPerDataset bounds a single dataset upload.
	MaxItemsPerDataset = 5000

	// MaxConcurrency is the upper bound on run executor workers.
	MaxConcurrency = 12

	// DefaultConcurrency is used when a run request leaves concurrency unset.
	DefaultConcurrency = 4
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// evalValidate is the validator instance for prompt_eval request types.
var evalValidate *validator.Validate

func init() {
	evalValidate = validator.New()
	_ = evalValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = evalValidate.RegisterValidation("hascodetoken", validateHasCodeToken)
}

// validateMaxBytes checks byte length (not rune count) against
// MaxInstructionBytes to bound memory per request.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxInstructionBytes
}

// validateHasCodeToken requires the user template to carry the detection
// code placeholder so compiled prompts always name their task.
func validateHasCodeToken(fl validator.FieldLevel) bool {
	return strings.Contains(fl.Field().String(), DetectionCodePlaceholder)
}

// =============================================================================
// Requests
// =============================================================================

// CreateDetectionRequest creates a new detection task.
type CreateDetectionRequest struct {
	Code        string            `json:"code" validate:"required,min=1,max=128"`
	DisplayName string            `json:"display_name" validate:"required,max=256"`
	Description string            `json:"description" validate:"max=2048"`
	LabelPolicy string            `json:"label_policy" validate:"maxbytes"`
	Rubric      []RubricCriterion `json:"rubric" validate:"dive"`
	Thresholds  Thresholds        `json:"thresholds"`
}

// Validate checks the request against its tags.
func (r *CreateDetectionRequest) Validate() error {
	return evalValidate.Struct(r)
}

// CreatePromptVersionRequest snapshots a new prompt version for a detection.
type CreatePromptVersionRequest struct {
	Name              string         `json:"name" validate:"max=256"`
	SystemInstruction string         `json:"system_instruction" validate:"required,maxbytes"`
	UserTemplate      string         `json:"user_template" validate:"required,maxbytes,hascodetoken"`
	Decoding          DecodingParams `json:"decoding"`
}

// Validate checks the request against its tags plus decoding bounds.
func (r *CreatePromptVersionRequest) Validate() error {
	if err := evalValidate.Struct(r); err != nil {
		return err
	}
	return validateDecoding(&r.Decoding)
}

// decodingBounds mirrors what the inference backends accept.
type decodingBounds struct {
	Model       string   `validate:"required,max=128"`
	Temperature *float32 `validate:"omitempty,gte=0,lte=2"`
	TopP        *float32 `validate:"omitempty,gte=0,lte=1"`
	MaxTokens   *int     `validate:"omitempty,gt=0,lte=32768"`
}

func validateDecoding(d *DecodingParams) error {
	return evalValidate.Struct(&decodingBounds{
		Model:       d.Model,
		Temperature: d.Temperature,
		TopP:        d.TopP,
		MaxTokens:   d.MaxTokens,
	})
}

// DatasetItemInput is one item of a dataset create/replace request.
type DatasetItemInput struct {
	ID          string `json:"id" validate:"max=128"`
	ImageRef    string `json:"image_ref" validate:"required,max=4096"`
	Description string `json:"description" validate:"max=2048"`
	GroundTruth string `json:"ground_truth" validate:"omitempty,oneof=DETECTED NOT_DETECTED"`
}

// CreateDatasetRequest creates a dataset with an initial item list.
type CreateDatasetRequest struct {
	DetectionCode string             `json:"detection_code" validate:"required"`
	Name          string             `json:"name" validate:"required,max=256"`
	Role          string             `json:"role" validate:"required,oneof=GOLDEN ITERATION HELD_OUT_EVAL CUSTOM"`
	Items         []DatasetItemInput `json:"items" validate:"max=5000,dive"`
}

// Validate checks the request against its tags.
func (r *CreateDatasetRequest) Validate() error {
	return evalValidate.Struct(r)
}

// ReplaceItemsRequest replaces a dataset's item list. The dataset's size
// and fingerprint are recomputed from the new list.
type ReplaceItemsRequest struct {
	Items []DatasetItemInput `json:"items" validate:"required,min=1,max=5000,dive"`
}

// Validate checks the request against its tags.
func (r *ReplaceItemsRequest) Validate() error {
	return evalValidate.Struct(r)
}

// StartRunRequest starts an evaluation run. Concurrency 0 selects
// DefaultConcurrency; values are clamped to [1, MaxConcurrency].
type StartRunRequest struct {
	DetectionCode   string `json:"detection_code" validate:"required"`
	PromptVersionID string `json:"prompt_version_id" validate:"required"`
	DatasetID       string `json:"dataset_id" validate:"required"`
	Concurrency     int    `json:"concurrency" validate:"gte=0,lte=12"`
}

// Validate checks the request against its tags.
func (r *StartRunRequest) Validate() error {
	return evalValidate.Struct(r)
}

// OptionalLabel is a correction label field that distinguishes three JSON
// states: absent (Set false), explicit null (Set true, Value nil), and a
// label string (Set true, Value non-nil). Absent leaves an existing
// correction alone; null clears it.
type OptionalLabel struct {
	Set   bool
	Value *string
}

// UnmarshalJSON records presence before decoding the value, so an absent
// field (never unmarshaled) stays distinguishable from an explicit null.
func (o *OptionalLabel) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

// MarshalJSON round-trips the tri-state back to JSON; an unset field
// marshals as null, same as an explicit clear.
func (o OptionalLabel) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// CorrectionRequest applies a reviewer edit to one prediction.
//
// CorrectedLabel semantics: an explicit null clears an existing
// correction, an absent field leaves it alone, and a string must be
// DETECTED or NOT_DETECTED. Propagate copies the corrected label into the
// source dataset item's ground truth, which is only permitted for
// ITERATION datasets.
type CorrectionRequest struct {
	CorrectedLabel OptionalLabel `json:"corrected_label" validate:"-"`
	ErrorTag       *string       `json:"error_tag" validate:"omitempty,oneof=FALSE_POSITIVE FALSE_NEGATIVE BAD_LABEL AMBIGUOUS PARSE_FAILURE"`
	ReviewerNote   *string       `json:"reviewer_note" validate:"omitempty,max=4096"`
	Propagate      bool          `json:"propagate"`
}

// Validate checks the request against its tags; the label enum is checked
// by hand since the tri-state field hides its value from struct tags.
func (r *CorrectionRequest) Validate() error {
	if err := evalValidate.Struct(r); err != nil {
		return err
	}
	if r.CorrectedLabel.Value != nil {
		return evalValidate.Var(*r.CorrectedLabel.Value, "oneof=DETECTED NOT_DETECTED")
	}
	return nil
}

// ApproveRequest asks the approval gate to promote a prompt version based
// on a completed held-out evaluation run.
type ApproveRequest struct {
	PromptVersionID string `json:"prompt_version_id" validate:"required"`
	RunID           string `json:"run_id" validate:"required"`
}

// Validate checks the request against its tags.
func (r *ApproveRequest) Validate() error {
	return evalValidate.Struct(r)
}

// FeedbackRequest appends an accepted/rejected prompt suggestion to a
// run's feedback log.
type FeedbackRequest struct {
	Suggestion string `json:"suggestion" validate:"required,max=8192"`
	Accepted   bool   `json:"accepted"`
	Note       string `json:"note" validate:"max=2048"`
}

// Validate checks the request against its tags.
func (r *FeedbackRequest) Validate() error {
	return evalValidate.Struct(r)
}
