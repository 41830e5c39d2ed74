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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Label is a ground-truth or predicted decision value. The empty string
// means "unset"; unset ground truth excludes an item from all metrics.
type Label string

const (
	LabelDetected    Label = "DETECTED"
	LabelNotDetected Label = "NOT_DETECTED"
	LabelUnset       Label = ""
)

// IsSet reports whether the label carries a decision.
func (l Label) IsSet() bool {
	return l == LabelDetected || l == LabelNotDetected
}

// SplitRole tags a dataset with its place in the evaluation workflow.
type SplitRole string

const (
	// SplitGolden is the frozen regression gate set. Corrections must not
	// propagate into it.
	SplitGolden SplitRole = "GOLDEN"

	// SplitIteration is the mutable tuning set. HIL corrections may
	// propagate back into item ground truth.
	SplitIteration SplitRole = "ITERATION"

	// SplitHeldOutEval is the protected final-evaluation set. Callers must
	// not use it for iterative prompt tuning.
	SplitHeldOutEval SplitRole = "HELD_OUT_EVAL"

	// SplitCustom is unconstrained.
	SplitCustom SplitRole = "CUSTOM"
)

// ValidSplitRole reports whether s is one of the four known roles.
func ValidSplitRole(s SplitRole) bool {
	switch s {
	case SplitGolden, SplitIteration, SplitHeldOutEval, SplitCustom:
		return true
	}
	return false
}

// DatasetItem is one labeled example.
//
// ImageRef is an inline base64 data URI, a local file path, or a remote
// http(s) URL; resolution to bytes is the inference adapter's job.
type DatasetItem struct {
	ID          string    `json:"id"`
	DatasetID   string    `json:"dataset_id"`
	ImageRef    string    `json:"image_ref"`
	Description string    `json:"description,omitempty"`
	GroundTruth Label     `json:"ground_truth,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Dataset is a named, versioned collection of items for one Detection.
//
// # Description
//
// Fingerprint is a drift-detection hash over the ordered (item id, label)
// pairs; it is recomputed whenever items change and snapshotted onto each
// Run started against the dataset. It is not a security primitive.
type Dataset struct {
	ID            string    `json:"id"`
	DetectionCode string    `json:"detection_code"`
	Name          string    `json:"name"`
	Role          SplitRole `json:"role"`
	Size          int       `json:"size"`
	Fingerprint   string    `json:"fingerprint"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// fingerprintEntry is the serialized shape hashed into a dataset fingerprint.
type fingerprintEntry struct {
	ItemID string `json:"item_id"`
	Label  string `json:"label"`
}

// ComputeFingerprint returns the content fingerprint for an ordered item
// list: the first 16 hex characters of SHA-256 over the JSON-serialized
// (item_id, label) pairs.
//
// Inputs:
//   - items: Dataset items in their stored order.
//
// Outputs:
//   - string: Lowercase hex fingerprint, 16 characters.
func ComputeFingerprint(items []DatasetItem) string {
	entries := make([]fingerprintEntry, 0, len(items))
	for _, it := range items {
		entries = append(entries, fingerprintEntry{ItemID: it.ID, Label: string(it.GroundTruth)})
	}
	// Marshal of a slice of flat structs cannot fail.
	raw, err := json.Marshal(entries)
	if err != nil {
		panic(fmt.Sprintf("fingerprint marshal: %v", err))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}
