// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema validates raw model responses against the fixed
// detection-output contract.
//
// The contract is deliberately strict: exactly four keys, a closed decision
// enum, no extras. Extra keys signal prompt drift and must fail loudly
// instead of being silently ignored. Validation never panics past this
// boundary; every malformed input comes back as a parse-failure Result.
package schema

import (
	"encoding/json"
	"strings"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
)

// Result is the outcome of validating one raw response.
//
// ParseOK is false for any contract violation; Reason then describes the
// first violation found. The parsed fields are only meaningful when
// ParseOK is true.
type Result struct {
	ParseOK       bool
	Reason        string
	DetectionCode string
	Decision      datatypes.Label
	Confidence    float64
	Evidence      string
}

// responseKeys are the exact keys a detection response must carry.
var responseKeys = []string{"detection_code", "decision", "confidence", "evidence"}

// Validate checks a raw model response string against the detection-output
// contract.
//
// # Description
//
// Steps, in order:
//  1. Strip a leading/trailing fenced-code-block wrapper if present
//     (with or without a language tag).
//  2. Parse as JSON.
//  3. Require exactly the four contract keys with the right types, a
//     decision in {DETECTED, NOT_DETECTED} and a confidence in [0, 1].
//  4. Reject any additional keys.
//
// The detection_code content is accepted as-is; it is not cross-checked
// against the requesting detection. Mismatches stay visible downstream.
//
// Inputs:
//   - raw: The raw response text from the inference provider.
//
// Outputs:
//   - Result: ParseOK with parsed fields, or a parse failure with Reason.
func Validate(raw string) Result {
	stripped := StripFence(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripped), &fields); err != nil {
		return fail("malformed JSON: " + err.Error())
	}

	for key := range fields {
		known := false
		for _, want := range responseKeys {
			if key == want {
				known = true
				break
			}
		}
		if !known {
			return fail("unexpected key: " + key)
		}
	}
	for _, want := range responseKeys {
		if _, ok := fields[want]; !ok {
			return fail("missing key: " + want)
		}
	}

	var code string
	if err := json.Unmarshal(fields["detection_code"], &code); err != nil {
		return fail("detection_code is not a string")
	}
	var decision string
	if err := json.Unmarshal(fields["decision"], &decision); err != nil {
		return fail("decision is not a string")
	}
	if decision != string(datatypes.LabelDetected) && decision != string(datatypes.LabelNotDetected) {
		return fail("decision is not DETECTED or NOT_DETECTED: " + decision)
	}
	var confidence float64
	if err := json.Unmarshal(fields["confidence"], &confidence); err != nil {
		return fail("confidence is not numeric")
	}
	if confidence < 0 || confidence > 1 {
		return fail("confidence is outside [0, 1]")
	}
	var evidence string
	if err := json.Unmarshal(fields["evidence"], &evidence); err != nil {
		return fail("evidence is not a string")
	}

	return Result{
		ParseOK:       true,
		DetectionCode: code,
		Decision:      datatypes.Label(decision),
		Confidence:    confidence,
		Evidence:      evidence,
	}
}

func fail(reason string) Result {
	return Result{ParseOK: false, Reason: reason}
}

// StripFence removes a surrounding markdown code fence, a common LLM
// formatting artifact. Accepts an optional language tag after the opening
// backticks. Input without a fence is returned trimmed.
func StripFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// Drop a language tag like "json" on the opening line.
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		first := strings.TrimSpace(s[:idx])
		if first == "" || isLanguageTag(first) {
			s = s[idx+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// isLanguageTag reports whether the opening-fence remainder looks like a
// language tag rather than response content.
func isLanguageTag(s string) bool {
	if len(s) > 16 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
