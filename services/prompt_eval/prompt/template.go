// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompt compiles a prompt version into the final instruction text
// sent to the inference provider.
//
// The "templating engine" is intentionally a single literal substring
// replacement of the detection-code placeholder plus two optional labeled
// sections. A general template language is not warranted for two fields.
package prompt

import (
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
)

// Compile renders the user instruction for one detection.
//
// # Description
//
// Replaces every occurrence of the detection-code placeholder in the user
// template, then appends the label policy and the decision rubric as
// labeled sections when the prompt version carries them. Rubric criteria
// are rendered in ascending Order.
//
// Inputs:
//   - pv: The prompt version to compile.
//   - detectionCode: Substituted for datatypes.DetectionCodePlaceholder.
//
// Outputs:
//   - string: The compiled user instruction.
func Compile(pv *datatypes.PromptVersion, detectionCode string) string {
	var b strings.Builder
	b.WriteString(strings.ReplaceAll(pv.UserTemplate, datatypes.DetectionCodePlaceholder, detectionCode))

	if policy := strings.TrimSpace(pv.LabelPolicy); policy != "" {
		b.WriteString("\n\nLabel policy:\n")
		b.WriteString(policy)
	}

	if len(pv.Rubric) > 0 {
		criteria := make([]datatypes.RubricCriterion, len(pv.Rubric))
		copy(criteria, pv.Rubric)
		sort.SliceStable(criteria, func(i, j int) bool {
			return criteria[i].Order < criteria[j].Order
		})
		b.WriteString("\n\nDecision rubric:\n")
		for i, c := range criteria {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("- ")
			b.WriteString(c.Text)
		}
	}

	return b.String()
}
