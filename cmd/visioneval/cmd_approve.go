// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

func runApprove(cmd *cobra.Command, args []string) {
	client := newAPIClient()

	var result struct {
		Approved  bool `json:"approved"`
		Detection *struct {
			Code              string `json:"code"`
			ApprovedVersionID string `json:"approved_version_id"`
		} `json:"detection"`
		Rejection *struct {
			Check    string `json:"check"`
			Failures []struct {
				Metric   string  `json:"metric"`
				Required float64 `json:"required"`
				Actual   float64 `json:"actual"`
			} `json:"failures"`
			Regression *struct {
				Metric    string  `json:"metric"`
				Prior     float64 `json:"prior"`
				Candidate float64 `json:"candidate"`
			} `json:"regression"`
		} `json:"rejection"`
	}
	err := client.doJSON("POST", "/v1/detections/"+detectionCode+"/approve", map[string]any{
		"prompt_version_id": promptVersionID,
		"run_id":            runID,
	}, &result)
	if err != nil {
		log.Fatalf("Approval request failed: %v", err)
	}

	if result.Approved {
		fmt.Printf("APPROVED: detection %s now serves prompt version %s\n",
			result.Detection.Code, result.Detection.ApprovedVersionID)
		return
	}

	fmt.Printf("REJECTED on check %q\n", result.Rejection.Check)
	for _, f := range result.Rejection.Failures {
		fmt.Printf("  %s: required >= %.4f, got %.4f\n", f.Metric, f.Required, f.Actual)
	}
	if r := result.Rejection.Regression; r != nil {
		fmt.Printf("  %s regressed: prior approved version scored %.4f, candidate %.4f\n",
			r.Metric, r.Prior, r.Candidate)
	}
}
