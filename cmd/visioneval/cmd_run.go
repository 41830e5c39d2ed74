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
	"time"

	"github.com/spf13/cobra"
)

// runStatus mirrors the service's run representation, limited to the
// fields the CLI renders.
type runStatus struct {
	ID                 string          `json:"id"`
	DetectionCode      string          `json:"detection_code"`
	PromptVersionID    string          `json:"prompt_version_id"`
	DatasetID          string          `json:"dataset_id"`
	DatasetFingerprint string          `json:"dataset_fingerprint"`
	Status             string          `json:"status"`
	TotalImages        int             `json:"total_images"`
	ProcessedImages    int             `json:"processed_images"`
	Metrics            *metricsSummary `json:"metrics"`
}

type metricsSummary struct {
	TruePositives    int     `json:"true_positives"`
	FalsePositives   int     `json:"false_positives"`
	FalseNegatives   int     `json:"false_negatives"`
	TrueNegatives    int     `json:"true_negatives"`
	TotalLabeled     int     `json:"total_labeled"`
	ParseFailures    int     `json:"parse_failures"`
	Precision        float64 `json:"precision"`
	Recall           float64 `json:"recall"`
	F1               float64 `json:"f1"`
	Accuracy         float64 `json:"accuracy"`
	Prevalence       float64 `json:"prevalence"`
	ParseFailureRate float64 `json:"parse_failure_rate"`
}

func printRun(run *runStatus) {
	fmt.Printf("Run:        %s\n", run.ID)
	fmt.Printf("Detection:  %s (prompt %s)\n", run.DetectionCode, run.PromptVersionID)
	fmt.Printf("Dataset:    %s (fingerprint %s)\n", run.DatasetID, run.DatasetFingerprint)
	fmt.Printf("Status:     %s (%d/%d images)\n", run.Status, run.ProcessedImages, run.TotalImages)
	if run.Metrics != nil {
		m := run.Metrics
		fmt.Printf("Metrics:    precision=%.4f recall=%.4f f1=%.4f accuracy=%.4f\n",
			m.Precision, m.Recall, m.F1, m.Accuracy)
		fmt.Printf("            tp=%d fp=%d fn=%d tn=%d labeled=%d\n",
			m.TruePositives, m.FalsePositives, m.FalseNegatives, m.TrueNegatives, m.TotalLabeled)
		fmt.Printf("            parse_failures=%d (rate %.4f), prevalence=%.4f\n",
			m.ParseFailures, m.ParseFailureRate, m.Prevalence)
	}
}

func runStartRun(cmd *cobra.Command, args []string) {
	client := newAPIClient()

	var started struct {
		RunID       string `json:"run_id"`
		TotalImages int    `json:"total_images"`
		Concurrency int    `json:"concurrency"`
	}
	err := client.doJSON("POST", "/v1/runs", map[string]any{
		"detection_code":    detectionCode,
		"prompt_version_id": promptVersionID,
		"dataset_id":        datasetID,
		"concurrency":       concurrency,
	}, &started)
	if err != nil {
		log.Fatalf("Failed to start run: %v", err)
	}
	fmt.Printf("Started run %s (%d images, %d workers)\n",
		started.RunID, started.TotalImages, started.Concurrency)

	if !watchRun {
		fmt.Printf("Poll with: visioneval runs show %s\n", started.RunID)
		return
	}
	if err := watchUntilComplete(client, started.RunID); err != nil {
		log.Fatalf("Failed while watching run: %v", err)
	}
}

// watchUntilComplete polls the run every two seconds and prints progress
// until the service reports completion.
func watchUntilComplete(client *apiClient, id string) error {
	for {
		var run runStatus
		if err := client.doJSON("GET", "/v1/runs/"+id, nil, &run); err != nil {
			return err
		}
		fmt.Printf("  %d/%d images processed\n", run.ProcessedImages, run.TotalImages)
		if run.Status == "completed" {
			fmt.Println()
			printRun(&run)
			return nil
		}
		time.Sleep(2 * time.Second)
	}
}

func runShowRun(cmd *cobra.Command, args []string) {
	client := newAPIClient()
	var run runStatus
	if err := client.doJSON("GET", "/v1/runs/"+args[0], nil, &run); err != nil {
		log.Fatalf("Failed to fetch run: %v", err)
	}
	printRun(&run)
}
