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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	detectionCode   string
	promptVersionID string
	datasetID       string
	runID           string
	concurrency     int
	watchRun        bool

	rootCmd = &cobra.Command{
		Use:   "visioneval",
		Short: "A cli for the AleutianVision detection-prompt evaluation service",
		Long: `visioneval manages visual-detection prompt evaluation: start runs,
				watch their progress, inspect metrics and promote prompt versions
				through the approval gate.`,
	}

	// --- Runs ---
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Start an evaluation run of a prompt version against a dataset",
		Run:   runStartRun, // Defined in cmd_run.go
	}
	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "Inspect evaluation runs",
	}
	runsShowCmd = &cobra.Command{
		Use:   "show [run_id]",
		Short: "Show a run's status, progress and metrics",
		Args:  cobra.ExactArgs(1),
		Run:   runShowRun, // Defined in cmd_run.go
	}

	// --- Approval ---
	approveCmd = &cobra.Command{
		Use:   "approve",
		Short: "Promote a prompt version through the approval gate",
		Run:   runApprove, // Defined in cmd_approve.go
	}

	// --- Datasets ---
	datasetsCmd = &cobra.Command{
		Use:   "datasets",
		Short: "Inspect datasets",
	}
	datasetsFingerprintCmd = &cobra.Command{
		Use:   "fingerprint [dataset_id]",
		Short: "Show a dataset's current content fingerprint",
		Args:  cobra.ExactArgs(1),
		Run:   runDatasetFingerprint, // Defined in cmd_datasets.go
	}
)

func init() {
	runCmd.Flags().StringVar(&detectionCode, "detection", "", "Detection code (required)")
	runCmd.Flags().StringVar(&promptVersionID, "prompt", "", "Prompt version id (required)")
	runCmd.Flags().StringVar(&datasetID, "dataset", "", "Dataset id (required)")
	runCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Worker count, 0 for the service default")
	runCmd.Flags().BoolVar(&watchRun, "watch", false, "Poll progress until the run completes")
	_ = runCmd.MarkFlagRequired("detection")
	_ = runCmd.MarkFlagRequired("prompt")
	_ = runCmd.MarkFlagRequired("dataset")

	approveCmd.Flags().StringVar(&detectionCode, "detection", "", "Detection code (required)")
	approveCmd.Flags().StringVar(&promptVersionID, "prompt", "", "Candidate prompt version id (required)")
	approveCmd.Flags().StringVar(&runID, "run", "", "Completed held-out run id (required)")
	_ = approveCmd.MarkFlagRequired("detection")
	_ = approveCmd.MarkFlagRequired("prompt")
	_ = approveCmd.MarkFlagRequired("run")

	runsCmd.AddCommand(runsShowCmd)
	datasetsCmd.AddCommand(datasetsFingerprintCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(datasetsCmd)
}
