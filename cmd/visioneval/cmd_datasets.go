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

func runDatasetFingerprint(cmd *cobra.Command, args []string) {
	client := newAPIClient()

	var dataset struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Role        string `json:"role"`
		Size        int    `json:"size"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := client.doJSON("GET", "/v1/datasets/"+args[0], nil, &dataset); err != nil {
		log.Fatalf("Failed to fetch dataset: %v", err)
	}
	fmt.Printf("Dataset:     %s (%s, role %s)\n", dataset.ID, dataset.Name, dataset.Role)
	fmt.Printf("Size:        %d items\n", dataset.Size)
	fmt.Printf("Fingerprint: %s\n", dataset.Fingerprint)
}
