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
	"errors"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration read from config.yaml.
type Config struct {
	// ServiceURL is the base URL of the prompt_eval service.
	ServiceURL string `yaml:"service_url"`
}

var config Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		configPath := "config.yaml"
		yamlFile, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// config.yaml is optional; env and defaults cover the rest.
		case err != nil:
			log.Fatalf("Error reading config.yaml: %v", err)
		default:
			if err := yaml.Unmarshal(yamlFile, &config); err != nil {
				log.Fatalf("Error parsing config.yaml: %v", err)
			}
		}
		if url := os.Getenv("VISIONEVAL_URL"); url != "" {
			config.ServiceURL = url
		}
		if config.ServiceURL == "" {
			config.ServiceURL = "http://localhost:12350"
		}
	}
}
