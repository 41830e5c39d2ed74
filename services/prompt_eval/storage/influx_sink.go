// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
)

// InfluxSink records per-run metrics summaries as time-series points, one
// point per completed run. It gives operators a metrics history across
// prompt iterations without querying Badger run by run.
//
// # Thread Safety
//
// Safe for concurrent use; the blocking write API serializes internally.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *slog.Logger
}

// NewInfluxSinkFromEnv builds the sink from INFLUXDB_URL, INFLUXDB_TOKEN,
// INFLUXDB_ORG and INFLUXDB_BUCKET.
//
// Outputs:
//   - *InfluxSink: nil with a nil error when INFLUXDB_URL is unset; the
//     sink is optional and absence is not a failure.
//   - error: Non-nil when the URL is set but the token is missing.
func NewInfluxSinkFromEnv(logger *slog.Logger) (*InfluxSink, error) {
	url := os.Getenv("INFLUXDB_URL")
	if url == "" {
		return nil, nil
	}
	token := os.Getenv("INFLUXDB_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("INFLUXDB_URL is set but INFLUXDB_TOKEN is missing")
	}
	org := os.Getenv("INFLUXDB_ORG")
	if org == "" {
		org = "aleutian-vision"
	}
	bucket := os.Getenv("INFLUXDB_BUCKET")
	if bucket == "" {
		bucket = "prompt-eval"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := influxdb2.NewClient(url, token)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		logger:   logger,
	}, nil
}

// RecordRunMetrics writes one "run_metrics" point tagged by detection,
// prompt version and dataset, timestamped at run completion.
func (s *InfluxSink) RecordRunMetrics(ctx context.Context, run *datatypes.Run) error {
	if run.Metrics == nil || run.CompletedAt == nil {
		return fmt.Errorf("run %s has no completed metrics to record", run.ID)
	}
	m := run.Metrics

	p := influxdb2.NewPoint(
		"run_metrics",
		map[string]string{
			"detection":      run.DetectionCode,
			"prompt_version": run.PromptVersionID,
			"dataset":        run.DatasetID,
		},
		map[string]interface{}{
			"run_id":             run.ID,
			"precision":          m.Precision,
			"recall":             m.Recall,
			"f1":                 m.F1,
			"accuracy":           m.Accuracy,
			"prevalence":         m.Prevalence,
			"parse_failure_rate": m.ParseFailureRate,
			"true_positives":     m.TruePositives,
			"false_positives":    m.FalsePositives,
			"false_negatives":    m.FalseNegatives,
			"true_negatives":     m.TrueNegatives,
			"total_labeled":      m.TotalLabeled,
			"parse_failures":     m.ParseFailures,
		},
		*run.CompletedAt,
	)

	if err := s.writeAPI.WritePoint(ctx, p); err != nil {
		return fmt.Errorf("write run metrics point: %w", err)
	}
	s.logger.Debug("run metrics recorded to influxdb", "run_id", run.ID, "f1", m.F1)
	return nil
}

// Close releases the underlying InfluxDB client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
