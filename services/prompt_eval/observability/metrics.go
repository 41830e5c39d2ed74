// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the prompt_eval
// service: run lifecycle counters, inference call outcomes, parse
// failures and run durations. Exposed via the /metrics endpoint.
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "prompt_eval"

var (
	// RunsTotal counts evaluation runs by terminal status.
	// Labels: status (started, completed)
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "runs_total",
		Help:      "Evaluation runs by lifecycle event",
	}, []string{"status"})

	// InferenceCallsTotal counts provider calls by outcome.
	// Labels: status (ok, provider_error)
	InferenceCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "inference_calls_total",
		Help:      "Inference provider calls by outcome",
	}, []string{"status"})

	// ParseFailuresTotal counts responses that failed the output contract,
	// including provider errors folded into parse failures.
	ParseFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "parse_failures_total",
		Help:      "Responses failing the detection output schema",
	})

	// RunDurationSeconds measures wall time of full runs.
	RunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "End-to-end evaluation run duration",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	// ActiveWorkers gauges currently in-flight executor workers.
	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "active_workers",
		Help:      "Run executor workers currently processing items",
	})

	// ApprovalsTotal counts approval gate decisions.
	// Labels: outcome (approved, threshold_failed, regression_failed)
	ApprovalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "approvals_total",
		Help:      "Approval gate decisions by outcome",
	}, []string{"outcome"})
)
