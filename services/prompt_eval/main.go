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
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianVision/pkg/logging"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/approval"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/engine"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/hil"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/inference"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/routes"
	"github.com/AleutianAI/AleutianVision/services/prompt_eval/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "aleutian-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("prompt-eval-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func main() {
	port := os.Getenv("PROMPT_EVAL_PORT")
	if port == "" {
		port = "12350"
	}
	dataDir := os.Getenv("PROMPT_EVAL_DATA_DIR")
	if dataDir == "" {
		dataDir = "/var/lib/aleutianvision/prompt_eval"
	}

	logger, err := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		LogDir:  os.Getenv("LOG_DIR"),
		Service: "prompt_eval",
		JSON:    true,
	})
	if err != nil {
		log.Fatalf("failed to initialize logging: %v", err)
	}
	defer logger.Close()
	slog.SetDefault(logger.Logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	db, err := storage.Open(storage.DefaultConfig(dataDir))
	if err != nil {
		log.Fatalf("failed to open badger database at %s: %v", dataDir, err)
	}
	defer db.Close()
	store := storage.NewStore(db, logger.Logger)

	rps := 2.0
	if v := os.Getenv("INFERENCE_RPS"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			log.Fatalf("invalid INFERENCE_RPS %q", v)
		}
		rps = parsed
	}
	provider, err := inference.NewOpenAIProvider(rps, logger.Logger)
	if err != nil {
		log.Fatalf("failed to initialize inference provider: %v", err)
	}

	var sinks []engine.MetricsSink
	influxSink, err := storage.NewInfluxSinkFromEnv(logger.Logger)
	if err != nil {
		log.Fatalf("failed to initialize InfluxDB sink: %v", err)
	}
	if influxSink != nil {
		defer influxSink.Close()
		sinks = append(sinks, influxSink)
		slog.Info("InfluxDB metrics-history sink enabled")
	}

	executor := engine.NewExecutor(store, provider, logger.Logger, sinks...)
	corrections := hil.NewService(store, logger.Logger)
	gate := approval.NewGate(store, executor, logger.Logger)

	router := gin.Default()
	router.Use(otelgin.Middleware("prompt-eval-service"))
	routes.SetupRoutes(router, store, executor, corrections, gate)

	slog.Info("starting the prompt_eval server", "port", port, "data_dir", dataDir)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
