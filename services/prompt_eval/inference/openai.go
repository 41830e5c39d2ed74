// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// openaiSecretPath is the container secret fallback for the API key.
const openaiSecretPath = "/run/secrets/openai_api_key"

// OpenAIProvider sends vision chat completions through the OpenAI API.
//
// # Description
//
// The model and decoding parameters come from each call's PromptConfig
// (the run's frozen snapshot), not from the environment. A client-side
// rate limiter smooths request bursts from the run executor's worker pool
// so a high-concurrency run does not trip API rate limits immediately.
//
// # Thread Safety
//
// Safe for concurrent use.
type OpenAIProvider struct {
	client  *openai.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOpenAIProvider creates the provider from the environment.
//
// The API key is read from OPENAI_API_KEY, falling back to the Podman
// secret path. An unset key is a hard error: runs cannot be created
// without a working provider.
//
// Inputs:
//   - rps: Client-side request rate limit. 0 selects 3 req/s.
//   - logger: Structured logger. Nil selects slog.Default().
func NewOpenAIProvider(rps float64, logger *slog.Logger) (*OpenAIProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		raw, err := os.ReadFile(openaiSecretPath)
		if err != nil {
			return nil, errors.New("OPENAI_API_KEY environment variable not set and secret not found")
		}
		apiKey = strings.TrimSpace(string(raw))
		logger.Info("read the OpenAI API key from Podman secrets")
	}
	if rps <= 0 {
		rps = 3
	}

	cfg := openai.DefaultConfig(apiKey)
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(cfg),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger,
	}, nil
}

// Infer implements Provider.
//
// Outputs:
//   - string: Raw response text (untouched; schema validation is the
//     caller's job).
//   - error: *ProviderError for every ordinary failure.
func (p *OpenAIProvider) Infer(ctx context.Context, cfg PromptConfig, detectionCode string, imageRef string) (string, error) {
	imageURL, err := ResolveImageRef(imageRef)
	if err != nil {
		return "", &ProviderError{Op: "resolve_image", Err: err}
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return "", &ProviderError{Op: "chat_completion", Err: err}
	}

	req := openai.ChatCompletionRequest{
		Model: cfg.Decoding.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: cfg.SystemInstruction},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: cfg.UserInstruction},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    imageURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	}
	if cfg.Decoding.Temperature != nil {
		req.Temperature = *cfg.Decoding.Temperature
	}
	if cfg.Decoding.TopP != nil {
		req.TopP = *cfg.Decoding.TopP
	}
	if cfg.Decoding.MaxTokens != nil {
		req.MaxCompletionTokens = *cfg.Decoding.MaxTokens
	}

	p.logger.Debug("sending vision completion",
		"detection", detectionCode, "model", cfg.Decoding.Model)

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &ProviderError{Op: "chat_completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Op: "empty_response", Err: fmt.Errorf("no choices returned for model %s", cfg.Decoding.Model)}
	}

	p.logger.Debug("received vision completion",
		"detection", detectionCode, "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}
