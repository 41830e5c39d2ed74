// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inference defines the opaque inference provider boundary and the
// OpenAI-backed vision adapter.
//
// Providers must not panic past their boundary: ordinary failures (network,
// quota, malformed API responses) come back as a typed *ProviderError that
// the run executor folds into a parse-failure prediction.
package inference

import (
	"context"
	"fmt"

	"github.com/AleutianAI/AleutianVision/services/prompt_eval/datatypes"
)

// PromptConfig carries the compiled prompt and decoding parameters for one
// inference call. It is built from a Run's frozen prompt snapshot, never
// from the live PromptVersion.
type PromptConfig struct {
	SystemInstruction string
	UserInstruction   string
	Decoding          datatypes.DecodingParams
}

// Provider is the opaque inference backend.
//
// Infer sends one detection prompt with one image and returns the raw text
// response. detectionCode is informational (logging, request tagging);
// the compiled instruction already embeds it.
type Provider interface {
	Infer(ctx context.Context, cfg PromptConfig, detectionCode string, imageRef string) (string, error)
}

// ProviderError is the typed failure a provider returns for ordinary
// errors. The run executor records err.Error() as the prediction's raw
// response and marks the item a parse failure.
type ProviderError struct {
	Op  string // "resolve_image", "chat_completion", "empty_response"
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("inference %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
