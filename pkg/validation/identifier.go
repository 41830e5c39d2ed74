// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided identifiers that end up
// embedded in storage keys or prompt text. Using these validators prevents
// key-delimiter injection and keeps identifiers portable across exports.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// codePattern matches valid detection codes.
// Allows: lowercase letters, digits, underscores, hyphens
// Max length: 64 characters
var codePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,63}$`)

// itemIDPattern matches valid dataset item ids. Same alphabet as detection
// codes plus dots, since item ids are often derived from file names.
// Max length: 128 characters
var itemIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._\-]{0,127}$`)

// ValidateDetectionCode validates a detection code before it is used as a
// storage key segment.
//
// Valid codes:
//   - 1-64 characters
//   - Lowercase letters a-z
//   - Digits 0-9
//   - Underscores (_) and hyphens (-)
//
// Returns an error if the code is invalid.
//
// Example:
//
//	if err := validation.ValidateDetectionCode(code); err != nil {
//	    return fmt.Errorf("invalid detection code: %w", err)
//	}
//	// Safe to use as a key segment
func ValidateDetectionCode(code string) error {
	if code == "" {
		return fmt.Errorf("detection code cannot be empty")
	}

	if !codePattern.MatchString(code) {
		return fmt.Errorf("invalid detection code: %q (must be 1-64 lowercase alphanumeric chars, underscores, or hyphens)", code)
	}

	return nil
}

// ValidateItemID validates a dataset item id before it is used as a storage
// key segment. Returns an error if the id is invalid.
func ValidateItemID(id string) error {
	if id == "" {
		return fmt.Errorf("item id cannot be empty")
	}

	if !itemIDPattern.MatchString(id) {
		return fmt.Errorf("invalid item id: %q (must be 1-128 alphanumeric chars, dots, underscores, or hyphens)", id)
	}

	return nil
}

// ValidateItemIDs validates multiple item ids.
// Returns an error listing all invalid ids if any fail validation.
func ValidateItemIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateItemID(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid item ids: %v", invalid)
	}
	return nil
}

// SanitizeDetectionCode normalizes and validates a detection code.
// Returns the lowercase code if valid, or an error if invalid.
//
// Use this on user-facing surfaces that should tolerate case and
// surrounding whitespace:
//
//	code, err := validation.SanitizeDetectionCode(userInput)
//	if err != nil {
//	    return err
//	}
//	// code is lowercase and validated
func SanitizeDetectionCode(code string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(code))
	if err := ValidateDetectionCode(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
