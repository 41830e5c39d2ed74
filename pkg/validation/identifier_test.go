// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"
)

func TestValidateDetectionCode(t *testing.T) {
	valid := []string{
		"diving_board",
		"pool-fence",
		"cam2",
		"a",
		strings.Repeat("x", 64),
	}
	for _, code := range valid {
		if err := ValidateDetectionCode(code); err != nil {
			t.Errorf("ValidateDetectionCode(%q) = %v, want nil", code, err)
		}
	}

	invalid := []string{
		"",
		"Diving_Board",      // uppercase
		"diving board",      // space
		"det:1",             // key delimiter
		"_leading",          // must start alphanumeric
		"../det",            // path chars
		strings.Repeat("x", 65),
	}
	for _, code := range invalid {
		if err := ValidateDetectionCode(code); err == nil {
			t.Errorf("ValidateDetectionCode(%q) = nil, want error", code)
		}
	}
}

func TestValidateItemID(t *testing.T) {
	valid := []string{
		"item-01",
		"frame_0042.png",
		"A1b2",
		strings.Repeat("x", 128),
	}
	for _, id := range valid {
		if err := ValidateItemID(id); err != nil {
			t.Errorf("ValidateItemID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{
		"",
		"item:01",
		"item 01",
		".hidden",
		strings.Repeat("x", 129),
	}
	for _, id := range invalid {
		if err := ValidateItemID(id); err == nil {
			t.Errorf("ValidateItemID(%q) = nil, want error", id)
		}
	}
}

func TestValidateItemIDs(t *testing.T) {
	if err := ValidateItemIDs([]string{"a", "b-1", "c.png"}); err != nil {
		t.Errorf("ValidateItemIDs(valid) = %v, want nil", err)
	}

	err := ValidateItemIDs([]string{"ok", "bad:id", "also bad"})
	if err == nil {
		t.Fatal("ValidateItemIDs(mixed) = nil, want error")
	}
	if !strings.Contains(err.Error(), "bad:id") {
		t.Errorf("error should name the offending ids, got %v", err)
	}
}

func TestSanitizeDetectionCode(t *testing.T) {
	got, err := SanitizeDetectionCode("  Diving_Board ")
	if err != nil {
		t.Fatalf("SanitizeDetectionCode = %v, want nil", err)
	}
	if got != "diving_board" {
		t.Errorf("SanitizeDetectionCode = %q, want %q", got, "diving_board")
	}

	if _, err := SanitizeDetectionCode("no good"); err == nil {
		t.Error("SanitizeDetectionCode(invalid) = nil, want error")
	}
}
