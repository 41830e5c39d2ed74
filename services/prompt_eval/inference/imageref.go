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
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// MaxImageBytes bounds local image files. Vision backends reject images
// past ~20MB anyway; failing early keeps the error local.
const MaxImageBytes = 20 * 1024 * 1024

// ResolveImageRef turns a dataset item's image reference into a URL the
// vision API accepts.
//
// # Description
//
// Three forms are supported:
//   - data: URI: passed through unchanged.
//   - http(s) URL: passed through unchanged; the backend fetches it.
//   - anything else: treated as a local file path, read, MIME-sniffed
//     and re-encoded as a base64 data URI.
//
// Outputs:
//   - string: A URL usable in an image_url content part.
//   - error: Non-nil for unreadable or oversized local files.
func ResolveImageRef(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "data:"):
		return ref, nil
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref, nil
	}

	info, err := os.Stat(ref)
	if err != nil {
		return "", fmt.Errorf("stat image %s: %w", ref, err)
	}
	if info.Size() > MaxImageBytes {
		return "", fmt.Errorf("image %s is %d bytes, over the %d byte limit", ref, info.Size(), MaxImageBytes)
	}

	raw, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", ref, err)
	}

	mime := http.DetectContentType(raw)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("file %s is %s, not an image", ref, mime)
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw), nil
}
