// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// ParseClaims strips JSONC comments and trailing commas from data and
// decodes the result as a JSON object.
func ParseClaims(data []byte) (map[string]any, error) {
	stripped := jsonc.ToJSON(data)

	var claims map[string]any
	if err := json.Unmarshal(stripped, &claims); err != nil {
		return nil, fmt.Errorf("parsing claims: %w", err)
	}
	if claims == nil {
		return nil, fmt.Errorf("parsing claims: top level must be an object")
	}
	return claims, nil
}

// LoadClaims reads a JSONC claims file. Claims are recorded in archive
// manifests and in the first record of stream containers.
func LoadClaims(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	claims, err := ParseClaims(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return claims, nil
}
