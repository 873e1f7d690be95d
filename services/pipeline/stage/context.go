// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stage

import "encoding/json"

// Context carries per-run data shared across stages.
//
// The pipeline hands each run a fresh clone of its base context, so
// stage mutations never leak across runs. Stages may read and write
// freely during their own execution; the engine serializes access
// between stages (sequential execution) or hands each parallel stage
// the same map with the convention that stages only write keys they
// own.
type Context map[string]any

// Clone returns a deep copy of the context.
//
// Nested maps and slices are copied via a JSON roundtrip so mutations
// of the clone never reach the original. Values that don't survive
// JSON (channels, funcs) are copied by reference as a fallback.
func (c Context) Clone() Context {
	if c == nil {
		return Context{}
	}

	out := make(Context, len(c))
	data, err := json.Marshal(map[string]any(c))
	if err == nil {
		var m map[string]any
		if json.Unmarshal(data, &m) == nil {
			return Context(m)
		}
	}
	for k, v := range c {
		out[k] = v
	}
	return out
}

// GetString returns the string value for key, or "" when absent or
// not a string.
func (c Context) GetString(key string) string {
	s, _ := c[key].(string)
	return s
}

// GetBool returns the bool value for key, or false when absent or
// not a bool.
func (c Context) GetBool(key string) bool {
	b, _ := c[key].(bool)
	return b
}
