// Copyright (C) 2025 Artemis Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stage

import "errors"

// Sentinel errors for stage operations.
var (
	// ErrNotImplemented is returned when BaseStage.Execute is called
	// without a concrete override.
	ErrNotImplemented = errors.New("stage execution not implemented")
)
