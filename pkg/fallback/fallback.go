// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fallback implements the try-in-order ladder used across the
// service: search provider chains, classifier chains and prompt ladders
// all run an ordered list of steps and stop at the first success.
package fallback

import (
	"context"
	"log/slog"
)

// Step is one candidate in a ladder. Run reports failure through its
// error; it must not panic.
type Step[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// TryInOrder runs each step until one succeeds, returning the value, the
// name of the winning step and true. When every step fails it returns the
// zero value and false; each failure is logged, never propagated.
func TryInOrder[T any](ctx context.Context, ladder string, steps []Step[T]) (T, string, bool) {
	for _, step := range steps {
		if ctx.Err() != nil {
			break
		}
		value, err := step.Run(ctx)
		if err == nil {
			return value, step.Name, true
		}
		slog.Debug("Fallback step failed, trying next",
			"ladder", ladder,
			"step", step.Name,
			"error", err)
	}

	var zero T
	slog.Warn("All fallback steps failed", "ladder", ladder, "steps", len(steps))
	return zero, "", false
}
