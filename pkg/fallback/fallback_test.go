// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fallback

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestTryInOrder_FirstSuccessWins verifies the ladder stops at the first
// succeeding step and never runs the rest.
func TestTryInOrder_FirstSuccessWins(t *testing.T) {
	var ran []string
	steps := []Step[string]{
		{Name: "broken", Run: func(context.Context) (string, error) {
			ran = append(ran, "broken")
			return "", fmt.Errorf("backend down")
		}},
		{Name: "working", Run: func(context.Context) (string, error) {
			ran = append(ran, "working")
			return "value", nil
		}},
		{Name: "never", Run: func(context.Context) (string, error) {
			ran = append(ran, "never")
			return "unused", nil
		}},
	}

	value, winner, ok := TryInOrder(context.Background(), "test", steps)

	assert.True(t, ok)
	assert.Equal(t, "value", value)
	assert.Equal(t, "working", winner)
	assert.Equal(t, []string{"broken", "working"}, ran)
}

// TestTryInOrder_AllFail verifies the zero value and false when every step
// errors.
func TestTryInOrder_AllFail(t *testing.T) {
	steps := []Step[int]{
		{Name: "a", Run: func(context.Context) (int, error) { return 0, fmt.Errorf("no") }},
		{Name: "b", Run: func(context.Context) (int, error) { return 0, fmt.Errorf("no") }},
	}

	value, winner, ok := TryInOrder(context.Background(), "test", steps)

	assert.False(t, ok)
	assert.Zero(t, value)
	assert.Empty(t, winner)
}

// TestTryInOrder_StopsOnCancelledContext verifies a cancelled context short-
// circuits the ladder.
func TestTryInOrder_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	steps := []Step[string]{
		{Name: "a", Run: func(context.Context) (string, error) {
			ran = true
			return "x", nil
		}},
	}

	_, _, ok := TryInOrder(ctx, "test", steps)

	assert.False(t, ok)
	assert.False(t, ran, "no step should run after cancellation")
}

// TestTryInOrder_EmptyLadder verifies zero steps report failure.
func TestTryInOrder_EmptyLadder(t *testing.T) {
	_, _, ok := TryInOrder(context.Background(), "test", []Step[bool]{})
	assert.False(t, ok)
}
