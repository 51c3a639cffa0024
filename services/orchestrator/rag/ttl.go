// Copyright (C) 2025 pica-git0
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sweeper evicts idle conversations in the background so transcripts and
// collections do not grow for the lifetime of the process.
type Sweeper struct {
	memory   *MemoryStore
	interval time.Duration
	maxIdle  time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper builds a sweeper. interval defaults to 1h, maxIdle to 24h.
func NewSweeper(memory *MemoryStore, interval, maxIdle time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if maxIdle <= 0 {
		maxIdle = 24 * time.Hour
	}
	return &Sweeper{
		memory:   memory,
		interval: interval,
		maxIdle:  maxIdle,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background loop. Call Stop to terminate it.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		slog.Info("Conversation retention sweeper started",
			"interval", s.interval.String(),
			"max_idle", s.maxIdle.String())

		for {
			select {
			case <-ticker.C:
				s.sweep(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the loop and waits for the current sweep to finish.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.maxIdle)
	idle := s.memory.IdleConversations(cutoff)
	if len(idle) == 0 {
		return
	}

	slog.Info("Evicting idle conversations", "count", len(idle))
	for _, id := range idle {
		sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		s.memory.DeleteConversation(sweepCtx, id)
		cancel()
	}
}
