// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package nxcp

import (
	"context"
	"sync"
	"time"
)

// sweepTask is one periodic cleanup step. It returns the number of evicted entries.
type sweepTask struct {
	name  string
	sweep func(now time.Time) int
}

// housekeeper runs cleanup tasks on a fixed period until stopped
type housekeeper struct {
	interval time.Duration
	tasks    []sweepTask
	logger   Logger
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func startHousekeeper(interval time.Duration, logger Logger, tasks ...sweepTask) *housekeeper {
	h := &housekeeper{
		interval: interval,
		tasks:    tasks,
		logger:   logger,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	h.wg.Add(1)
	go h.loop()
	return h
}

func (h *housekeeper) loop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.runOnce(h.now())
		}
	}
}

// runOnce executes every task once
func (h *housekeeper) runOnce(now time.Time) {
	for _, task := range h.tasks {
		if n := task.sweep(now); n > 0 {
			h.logger.Debug(context.Background(), "Housekeeper evicted expired entries",
				"task", task.name,
				"count", n)
		}
	}
}

// shutdown stops the loop and waits for it to exit. Safe to call more than once.
func (h *housekeeper) shutdown() {
	h.stopOnce.Do(func() { close(h.stop) })
	h.wg.Wait()
}
