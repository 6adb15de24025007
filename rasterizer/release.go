// rasterizer/release.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"sync"
)

// releaseQueue collects native objects whose owners have been garbage
// collected. Cleanups run on a runtime goroutine, which must not touch the
// GL context, so they only enqueue; the render thread deletes the objects
// at the start of the next frame.
type releaseQueue struct {
	mu      sync.Mutex
	pending []func(Device)
	closed  bool
}

func (q *releaseQueue) push(f func(Device)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.pending = append(q.pending, f)
	}
}

func (q *releaseQueue) pushGeometry(h geometryHandles) {
	q.push(h.release)
}

func (q *releaseQueue) pushProgram(prog uint32) {
	q.push(func(dev Device) { dev.DeleteProgram(prog) })
}

// drain releases everything queued so far and returns how many objects
// were released.
func (q *releaseQueue) drain(dev Device) int {
	q.mu.Lock()
	p := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, f := range p {
		f(dev)
	}
	return len(p)
}

// close drains the queue and then ignores later pushes, which may arrive
// after the device is gone.
func (q *releaseQueue) close(dev Device) {
	q.drain(dev)
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
