// tasks/tasks.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package tasks runs isolated background work, such as rendering the
// tiles of procedural textures, without blocking the render thread.
// Tasks must not touch the document or the GPU; they hand their results
// back to the render thread, which uploads them.
package tasks

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/lxengine/lxengine/log"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// DefaultTileSize is the edge length in pixels of the tiles that Scan
// hands to workers.
const DefaultTileSize = 32

// Group runs tasks until it is closed. At most Workers tiles are shaded
// at once across all of the group's tasks.
type Group struct {
	ctx     context.Context
	cancel  context.CancelFunc
	eg      errgroup.Group
	sem     *semaphore.Weighted
	workers int
	lg      *log.Logger

	pending atomic.Int64
	failed  atomic.Int64
}

// New returns a Group whose tasks are cancelled when ctx is. A workers
// value of zero or less uses GOMAXPROCS.
func New(ctx context.Context, workers int, lg *log.Logger) *Group {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ctx, cancel := context.WithCancel(ctx)
	lg.Info("task group", slog.Int("workers", workers))
	return &Group{
		ctx:     ctx,
		cancel:  cancel,
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
		lg:      lg,
	}
}

func (g *Group) Workers() int { return g.workers }

// Context returns the context that the group's tasks run under.
func (g *Group) Context() context.Context { return g.ctx }

// Pending returns the number of tasks that have not finished.
func (g *Group) Pending() int { return int(g.pending.Load()) }

// Go starts f in the background. Errors other than cancellation are
// logged under name; one task failing does not affect the others.
func (g *Group) Go(name string, f func(ctx context.Context) error) {
	g.pending.Add(1)
	g.eg.Go(func() error {
		defer g.pending.Add(-1)

		if err := g.ctx.Err(); err != nil {
			return nil
		}
		err := f(g.ctx)
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			g.lg.Debug("task cancelled", slog.String("task", name))
		default:
			g.failed.Add(1)
			g.lg.Warn("task failed", slog.String("task", name), slog.Any("error", err))
		}
		return nil
	})
}

// Cancel asks all running tasks to stop. Tasks started afterward do
// nothing.
func (g *Group) Cancel() {
	g.cancel()
}

// Wait blocks until all of the tasks have returned.
func (g *Group) Wait() {
	_ = g.eg.Wait()
}

// Close cancels the tasks and waits for them to stop.
func (g *Group) Close() {
	g.Cancel()
	g.Wait()
	if n := g.failed.Load(); n > 0 {
		g.lg.Infof("task group closed; %d task(s) failed", n)
	}
}

// Shader returns the color of the pixel at (x, y).
type Shader func(x, y int) color.RGBA

// Scan fills img by calling shade for every pixel. The image is split
// into square tiles of the given size that are shaded concurrently, each
// writing only its own pixels. Scan checks ctx between tiles and returns
// its error if it is cancelled before the image is complete.
func (g *Group) Scan(ctx context.Context, img *image.RGBA, tile int, shade Shader) error {
	if tile <= 0 {
		tile = DefaultTileSize
	}
	eg, ctx := errgroup.WithContext(ctx)
	b := img.Bounds()

	var err error
tiles:
	for y0 := b.Min.Y; y0 < b.Max.Y; y0 += tile {
		for x0 := b.Min.X; x0 < b.Max.X; x0 += tile {
			if err = g.sem.Acquire(ctx, 1); err != nil {
				break tiles
			}
			r := image.Rect(x0, y0, x0+tile, y0+tile).Intersect(b)
			eg.Go(func() error {
				defer g.sem.Release(1)
				if err := ctx.Err(); err != nil {
					return err
				}
				for y := r.Min.Y; y < r.Max.Y; y++ {
					for x := r.Min.X; x < r.Max.X; x++ {
						img.SetRGBA(x, y, shade(x, y))
					}
				}
				return nil
			})
		}
	}

	if werr := eg.Wait(); werr != nil {
		return werr
	}
	return err
}
