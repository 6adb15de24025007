// rasterizer/framebuffer.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"fmt"
)

// FrameBuffer is a render target: either the window's default framebuffer
// or an offscreen target with a color texture that later passes can
// sample.
type FrameBuffer struct {
	Name          string
	Width, Height int

	handles FramebufferHandles
	screen  bool
}

func (fb *FrameBuffer) IsScreen() bool {
	return fb.screen
}

// ColorTexture returns the native handle of the color attachment.
func (fb *FrameBuffer) ColorTexture() uint32 {
	return fb.handles.Color
}

// Activate binds the framebuffer, sets the viewport to cover it, and
// verifies that it is complete.
func (fb *FrameBuffer) Activate(r *Rasterizer) error {
	if fb.screen {
		fb.Width, fb.Height = r.dev.ScreenSize()
	}
	r.dev.BindFramebuffer(fb.handles.FBO)
	r.dev.Viewport(0, 0, fb.Width, fb.Height)
	if err := r.dev.CheckFramebuffer(); err != nil {
		return fmt.Errorf("%s: %w: %w", fb.Name, ErrFramebufferIncomplete, err)
	}
	return nil
}

func (fb *FrameBuffer) aspect() float32 {
	if fb == nil || fb.Height == 0 {
		return 1
	}
	return float32(fb.Width) / float32(fb.Height)
}

// Screen returns the framebuffer for the window.
func (r *Rasterizer) Screen() *FrameBuffer {
	return r.screen
}

// AcquireFrameBuffer returns the named offscreen framebuffer, creating it
// with the given size on first use. Requesting an existing name with a
// different size recreates its native objects in place, so passes that
// hold the *FrameBuffer render to the resized target.
func (r *Rasterizer) AcquireFrameBuffer(name string, width, height int) (*FrameBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%s: invalid framebuffer size %dx%d", name, width, height)
	}

	fb, ok := r.framebuffers[name]
	if ok && fb.Width == width && fb.Height == height {
		return fb, nil
	}

	h, err := r.dev.CreateFramebuffer(width, height)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if ok {
		r.dev.DeleteFramebuffer(fb.handles)
		fb.Width, fb.Height, fb.handles = width, height, h
		return fb, nil
	}
	fb = &FrameBuffer{Name: name, Width: width, Height: height, handles: h}
	r.framebuffers[name] = fb
	return fb, nil
}
