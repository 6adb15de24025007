// rasterizer/stats.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"fmt"
	"log/slog"
	"time"
)

// RendererStats encapsulates assorted statistics from rendering a frame.
type RendererStats struct {
	Passes, Blits            int
	Items, Culled            int
	DrawCalls                int
	Points, Lines, Triangles int
	ProgramSwitches          int
	MaterialSwitches         int
	Buffers                  int
	Released                 int
	Elapsed                  time.Duration
}

func (rs *RendererStats) addDraw(p Primitive, count int) {
	rs.DrawCalls++
	switch p {
	case PrimitivePoints:
		rs.Points += count
	case PrimitiveLines:
		rs.Lines += count / 2
	case PrimitiveTriangles:
		rs.Triangles += count / 3
	}
}

func (rs *RendererStats) String() string {
	return fmt.Sprintf("%d passes, %d items (%d culled), %d draw calls: %d points, %d lines, %d tris; %d program switches, %s",
		rs.Passes, rs.Items, rs.Culled, rs.DrawCalls, rs.Points, rs.Lines, rs.Triangles, rs.ProgramSwitches, rs.Elapsed)
}

func (rs *RendererStats) Merge(s RendererStats) {
	rs.Passes += s.Passes
	rs.Blits += s.Blits
	rs.Items += s.Items
	rs.Culled += s.Culled
	rs.DrawCalls += s.DrawCalls
	rs.Points += s.Points
	rs.Lines += s.Lines
	rs.Triangles += s.Triangles
	rs.ProgramSwitches += s.ProgramSwitches
	rs.MaterialSwitches += s.MaterialSwitches
	rs.Buffers += s.Buffers
	rs.Released += s.Released
	rs.Elapsed += s.Elapsed
}

func (rs RendererStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("passes", rs.Passes),
		slog.Int("blits", rs.Blits),
		slog.Int("items", rs.Items),
		slog.Int("culled", rs.Culled),
		slog.Int("draw_calls", rs.DrawCalls),
		slog.Int("points", rs.Points),
		slog.Int("lines", rs.Lines),
		slog.Int("tris", rs.Triangles),
		slog.Int("program_switches", rs.ProgramSwitches),
		slog.Int("material_switches", rs.MaterialSwitches),
		slog.Int("buffers_created", rs.Buffers),
		slog.Int("released", rs.Released),
		slog.Duration("elapsed", rs.Elapsed),
	)
}
