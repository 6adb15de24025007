// rasterizer/watch.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rasterizer

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watcher notices changes to material and texture files in the on-disk
// media directories. Events are collected by a background goroutine and
// applied by Poll on the render thread.
type Watcher struct {
	w       *fsnotify.Watcher
	roots   []string
	changed chan string
	done    chan struct{}
}

// Watch starts watching the on-disk media directories. It returns nil
// and no error if there are none.
func (r *Rasterizer) Watch() (*Watcher, error) {
	roots := r.media.Dirs()
	if len(roots) == 0 {
		return nil, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	wt := &Watcher{
		w:       fw,
		changed: make(chan string, 64),
		done:    make(chan struct{}),
	}
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			fw.Close()
			return nil, err
		}
		wt.roots = append(wt.roots, abs)

		// fsnotify watches are not recursive, so add every directory
		// under the media roots that could hold materials or textures.
		err = filepath.WalkDir(abs, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if err := fw.Add(p); err != nil {
					r.lg.Warn("unable to watch directory", slog.String("dir", p), slog.Any("error", err))
				}
			}
			return nil
		})
		if err != nil {
			fw.Close()
			return nil, err
		}
	}

	go wt.run(r)
	return wt, nil
}

func (wt *Watcher) run(r *Rasterizer) {
	defer close(wt.done)
	for {
		select {
		case ev, ok := <-wt.w.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() && ev.Has(fsnotify.Create) {
				wt.w.Add(ev.Name)
				continue
			}
			if rel, ok := wt.relative(ev.Name); ok {
				select {
				case wt.changed <- rel:
				default:
					// A full queue means the render thread will reload
					// lots anyway; dropping a duplicate is harmless.
				}
			}
		case err, ok := <-wt.w.Errors:
			if !ok {
				return
			}
			r.lg.Warn("file watcher", slog.Any("error", err))
		}
	}
}

// relative maps an absolute file name to its media path.
func (wt *Watcher) relative(name string) (string, bool) {
	for _, root := range wt.roots {
		if rel, err := filepath.Rel(root, name); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel), true
		}
	}
	return "", false
}

// Poll applies the changes seen since the last call: material classes
// whose files changed are invalidated and changed textures are reloaded.
// It returns the media paths that changed.
func (wt *Watcher) Poll(r *Rasterizer) []string {
	if wt == nil {
		return nil
	}

	var changed []string
	for {
		select {
		case p := <-wt.changed:
			changed = append(changed, p)
			continue
		default:
		}
		break
	}

	for _, p := range changed {
		r.applyMediaChange(p)
	}
	if len(changed) > 0 {
		r.RefreshTextures()
	}
	return changed
}

func (r *Rasterizer) applyMediaChange(p string) {
	if rest, ok := strings.CutPrefix(p, "materials/"); ok {
		if class, _, ok := strings.Cut(rest, "/"); ok {
			r.InvalidateMaterialClass(class)
		}
	}
	r.markTexturesStale(p)
}

func (wt *Watcher) Close() error {
	if wt == nil {
		return nil
	}
	err := wt.w.Close()
	<-wt.done
	return err
}
