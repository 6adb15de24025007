// util/resources.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/klauspost/compress/zstd"
)

// ResourceFS looks up media files (materials, geometry, textures) in an
// ordered list of file systems; the first one that has a file wins. This
// allows a media directory on disk to override the resources that are
// embedded in the binary. Files may be stored zstd-compressed with a .zst
// suffix, in which case they are transparently decompressed.
type ResourceFS struct {
	layers []fs.FS
}

func NewResourceFS(layers ...fs.FS) *ResourceFS {
	return &ResourceFS{layers: FilterSlice(layers, func(f fs.FS) bool { return f != nil })}
}

// Unfortunately, unlike io.ReadCloser, the zstd Decoder's Close() method
// doesn't return an error, so we need to make our own custom ReadCloser
// interface.
type ResourceReadCloser interface {
	io.Reader
	Close()
}

type bytesReadCloser struct {
	*bytes.Reader
}

func (bytesReadCloser) Close() {}

func (r *ResourceFS) readRaw(name string) ([]byte, error) {
	for _, l := range r.layers {
		b, err := fs.ReadFile(l, name)
		if err == nil {
			return b, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Open returns a reader for the named resource. If the resource itself
// doesn't exist but name+".zst" does, the compressed one is used.
func (r *ResourceFS) Open(name string) (ResourceReadCloser, error) {
	b, err := r.readRaw(name)
	if errors.Is(err, fs.ErrNotExist) && path.Ext(name) != ".zst" {
		name += ".zst"
		b, err = r.readRaw(name)
	}
	if err != nil {
		return nil, err
	}

	br := bytesReadCloser{bytes.NewReader(b)}
	if path.Ext(name) == ".zst" {
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(0))
		if err != nil {
			return nil, err
		}
		return zr, nil
	}
	return br, nil
}

// ReadFile returns the full contents of the named resource.
func (r *ResourceFS) ReadFile(name string) ([]byte, error) {
	rc, err := r.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Exists reports whether the named resource (or its compressed variant)
// is present in any layer.
func (r *ResourceFS) Exists(name string) bool {
	for _, n := range []string{name, name + ".zst"} {
		for _, l := range r.layers {
			if _, err := fs.Stat(l, n); err == nil {
				return true
			}
		}
	}
	return false
}

// Dirs returns the directory paths of the layers that are backed by the
// local file system, for use by file watchers.
func (r *ResourceFS) Dirs() []string {
	var dirs []string
	for _, l := range r.layers {
		if d, ok := l.(DirFS); ok {
			dirs = append(dirs, string(d))
		}
	}
	return dirs
}

// DirFS is an fs.FS rooted at a directory on disk that remembers its
// root so that it can be watched for changes.
type DirFS string

func (d DirFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return os.DirFS(string(d)).Open(name)
}
