// util/cache.go
// Copyright(c) 2024-2026 lxengine contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"compress/flate"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// CacheDir is the root of the on-disk object cache. If empty,
// LxEngine/ under the user cache directory is used.
var CacheDir string

func cachePath(name string) (string, error) {
	root := CacheDir
	if root == "" {
		ucd, err := os.UserCacheDir()
		if err != nil {
			return "", err
		}
		root = filepath.Join(ucd, "LxEngine")
	}
	return filepath.Join(root, filepath.FromSlash(name)), nil
}

// CacheStoreObject stores obj as flate-compressed msgpack under the given
// name in the cache directory. The object is written to a temporary file
// that then replaces any previous one, so readers never see a partial
// object.
func CacheStoreObject(name string, obj any) error {
	p, err := cachePath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), filepath.Base(p)+".*")
	if err != nil {
		return err
	}
	zw, err := flate.NewWriter(tmp, flate.BestSpeed)
	if err == nil {
		err = errors.Join(msgpack.NewEncoder(zw).Encode(obj), zw.Close())
	}
	if err = errors.Join(err, tmp.Close()); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%s: %w", name, err)
	}
	return os.Rename(tmp.Name(), p)
}

// CacheRetrieveObject decodes the object stored under name into obj and
// returns the time it was stored.
func CacheRetrieveObject(name string, obj any) (time.Time, error) {
	p, err := cachePath(name)
	if err != nil {
		return time.Time{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return time.Time{}, err
	}
	zr := flate.NewReader(f)
	defer zr.Close()
	if err := msgpack.NewDecoder(zr).Decode(obj); err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}
	return fi.ModTime(), nil
}
