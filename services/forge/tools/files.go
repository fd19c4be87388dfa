// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem abstracts the file operations performed while applying a
// bundle. Paths are relative to the filesystem root unless stated
// otherwise.
type FileSystem interface {
	// ReadFile returns the contents of the file at path.
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to path, creating parent directories as
	// needed.
	WriteFile(path string, data []byte, perm fs.FileMode) error

	// Remove deletes the file at path. Removing a missing file is not an
	// error.
	Remove(path string) error

	// Exists reports whether a regular file exists at path.
	Exists(path string) (bool, error)
}

// OSFileSystem is the FileSystem backed by the real disk, rooted at a
// directory.
type OSFileSystem struct {
	root string
}

// NewOSFileSystem creates an OS-backed filesystem rooted at root.
func NewOSFileSystem(root string) *OSFileSystem {
	return &OSFileSystem{root: root}
}

// Root returns the root directory all paths are resolved against.
func (f *OSFileSystem) Root() string {
	return f.root
}

func (f *OSFileSystem) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(f.root, path)
}

func (f *OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(f.resolve(path))
}

func (f *OSFileSystem) WriteFile(path string, data []byte, perm fs.FileMode) error {
	full := f.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, perm)
}

func (f *OSFileSystem) Remove(path string) error {
	err := os.Remove(f.resolve(path))
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (f *OSFileSystem) Exists(path string) (bool, error) {
	info, err := os.Stat(f.resolve(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}
