// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transaction

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotStore_CreateAndRestore(t *testing.T) {
	dir := seedWorkspace(t, map[string]string{
		"a.go":          "content a",
		"pkg/b.go":      "content b",
		".git/config":   "git internals",
		"deep/c/d.file": "nested",
	})
	store := NewSnapshotStore(dir)

	snap, err := store.Create(context.Background(), "before test")
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, "before test", snap.Description)
	assert.Greater(t, snap.ArchiveSize, int64(0))

	// .git is excluded, so three files.
	assert.Equal(t, 3, snap.FileCount)

	// Mutate and restore.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("mutated"), 0o644))
	require.NoError(t, os.Remove(filepath.Join(dir, "pkg", "b.go")))

	require.NoError(t, store.Restore(context.Background(), snap.ID))

	data, err := os.ReadFile(filepath.Join(dir, "a.go"))
	require.NoError(t, err)
	assert.Equal(t, "content a", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "pkg", "b.go"))
	require.NoError(t, err)
	assert.Equal(t, "content b", string(data))
}

func TestSnapshotStore_ExcludesOwnDirectory(t *testing.T) {
	dir := seedWorkspace(t, map[string]string{"a.go": "content"})
	store := NewSnapshotStore(dir)

	first, err := store.Create(context.Background(), "first")
	require.NoError(t, err)

	// A second snapshot must not archive the first one.
	second, err := store.Create(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, first.FileCount, second.FileCount)
	assert.Equal(t, 1, second.FileCount)
}

func TestSnapshotStore_ListNewestFirst(t *testing.T) {
	dir := seedWorkspace(t, map[string]string{"a.go": "x"})
	store := NewSnapshotStore(dir)

	_, err := store.Create(context.Background(), "older")
	require.NoError(t, err)
	newer, err := store.Create(context.Background(), "newer")
	require.NoError(t, err)

	snaps, err := store.List()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, newer.ID, snaps[0].ID)
}

func TestSnapshotStore_ListEmptyWhenNoDir(t *testing.T) {
	store := NewSnapshotStore(t.TempDir())
	snaps, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestSnapshotStore_Delete(t *testing.T) {
	dir := seedWorkspace(t, map[string]string{"a.go": "x"})
	store := NewSnapshotStore(dir)

	snap, err := store.Create(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, store.Delete(snap.ID))

	_, err = store.Load(snap.ID)
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
	assert.ErrorIs(t, store.Restore(context.Background(), snap.ID), ErrSnapshotNotFound)

	// Deleting again is harmless.
	assert.NoError(t, store.Delete(snap.ID))
}

func TestSnapshotStore_LoadMissing(t *testing.T) {
	store := NewSnapshotStore(t.TempDir())
	_, err := store.Load("no-such-id")
	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}
