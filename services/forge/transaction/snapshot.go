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
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ToolDirName is the reserved directory the tool owns inside a workspace.
// It is excluded from every snapshot.
const ToolDirName = ".forgeline"

// ErrSnapshotNotFound indicates no snapshot exists for the given ID.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is the sidecar metadata stored next to each archive.
type Snapshot struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`

	// ArchiveSize is the compressed archive size in bytes.
	ArchiveSize int64 `json:"archive_size"`

	// SourceSize is the total size of the files that were archived.
	SourceSize int64 `json:"source_size"`

	// FileCount is the number of regular files in the archive.
	FileCount int `json:"file_count"`
}

// SnapshotStore creates and restores compressed snapshots of a workspace
// tree. Archives and sidecars live under <workspace>/.forgeline/snapshots,
// which is itself excluded from every snapshot it creates.
//
// Thread Safety: NOT safe for concurrent use on the same workspace. The
// Applier serializes access through its transaction lock.
type SnapshotStore struct {
	workspaceDir string
	dir          string
	logger       *slog.Logger
}

// NewSnapshotStore creates a store rooted at workspaceDir.
func NewSnapshotStore(workspaceDir string) *SnapshotStore {
	return &SnapshotStore{
		workspaceDir: workspaceDir,
		dir:          filepath.Join(workspaceDir, ToolDirName, "snapshots"),
		logger:       slog.Default().With("component", "transaction.SnapshotStore"),
	}
}

// Dir returns the directory archives are stored in.
func (s *SnapshotStore) Dir() string {
	return s.dir
}

// Create archives the current workspace tree.
//
// # Description
//
//	Walks the workspace, excluding the tool's own directory and .git,
//	and writes a gzip-compressed tar archive plus a JSON sidecar with
//	the snapshot metadata.
//
// # Inputs
//
//	ctx - Context for cancellation, checked between files
//	description - Free-form text recorded in the sidecar
//
// # Outputs
//
//	*Snapshot - Metadata for the created snapshot
//	error - Non-nil on I/O failure or cancellation
func (s *SnapshotStore) Create(ctx context.Context, description string) (*Snapshot, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}

	snap := &Snapshot{
		ID:          uuid.New().String(),
		CreatedAt:   time.Now().UTC(),
		Description: description,
	}
	archivePath := s.archivePath(snap.ID)

	f, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(s.workspaceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.workspaceDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if s.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || s.excluded(rel) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.addFile(tw, path, rel, snap)
	})
	if walkErr == nil {
		walkErr = tw.Close()
	}
	if walkErr == nil {
		walkErr = gz.Close()
	}
	if walkErr == nil {
		walkErr = f.Close()
	}
	if walkErr != nil {
		_ = os.Remove(archivePath)
		return nil, fmt.Errorf("archiving workspace: %w", walkErr)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	snap.ArchiveSize = info.Size()

	if err := s.writeSidecar(snap); err != nil {
		_ = os.Remove(archivePath)
		return nil, err
	}

	s.logger.Info("snapshot created",
		slog.String("snapshot_id", snap.ID),
		slog.Int("files", snap.FileCount),
		slog.Int64("archive_bytes", snap.ArchiveSize),
	)
	return snap, nil
}

// Restore extracts a snapshot's full tree over the workspace.
//
// Existing files are overwritten; files created after the snapshot are
// left in place. Entries that would escape the workspace root are
// rejected.
func (s *SnapshotStore) Restore(ctx context.Context, id string) error {
	if ctx == nil {
		return ErrNilContext
	}
	f, err := os.Open(s.archivePath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	restored := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive entry: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		clean := filepath.Clean(filepath.FromSlash(hdr.Name))
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
			return fmt.Errorf("archive entry escapes workspace: %s", hdr.Name)
		}
		dst := filepath.Join(s.workspaceDir, clean)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("restoring %s: %w", clean, err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("restoring %s: %w", clean, err)
		}
		if err := os.WriteFile(dst, data, fs.FileMode(hdr.Mode)&0o777); err != nil {
			return fmt.Errorf("restoring %s: %w", clean, err)
		}
		restored++
	}

	s.logger.Info("snapshot restored",
		slog.String("snapshot_id", id),
		slog.Int("files", restored),
	)
	return nil
}

// List returns all snapshot sidecars, newest first.
func (s *SnapshotStore) List() ([]*Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}

	var snaps []*Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		snap, err := s.Load(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot sidecar",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})
	return snaps, nil
}

// Load reads one snapshot's sidecar metadata.
func (s *SnapshotStore) Load(id string) (*Snapshot, error) {
	data, err := os.ReadFile(s.sidecarPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
		}
		return nil, fmt.Errorf("reading sidecar: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing sidecar: %w", err)
	}
	return &snap, nil
}

// Delete removes a snapshot's archive and sidecar.
func (s *SnapshotStore) Delete(id string) error {
	archiveErr := os.Remove(s.archivePath(id))
	sidecarErr := os.Remove(s.sidecarPath(id))
	if archiveErr != nil && !errors.Is(archiveErr, fs.ErrNotExist) {
		return fmt.Errorf("deleting archive: %w", archiveErr)
	}
	if sidecarErr != nil && !errors.Is(sidecarErr, fs.ErrNotExist) {
		return fmt.Errorf("deleting sidecar: %w", sidecarErr)
	}
	return nil
}

func (s *SnapshotStore) archivePath(id string) string {
	return filepath.Join(s.dir, id+".tar.gz")
}

func (s *SnapshotStore) sidecarPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *SnapshotStore) excluded(rel string) bool {
	top := rel
	if i := strings.IndexByte(rel, filepath.Separator); i >= 0 {
		top = rel[:i]
	}
	return top == ToolDirName || top == ".git"
}

func (s *SnapshotStore) addFile(tw *tar.Writer, path, rel string, snap *Snapshot) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return err
	}

	snap.FileCount++
	snap.SourceSize += info.Size()
	return nil
}

func (s *SnapshotStore) writeSidecar(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sidecar: %w", err)
	}
	if err := os.WriteFile(s.sidecarPath(snap.ID), data, 0o644); err != nil {
		return fmt.Errorf("writing sidecar: %w", err)
	}
	return nil
}
