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
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/forgeline-ai/forgeline/services/forge/bundle"
	"github.com/forgeline-ai/forgeline/services/forge/plan"
	"github.com/forgeline-ai/forgeline/services/forge/tools"
)

// detectConflicts compares the workspace against the baseline content each
// modify/delete entry was generated from. A divergence means someone
// changed the file after the plan was built.
//
// Entries with no recorded baseline are skipped; there is nothing to
// compare against. Create entries never conflict here, they are caught by
// verification if the path is unexpectedly occupied.
func detectConflicts(fsys tools.FileSystem, b *bundle.Bundle) ([]*Conflict, error) {
	var conflicts []*Conflict
	for i := range b.Files {
		entry := &b.Files[i]
		if entry.Action == plan.ActionCreate || entry.BaselineContent == "" {
			continue
		}

		local, err := fsys.ReadFile(entry.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				// Baseline expected a file that is gone. That is a
				// divergence too.
				conflicts = append(conflicts, newConflict(entry, ""))
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", entry.Path, err)
		}
		if string(local) == entry.BaselineContent {
			continue
		}
		conflicts = append(conflicts, newConflict(entry, string(local)))
	}
	return conflicts, nil
}

func newConflict(entry *bundle.FileEntry, local string) *Conflict {
	return &Conflict{
		Path:          entry.Path,
		BundleContent: entry.Content,
		LocalContent:  local,
		Diff:          renderConflictDiff(entry.Path, entry.BaselineContent, local),
	}
}

// renderConflictDiff produces a unified diff from the expected baseline to
// the local content. Rendering failures degrade to an empty diff; the
// conflict itself still carries both contents.
func renderConflictDiff(path, baseline, local string) string {
	hunks := diffHunks(splitLines(baseline), splitLines(local))
	if len(hunks) == 0 {
		return ""
	}
	fd := &diff.FileDiff{
		OrigName: "expected/" + path,
		NewName:  "local/" + path,
		Hunks:    hunks,
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return ""
	}
	return string(out)
}

// diffContextLines is the number of unchanged lines shown around each
// run of changes.
const diffContextLines = 3

// diffOp is one line of an edit script: ' ' unchanged, '-' removed,
// '+' added.
type diffOp struct {
	kind byte
	text string
}

// editScript computes a line-level edit script between a and b from a
// longest-common-subsequence table. Conflicting files are small enough
// that the quadratic table does not matter.
func editScript(a, b []string) []diffOp {
	m, n := len(a), len(b)
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var ops []diffOp
	i, j := 0, 0
	for i < m && j < n {
		switch {
		case a[i] == b[j]:
			ops = append(ops, diffOp{' ', a[i]})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, diffOp{'-', a[i]})
			i++
		default:
			ops = append(ops, diffOp{'+', b[j]})
			j++
		}
	}
	for ; i < m; i++ {
		ops = append(ops, diffOp{'-', a[i]})
	}
	for ; j < n; j++ {
		ops = append(ops, diffOp{'+', b[j]})
	}
	return ops
}

// diffHunks groups an edit script into hunks, keeping at most
// diffContextLines of unchanged context on either side of a change run.
// Equal runs longer than twice the context split the diff into separate
// hunks. Returns nil when the sides are identical.
func diffHunks(a, b []string) []*diff.Hunk {
	ops := editScript(a, b)

	changed := false
	for _, op := range ops {
		if op.kind != ' ' {
			changed = true
			break
		}
	}
	if !changed {
		return nil
	}

	var hunks []*diff.Hunk
	origLine, newLine := 1, 1
	i := 0
	for i < len(ops) {
		// Skip the part of a leading equal run that falls outside the
		// context window.
		if ops[i].kind == ' ' {
			j := i
			for j < len(ops) && ops[j].kind == ' ' {
				j++
			}
			if j == len(ops) {
				break
			}
			if skip := j - i - diffContextLines; skip > 0 {
				origLine += skip
				newLine += skip
				i += skip
			}
		}

		hunkOrig, hunkNew := origLine, newLine
		var origCount, newCount int
		var body strings.Builder
		for i < len(ops) {
			if ops[i].kind == ' ' {
				j := i
				for j < len(ops) && ops[j].kind == ' ' {
					j++
				}
				if run := j - i; j == len(ops) || run > 2*diffContextLines {
					// Trailing context, then close the hunk. The rest of
					// the run is left for the next hunk's leading context.
					keep := run
					if keep > diffContextLines {
						keep = diffContextLines
					}
					for k := 0; k < keep; k++ {
						body.WriteString(" " + ops[i+k].text + "\n")
					}
					origCount += keep
					newCount += keep
					origLine += keep
					newLine += keep
					i += keep
					break
				}
			}
			op := ops[i]
			body.WriteByte(op.kind)
			body.WriteString(op.text)
			body.WriteByte('\n')
			switch op.kind {
			case ' ':
				origCount++
				newCount++
				origLine++
				newLine++
			case '-':
				origCount++
				origLine++
			case '+':
				newCount++
				newLine++
			}
			i++
		}

		hunks = append(hunks, &diff.Hunk{
			OrigStartLine: int32(hunkOrig),
			OrigLines:     int32(origCount),
			NewStartLine:  int32(hunkNew),
			NewLines:      int32(newCount),
			Body:          []byte(body.String()),
		})
	}
	return hunks
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}
