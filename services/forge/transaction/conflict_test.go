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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline-ai/forgeline/services/forge/plan"
	"github.com/forgeline-ai/forgeline/services/forge/tools"
)

func TestDetectConflicts_FlagsDivergedFile(t *testing.T) {
	dir := seedWorkspace(t, map[string]string{"a.go": "locally edited\n"})
	fsys := tools.NewOSFileSystem(dir)

	b := testBundle(fileEntry("a.go", "new content\n", plan.ActionModify, "what the plan saw\n"))

	conflicts, err := detectConflicts(fsys, b)

	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "a.go", conflicts[0].Path)
	assert.Equal(t, "locally edited\n", conflicts[0].LocalContent)
	assert.Contains(t, conflicts[0].Diff, "-what the plan saw")
	assert.Contains(t, conflicts[0].Diff, "+locally edited")
}

func TestDetectConflicts_CleanMatch(t *testing.T) {
	dir := seedWorkspace(t, map[string]string{"a.go": "unchanged"})
	fsys := tools.NewOSFileSystem(dir)

	b := testBundle(fileEntry("a.go", "new", plan.ActionModify, "unchanged"))

	conflicts, err := detectConflicts(fsys, b)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestDetectConflicts_SkipsCreatesAndMissingBaselines(t *testing.T) {
	dir := seedWorkspace(t, map[string]string{"a.go": "anything"})
	fsys := tools.NewOSFileSystem(dir)

	b := testBundle(
		fileEntry("b.go", "brand new", plan.ActionCreate, ""),
		fileEntry("a.go", "new", plan.ActionModify, ""),
	)

	conflicts, err := detectConflicts(fsys, b)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestRenderConflictDiff_KeepsCommonContext(t *testing.T) {
	baseline := "package a\n\nfunc one() {}\n\nfunc two() {}\n"
	local := "package a\n\nfunc one() {}\n\nfunc two() { panic(\"edited\") }\n"

	out := renderConflictDiff("a.go", baseline, local)

	// Only the changed line flips; shared lines appear as context.
	assert.Contains(t, out, "-func two() {}")
	assert.Contains(t, out, "+func two() { panic(\"edited\") }")
	assert.Contains(t, out, " func one() {}")
	assert.NotContains(t, out, "-package a")
	assert.NotContains(t, out, "+package a")
}

func TestRenderConflictDiff_SplitsDistantChangesIntoHunks(t *testing.T) {
	var base, edited []string
	for i := 0; i < 20; i++ {
		line := "line"
		base = append(base, line)
		edited = append(edited, line)
	}
	base[0], edited[0] = "first old", "first new"
	base[19], edited[19] = "last old", "last new"

	out := renderConflictDiff("a.go",
		strings.Join(base, "\n")+"\n",
		strings.Join(edited, "\n")+"\n")

	// Changes 18 unchanged lines apart land in separate hunks, each
	// trimmed to its context window.
	assert.Equal(t, 2, strings.Count(out, "@@ -"))
	assert.Contains(t, out, "-first old")
	assert.Contains(t, out, "+last new")
	assert.Less(t, strings.Count(out, " line"), 18)
}

func TestRenderConflictDiff_IdenticalContentsEmpty(t *testing.T) {
	assert.Empty(t, renderConflictDiff("a.go", "same\n", "same\n"))
}

func TestDetectConflicts_MissingFileIsConflict(t *testing.T) {
	fsys := tools.NewOSFileSystem(t.TempDir())

	b := testBundle(fileEntry("gone.go", "new", plan.ActionModify, "the plan saw this"))

	conflicts, err := detectConflicts(fsys, b)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "gone.go", conflicts[0].Path)
	assert.Empty(t, conflicts[0].LocalContent)
}
