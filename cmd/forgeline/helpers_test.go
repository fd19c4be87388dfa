// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"testing"
	"time"

	"github.com/forgeline-ai/forgeline/services/forge/plan"
	"github.com/forgeline-ai/forgeline/services/forge/transaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConflictResolver_Policies(t *testing.T) {
	tests := []struct {
		policy string
		want   transaction.Resolution
	}{
		{"cancel", transaction.ResolutionCancel},
		{"use-new", transaction.ResolutionUseNew},
		{"keep-local", transaction.ResolutionKeepLocal},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			resolver, err := conflictResolver(tt.policy)
			require.NoError(t, err)

			answer, err := resolver(&transaction.Conflict{Path: "api/user.go"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, answer.Resolution)
		})
	}
}

func TestConflictResolver_UnknownPolicy(t *testing.T) {
	_, err := conflictResolver("merge-by-vibes")
	assert.Error(t, err)
}

func TestCompileRequest_ToInput(t *testing.T) {
	req := compileRequest{
		PlanID:           "plan-1",
		TokensUsed:       1200,
		GenerationTimeMs: 4500,
		Files: []compileFile{
			{Path: "api/user.go", Content: "package api", Action: plan.ActionCreate},
		},
		Tests: []compileTest{
			{Path: "api/user_test.go", Content: "package api", SourceFile: "api/user.go"},
		},
	}

	in := req.toInput()
	assert.Equal(t, "plan-1", in.PlanID)
	assert.Equal(t, 4500*time.Millisecond, in.GenerationTime)
	require.Len(t, in.Files, 1)
	assert.Equal(t, plan.ActionCreate, in.Files[0].Action)
	require.Len(t, in.Tests, 1)
	assert.Equal(t, "api/user.go", in.Tests[0].SourceFile)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "2.0 KiB", formatBytes(2048))
	assert.Equal(t, "1.5 MiB", formatBytes(3*1<<20/2))
}
