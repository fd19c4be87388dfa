// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bundle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeline-ai/forgeline/services/forge/plan"
	"github.com/forgeline-ai/forgeline/services/forge/signature"
)

func createFiles(n int) []SourceFile {
	files := make([]SourceFile, n)
	for i := range files {
		files[i] = SourceFile{
			Path:    fmt.Sprintf("src/new%d.go", i),
			Content: fmt.Sprintf("package new%d", i),
			Action:  plan.ActionCreate,
		}
	}
	return files
}

func modifyFiles(n int) []SourceFile {
	files := make([]SourceFile, n)
	for i := range files {
		files[i] = SourceFile{
			Path:     fmt.Sprintf("src/old%d.go", i),
			Content:  "new content",
			Action:   plan.ActionModify,
			Baseline: "old content",
		}
	}
	return files
}

func TestChecksum_Deterministic(t *testing.T) {
	content := "package main\n\nfunc main() {}\n"
	first := Checksum(content)

	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Checksum(content))
	}
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, Checksum(content+" "))
}

func TestCompile_ChecksumsStableAcrossCompilations(t *testing.T) {
	c := NewCompiler()
	in := CompileInput{Files: createFiles(3)}

	first, err := c.Compile(in)
	require.NoError(t, err)
	second, err := c.Compile(in)
	require.NoError(t, err)

	for i := range first.Files {
		assert.Equal(t, first.Files[i].Checksum, second.Files[i].Checksum)
	}
}

func TestCompile_Classification(t *testing.T) {
	tests := []struct {
		name  string
		files []SourceFile
		want  Type
	}{
		{"five creates is full", createFiles(5), TypeFull},
		{"two modifies is patch", modifyFiles(2), TypePatch},
		{"mix is feature", append(createFiles(2), modifyFiles(2)...), TypeFeature},
		{"delete only is feature", []SourceFile{
			{Path: "gone.go", Action: plan.ActionDelete},
		}, TypeFeature},
	}

	c := NewCompiler()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := c.Compile(CompileInput{Files: tt.files})
			require.NoError(t, err)
			assert.Equal(t, tt.want, b.Type)
		})
	}
}

func TestCompile_ActionCounts(t *testing.T) {
	c := NewCompiler()

	b, err := c.Compile(CompileInput{
		Files: []SourceFile{
			{Path: "a.go", Content: "a", Action: plan.ActionCreate},
			{Path: "b.go", Content: "b", Action: plan.ActionModify},
			{Path: "c.go", Action: plan.ActionDelete},
		},
		PlanID:     "p1",
		TokensUsed: 1234,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, b.Metadata.Created)
	assert.Equal(t, 1, b.Metadata.Modified)
	assert.Equal(t, 1, b.Metadata.Deleted)
	assert.Equal(t, "p1", b.Metadata.PlanID)
	assert.Equal(t, 1234, b.Metadata.TokensUsed)
}

func TestCompile_InferInstallCommand(t *testing.T) {
	c := NewCompiler()

	b, err := c.Compile(CompileInput{
		Files: []SourceFile{
			{Path: "package.json", Content: `{"name":"app"}`, Action: plan.ActionModify},
			{Path: "src/index.ts", Content: "export {}", Action: plan.ActionModify},
		},
	})
	require.NoError(t, err)

	pre := b.CommandsFor(PhasePreApply)
	require.Len(t, pre, 1)
	assert.Equal(t, "npm install", pre[0].Command)
	assert.Empty(t, b.CommandsFor(PhasePostApply))
}

func TestCompile_InferGoModCommand(t *testing.T) {
	c := NewCompiler()

	b, err := c.Compile(CompileInput{
		Files: []SourceFile{
			{Path: "go.mod", Content: "module example.com/app\n\ngo 1.22\n", Action: plan.ActionModify},
		},
	})
	require.NoError(t, err)

	pre := b.CommandsFor(PhasePreApply)
	require.Len(t, pre, 1)
	assert.Equal(t, "go mod tidy", pre[0].Command)
}

func TestCompile_InferMigrateCommandWithMaxRisk(t *testing.T) {
	c := NewCompiler()

	b, err := c.Compile(CompileInput{
		Files: createFiles(1),
		Migrations: []plan.Migration{
			{ID: "m1", Type: plan.MigrationCreateTable, Forward: "CREATE", Reverse: "DROP", DataLossRisk: "low"},
			{ID: "m2", Type: plan.MigrationDropTable, Forward: "DROP", DataLossRisk: "critical"},
		},
	})
	require.NoError(t, err)

	post := b.CommandsFor(PhasePostApply)
	require.Len(t, post, 1)
	assert.Equal(t, "migrate up", post[0].Command)
	assert.Equal(t, "critical", post[0].Risk)
}

func TestCompile_MigrationDualChecksums(t *testing.T) {
	c := NewCompiler()

	b, err := c.Compile(CompileInput{
		Migrations: []plan.Migration{
			{ID: "m1", Type: plan.MigrationCreateTable, Forward: "CREATE TABLE t (id TEXT)", Reverse: "DROP TABLE t"},
		},
	})
	require.NoError(t, err)

	require.Len(t, b.Migrations, 1)
	m := b.Migrations[0]
	assert.Equal(t, Checksum("CREATE TABLE t (id TEXT)"), m.ForwardChecksum)
	assert.Equal(t, Checksum("DROP TABLE t"), m.ReverseChecksum)
	assert.NotEqual(t, m.ForwardChecksum, m.ReverseChecksum)
}

func TestCompile_EmptyInputRejected(t *testing.T) {
	_, err := NewCompiler().Compile(CompileInput{})
	assert.Error(t, err)
}

func TestValidate_CompiledBundlePasses(t *testing.T) {
	b, err := NewCompiler().Compile(CompileInput{Files: createFiles(2)})
	require.NoError(t, err)

	result := Validate(b)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	// Unsigned bundles warn but do not fail.
	assert.Contains(t, result.Warnings, "bundle is unsigned")
}

func TestValidate_TamperedChecksumFails(t *testing.T) {
	b, err := NewCompiler().Compile(CompileInput{Files: createFiles(1)})
	require.NoError(t, err)

	b.Files[0].Content = "tampered"
	result := Validate(b)
	assert.False(t, result.Valid)
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0], "checksum")
}

func TestValidate_DuplicatePathsFail(t *testing.T) {
	b, err := NewCompiler().Compile(CompileInput{
		Files: []SourceFile{
			{Path: "same.go", Content: "a", Action: plan.ActionCreate},
			{Path: "same.go", Content: "b", Action: plan.ActionModify},
		},
	})
	require.NoError(t, err)

	result := Validate(b)
	assert.False(t, result.Valid)
}

func TestValidate_NilBundle(t *testing.T) {
	result := Validate(nil)
	assert.False(t, result.Valid)
}

func TestSignVerify_BundleRoundTrip(t *testing.T) {
	keys, err := signature.LoadOrCreate(t.TempDir(), "bundle-key")
	require.NoError(t, err)
	signer := signature.NewSigner(keys)
	verifier := signature.NewVerifier(keys.PublicKey())

	b, err := NewCompiler().Compile(CompileInput{Files: createFiles(3)})
	require.NoError(t, err)

	require.NoError(t, Sign(b, signer))
	require.NotNil(t, b.Signature)

	verdict, err := Verify(b, verifier)
	require.NoError(t, err)
	assert.True(t, verdict.Valid)

	// Any post-signing mutation must be detected.
	b.Files[0].Content = "tampered"
	verdict, err = Verify(b, verifier)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
}

func TestVerify_UnsignedBundleRejected(t *testing.T) {
	keys, err := signature.LoadOrCreate(t.TempDir(), "bundle-key")
	require.NoError(t, err)
	verifier := signature.NewVerifier(keys.PublicKey())

	b, err := NewCompiler().Compile(CompileInput{Files: createFiles(1)})
	require.NoError(t, err)

	verdict, err := Verify(b, verifier)
	require.NoError(t, err)
	assert.False(t, verdict.Valid)
	assert.Equal(t, "no signature present", verdict.Reason)
}
