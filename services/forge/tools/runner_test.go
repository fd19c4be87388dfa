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
	"bytes"
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_Run_Success(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires POSIX shell utilities")
	}
	r := NewRunner(t.TempDir())

	result, err := r.Run(context.Background(), "echo hello")

	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, 0, result.ExitCode)
	assert.Contains(t, result.Output, "hello")
	assert.False(t, result.TimedOut)
}

func TestRunner_Run_NonZeroExit(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires POSIX shell utilities")
	}
	r := NewRunner(t.TempDir())

	result, err := r.Run(context.Background(), "false")

	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Equal(t, 1, result.ExitCode)
}

func TestRunner_Run_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires POSIX shell utilities")
	}
	r := NewRunner(t.TempDir(), WithTimeout(100*time.Millisecond))

	result, err := r.Run(context.Background(), "sleep 5")

	require.ErrorIs(t, err, ErrCommandTimeout)
	require.NotNil(t, result)
	assert.True(t, result.TimedOut)
	assert.Equal(t, -1, result.ExitCode)
}

func TestRunner_Run_InputValidation(t *testing.T) {
	r := NewRunner(t.TempDir())

	_, err := r.Run(nil, "echo hi") //nolint:staticcheck // nil context rejection under test
	assert.ErrorIs(t, err, ErrNilContext)

	_, err = r.Run(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestLimitedWriter_TruncatesAtLimit(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 5}

	n, err := lw.Write([]byte("hello world"))

	require.NoError(t, err)
	assert.Equal(t, 11, n, "reports original length")
	assert.Equal(t, "hello", buf.String())
	assert.True(t, lw.truncated)

	n, err = lw.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "hello", buf.String())
}

func TestOSFileSystem_RoundTrip(t *testing.T) {
	fs := NewOSFileSystem(t.TempDir())

	require.NoError(t, fs.WriteFile("nested/dir/a.txt", []byte("content"), 0o644))

	ok, err := fs.Exists("nested/dir/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := fs.ReadFile("nested/dir/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	require.NoError(t, fs.Remove("nested/dir/a.txt"))
	ok, err = fs.Exists("nested/dir/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing a missing file is not an error.
	assert.NoError(t, fs.Remove("nested/dir/a.txt"))
}
