// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetPlain(t *testing.T) {
	orig := Plain()
	t.Cleanup(func() { SetPlain(orig) })

	SetPlain(true)
	assert.True(t, Plain())

	SetPlain(false)
	assert.False(t, Plain())
}

func TestStylesConfigured(t *testing.T) {
	assert.True(t, Styles.Title.GetBold())
	assert.True(t, Styles.Bold.GetBold())
	assert.Equal(t, ColorPatina, Styles.Success.GetForeground())
	assert.Equal(t, ColorFlame, Styles.Error.GetForeground())
	assert.Equal(t, ColorSpark, Styles.Warning.GetForeground())
}
