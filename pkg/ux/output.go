// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the forgeline CLI.
//
// Styled output is used only when stdout is a terminal; pipes and
// redirects get plain text so scripts can parse it.
package ux

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Forgeline color palette
var (
	ColorEmber  = lipgloss.Color("#F2994A") // Ember orange - brand color
	ColorFlame  = lipgloss.Color("#EB5757") // Flame red - errors
	ColorSteel  = lipgloss.Color("#7B8FA1") // Cool steel - muted text
	ColorIron   = lipgloss.Color("#3E4C59") // Iron - borders
	ColorSpark  = lipgloss.Color("#F2C94C") // Spark gold - warnings
	ColorPatina = lipgloss.Color("#6FCF97") // Patina green - success
	ColorOxide  = lipgloss.Color("#56CCF2") // Oxide blue - highlights
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorEmber),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSteel),
	Success:   lipgloss.NewStyle().Foreground(ColorPatina),
	Warning:   lipgloss.NewStyle().Foreground(ColorSpark),
	Error:     lipgloss.NewStyle().Foreground(ColorFlame),
	Highlight: lipgloss.NewStyle().Foreground(ColorOxide).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorIron).
		Padding(0, 1),
}

// plain forces unstyled output. Defaults to true when stdout is not a
// terminal.
var plain atomic.Bool

func init() {
	fd := os.Stdout.Fd()
	plain.Store(!isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd))
}

// SetPlain forces plain output regardless of terminal detection.
func SetPlain(on bool) {
	plain.Store(on)
}

// Plain reports whether output is unstyled.
func Plain() bool {
	return plain.Load()
}

// Title prints a styled section title.
func Title(text string) {
	if plain.Load() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with a checkmark.
func Success(text string) {
	if plain.Load() {
		fmt.Printf("OK: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Success.Render("✓"), Styles.Success.Render(text))
}

// Warning prints a warning message.
func Warning(text string) {
	if plain.Load() {
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Warning.Render("⚠"), Styles.Warning.Render(text))
}

// Error prints an error message.
func Error(text string) {
	if plain.Load() {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Error.Render("✗"), Styles.Error.Render(text))
}

// Info prints an informational line.
func Info(text string) {
	if plain.Load() {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text.
func Muted(text string) {
	if plain.Load() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// Box prints content in a rounded box with a title.
func Box(title, content string) {
	if plain.Load() {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	titleLine := Styles.Title.Render(title)
	fmt.Println(Styles.Box.Width(60).Render(titleLine + "\n" + content))
}
