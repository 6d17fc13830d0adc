// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the driftgate CLI.
package ux

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
)

// Driftgate color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, passing gates
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	// Semantic colors (keeping standard conventions for clarity)
	ColorPass = lipgloss.Color("#2CD7C7") // Bright teal for a passing gate
	ColorWarn = lipgloss.Color("#F4D03F") // Gold/amber for canary warnings
	ColorFail = lipgloss.Color("#E74C3C") // Red for a failing gate
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Pass      lipgloss.Style
	Warn      lipgloss.Style
	Fail      lipgloss.Style
	Highlight lipgloss.Style

	Box lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Pass:      lipgloss.NewStyle().Foreground(ColorPass),
	Warn:      lipgloss.NewStyle().Foreground(ColorWarn),
	Fail:      lipgloss.NewStyle().Foreground(ColorFail),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconPass   Icon = "✓"
	IconWarn   Icon = "⚠"
	IconFail   Icon = "✗"
	IconArrow  Icon = "→"
	IconBullet Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	if plainMode() {
		return string(i)
	}
	switch i {
	case IconPass:
		return Styles.Pass.Render(string(i))
	case IconWarn:
		return Styles.Warn.Render(string(i))
	case IconFail:
		return Styles.Fail.Render(string(i))
	default:
		return string(i)
	}
}

// plain disables styling entirely, for pipes and CI logs. Also honors
// the NO_COLOR convention.
var plain atomic.Bool

// SetPlain toggles plain output mode.
func SetPlain(v bool) { plain.Store(v) }

func plainMode() bool {
	if plain.Load() {
		return true
	}
	_, noColor := os.LookupEnv("NO_COLOR")
	return noColor
}

// Title prints a styled section title.
func Title(text string) {
	if plainMode() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Pass prints a passing verdict line with checkmark.
func Pass(text string) {
	if plainMode() {
		fmt.Printf("PASS: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconPass.Render(), Styles.Pass.Render(text))
}

// Warn prints a warning line.
func Warn(text string) {
	if plainMode() {
		fmt.Printf("WARN: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconWarn.Render(), Styles.Warn.Render(text))
}

// Fail prints a failing verdict line.
func Fail(text string) {
	if plainMode() {
		fmt.Printf("FAIL: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconFail.Render(), Styles.Fail.Render(text))
}

// Info prints an informational line.
func Info(text string) {
	if plainMode() {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text.
func Muted(text string) {
	if plainMode() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}
