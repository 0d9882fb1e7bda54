package main

import "github.com/charmbracelet/lipgloss"

// Palette shared by the progress line.
var (
	salmonPink = lipgloss.Color("#FFB3BA")
	mintGreen  = lipgloss.Color("#A8E6CF")
	mutedGray  = lipgloss.Color("#6B7280")
)

var (
	spinnerStyle = lipgloss.NewStyle().Foreground(salmonPink)

	titleStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	stateStyle = lipgloss.NewStyle().
			Foreground(mintGreen)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	eventStyle = lipgloss.NewStyle().
			Foreground(mutedGray).
			Italic(true)
)
