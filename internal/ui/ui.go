// Package ui provides terminal styling for the CLI output: colored status
// lines for analysis results, progress updates and the review queue.
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/bpmx/internal/models"
	"github.com/desertthunder/bpmx/internal/tasks"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// Title renders a section heading.
func Title(text string) string {
	return styles.title.Render(text)
}

// Help renders secondary hint text.
func Help(text string) string {
	return styles.help.Render(text)
}

// StatusLine colors a rendered summary line according to the record's state:
// mismatches render as warnings, failures as errors, results as successes.
func StatusLine(record *models.TrackAnalysis, summary string) string {
	switch {
	case record.ISRCMismatch:
		return styles.warn.Render(summary)
	case record.Error != nil:
		return styles.err.Render(summary)
	default:
		return styles.ok.Render(summary)
	}
}

// Progress renders one pipeline progress update as a single line.
func Progress(update tasks.ProgressUpdate) string {
	line := fmt.Sprintf("[%d/%d] %s", update.Step, update.Total, update.Phase)
	if update.Message != "" {
		line += ": " + update.Message
	}
	return styles.help.Render(line)
}
