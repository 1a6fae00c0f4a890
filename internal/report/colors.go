package report

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// ColorScheme defines the colors used for the text summary.
type ColorScheme struct {
	Title   *color.Color
	Section *color.Color
	Label   *color.Color
	Value   *color.Color
	Pass    *color.Color
	Fail    *color.Color
	Muted   *color.Color
}

// DefaultColorScheme returns the default color scheme with colors forced on.
func DefaultColorScheme() *ColorScheme {
	s := &ColorScheme{
		Title:   color.New(color.FgMagenta, color.Bold),
		Section: color.New(color.FgBlue, color.Bold),
		Label:   color.New(color.FgWhite),
		Value:   color.New(color.FgCyan),
		Pass:    color.New(color.FgGreen, color.Bold),
		Fail:    color.New(color.FgRed, color.Bold),
		Muted:   color.New(color.Faint),
	}
	for _, c := range s.all() {
		c.EnableColor()
	}
	return s
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	s := DefaultColorScheme()
	for _, c := range s.all() {
		c.DisableColor()
	}
	return s
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Section, s.Label, s.Value, s.Pass, s.Fail, s.Muted}
}

// icon returns a check or cross mark.
func (s *ColorScheme) icon(passed bool) string {
	if passed {
		return s.Pass.Sprint("✓")
	}
	return s.Fail.Sprint("✗")
}

// IsTerminal reports whether f is a terminal, so callers can decide whether
// to colour the text summary.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
