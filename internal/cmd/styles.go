package cmd

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// palette renders CLI output, in colour only when enabled.
type palette struct {
	header lipgloss.Style
	dim    lipgloss.Style
	key    lipgloss.Style
	ok     lipgloss.Style
	fail   lipgloss.Style
	warn   lipgloss.Style
	info   lipgloss.Style
}

// colorEnabled resolves an output.color mode for w. "auto" colours only when
// w is a terminal.
func colorEnabled(w io.Writer, mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newPalette(w io.Writer, color bool) palette {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	return palette{
		header: r.NewStyle().Bold(true),
		dim:    r.NewStyle().Foreground(lipgloss.Color("245")),
		key:    r.NewStyle().Foreground(lipgloss.Color("39")),
		ok:     r.NewStyle().Foreground(lipgloss.Color("42")),
		fail:   r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		warn:   r.NewStyle().Foreground(lipgloss.Color("214")),
		info:   r.NewStyle().Foreground(lipgloss.Color("33")),
	}
}

// terminalWidth returns the width of w when it is a terminal, or fallback.
func terminalWidth(w io.Writer, fallback int) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return fallback
}
