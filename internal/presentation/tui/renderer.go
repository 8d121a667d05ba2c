package tui

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// Renderer formats an agent reply for display.
type Renderer func(string) (string, error)

// Plain returns replies unchanged apart from a trailing newline.
func Plain(s string) (string, error) {
	return strings.TrimRight(s, "\n") + "\n", nil
}

// NewRenderer returns a glamour markdown renderer wrapped at width columns.
// A width of zero keeps glamour's default.
func NewRenderer(width int) (Renderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// RendererFor picks the glamour renderer for terminals and Plain otherwise.
func RendererFor(w io.Writer) Renderer {
	if !IsTerminal(w) {
		return Plain
	}
	width := 0
	if f, ok := w.(*os.File); ok {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 4 {
			width = cols - 4
		}
	}
	r, err := NewRenderer(width)
	if err != nil {
		return Plain
	}
	return r
}
