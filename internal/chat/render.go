package chat

import (
	"fmt"
	"io"
	"os"
	"strings"

	"charm.land/glamour/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/mcpterm/mcpterm/internal/eventbus"
	"github.com/mcpterm/mcpterm/internal/types"
)

var (
	styleDim    = lipgloss.NewStyle().Faint(true)
	styleError  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleNotice = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// Renderer prints answers and session events to the terminal.
type Renderer struct {
	out   io.Writer
	color bool
}

// NewRenderer probes the output for color support.
func NewRenderer(out io.Writer) *Renderer {
	color := termenv.NewOutput(os.Stdout).ColorProfile() != termenv.Ascii
	if os.Getenv("NO_COLOR") != "" {
		color = false
	}
	return &Renderer{out: out, color: color}
}

// Answer renders a completed AI answer as markdown, falling back to the raw
// text when glamour is unavailable. Word-wraps at terminal width, capped
// for readability.
func (r *Renderer) Answer(text string) {
	fmt.Fprint(r.out, "\r\n"+r.markdown(text)+"\r\n")
}

func (r *Renderer) markdown(text string) string {
	if !r.color {
		return text
	}
	const maxReadableWidth = 100
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	if width > maxReadableWidth {
		width = maxReadableWidth
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return text
	}
	rendered, err := renderer.Render(text)
	if err != nil {
		return text
	}
	// Raw mode needs CRLF line endings.
	return strings.ReplaceAll(strings.TrimRight(rendered, "\n"), "\n", "\r\n")
}

// Notice prints a highlighted one-liner (cancellations, offline fallback).
func (r *Renderer) Notice(msg string) {
	fmt.Fprint(r.out, r.styled(styleNotice, msg)+"\r\n")
}

// Errorf prints an error line.
func (r *Renderer) Errorf(format string, args ...interface{}) {
	fmt.Fprint(r.out, r.styled(styleError, fmt.Sprintf(format, args...))+"\r\n")
}

// Dim prints a low-emphasis line (progress, hints).
func (r *Renderer) Dim(msg string) {
	fmt.Fprint(r.out, r.styled(styleDim, msg)+"\r\n")
}

func (r *Renderer) styled(s lipgloss.Style, msg string) string {
	if !r.color {
		return msg
	}
	return s.Render(msg)
}

// Handler adapts the renderer to the event bus: progress lines while a
// plan's probes run, notices for cancellations and errors.
func (r *Renderer) Handler() eventbus.Handler {
	return &eventbus.HandlerFunc{
		Name: "renderer",
		Types: []eventbus.EventType{
			eventbus.EventProgress,
			eventbus.EventStatusChange,
			eventbus.EventError,
		},
		Prio: 10,
		Fn: func(e eventbus.Event) error {
			switch e.Type {
			case eventbus.EventProgress:
				r.Dim("  " + e.Message)
			case eventbus.EventStatusChange:
				if e.Status == types.StatusCancelled && e.Message != "" {
					r.Notice(e.Message)
				}
			case eventbus.EventError:
				r.Errorf("%s", e.Message)
			}
			return nil
		},
	}
}
