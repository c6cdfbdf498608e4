package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mcpterm/mcpterm/internal/eventbus"
)

// Signal is the non-text outcome of a ReadLine call.
type Signal int

const (
	// SigLine means a complete input line was submitted.
	SigLine Signal = iota
	// SigExit means the user asked to leave (double Ctrl-C).
	SigExit
	// SigEOF means the input stream ended (Ctrl-D or closed stdin).
	SigEOF
)

const (
	prompt       = "> "
	contPrompt   = "... "
	ctrlCWindow  = 2 * time.Second
	doubleEscGap = 500 * time.Millisecond
)

// Editor is a minimal raw-mode line editor fed by decoded keys: rune input,
// backspace, arrow-key history recall, trailing-backslash continuation, and
// bracketed paste passthrough.
type Editor struct {
	keys <-chan Key
	out  io.Writer
	bus  *eventbus.Bus

	history []string
	histPos int

	ctrlCArmedAt time.Time
	lastEscAt    time.Time
}

// NewEditor builds an editor over a key stream. bus may be nil.
func NewEditor(keys <-chan Key, out io.Writer, bus *eventbus.Bus) *Editor {
	if bus == nil {
		bus = eventbus.New()
	}
	return &Editor{keys: keys, out: out, bus: bus}
}

// ReadLine collects one logical input line. Lines ending in a backslash
// continue on the next physical line; pasted newlines are kept verbatim.
func (e *Editor) ReadLine(ctx context.Context) (string, Signal, error) {
	var buf []rune
	var parts []string
	pasting := false
	e.histPos = len(e.history)

	fmt.Fprint(e.out, prompt)

	for {
		var key Key
		var ok bool
		select {
		case <-ctx.Done():
			return "", SigEOF, ctx.Err()
		case key, ok = <-e.keys:
			if !ok {
				return "", SigEOF, nil
			}
		}

		switch key.Type {
		case KeyRune:
			buf = append(buf, key.Rune)
			fmt.Fprintf(e.out, "%c", key.Rune)

		case KeyBackspace:
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
				fmt.Fprint(e.out, "\b \b")
			}

		case KeyEnter:
			line := string(buf)
			if pasting {
				buf = append(buf, '\n')
				fmt.Fprint(e.out, "\r\n")
				continue
			}
			if strings.HasSuffix(line, "\\") {
				if len(parts) == 0 {
					e.bus.Publish(eventbus.Event{Type: eventbus.EventMultilineBegin})
				}
				parts = append(parts, strings.TrimSuffix(line, "\\"))
				buf = buf[:0]
				fmt.Fprint(e.out, "\r\n"+contPrompt)
				continue
			}
			fmt.Fprint(e.out, "\r\n")
			if len(parts) > 0 {
				e.bus.Publish(eventbus.Event{Type: eventbus.EventMultilineEnd})
				line = strings.Join(append(parts, line), "\n")
			}
			if strings.TrimSpace(line) != "" {
				e.history = append(e.history, line)
			}
			return line, SigLine, nil

		case KeyEsc:
			now := time.Now()
			if now.Sub(e.lastEscAt) < doubleEscGap {
				// Double ESC abandons a multi-line draft entirely.
				parts = parts[:0]
			}
			e.lastEscAt = now
			buf = buf[:0]
			e.redraw(parts, buf)

		case KeyUp:
			if pasting || len(parts) > 0 {
				continue
			}
			if e.histPos > 0 {
				e.histPos--
				buf = []rune(e.history[e.histPos])
				e.redraw(parts, buf)
			}

		case KeyDown:
			if pasting || len(parts) > 0 {
				continue
			}
			if e.histPos < len(e.history)-1 {
				e.histPos++
				buf = []rune(e.history[e.histPos])
			} else {
				e.histPos = len(e.history)
				buf = buf[:0]
			}
			e.redraw(parts, buf)

		case KeyCtrlC:
			if len(buf) > 0 || len(parts) > 0 {
				buf = buf[:0]
				parts = parts[:0]
				fmt.Fprint(e.out, "^C\r\n"+prompt)
				continue
			}
			now := time.Now()
			if now.Sub(e.ctrlCArmedAt) < ctrlCWindow {
				fmt.Fprint(e.out, "\r\n")
				return "", SigExit, nil
			}
			e.ctrlCArmedAt = now
			fmt.Fprint(e.out, "\r\n(press Ctrl-C again to exit)\r\n"+prompt)

		case KeyCtrlD:
			if len(buf) == 0 && len(parts) == 0 {
				fmt.Fprint(e.out, "\r\n")
				return "", SigEOF, nil
			}

		case KeyPasteStart:
			pasting = true
			e.bus.Publish(eventbus.Event{Type: eventbus.EventPasteDetected})

		case KeyPasteEnd:
			pasting = false
		}
	}
}

// redraw repaints the current physical line.
func (e *Editor) redraw(parts []string, buf []rune) {
	p := prompt
	if len(parts) > 0 {
		p = contPrompt
	}
	fmt.Fprint(e.out, "\r\x1b[K"+p+string(buf))
}
