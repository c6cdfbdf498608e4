// Package chat runs the interactive terminal session: a raw-mode line
// editor in front of the request controller, with ESC cancellation and
// markdown-rendered answers.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/mcpterm/mcpterm/internal/controller"
	"github.com/mcpterm/mcpterm/internal/debug"
	"github.com/mcpterm/mcpterm/internal/eventbus"
	"github.com/mcpterm/mcpterm/internal/history"
	"github.com/mcpterm/mcpterm/internal/syncengine"
	"github.com/mcpterm/mcpterm/internal/types"
)

const (
	enablePaste  = "\x1b[?2004h"
	disablePaste = "\x1b[?2004l"
)

// Session wires the editor, controller, and renderer into one REPL.
type Session struct {
	ctrl     *controller.Controller
	view     *history.View
	engine   *syncengine.Engine
	bus      *eventbus.Bus
	renderer *Renderer

	in       io.Reader
	out      io.Writer
	username string
}

// Options configures a session. Engine and View are optional.
type Options struct {
	Controller *controller.Controller
	View       *history.View
	Engine     *syncengine.Engine
	Bus        *eventbus.Bus
	Username   string

	// In/Out default to the process terminal.
	In  io.Reader
	Out io.Writer
}

// NewSession builds a session and registers the renderer on the bus.
func NewSession(opts Options) (*Session, error) {
	if opts.Controller == nil {
		return nil, errors.New("chat: controller required")
	}
	bus := opts.Bus
	if bus == nil {
		bus = eventbus.New()
	}
	in := opts.In
	if in == nil {
		in = os.Stdin
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	r := NewRenderer(out)
	bus.Register(r.Handler())
	return &Session{
		ctrl:     opts.Controller,
		view:     opts.View,
		engine:   opts.Engine,
		bus:      bus,
		renderer: r,
		in:       in,
		out:      out,
		username: opts.Username,
	}, nil
}

// Run drives the REPL until exit. The terminal is switched to raw mode with
// bracketed paste on; both are restored on every exit path, panics included.
func (s *Session) Run(ctx context.Context) (err error) {
	fd := -1
	if f, ok := s.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}

	var restore func()
	if fd >= 0 {
		oldState, rawErr := term.MakeRaw(fd)
		if rawErr != nil {
			return fmt.Errorf("chat: raw mode: %w", rawErr)
		}
		fmt.Fprint(s.out, enablePaste)
		restore = func() {
			fmt.Fprint(s.out, disablePaste)
			_ = term.Restore(fd, oldState)
		}
		defer func() {
			if r := recover(); r != nil {
				restore()
				panic(r)
			}
			restore()
		}()
	}

	s.banner()

	keys := make(chan Key, 64)
	go func() {
		defer close(keys)
		dec := NewDecoder(s.in)
		for {
			k, kerr := dec.Next()
			if kerr != nil {
				return
			}
			select {
			case keys <- k:
			case <-ctx.Done():
				return
			}
		}
	}()

	editor := NewEditor(keys, s.out, s.bus)

	for {
		line, sig, rerr := editor.ReadLine(ctx)
		if rerr != nil {
			if errors.Is(rerr, context.Canceled) {
				return nil
			}
			return rerr
		}
		switch sig {
		case SigExit, SigEOF:
			s.shutdown()
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := s.metaCommand(ctx, line); quit {
				s.shutdown()
				return nil
			}
			continue
		}

		s.ask(ctx, keys, line)
	}
}

// ask runs one question, watching the key stream so ESC can cancel the
// in-flight request without tearing the session down.
func (s *Session) ask(ctx context.Context, keys <-chan Key, question string) {
	type outcome struct {
		res controller.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.ctrl.Ask(ctx, question)
		done <- outcome{res, err}
	}()

	s.renderer.Dim("thinking... (ESC to cancel)")

	for {
		select {
		case <-ctx.Done():
			s.ctrl.CancelActive()
			return
		case k, ok := <-keys:
			if !ok {
				continue
			}
			if k.Type == KeyEsc || k.Type == KeyCtrlC {
				if _, cancelled := s.ctrl.CancelActive(); cancelled {
					debug.Logf("chat: user cancelled in-flight question")
				}
			}
		case out := <-done:
			s.finish(out.res, out.err)
			return
		}
	}
}

func (s *Session) finish(res controller.Result, err error) {
	switch {
	case err != nil && !errors.Is(err, types.ErrAICancelled):
		s.renderer.Errorf("error: %v", err)
	case res.Status == types.StatusCancelled:
		// The cancellation notice already went out via the event bus.
	default:
		s.renderer.Answer(res.Answer)
		if debug.Enabled() {
			s.renderer.Dim(fmt.Sprintf("  %s  %d tokens  %dms",
				res.RequestID, res.TokensUsed, res.DurationMs))
		}
	}
}

func (s *Session) banner() {
	who := s.username
	if who == "" {
		who = "anonymous"
	}
	mode := "synced"
	if s.ctrl.Offline() {
		mode = "local-only"
	}
	s.renderer.Dim(fmt.Sprintf("mct chat  user=%s  history=%s  (/help for commands)", who, mode))
}

// shutdown flushes pending work before the prompt exits.
func (s *Session) shutdown() {
	if s.engine != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := s.engine.ForceSync(flushCtx); err != nil {
			debug.Logf("chat: exit sync: %v", err)
		}
	}
	s.ctrl.Close()
	s.renderer.Dim("bye")
}
