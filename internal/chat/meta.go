package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mcpterm/mcpterm/internal/types"
)

// metaCommand dispatches a /slash command. Returns true when the session
// should end.
func (s *Session) metaCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/exit", "/quit":
		return true

	case "/help":
		s.renderer.Dim(strings.Join([]string{
			"/help           show this help",
			"/history [n]    show the last n answered questions (default 10)",
			"/status         sync and connection status",
			"/clear          clear the screen",
			"/exit           leave the session",
			"",
			"ESC cancels a question in flight. End a line with \\ to continue it.",
		}, "\r\n"))

	case "/clear":
		fmt.Fprint(s.out, "\x1b[2J\x1b[H")

	case "/history":
		s.showHistory(ctx, args)

	case "/status":
		s.showStatus(ctx)

	default:
		s.renderer.Errorf("unknown command %s (try /help)", cmd)
	}
	return false
}

func (s *Session) showHistory(ctx context.Context, args []string) {
	if s.view == nil {
		s.renderer.Errorf("history unavailable")
		return
	}
	limit := 10
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.view.Get(ctx, types.HistoryFilter{}, limit, 0)
	if err != nil {
		s.renderer.Errorf("history: %v", err)
		return
	}
	if len(entries) == 0 {
		s.renderer.Dim("no history yet")
		return
	}
	for _, e := range entries {
		ts := time.Unix(e.Timestamp, 0).Format("Jan 02 15:04")
		s.renderer.Dim(fmt.Sprintf("%s  [%s]  %s", ts, e.Status, firstLine(e.Command)))
	}
}

func (s *Session) showStatus(ctx context.Context) {
	if s.ctrl.Offline() {
		s.renderer.Notice("remote: offline (local history only)")
	} else {
		s.renderer.Dim("remote: connected")
	}
	if s.engine == nil {
		s.renderer.Dim("sync: disabled")
		return
	}
	st, err := s.engine.Status(ctx)
	if err != nil {
		s.renderer.Errorf("sync status: %v", err)
		return
	}
	last := "never"
	if !st.LastSync.IsZero() {
		last = st.LastSync.Format(time.RFC3339)
	}
	s.renderer.Dim(fmt.Sprintf("sync: last=%s pending=%d uploaded=%d downloaded=%d conflicts=%d",
		last, st.Pending, st.Last.Uploaded, st.Last.Downloaded, st.Last.Conflicts))
	if st.LastErr != nil {
		s.renderer.Errorf("sync: last error: %v", st.LastErr)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
