package controller

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcpterm/mcpterm/internal/ai"
	"github.com/mcpterm/mcpterm/internal/debug"
	"github.com/mcpterm/mcpterm/internal/eventbus"
	"github.com/mcpterm/mcpterm/internal/types"
)

// runPlan consults the pattern planner and, on a match, walks the plan's
// probe commands through the shell, feeding each output back into the plan
// context. Returns the aggregated diagnostic data serialized for the
// prompt, or "" when no pattern matched or probing failed outright.
func (c *Controller) runPlan(ctx context.Context, requestID, question string) string {
	if c.patterns == nil || c.shell == nil {
		return ""
	}
	plan := c.patterns.Match(question)
	if plan == nil {
		return ""
	}
	debug.Logf("controller: %s matched pattern %s", requestID, plan.Pattern.Name)

	for !plan.IsComplete() {
		if c.isCancelled(requestID) || ctx.Err() != nil {
			return ""
		}
		batch := plan.NextCommands()
		if len(batch) == 0 {
			break
		}
		for _, pc := range batch {
			if c.isCancelled(requestID) || ctx.Err() != nil {
				return ""
			}
			c.bus.Publish(eventbus.Event{
				Type:      eventbus.EventProgress,
				RequestID: requestID,
				Message:   fmt.Sprintf("running %s", pc.Command),
			})
			out, err := c.shell.Run(ctx, pc.Command)
			if err != nil {
				debug.Logf("controller: probe %q: %v", pc.Command, err)
				out = ""
			}
			if err := plan.UpdateContext(pc.StepID, out); err != nil {
				debug.Logf("controller: plan context: %v", err)
				return ""
			}
		}
	}

	agg := plan.Aggregate()
	if agg == nil {
		return ""
	}
	if s, ok := agg.(string); ok {
		return s
	}
	blob, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return fmt.Sprint(agg)
	}
	return string(blob)
}

// conversationHistory rebuilds the model's view of this session from the
// local cache; cancelled turns become a synthetic interruption marker so
// the model knows the prior answer never arrived.
func (c *Controller) conversationHistory(ctx context.Context) ([]ai.Message, error) {
	if c.sessionID == "" {
		return nil, nil
	}
	entries, err := c.local.GetHistory(ctx, types.HistoryFilter{SessionID: c.sessionID}, conversationWindow, 0)
	if err != nil {
		return nil, err
	}

	// Newest-first from the store; the model wants chronological order.
	msgs := make([]ai.Message, 0, len(entries)*2)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		switch e.Status {
		case types.StatusCompleted:
			msgs = append(msgs,
				ai.Message{Role: "user", Content: e.Command},
				ai.Message{Role: "assistant", Content: e.Response},
			)
		case types.StatusCancelled:
			msgs = append(msgs,
				ai.Message{Role: "user", Content: e.Command},
				ai.Message{Role: "assistant", Content: types.InterruptionMarker},
			)
		default:
			// pending/processing/error turns carry no usable answer.
		}
	}
	return msgs, nil
}
