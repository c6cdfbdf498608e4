package eventbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mcpterm/mcpterm/internal/types"
)

func TestPublishNoHandlers(t *testing.T) {
	bus := New()
	// Must not panic or block.
	bus.Publish(Event{Type: EventStatusChange})
}

func TestPublishMatchesType(t *testing.T) {
	bus := New()
	var got []EventType

	bus.Register(&HandlerFunc{
		Name:  "status-only",
		Types: []EventType{EventStatusChange},
		Fn: func(e Event) error {
			got = append(got, e.Type)
			return nil
		},
	})

	bus.Publish(Event{Type: EventStatusChange, Status: types.StatusProcessing})
	bus.Publish(Event{Type: EventProgress, Message: "working"})

	assert.Equal(t, []EventType{EventStatusChange}, got)
}

func TestPriorityOrdering(t *testing.T) {
	bus := New()
	var order []string

	add := func(name string, prio int) {
		bus.Register(&HandlerFunc{
			Name:  name,
			Types: []EventType{EventError},
			Prio:  prio,
			Fn: func(Event) error {
				order = append(order, name)
				return nil
			},
		})
	}
	add("late", 10)
	add("early", 1)
	add("mid", 5)

	bus.Publish(Event{Type: EventError, Kind: "AIError"})
	assert.Equal(t, []string{"early", "mid", "late"}, order)
}

func TestHandlerErrorDoesNotStopChain(t *testing.T) {
	bus := New()
	var reached bool

	bus.Register(&HandlerFunc{
		Name:  "failing",
		Types: []EventType{EventProgress},
		Prio:  0,
		Fn:    func(Event) error { return errors.New("boom") },
	})
	bus.Register(&HandlerFunc{
		Name:  "after",
		Types: []EventType{EventProgress},
		Prio:  1,
		Fn: func(Event) error {
			reached = true
			return nil
		},
	})

	bus.Publish(Event{Type: EventProgress})
	assert.True(t, reached)
}
