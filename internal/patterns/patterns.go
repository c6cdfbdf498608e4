// Package patterns pre-plans multi-step shell probes that enrich AI
// context. A pattern pairs a regex trigger with an ordered sequence of
// steps; step commands are either static strings or functions of the
// context accumulated so far.
package patterns

import (
	"fmt"
	"regexp"
	"sync"
)

// Context is the accumulated output of executed steps, keyed by each
// step's extract key.
type Context map[string]interface{}

// Command is a tagged variant: exactly one of Static or Dynamic is set.
// Keeping commands as data (not closures on the pattern) leaves static
// patterns serializable.
type Command struct {
	Static  string
	Dynamic func(ctx Context) []string
}

// IsDynamic reports which arm of the variant is populated.
func (c Command) IsDynamic() bool {
	return c.Dynamic != nil
}

// Step is one probe in a pattern's sequence.
type Step struct {
	ID      string
	Command Command
	// Parse transforms raw shell output before storage; nil stores raw.
	Parse func(output string) (interface{}, error)
	// Extract is the context key the (parsed) output lands under.
	Extract string
	// Optional steps do not block plan completion.
	Optional bool
	// Aggregate appends into a slice instead of overwriting.
	Aggregate bool
}

// Pattern is a named trigger with its probe sequence.
type Pattern struct {
	Name     string
	Matcher  *regexp.Regexp
	Sequence []Step
	// Aggregator folds the final context into a structured result.
	Aggregator func(ctx Context) interface{}
}

// Plan is one in-flight execution of a pattern.
type Plan struct {
	Pattern  *Pattern
	Context  Context
	executed map[string]bool
	mu       sync.Mutex
}

// PlannedCommand pairs a shell command with the step that produced it.
type PlannedCommand struct {
	StepID  string
	Command string
}

// Registry holds patterns in registration order; Match is first-wins.
type Registry struct {
	mu       sync.RWMutex
	patterns []*Pattern
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a pattern. Registration order is match priority.
func (r *Registry) Register(p *Pattern) error {
	if p.Name == "" || p.Matcher == nil {
		return fmt.Errorf("patterns: register: pattern needs a name and matcher")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, p)
	return nil
}

// Patterns returns the registered patterns in order.
func (r *Registry) Patterns() []*Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pattern, len(r.patterns))
	copy(out, r.patterns)
	return out
}

// Match returns a fresh plan for the first pattern whose matcher hits, or
// nil when no pattern applies.
func (r *Registry) Match(question string) *Plan {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.patterns {
		if p.Matcher.MatchString(question) {
			return &Plan{
				Pattern:  p,
				Context:  make(Context),
				executed: make(map[string]bool),
			}
		}
	}
	return nil
}

// NextCommands returns the next batch of commands to run. A dynamic step
// returning an empty command list counts as executed immediately and the
// walk continues to the following step.
func (p *Plan) NextCommands() []PlannedCommand {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, step := range p.Pattern.Sequence {
		if p.executed[step.ID] {
			continue
		}
		if step.Command.IsDynamic() {
			cmds := step.Command.Dynamic(p.Context)
			if len(cmds) == 0 {
				p.executed[step.ID] = true
				continue
			}
			out := make([]PlannedCommand, len(cmds))
			for i, c := range cmds {
				out[i] = PlannedCommand{StepID: step.ID, Command: c}
			}
			return out
		}
		return []PlannedCommand{{StepID: step.ID, Command: step.Command.Static}}
	}
	return nil
}

// UpdateContext marks a step executed and stores its parsed output under
// the step's extract key, appending into a slice when aggregate is set.
func (p *Plan) UpdateContext(stepID, output string) error {
	step := p.findStep(stepID)
	if step == nil {
		return fmt.Errorf("patterns: update context: unknown step %q", stepID)
	}

	var value interface{} = output
	if step.Parse != nil {
		parsed, err := step.Parse(output)
		if err != nil {
			return fmt.Errorf("patterns: parse step %q: %w", stepID, err)
		}
		value = parsed
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.executed[stepID] = true
	key := step.Extract
	if key == "" {
		key = stepID
	}
	if step.Aggregate {
		existing, _ := p.Context[key].([]interface{})
		p.Context[key] = append(existing, value)
	} else {
		p.Context[key] = value
	}
	return nil
}

// IsComplete reports whether every non-optional step has executed.
func (p *Plan) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, step := range p.Pattern.Sequence {
		if step.Optional {
			continue
		}
		if !p.executed[step.ID] {
			return false
		}
	}
	return true
}

// Aggregate runs the pattern's aggregator over the accumulated context.
// Without an aggregator the raw context is returned.
func (p *Plan) Aggregate() interface{} {
	p.mu.Lock()
	ctx := make(Context, len(p.Context))
	for k, v := range p.Context {
		ctx[k] = v
	}
	p.mu.Unlock()

	if p.Pattern.Aggregator != nil {
		return p.Pattern.Aggregator(ctx)
	}
	return ctx
}

func (p *Plan) findStep(stepID string) *Step {
	for i := range p.Pattern.Sequence {
		if p.Pattern.Sequence[i].ID == stepID {
			return &p.Pattern.Sequence[i]
		}
	}
	return nil
}
