// Package controller owns the question lifecycle: the dual-write to the
// local and remote stores, the status machine, AI invocation, and
// fine-grained cancellation. One controller serves one chat session.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpterm/mcpterm/internal/ai"
	"github.com/mcpterm/mcpterm/internal/debug"
	"github.com/mcpterm/mcpterm/internal/eventbus"
	"github.com/mcpterm/mcpterm/internal/idgen"
	"github.com/mcpterm/mcpterm/internal/patterns"
	"github.com/mcpterm/mcpterm/internal/shell"
	"github.com/mcpterm/mcpterm/internal/storage"
	"github.com/mcpterm/mcpterm/internal/types"
)

const (
	// conversationWindow bounds how many prior session turns feed the model.
	conversationWindow = 10

	// remoteWriteTimeout bounds the fire-and-forget remote status updates.
	remoteWriteTimeout = 10 * time.Second

	// cacheLookupTimeout bounds the shared-cache read on the question path.
	cacheLookupTimeout = 2 * time.Second
)

// InterruptNotice is surfaced in the session transcript when a question is
// cancelled mid-flight.
const InterruptNotice = "[User pressed ESC - Previous message was interrupted]"

// Options wires a controller's collaborators. Remote may be nil for
// local-only operation.
type Options struct {
	Local    storage.Local
	Remote   storage.Remote
	AI       ai.Provider
	Patterns *patterns.Registry
	Shell    shell.Runner
	Bus      *eventbus.Bus

	User      *types.User
	MachineID string
	SessionID string
	Scope     types.Scope
}

// Result is the outcome of one question.
type Result struct {
	RequestID  string
	Answer     string
	Status     types.Status
	TokensUsed int64
	DurationMs int64
}

// request tracks one in-flight question. The map entry is the authority on
// cancellation: a late AI answer checks it before persisting anything.
type request struct {
	command   string
	status    types.Status
	cancelAI  context.CancelFunc
	tursoID   int64
	scope     types.Scope
	startedAt time.Time
	cancelled bool
}

// Controller coordinates one session's questions.
type Controller struct {
	local    storage.Local
	remote   storage.Remote
	ai       ai.Provider
	patterns *patterns.Registry
	shell    shell.Runner
	bus      *eventbus.Bus

	user      *types.User
	machineID string
	sessionID string
	scope     types.Scope

	mu      sync.Mutex
	active  map[string]*request
	offline atomic.Bool

	// pending remote writes; Close waits for them.
	wg sync.WaitGroup
}

// New builds a controller. Local and AI are required.
func New(opts Options) (*Controller, error) {
	if opts.Local == nil {
		return nil, errors.New("controller: local store required")
	}
	if opts.AI == nil {
		return nil, errors.New("controller: AI provider required")
	}
	scope := opts.Scope
	if scope == "" {
		scope = types.ScopeHybrid
	}
	bus := opts.Bus
	if bus == nil {
		bus = eventbus.New()
	}
	return &Controller{
		local:     opts.Local,
		remote:    opts.Remote,
		ai:        opts.AI,
		patterns:  opts.Patterns,
		shell:     opts.Shell,
		bus:       bus,
		user:      opts.User,
		machineID: opts.MachineID,
		sessionID: opts.SessionID,
		scope:     scope,
		active:    make(map[string]*request),
	}, nil
}

// Offline reports whether remote writes are currently suspended.
func (c *Controller) Offline() bool { return c.offline.Load() }

// Close waits for in-flight background remote writes.
func (c *Controller) Close() { c.wg.Wait() }

func (c *Controller) userID() *int64 {
	if c.user == nil {
		return nil
	}
	return &c.user.ID
}

// Ask runs one question end to end: persist as pending in both stores,
// consult the pattern planner, transition to processing, invoke the model,
// and persist the terminal state. The ctx cancels the whole question; ESC
// cancellation goes through Cancel instead and only aborts the AI call.
func (c *Controller) Ask(ctx context.Context, question string) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, fmt.Errorf("%w: empty question", types.ErrBadInput)
	}

	requestID := idgen.NewRequestID()
	entryUUID := idgen.NewEntryID()
	started := time.Now()

	// Only one question runs at a time; a new question preempts any AI
	// call a previous one left behind.
	c.preempt()

	req := &request{
		command:   question,
		status:    types.StatusPending,
		scope:     c.scope,
		startedAt: started,
	}
	c.mu.Lock()
	c.active[requestID] = req
	c.mu.Unlock()
	defer c.release(requestID)

	meta := types.Meta{
		EntryUUID: entryUUID,
		RequestID: requestID,
		UserID:    c.userID(),
		MachineID: c.machineID,
		SessionID: c.sessionID,
		Status:    types.StatusPending,
	}

	if _, err := c.local.SaveCommand(ctx, question, "", meta); err != nil {
		return Result{}, fmt.Errorf("save question: %w", err)
	}
	c.saveRemotePending(ctx, requestID, question, meta)

	// The user may have hit ESC while the writes were in flight.
	if c.isCancelled(requestID) {
		return c.cancelledResult(requestID, started), nil
	}

	// An identical question answered on any machine skips the model.
	if cached, ok := c.cachedAnswer(ctx, question); ok {
		elapsed := time.Since(started).Milliseconds()
		c.transition(ctx, requestID, types.StatusProcessing, types.StatusExtras{})
		c.transition(ctx, requestID, types.StatusCompleted, types.StatusExtras{
			Response:        &cached,
			ExecutionTimeMs: elapsed,
		})
		return Result{
			RequestID:  requestID,
			Answer:     cached,
			Status:     types.StatusCompleted,
			DurationMs: elapsed,
		}, nil
	}

	prompt := question
	if diag := c.runPlan(ctx, requestID, question); diag != "" {
		prompt = question + "\n\nDiagnostic data collected from this machine:\n" + diag
	}
	if c.isCancelled(requestID) {
		return c.cancelledResult(requestID, started), nil
	}

	c.transition(ctx, requestID, types.StatusProcessing, types.StatusExtras{})

	history, err := c.conversationHistory(ctx)
	if err != nil {
		debug.Logf("controller: conversation history: %v", err)
		history = nil
	}

	aiCtx, cancelAI := context.WithCancel(ctx)
	defer cancelAI()
	c.mu.Lock()
	req.cancelAI = cancelAI
	c.mu.Unlock()

	answer, aiErr := c.ai.Ask(aiCtx, prompt, history)
	elapsed := time.Since(started).Milliseconds()

	// The map is authoritative: if the user cancelled while the model was
	// thinking, the answer is dropped on the floor.
	if c.isCancelled(requestID) {
		debug.Logf("controller: %s cancelled, dropping late answer", requestID)
		return c.cancelledResult(requestID, started), nil
	}

	if aiErr != nil {
		if errors.Is(aiErr, types.ErrAICancelled) || errors.Is(aiErr, context.Canceled) {
			// Preemption (or a parent context cancel) aborts the AI token
			// without going through Cancel; the row still has to land on a
			// terminal status.
			c.finalizeCancelled(requestID, elapsed)
			return c.cancelledResult(requestID, started), nil
		}
		errText := types.Truncate("Error: "+aiErr.Error(), types.MaxErrorLen)
		c.transition(ctx, requestID, types.StatusError, types.StatusExtras{
			Response:        &errText,
			ExecutionTimeMs: elapsed,
		})
		return Result{RequestID: requestID, Status: types.StatusError, DurationMs: elapsed}, aiErr
	}

	tokens := answer.InputTokens + answer.OutputTokens
	c.transition(ctx, requestID, types.StatusCompleted, types.StatusExtras{
		Response:        &answer.Text,
		TokensUsed:      tokens,
		ExecutionTimeMs: elapsed,
	})
	c.afterAnswer(question, answer.Text)

	return Result{
		RequestID:  requestID,
		Answer:     answer.Text,
		Status:     types.StatusCompleted,
		TokensUsed: tokens,
		DurationMs: elapsed,
	}, nil
}

// Cancel aborts an in-flight question. The map entry is marked first so the
// Ask goroutine sees the cancellation no matter where it is, then the AI
// token alone is cancelled and the terminal state is persisted. Remote
// persistence is fire-and-forget.
func (c *Controller) Cancel(requestID string) error {
	c.mu.Lock()
	req, ok := c.active[requestID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", requestID, types.ErrNotFound)
	}
	if req.status.IsTerminal() {
		c.mu.Unlock()
		return nil
	}
	old := req.status
	req.cancelled = true
	req.status = types.StatusCancelled
	cancelAI := req.cancelAI
	tursoID := req.tursoID
	scope := req.scope
	c.mu.Unlock()

	if cancelAI != nil {
		cancelAI()
	}

	resp := types.CancelledResponse
	extras := types.StatusExtras{Response: &resp}

	ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
	defer cancel()
	if err := c.local.UpdateStatusByRequestID(ctx, requestID, types.StatusCancelled, extras); err != nil {
		debug.Logf("controller: cancel %s local update: %v", requestID, err)
	}

	c.bus.Publish(eventbus.Event{
		Type:      eventbus.EventStatusChange,
		RequestID: requestID,
		OldStatus: old,
		Status:    types.StatusCancelled,
		Message:   InterruptNotice,
	})

	c.remoteAsync(func(ctx context.Context, remote storage.Remote) {
		n, err := remote.UpdateStatusByRequestID(ctx, requestID, types.StatusCancelled, extras)
		if err != nil {
			debug.Logf("controller: cancel %s remote update: %v", requestID, err)
			return
		}
		if n == 0 && tursoID > 0 {
			// The pending insert may not be visible under request_id yet;
			// fall back to the row id captured at insert time.
			if err := remote.UpdateStatusByRowID(ctx, scope, tursoID, types.StatusCancelled, extras); err != nil {
				debug.Logf("controller: cancel %s remote row fallback: %v", requestID, err)
			}
		}
	})
	return nil
}

// CancelActive cancels the most recently started in-flight question, if any.
func (c *Controller) CancelActive() (string, bool) {
	c.mu.Lock()
	var newest string
	var newestAt time.Time
	for id, req := range c.active {
		if req.cancelled || req.status.IsTerminal() {
			continue
		}
		if newest == "" || req.startedAt.After(newestAt) {
			newest, newestAt = id, req.startedAt
		}
	}
	c.mu.Unlock()
	if newest == "" {
		return "", false
	}
	if err := c.Cancel(newest); err != nil {
		return "", false
	}
	return newest, true
}

// ActiveStatus returns the in-flight status of a request, if still tracked.
func (c *Controller) ActiveStatus(requestID string) (types.Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.active[requestID]
	if !ok {
		return "", false
	}
	return req.status, true
}

func (c *Controller) preempt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, req := range c.active {
		if req.cancelAI != nil && !req.cancelled {
			debug.Logf("controller: preempting %s", id)
			req.cancelAI()
		}
	}
}

func (c *Controller) release(requestID string) {
	c.mu.Lock()
	delete(c.active, requestID)
	c.mu.Unlock()
}

func (c *Controller) isCancelled(requestID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.active[requestID]
	return ok && req.cancelled
}

// finalizeCancelled drives a request whose AI call was aborted outside of
// Cancel to the cancelled status in both stores. Uses a detached context so
// the audit write survives whatever cancelled the call.
func (c *Controller) finalizeCancelled(requestID string, elapsed int64) {
	c.mu.Lock()
	if req, ok := c.active[requestID]; ok {
		req.cancelled = true
	}
	c.mu.Unlock()

	resp := types.CancelledResponse
	ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
	defer cancel()
	c.transition(ctx, requestID, types.StatusCancelled, types.StatusExtras{
		Response:        &resp,
		ExecutionTimeMs: elapsed,
	})
}

func (c *Controller) cancelledResult(requestID string, started time.Time) Result {
	return Result{
		RequestID:  requestID,
		Answer:     types.CancelledResponse,
		Status:     types.StatusCancelled,
		DurationMs: time.Since(started).Milliseconds(),
	}
}

// saveRemotePending mirrors the pending row to the remote store and records
// the returned row id for the row-id cancellation fallback. A transient
// network failure drops the session into local-only mode.
func (c *Controller) saveRemotePending(ctx context.Context, requestID, question string, meta types.Meta) {
	if c.remote == nil || c.offline.Load() {
		return
	}
	id, err := c.remote.Save(ctx, c.scope, question, "", meta)
	if err != nil {
		if errors.Is(err, types.ErrNetworkTransient) {
			c.offline.Store(true)
			c.bus.Publish(eventbus.Event{
				Type:    eventbus.EventError,
				Kind:    "offline",
				Message: "remote store unreachable, continuing with local history only",
			})
		}
		debug.Logf("controller: remote save %s: %v", requestID, err)
		return
	}
	c.mu.Lock()
	if req, ok := c.active[requestID]; ok {
		req.tursoID = id
	}
	c.mu.Unlock()
}

// transition applies a legal status change to the map, the local store, and
// (asynchronously) the remote store, then publishes the change.
func (c *Controller) transition(ctx context.Context, requestID string, next types.Status, extras types.StatusExtras) {
	c.mu.Lock()
	req, ok := c.active[requestID]
	var old types.Status
	var tursoID int64
	var scope types.Scope
	if ok {
		old = req.status
		if !old.CanTransitionTo(next) {
			c.mu.Unlock()
			debug.Logf("controller: %s illegal transition %s -> %s", requestID, old, next)
			return
		}
		req.status = next
		tursoID = req.tursoID
		scope = req.scope
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	if err := c.local.UpdateStatusByRequestID(ctx, requestID, next, extras); err != nil {
		debug.Logf("controller: %s local %s: %v", requestID, next, err)
	}

	c.remoteAsync(func(ctx context.Context, remote storage.Remote) {
		n, err := remote.UpdateStatusByRequestID(ctx, requestID, next, extras)
		if err != nil {
			debug.Logf("controller: %s remote %s: %v", requestID, next, err)
			return
		}
		if n == 0 && tursoID > 0 {
			if err := remote.UpdateStatusByRowID(ctx, scope, tursoID, next, extras); err != nil {
				debug.Logf("controller: %s remote row fallback: %v", requestID, err)
			}
		}
	})

	c.bus.Publish(eventbus.Event{
		Type:      eventbus.EventStatusChange,
		RequestID: requestID,
		OldStatus: old,
		Status:    next,
	})
}

// remoteAsync runs fn against the remote store in the background. No-op
// when the session is offline.
func (c *Controller) remoteAsync(fn func(ctx context.Context, remote storage.Remote)) {
	if c.remote == nil || c.offline.Load() {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), remoteWriteTimeout)
		defer cancel()
		fn(ctx, c.remote)
	}()
}

// machineToucher and responseCacher are optional remote capabilities.
type machineToucher interface {
	TouchMachine(ctx context.Context, machineID string) error
}

type responseCacher interface {
	CacheResponse(ctx context.Context, command, response string) error
}

type cachedResponder interface {
	CachedResponse(ctx context.Context, command string) (string, error)
}

// cachedAnswer consults the shared response cache for an identical question.
// Best effort: a miss or any cache error falls through to the model.
func (c *Controller) cachedAnswer(ctx context.Context, question string) (string, bool) {
	if c.remote == nil || c.offline.Load() {
		return "", false
	}
	cr, ok := c.remote.(cachedResponder)
	if !ok {
		return "", false
	}
	lookupCtx, cancel := context.WithTimeout(ctx, cacheLookupTimeout)
	defer cancel()
	resp, err := cr.CachedResponse(lookupCtx, question)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			debug.Logf("controller: cache lookup: %v", err)
		}
		return "", false
	}
	return resp, true
}

// afterAnswer does the best-effort remote bookkeeping for a completed
// question: bump the machine's command counter and populate the shared
// response cache.
func (c *Controller) afterAnswer(question, answer string) {
	c.remoteAsync(func(ctx context.Context, remote storage.Remote) {
		if t, ok := remote.(machineToucher); ok && c.machineID != "" {
			if err := t.TouchMachine(ctx, c.machineID); err != nil {
				debug.Logf("controller: touch machine: %v", err)
			}
		}
		if rc, ok := remote.(responseCacher); ok {
			if err := rc.CacheResponse(ctx, question, answer); err != nil {
				debug.Logf("controller: cache response: %v", err)
			}
		}
	})
}
