// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/jeranaias/relaychat/internal/backend"
	"github.com/jeranaias/relaychat/internal/model"
	"github.com/jeranaias/relaychat/internal/relay"
	"github.com/jeranaias/relaychat/internal/transport"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrEmptyInput is returned when Start is given blank input.
	ErrEmptyInput = errors.New("input is empty")

	// ErrNoTransport is returned when no transport serves the backend.
	ErrNoTransport = errors.New("no transport for backend")

	// ErrDisposed is returned by Start after Dispose.
	ErrDisposed = errors.New("controller disposed")

	// ErrEmptyAnswer is the failure used when a backend finishes without text.
	ErrEmptyAnswer = errors.New("backend returned no content")
)

// =============================================================================
// TYPES
// =============================================================================

// Submit is one user action.
type Submit struct {
	Input string

	// Context is prefixed to Input in the outgoing request only. History
	// and the recorder keep Input alone, so attached files are not resent
	// with every later turn.
	Context string

	// History is the prior conversation sent with the request. Nil means
	// the controller's committed history.
	History []model.Message

	Backend backend.Kind

	// System overrides the configured system prompt.
	System string
}

// Recorder persists finalized turns.
type Recorder interface {
	Record(ctx context.Context, conversationID string, kind backend.Kind, msgs ...model.Message) error
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID      string
	Status  Status
	Backend backend.Kind
	Text    string
	Err     error
	Started time.Time
}

// Config holds controller settings.
type Config struct {
	SystemPrompt string
	Recorder     Recorder
	Dispatcher   Dispatcher
	Backend      backend.Kind
}

// DefaultConfig returns the default controller settings.
func DefaultConfig() Config {
	return Config{
		SystemPrompt: model.DefaultSystemPrompt,
		Backend:      backend.Cloud,
	}
}

type activeSession struct {
	id         string
	status     Status
	backend    backend.Kind
	input      string
	text       strings.Builder
	abort      context.CancelFunc
	stream     transport.Stream
	started    time.Time
	firstToken time.Time
	err        error
	span       trace.Span
}

func (s *activeSession) snapshot() Snapshot {
	return Snapshot{
		ID:      s.id,
		Status:  s.status,
		Backend: s.backend,
		Text:    s.text.String(),
		Err:     s.err,
		Started: s.started,
	}
}

// release tears down the transport. Teardown may finish after this returns.
func (s *activeSession) release() {
	if s.abort != nil {
		s.abort()
		s.abort = nil
	}
	if s.stream != nil {
		stream := s.stream
		s.stream = nil
		go stream.Close()
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller is the single source of truth for which request is live.
type Controller struct {
	mu         sync.Mutex
	relay      *relay.Relay
	transports transport.Registry
	history    *model.History
	cfg        Config
	dispatch   Dispatcher
	selected   backend.Kind
	convID     string
	active     *activeSession
	last       Snapshot
	disposed   bool
	metrics    *instruments

	// recording tracks history writes still in flight. lastWrite closes
	// when the newest queued write finishes; each write waits for the one
	// before it so turns are stored in commit order.
	recording sync.WaitGroup
	lastWrite chan struct{}
}

// New creates a controller that drives r and calls the given transports.
func New(r *relay.Relay, transports transport.Registry, cfg Config) *Controller {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = model.DefaultSystemPrompt
	}
	c := &Controller{
		relay:      r,
		transports: transports,
		history:    model.NewHistory(),
		cfg:        cfg,
		selected:   cfg.Backend,
		convID:     uuid.NewString(),
		metrics:    newInstruments(),
	}
	c.dispatch = cfg.Dispatcher
	if c.dispatch == nil {
		c.dispatch = c.Handle
	}
	return c
}

// SetDispatcher replaces the dispatcher. The TUI installs one once the
// program exists.
func (c *Controller) SetDispatcher(d Dispatcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d == nil {
		d = c.Handle
	}
	c.dispatch = d
}

// Start begins a new session and returns its ID before any response arrives.
// Any active session is cancelled first.
func (c *Controller) Start(ctx context.Context, sub Submit) (string, error) {
	input := strings.TrimSpace(sub.Input)
	if input == "" {
		return "", ErrEmptyInput
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return "", ErrDisposed
	}
	t, ok := c.transports.Get(sub.Backend)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoTransport, sub.Backend)
	}

	id := NewSessionID()

	if c.active != nil {
		c.cancelLocked(c.active, "superseded")
	}

	history := sub.History
	if history == nil {
		history = c.history.Snapshot()
	}
	msgs := make([]model.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, model.NewUserMessage(sub.Context+input))

	system := sub.System
	if system == "" {
		system = c.cfg.SystemPrompt
	}
	req := &transport.Request{
		SessionID: id,
		Messages:  model.ForRequest(system, msgs),
	}

	runCtx, cancel := context.WithCancel(ctx)
	runCtx, span := c.metrics.startSpan(runCtx, id, sub.Backend)

	c.active = &activeSession{
		id:      id,
		status:  StatusPending,
		backend: sub.Backend,
		input:   input,
		abort:   cancel,
		started: time.Now(),
		span:    span,
	}
	c.relay.Begin(sub.Backend.Caps())

	slog.Info("session started", "session", id, "backend", sub.Backend.String(), "history", len(history))

	go c.pump(runCtx, id, t, req, c.dispatch)
	return id, nil
}

// pump reads the transport stream and dispatches its events.
func (c *Controller) pump(ctx context.Context, id string, t transport.Transport, req *transport.Request, dispatch Dispatcher) {
	stream, err := t.Open(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			dispatch(Event{SessionID: id, Kind: EventAborted})
			return
		}
		dispatch(Event{SessionID: id, Kind: EventFailure, Err: err})
		return
	}
	if !c.attach(id, stream) {
		stream.Close()
		return
	}
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if ctx.Err() != nil {
			dispatch(Event{SessionID: id, Kind: EventAborted})
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				dispatch(Event{SessionID: id, Kind: EventComplete})
				return
			}
			dispatch(Event{SessionID: id, Kind: EventFailure, Err: err})
			return
		}
		if ev.Done {
			dispatch(Event{SessionID: id, Kind: EventComplete, Full: ev.Full})
			return
		}
		dispatch(Event{SessionID: id, Kind: EventDelta, Text: ev.Delta})
	}
}

// attach records the open stream so Cancel can close it.
func (c *Controller) attach(id string, stream transport.Stream) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil || c.active.id != id {
		return false
	}
	c.active.stream = stream
	return true
}

// Handle applies a pump event.
func (c *Controller) Handle(ev Event) {
	switch ev.Kind {
	case EventDelta:
		c.OnDelta(ev.SessionID, ev.Text)
	case EventComplete:
		c.OnComplete(ev.SessionID, ev.Full)
	case EventFailure:
		c.OnFailure(ev.SessionID, ev.Err)
	case EventAborted:
		c.Cancel(ev.SessionID)
	}
}

// current returns the active session if id matches it.
func (c *Controller) current(id string) *activeSession {
	if c.active == nil || c.active.id != id {
		return nil
	}
	return c.active
}

// fire moves s along t. It returns false for an illegal transition.
func (c *Controller) fire(s *activeSession, t trigger) bool {
	to, ok := next(s.status, t)
	if !ok {
		slog.Debug("ignored transition", "session", s.id, "status", s.status.String(), "trigger", t.String())
		return false
	}
	s.status = to
	return true
}

// OnDelta appends a fragment to the active session. Stale IDs are ignored.
func (c *Controller) OnDelta(id, fragment string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current(id)
	if s == nil || !c.fire(s, onDelta) {
		return false
	}
	if s.firstToken.IsZero() {
		s.firstToken = time.Now()
		c.metrics.firstToken(s.backend, s.firstToken.Sub(s.started))
	}
	s.text.WriteString(fragment)
	c.relay.Delta(fragment)
	return true
}

// OnComplete finalizes the active session. A non-nil full replaces the
// streamed text. Stale IDs are ignored.
func (c *Controller) OnComplete(id string, full *string) bool {
	c.mu.Lock()

	s := c.current(id)
	if s == nil {
		c.mu.Unlock()
		return false
	}

	text := s.text.String()
	if full != nil {
		text = *full
	}
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return c.OnFailure(id, ErrEmptyAnswer)
	}
	if !c.fire(s, onComplete) {
		c.mu.Unlock()
		return false
	}

	s.text.Reset()
	s.text.WriteString(text)
	s.release()

	turn := []model.Message{model.NewUserMessage(s.input), model.NewAssistantMessage(text)}
	c.history.Append(turn...)
	c.relay.Complete(text, false)
	c.finish(s, "completed")

	if rec := c.cfg.Recorder; rec != nil {
		c.recordLocked(rec, id, s.backend, turn)
	}
	c.mu.Unlock()

	slog.Info("session completed", "session", id, "chars", len(text))
	return true
}

// recordLocked queues turn for the recorder. Writes run off the caller's
// goroutine, which in the panel is the render loop.
func (c *Controller) recordLocked(rec Recorder, id string, kind backend.Kind, turn []model.Message) {
	convID := c.convID
	prev, done := c.lastWrite, make(chan struct{})
	c.lastWrite = done
	c.recording.Add(1)

	go func() {
		defer c.recording.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		if err := rec.Record(context.Background(), convID, kind, turn...); err != nil {
			slog.Warn("failed to record turn", "session", id, "error", err)
		}
	}()
}

// OnFailure ends the active session with a tagged error message. Nothing is
// committed to history. Stale IDs are ignored.
func (c *Controller) OnFailure(id string, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current(id)
	if s == nil || !c.fire(s, onFailure) {
		return false
	}
	if err == nil {
		err = errors.New("unknown error")
	}

	notice := model.NewErrorMessage(transport.Cause(err))
	s.err = err
	s.text.Reset()
	s.text.WriteString(notice.Content)
	s.release()
	c.relay.Complete(notice.Content, true)
	if s.span != nil {
		s.span.RecordError(err)
	}
	c.finish(s, "failed")

	slog.Warn("session failed", "session", id, "error", err)
	return true
}

// Cancel aborts the session if id is active. It returns false for stale IDs,
// repeated cancels and sessions that already finished.
func (c *Controller) Cancel(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.current(id)
	if s == nil {
		return false
	}
	return c.cancelLocked(s, "user")
}

// CancelActive cancels whatever session is active.
func (c *Controller) CancelActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return false
	}
	return c.cancelLocked(c.active, "user")
}

func (c *Controller) cancelLocked(s *activeSession, reason string) bool {
	if !c.fire(s, onCancel) {
		return false
	}
	s.release()
	s.text.Reset()
	c.relay.Cancel()
	c.finish(s, "cancelled")
	slog.Info("session cancelled", "session", s.id, "reason", reason)
	return true
}

// finish vacates the active slot.
func (c *Controller) finish(s *activeSession, outcome string) {
	c.last = s.snapshot()
	c.active = nil
	c.metrics.finish(s.span, s.backend, outcome)
	s.span = nil
}

// =============================================================================
// PAUSE AND BACKEND SELECTION
// =============================================================================

// Pause holds rendering of the active session. It is a no-op when nothing is
// active or the session's backend cannot pause.
func (c *Controller) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.active
	if s == nil || !s.backend.Caps().Pause {
		return false
	}
	if _, ok := next(s.status, onPause); !ok {
		return false
	}
	if !c.relay.Pause() {
		return false
	}
	return c.fire(s, onPause)
}

// Resume releases a pause.
func (c *Controller) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resumeLocked()
}

func (c *Controller) resumeLocked() bool {
	s := c.active
	if s == nil || !c.fire(s, onResume) {
		return false
	}
	c.relay.Resume()
	return true
}

// TogglePause pauses or resumes.
func (c *Controller) TogglePause() bool {
	c.mu.Lock()
	paused := c.active != nil && c.active.status == StatusPaused
	c.mu.Unlock()
	if paused {
		return c.Resume()
	}
	return c.Pause()
}

// SwitchBackend changes the selection used for the next submit. A backend
// that cannot pause forces the current session to resume.
func (c *Controller) SwitchBackend(k backend.Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.selected = k
	caps := k.Caps()
	if c.active != nil && !caps.Pause && c.active.status == StatusPaused {
		c.resumeLocked()
	}
	c.relay.SetCapabilities(backend.Capabilities{
		Streaming: caps.Streaming,
		Pause:     caps.Pause && (c.active == nil || c.active.backend.Caps().Pause),
	})
}

// Selected returns the backend used for the next submit.
func (c *Controller) Selected() backend.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// =============================================================================
// ACCESSORS AND LIFECYCLE
// =============================================================================

// Active returns the active session, if any.
func (c *Controller) Active() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Snapshot{}, false
	}
	return c.active.snapshot(), true
}

// Last returns the most recently finished session.
func (c *Controller) Last() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// History returns the committed conversation.
func (c *Controller) History() []model.Message {
	return c.history.Snapshot()
}

// ConversationID identifies the conversation for storage.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.convID
}

// Reset cancels any active session and starts a fresh conversation.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		c.cancelLocked(c.active, "reset")
	}
	c.history.Clear()
	c.convID = uuid.NewString()
}

// Dispose cancels any active session and rejects further starts. It
// returns once pending history writes have finished.
func (c *Controller) Dispose() {
	c.mu.Lock()
	if c.active != nil {
		c.cancelLocked(c.active, "dispose")
	}
	c.disposed = true
	c.mu.Unlock()

	c.recording.Wait()
}
