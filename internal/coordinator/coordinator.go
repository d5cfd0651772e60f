// Package coordinator implements the recording state machine that ties
// capture, the hybrid batch/streaming decision, the speech providers, the
// local filters and text injection together.
//
// Every state transition and every injector call happens on the goroutine
// running [Coordinator.Run]. Hotkeys, timers, network receive loops and batch
// jobs only post events into its inbox. The capture goroutine talks to the
// [router.Router] directly, which is safe for concurrent use.
//
// Lifecycle of a hotkey session:
//
//	hotkey-down ─▶ HybridPending ─┬─ hotkey-up ─▶ BatchRecording ─ hotkey-down ─▶ Processing ─▶ Idle
//	                              ├─ timer ─────▶ Streaming ─ hotkey-up ─▶ Idle (finals drain in background)
//	                              └─ hotkey-down ─▶ Idle (discarded)
//
// A streaming session only connects once every earlier streaming session has
// drained, so the adapters are never started twice and late finals always
// reach their own target before the next session takes over the injector.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/hotmic/internal/config"
	"github.com/MrWong99/hotmic/internal/filter"
	"github.com/MrWong99/hotmic/internal/history"
	"github.com/MrWong99/hotmic/internal/inject"
	"github.com/MrWong99/hotmic/internal/observe"
	"github.com/MrWong99/hotmic/internal/providers"
	"github.com/MrWong99/hotmic/internal/router"
	"github.com/MrWong99/hotmic/pkg/audio"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
)

// Status lines published through [Events.StatusChanged]. Errors are reported
// as "Error: " followed by the error text.
const (
	StatusListening     = "Listening…"
	StatusRecording     = "Recording…"
	StatusConnecting    = "Connecting…"
	StatusStreaming     = "Streaming…"
	StatusFinishing     = "Finishing…"
	StatusTranscribing  = "Transcribing…"
	StatusDone          = "Done."
	StatusCanceled      = "Canceled."
	StatusSilent        = "Silent — skipped."
	StatusHallucination = "Hallucination — skipped."
)

const (
	modeBatch     = "batch"
	modeStreaming = "streaming"

	inboxSize = 128
)

// Option configures a [Coordinator].
type Option func(*Coordinator)

// WithEvents sets the UI event receiver. Default: [NopEvents].
func WithEvents(e Events) Option {
	return func(c *Coordinator) { c.events = e }
}

// WithHistory records every accepted transcript in s.
func WithHistory(s history.Store) Option {
	return func(c *Coordinator) { c.history = s }
}

// WithRejectFilter adds a predicate that drops transcripts alongside the
// hallucination filter. Rejected batch results are not injected; rejected
// streaming finals erase the interim text they replace.
func WithRejectFilter(p filter.Predicate) Option {
	return func(c *Coordinator) { c.rejects = append(c.rejects, p) }
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// session is one recording from hotkey-down (or start-button) until its
// result has been injected or dropped. Fields below the blank line are only
// touched by the coordinator goroutine.
type session struct {
	id       string
	language string
	primary  string
	entries  []*providers.Entry
	readers  sync.WaitGroup
	done     chan struct{}

	mode      string
	started   time.Time
	duration  time.Duration
	target    inject.Target
	autoSend  bool
	timer     *time.Timer
	capturing bool
	released  bool
	canceled  bool
	streams   []stream
	partial   map[string]string
	cancel    context.CancelFunc
}

// stream is one connected streaming adapter of a session.
type stream struct {
	entry  *providers.Entry
	events <-chan stt.Event
}

// Coordinator is the recording state machine. Create one with [New] and drive
// it with [Coordinator.Run]; the input methods are safe to call from any
// goroutine.
type Coordinator struct {
	registry *providers.Registry
	source   audio.Source
	injector *inject.Injector
	router   *router.Router
	events   Events
	history  history.Store
	metrics  *observe.Metrics
	rejects  []filter.Predicate

	inbox chan any
	done  chan struct{}

	// Owned by the Run goroutine.
	ctx           context.Context
	cfg           *config.Config
	pending       *config.Config
	filters       filters
	state         State
	cur           *session
	sessions      map[string]*session
	injectorOwner string
	routerOwner   string
	sending       int

	mu       sync.Mutex
	snapshot State
	status   string
}

// New returns a coordinator using cfg for dictation settings and pushes the
// configured credentials into every registered adapter.
func New(cfg *config.Config, registry *providers.Registry, source audio.Source, injector *inject.Injector, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry,
		source:   source,
		injector: injector,
		router:   router.New(),
		events:   NopEvents{},
		inbox:    make(chan any, inboxSize),
		done:     make(chan struct{}),
		ctx:      context.Background(),
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
	for _, o := range opts {
		o(c)
	}
	c.filters = newFilters(cfg, c.rejects)
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	registry.UpdateAll(cfg)
	return c
}

// ── inputs ──────────────────────────────────────────────────────────────────

type inputEvent struct {
	in  Input
	sid string
}

type settingsEvent struct {
	cfg *config.Config
}

type streamConnected struct {
	sid     string
	results []outcome[*providers.Entry, <-chan stt.Event]
}

type streamEvent struct {
	sid      string
	provider string
	ev       stt.Event
}

type streamFinished struct {
	sid string
}

type batchDone struct {
	sid     string
	results []outcome[*providers.Entry, string]
}

// HotkeyDown reports the dictation hotkey being pressed.
func (c *Coordinator) HotkeyDown() { c.post(inputEvent{in: InputHotkeyDown}) }

// HotkeyUp reports the dictation hotkey being released.
func (c *Coordinator) HotkeyUp() { c.post(inputEvent{in: InputHotkeyUp}) }

// StartButton toggles a manual batch recording. Manual sessions are never
// auto-sent.
func (c *Coordinator) StartButton() { c.post(inputEvent{in: InputStartButton}) }

// Cancel aborts the active session: capture is discarded, live streams are
// canceled without waiting for finals and a running batch job is aborted.
func (c *Coordinator) Cancel() { c.post(inputEvent{in: InputCancel}) }

// ApplySettings hands over a new configuration. It takes effect once no
// session is active, so credentials never change mid-session.
func (c *Coordinator) ApplySettings(cfg *config.Config) { c.post(settingsEvent{cfg: cfg}) }

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Status returns the last published status line.
func (c *Coordinator) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Coordinator) post(ev any) {
	select {
	case c.inbox <- ev:
	case <-c.done:
	}
}

// Run processes events until ctx is canceled. On return any active session is
// discarded. Run must be called at most once.
func (c *Coordinator) Run(ctx context.Context) error {
	c.ctx = ctx
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-c.inbox:
			c.dispatch(ev)
		}
	}
}

func (c *Coordinator) shutdown() {
	if c.cur != nil {
		c.teardown(c.cur)
		c.cur = nil
	}
	for _, s := range c.sessions {
		c.teardown(s)
	}
}

// dispatch handles one inbox event. A panic in a handler fails the current
// session instead of the process.
func (c *Coordinator) dispatch(ev any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("coordinator: panic in event handler", "event", fmt.Sprintf("%T", ev), "panic", r)
			c.fail(fmt.Errorf("coordinator: internal error: %v", r))
		}
	}()

	switch ev := ev.(type) {
	case inputEvent:
		c.handleInput(ev.in, ev.sid)
	case streamConnected:
		c.onStreamConnected(ev)
	case streamEvent:
		c.onStreamEvent(ev)
	case streamFinished:
		c.onStreamFinished(ev)
	case batchDone:
		c.onBatchDone(ev)
	case settingsEvent:
		c.pending = ev.cfg
	}
	c.settle()
}

// settle applies deferred settings once nothing is in flight.
func (c *Coordinator) settle() {
	if c.pending == nil || c.cur != nil || len(c.sessions) > 0 {
		return
	}
	cfg := c.pending
	c.pending = nil
	c.cfg = cfg
	c.filters = newFilters(cfg, c.rejects)
	c.registry.UpdateAll(cfg)
	slog.Info("coordinator: settings applied", "provider", cfg.Dictation.Provider, "test_mode", cfg.Dictation.TestMode)
}

func (c *Coordinator) handleInput(in Input, sid string) {
	if in == InputHybridTimeout && (c.cur == nil || c.cur.id != sid) {
		return
	}
	from := c.state
	next, act := Transition(from, in)
	if act != ActionNone {
		slog.Debug("coordinator: transition", "from", from, "input", in, "to", next, "action", act)
	}
	c.setState(next)

	switch act {
	case ActionStartHybrid:
		c.begin(true)
	case ActionStartManual:
		c.begin(false)
	case ActionCommitBatch:
		c.commitBatch()
	case ActionCommitStreaming:
		c.commitStreaming()
	case ActionFinishBatch:
		c.finishBatch()
	case ActionFinishStreaming:
		c.finishStreaming()
	case ActionDiscard, ActionCancelBatch:
		c.discard()
	}
}

// ── session start ───────────────────────────────────────────────────────────

func (c *Coordinator) begin(hybrid bool) {
	// A batch still processing keeps running on its own.
	c.cur = nil

	cfg := c.cfg
	primary := c.registry.Lookup(cfg.Dictation.Provider)
	if primary == nil {
		c.fail(fmt.Errorf("coordinator: %w: no provider registered", stt.ErrConfiguration))
		return
	}
	if err := c.registry.Validate(primary.Name, cfg); err != nil {
		c.fail(err)
		return
	}
	entries := []*providers.Entry{primary}
	if cfg.Dictation.TestMode {
		entries = entries[:0]
		for _, e := range c.registry.Entries() {
			if err := c.registry.Validate(e.Name, cfg); err != nil {
				slog.Warn("coordinator: skipping provider in test mode", "provider", e.Name, "err", err)
				continue
			}
			entries = append(entries, e)
		}
	}

	target, err := c.injector.Foreground()
	if err != nil {
		slog.Warn("coordinator: could not capture foreground target", "err", err)
	}

	s := &session{
		id:       uuid.NewString(),
		language: cfg.Dictation.Language,
		primary:  primary.Name,
		entries:  entries,
		mode:     modeBatch,
		started:  time.Now(),
		target:   target,
		autoSend: hybrid && cfg.Dictation.AutoSend,
		partial:  make(map[string]string),
		done:     make(chan struct{}),
	}
	if hybrid {
		c.router.Begin()
		c.routerOwner = s.id
	}
	if err := c.source.Start(c.ctx, captureSink{c}); err != nil {
		if hybrid {
			c.router.Discard()
			c.routerOwner = ""
		}
		c.fail(fmt.Errorf("coordinator: start capture: %w", err))
		return
	}
	s.capturing = true
	c.cur = s
	c.sessions[s.id] = s
	c.events.RecordingStateChanged(true)
	slog.Info("coordinator: session started", "session_id", s.id, "provider", s.primary, "hybrid", hybrid, "providers", len(entries))

	if !hybrid {
		c.setStatus(StatusRecording)
		return
	}
	threshold := cfg.Dictation.HybridThreshold
	if threshold <= 0 {
		threshold = config.DefaultHybridThreshold
	}
	sid := s.id
	s.timer = time.AfterFunc(threshold, func() {
		c.post(inputEvent{in: InputHybridTimeout, sid: sid})
	})
	c.setStatus(StatusListening)
}

// commitBatch ends the decision window in favour of batch. The buffered
// frames are dropped; the source keeps the whole recording.
func (c *Coordinator) commitBatch() {
	s := c.cur
	s.timer.Stop()
	s.mode = modeBatch
	if c.routerOwner == s.id {
		c.router.Discard()
		c.routerOwner = ""
	}
	c.setStatus(StatusRecording)
}

// ── streaming ───────────────────────────────────────────────────────────────

// commitStreaming connects the session's streaming adapters in the
// background. Audio keeps buffering in the router until they are connected.
// Streaming sessions still finalizing are waited for first.
func (c *Coordinator) commitStreaming() {
	s := c.cur
	s.mode = modeStreaming
	c.setStatus(StatusConnecting)

	var draining []<-chan struct{}
	for _, prev := range c.sessions {
		if prev != s && prev.mode == modeStreaming {
			draining = append(draining, prev.done)
		}
	}

	ctx, sid, entries, language := c.ctx, s.id, s.entries, s.language
	go func() {
		for _, done := range draining {
			select {
			case <-done:
			case <-ctx.Done():
			}
		}
		if len(draining) > 0 {
			slog.Debug("coordinator: previous streaming session drained", "session_id", sid, "waited_for", len(draining))
		}
		results := joinAll(ctx, entries, func(ctx context.Context, e *providers.Entry) (<-chan stt.Event, error) {
			return c.connect(ctx, e, language)
		})
		c.post(streamConnected{sid: sid, results: results})
	}()
}

func (c *Coordinator) connect(ctx context.Context, e *providers.Entry, language string) (<-chan stt.Event, error) {
	ctx, span := observe.StartProviderSpan(ctx, "stt.stream.connect", e.Name)

	start := time.Now()
	events, err := e.Streaming.Start(ctx, language)
	c.metrics.StreamConnectDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("provider", e.Name)))

	status := "ok"
	if err != nil {
		status = "error"
		c.metrics.RecordProviderError(ctx, e.Name, modeStreaming)
		observe.Logger(ctx).Warn("coordinator: stream connect failed", "provider", e.Name, "err", err)
	}
	c.metrics.RecordProviderRequest(ctx, e.Name, modeStreaming, status)
	observe.EndSpan(span, err)
	return events, err
}

func (c *Coordinator) onStreamConnected(ev streamConnected) {
	s := c.sessions[ev.sid]

	var (
		started    []stream
		primaryErr error
	)
	for _, r := range ev.results {
		if r.Err != nil {
			slog.Warn("coordinator: streaming start failed", "provider", r.Item.Name, "session_id", ev.sid, "err", r.Err)
			c.events.ProviderTranscriptChanged(r.Item.Name, "Error: "+r.Err.Error())
			if s != nil && r.Item.Name == s.primary {
				primaryErr = r.Err
			}
			continue
		}
		started = append(started, stream{entry: r.Item, events: r.Value})
	}

	if s == nil || s.canceled || primaryErr != nil {
		for _, st := range started {
			st.entry.Streaming.Cancel()
		}
		if s != nil && primaryErr != nil {
			c.abort(s, fmt.Errorf("coordinator: start streaming with %s: %w", s.primary, primaryErr))
		}
		return
	}

	s.streams = started
	for _, st := range started {
		s.readers.Add(1)
		c.metrics.ActiveStreams.Add(c.ctx, 1)
		go c.read(s.id, st, &s.readers)
	}

	c.injector.ResetStreamingState(s.target)
	c.injectorOwner = s.id
	if c.routerOwner == s.id {
		n := c.router.Commit(fanout(started))
		slog.Debug("coordinator: replayed buffered audio", "session_id", s.id, "frames", n)
	}

	if s.released {
		c.finalize(s)
		return
	}
	c.setStatus(StatusStreaming)
}

// fanout returns a router sink sending every frame to all streams.
func fanout(streams []stream) func(audio.Frame) {
	return func(f audio.Frame) {
		for _, st := range streams {
			st.entry.Streaming.SendAudio(f.Data)
		}
	}
}

// read forwards one adapter's events into the inbox until its channel closes.
func (c *Coordinator) read(sid string, st stream, wg *sync.WaitGroup) {
	defer wg.Done()
	defer c.metrics.ActiveStreams.Add(context.Background(), -1)
	for ev := range st.events {
		c.post(streamEvent{sid: sid, provider: st.entry.Name, ev: ev})
	}
}

func (c *Coordinator) onStreamEvent(ev streamEvent) {
	s := c.sessions[ev.sid]
	if s == nil || s.canceled {
		return
	}
	switch ev.ev.Type {
	case stt.EventTranscript:
		c.onTranscript(s, ev.provider, ev.ev.Transcript)
	case stt.EventUtteranceEnd:
		slog.Debug("coordinator: utterance end", "provider", ev.provider, "session_id", s.id)
	case stt.EventError:
		err := ev.ev.Err
		if err == nil {
			err = stt.ErrTransport
		}
		slog.Warn("coordinator: streaming error", "provider", ev.provider, "session_id", s.id, "err", err)
		c.metrics.RecordProviderError(c.ctx, ev.provider, modeStreaming)
		if ev.provider != s.primary {
			c.events.ProviderTranscriptChanged(ev.provider, "Error: "+err.Error())
			return
		}
		if c.cur == s {
			c.fail(fmt.Errorf("coordinator: %s: %w", ev.provider, err))
			return
		}
		c.setStatus("Error: " + err.Error())
	}
}

// onTranscript shows one provider result. Finals are checked for
// hallucinations and vocabulary-corrected; a rejected final erases the
// interim text it replaces.
func (c *Coordinator) onTranscript(s *session, provider string, t stt.Transcript) {
	text := strings.TrimSpace(t.Text)
	if t.IsFinal && text != "" {
		if c.filters.reject(text) {
			slog.Info("coordinator: dropped rejected segment", "provider", provider, "session_id", s.id, "text", text)
			c.metrics.RecordFiltered(c.ctx, "hallucination")
			text = ""
		} else {
			text = c.filters.vocabulary.Correct(text)
		}
	}

	if provider != s.primary {
		shown := joinSegment(s.partial[provider], text)
		if t.IsFinal {
			s.partial[provider] = shown
		}
		c.events.ProviderTranscriptChanged(provider, shown)
		return
	}
	if c.injectorOwner != s.id {
		return
	}

	committed := c.injector.Committed()
	segment := joinSegment(committed, text)[len(committed):]
	if err := c.injector.ApplyIncrement(t.SegmentID, segment, t.IsFinal); err != nil {
		slog.Warn("coordinator: streaming injection failed", "session_id", s.id, "err", err)
		c.setStatus("Error: " + err.Error())
		return
	}
	if t.IsFinal && segment != "" {
		c.metrics.RecordInjection(c.ctx, modeStreaming)
	}
	visible := c.injector.Text()
	c.events.TranscriptChanged(visible, t.IsFinal)
	c.events.ProviderTranscriptChanged(provider, visible)
}

// joinSegment appends seg to prev separated by one space.
func joinSegment(prev, seg string) string {
	if prev == "" || seg == "" || strings.HasSuffix(prev, " ") {
		return prev + seg
	}
	return prev + " " + seg
}

// finishStreaming handles hotkey-up while streaming: capture stops at once
// and the coordinator is Idle again while the finals drain. A new streaming
// session started meanwhile connects after the drain.
func (c *Coordinator) finishStreaming() {
	s := c.cur
	c.cur = nil
	rec, err := c.stopCapture(s, false)
	if err != nil {
		slog.Warn("coordinator: stop capture", "session_id", s.id, "err", err)
	}
	s.duration = rec.Duration()
	s.released = true
	if s.streams == nil {
		// Still connecting; onStreamConnected replays the buffer and
		// finalizes.
		return
	}
	c.finalize(s)
}

// finalize stops every stream of s in the background, bounded by the
// finalize timeout, and posts streamFinished once the receive loops drained.
func (c *Coordinator) finalize(s *session) {
	if c.routerOwner == s.id {
		c.router.Discard()
		c.routerOwner = ""
	}
	if c.cur == nil {
		c.setStatus(StatusFinishing)
	}
	timeout := c.cfg.Dictation.FinalizeTimeout
	if timeout <= 0 {
		timeout = config.DefaultFinalizeTimeout
	}

	ctx, sid, streams, readers := c.ctx, s.id, s.streams, &s.readers
	go func() {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		joinAll(ctx, streams, func(ctx context.Context, st stream) (struct{}, error) {
			if err := st.entry.Streaming.Stop(ctx); err != nil {
				slog.Warn("coordinator: stop streaming", "provider", st.entry.Name, "session_id", sid, "err", err)
			}
			return struct{}{}, nil
		})
		if !waitGroup(ctx, readers) {
			slog.Warn("coordinator: finalize timed out", "session_id", sid, "timeout", timeout)
		}
		c.post(streamFinished{sid: sid})
	}()
}

func (c *Coordinator) onStreamFinished(ev streamFinished) {
	s := c.sessions[ev.sid]
	if s == nil || s.canceled {
		return
	}
	defer s.markDone()
	delete(c.sessions, s.id)
	if c.injectorOwner != s.id {
		return
	}
	c.injectorOwner = ""

	c.injector.CommitCurrentText()
	text := c.injector.Committed()
	if text == "" {
		c.metrics.RecordRecording(c.ctx, modeStreaming, "empty")
		c.finished(StatusDone)
		return
	}

	c.events.TranscriptChanged(text, true)
	c.record(s, text)
	if s.autoSend {
		if err := c.injector.Submit(); err != nil {
			slog.Warn("coordinator: auto-send failed", "session_id", s.id, "err", err)
			c.metrics.RecordRecording(c.ctx, modeStreaming, "error")
			c.finished("Error: " + err.Error())
			return
		}
	}
	c.metrics.RecordRecording(c.ctx, modeStreaming, "injected")
	c.finished(StatusDone)
}

// finished publishes the status of a background completion unless a newer
// session is in progress.
func (c *Coordinator) finished(status string) {
	if c.cur == nil {
		c.setStatus(status)
	}
}

// ── batch ───────────────────────────────────────────────────────────────────

// finishBatch stops capture, drops silent recordings and launches the batch
// job for the rest.
func (c *Coordinator) finishBatch() {
	s := c.cur
	rec, err := c.stopCapture(s, false)
	if err != nil {
		c.fail(fmt.Errorf("coordinator: stop capture: %w", err))
		return
	}
	s.duration = rec.Duration()

	if !c.filters.silence.ContainsSpeech(rec) {
		slog.Info("coordinator: recording is silent, skipped", "session_id", s.id, "duration", s.duration)
		c.metrics.RecordFiltered(c.ctx, "silence")
		c.metrics.RecordRecording(c.ctx, modeBatch, "silent")
		delete(c.sessions, s.id)
		c.cur = nil
		c.setState(Idle)
		c.setStatus(StatusSilent)
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	s.cancel = cancel
	c.setStatus(StatusTranscribing)
	c.sending++
	if c.sending == 1 {
		c.events.SendingStateChanged(true)
	}

	sid, entries, language := s.id, s.entries, s.language
	go func() {
		results := joinAll(ctx, entries, func(ctx context.Context, e *providers.Entry) (string, error) {
			return c.transcribe(ctx, e, rec, language)
		})
		c.post(batchDone{sid: sid, results: results})
	}()
}

func (c *Coordinator) transcribe(ctx context.Context, e *providers.Entry, rec audio.Recording, language string) (string, error) {
	ctx, span := observe.StartProviderSpan(ctx, "stt.batch", e.Name)

	start := time.Now()
	text, err := e.Batch.Transcribe(ctx, rec, language)
	c.metrics.RecordBatch(ctx, e.Name, time.Since(start), err)
	if err != nil {
		observe.Logger(ctx).Warn("coordinator: batch transcription failed", "provider", e.Name, "err", err)
	}
	observe.EndSpan(span, err)
	return text, err
}

func (c *Coordinator) onBatchDone(ev batchDone) {
	c.sending--
	if c.sending == 0 {
		c.events.SendingStateChanged(false)
	}
	s := c.sessions[ev.sid]
	if s == nil || s.canceled {
		return
	}
	s.cancel()
	current := c.cur == s

	var primary *outcome[*providers.Entry, string]
	for i := range ev.results {
		r := &ev.results[i]
		if r.Err != nil {
			slog.Warn("coordinator: batch transcription failed", "provider", r.Item.Name, "session_id", s.id, "err", r.Err)
			c.events.ProviderTranscriptChanged(r.Item.Name, "Error: "+r.Err.Error())
		} else {
			c.events.ProviderTranscriptChanged(r.Item.Name, strings.TrimSpace(r.Value))
		}
		if r.Item.Name == s.primary {
			primary = r
		}
	}
	if primary == nil {
		c.abort(s, fmt.Errorf("coordinator: no result from %s", s.primary))
		return
	}
	if primary.Err != nil {
		c.metrics.RecordRecording(c.ctx, modeBatch, "error")
		c.abort(s, fmt.Errorf("coordinator: transcribe with %s: %w", s.primary, primary.Err))
		return
	}

	delete(c.sessions, s.id)
	text := strings.TrimSpace(primary.Value)
	if c.filters.reject(text) {
		slog.Info("coordinator: dropped rejected transcript", "session_id", s.id, "text", text)
		c.metrics.RecordFiltered(c.ctx, "hallucination")
		c.metrics.RecordRecording(c.ctx, modeBatch, "hallucination")
		c.complete(s, current, StatusHallucination)
		return
	}
	text = c.filters.vocabulary.Correct(text)
	c.events.TranscriptChanged(text, true)
	c.record(s, text)

	if !current && c.state == Streaming {
		slog.Info("coordinator: superseded batch result not injected, a newer session is streaming", "session_id", s.id)
		c.metrics.RecordRecording(c.ctx, modeBatch, "surfaced")
		return
	}
	if err := c.injector.InjectText(s.target, text, s.autoSend); err != nil {
		c.metrics.RecordRecording(c.ctx, modeBatch, "error")
		if current {
			c.fail(fmt.Errorf("coordinator: inject: %w", err))
			return
		}
		slog.Warn("coordinator: superseded batch injection failed", "session_id", s.id, "err", err)
		return
	}
	c.metrics.RecordInjection(c.ctx, modeBatch)
	c.metrics.RecordRecording(c.ctx, modeBatch, "injected")
	c.complete(s, current, StatusDone)
}

// complete returns a still-current batch session to Idle with status.
func (c *Coordinator) complete(s *session, current bool, status string) {
	if !current {
		return
	}
	c.cur = nil
	c.setState(Idle)
	c.setStatus(status)
	slog.Info("coordinator: session finished", "session_id", s.id, "status", status, "elapsed", time.Since(s.started))
}

// ── teardown ────────────────────────────────────────────────────────────────

// discard drops the current session without any further provider call.
func (c *Coordinator) discard() {
	s := c.cur
	if s == nil {
		return
	}
	c.cur = nil
	c.teardown(s)
	c.metrics.RecordRecording(c.ctx, s.mode, "canceled")
	c.setStatus(StatusCanceled)
	slog.Info("coordinator: session canceled", "session_id", s.id)
}

// abort fails s: the current session moves to Failed, a background one only
// reports its error.
func (c *Coordinator) abort(s *session, err error) {
	if c.cur == s {
		c.fail(err)
		return
	}
	slog.Error("coordinator: background session failed", "session_id", s.id, "err", err)
	c.teardown(s)
	c.finished("Error: " + err.Error())
}

// fail tears down the current session and enters Failed.
func (c *Coordinator) fail(err error) {
	slog.Error("coordinator: session failed", "err", err)
	if s := c.cur; s != nil {
		c.cur = nil
		c.teardown(s)
	}
	c.setState(Failed)
	c.setStatus("Error: " + errorText(err))
}

// teardown releases everything s holds. It is idempotent.
func (c *Coordinator) teardown(s *session) {
	s.canceled = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.capturing {
		if _, err := c.stopCapture(s, true); err != nil {
			slog.Warn("coordinator: stop capture", "session_id", s.id, "err", err)
		}
	}
	if c.routerOwner == s.id {
		c.router.Discard()
		c.routerOwner = ""
	}
	for _, st := range s.streams {
		st.entry.Streaming.Cancel()
	}
	s.streams = nil
	if s.cancel != nil {
		s.cancel()
	}
	if c.injectorOwner == s.id {
		c.injectorOwner = ""
	}
	delete(c.sessions, s.id)
	s.markDone()
}

// markDone releases streaming sessions waiting for s to drain. Only the
// coordinator goroutine calls it.
func (s *session) markDone() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (c *Coordinator) stopCapture(s *session, discard bool) (audio.Recording, error) {
	s.capturing = false
	rec, err := c.source.Stop(discard)
	c.events.RecordingStateChanged(false)
	return rec, err
}

// ── helpers ─────────────────────────────────────────────────────────────────

func (c *Coordinator) setState(next State) {
	from := c.state
	if from == next {
		return
	}
	c.state = next
	c.mu.Lock()
	c.snapshot = next
	c.mu.Unlock()
	c.events.StateChanged(from, next)
}

func (c *Coordinator) setStatus(status string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.events.StatusChanged(status)
}

func (c *Coordinator) record(s *session, text string) {
	if c.history == nil {
		return
	}
	err := c.history.Record(c.ctx, history.Entry{
		SessionID: s.id,
		Provider:  s.primary,
		Mode:      s.mode,
		Text:      text,
		Duration:  s.duration,
	})
	if err != nil {
		slog.Warn("coordinator: history record failed", "session_id", s.id, "err", err)
	}
}

// errorText renders err for the status line, dropping the package prefixes
// of wrapped errors.
func errorText(err error) string {
	msg := err.Error()
	for _, prefix := range []string{"coordinator: ", "providers: ", "inject: ", "audio: "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	return msg
}

// waitGroup waits for wg or ctx, reporting whether wg finished.
func waitGroup(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// captureSink feeds captured frames into the router and levels to the UI.
type captureSink struct{ c *Coordinator }

func (s captureSink) FrameAvailable(f audio.Frame) { s.c.router.Push(f) }
func (s captureSink) LevelUpdated(peak float64)    { s.c.events.AudioLevelChanged(peak) }

var _ audio.Sink = captureSink{}
