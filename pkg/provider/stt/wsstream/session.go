// Package wsstream implements the streaming transcription session lifecycle
// shared by every WebSocket vendor adapter. Vendor specifics (endpoint,
// handshake headers, framing of audio and control messages, result decoding)
// live behind [Codec]; the [Session] owns the connection, the send queue, the
// receive loop, keep-alives, finalisation and teardown.
//
// Session states: Disconnected → Connecting → Connected → Finalizing →
// Disconnected, or straight back to Disconnected via Cancel from any state.
package wsstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/hotmic/pkg/provider/stt"
)

const (
	defaultKeepAlive   = 5 * time.Second
	defaultFinalize    = 3 * time.Second
	defaultDialTimeout = 10 * time.Second
	sendQueueSize      = 256
	eventBufferSize    = 64
	readLimit          = 1 << 20
)

// Codec translates between the normalised session protocol and one vendor's
// wire format. Implementations must be safe for concurrent use.
type Codec interface {
	// Endpoint returns the URL and handshake headers for a session in language.
	Endpoint(language string) (string, http.Header, error)

	// Configure returns the message sent right after connecting, or nil.
	Configure(language string) []byte

	// Audio frames one PCM chunk for the wire.
	Audio(chunk []byte) (websocket.MessageType, []byte)

	// EndOfAudio returns the text control message asking the vendor to flush
	// remaining results.
	EndOfAudio() []byte

	// KeepAlive returns the text keep-alive message, or nil if the vendor
	// needs none.
	KeepAlive() []byte

	// Decode converts one complete message into events. last reports that
	// the vendor will send nothing further after end of audio. Decode errors
	// drop the message; the session continues.
	Decode(msg []byte) (events []stt.Event, last bool, err error)
}

// State is the lifecycle state of a [Session].
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Finalizing
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Finalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Option configures a [Session].
type Option func(*Session)

// WithKeepAlive sets the keep-alive interval. Zero disables keep-alives.
// Default: 5s (only if the codec provides a keep-alive message).
func WithKeepAlive(d time.Duration) Option {
	return func(s *Session) { s.keepAlive = d }
}

// WithFinalizeTimeout bounds how long Stop waits for remaining results.
// Default: 3s.
func WithFinalizeTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.finalize = d
		}
	}
}

// WithDialTimeout bounds connection setup. Default: 10s.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.dialTimeout = d
		}
	}
}

// WithHTTPClient sets the HTTP client used for the WebSocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.httpClient = c }
}

// Session runs one streaming connection at a time for a vendor. It
// implements the lifecycle half of [stt.StreamingTranscriber]; adapters embed
// it and add UpdateSettings.
type Session struct {
	name        string
	codec       Codec
	keepAlive   time.Duration
	finalize    time.Duration
	dialTimeout time.Duration
	httpClient  *http.Client

	mu  sync.Mutex
	cur *run
}

// New creates an idle session for the vendor called name.
func New(name string, codec Codec, opts ...Option) *Session {
	s := &Session{
		name:        name,
		codec:       codec,
		keepAlive:   defaultKeepAlive,
		finalize:    defaultFinalize,
		dialTimeout: defaultDialTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the state of the current connection.
func (s *Session) State() State {
	if r := s.current(); r != nil {
		return State(r.state.Load())
	}
	return Disconnected
}

// ---- run ----

type outbound struct {
	typ  websocket.MessageType
	data []byte
}

// run is the state of a single connection. It is created by Start and torn
// down exactly once.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	state  atomic.Int32

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	out      chan outbound
	events   chan stt.Event
	readDone chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

func (r *run) teardown() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		conn := r.conn
		r.mu.Unlock()

		r.state.Store(int32(Disconnected))
		r.cancel()
		if conn != nil {
			_ = conn.CloseNow()
		}
	})
}

func (s *Session) current() *run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// release tears r down and detaches it so the session can start again.
func (s *Session) release(r *run) {
	s.mu.Lock()
	if s.cur == r {
		s.cur = nil
	}
	s.mu.Unlock()
	r.teardown()
}

// ---- lifecycle ----

// Start connects, sends the codec's configuration message and starts the
// send and receive loops. ctx bounds connection setup only; the session
// itself lives until Stop or Cancel.
func (s *Session) Start(ctx context.Context, language string) (<-chan stt.Event, error) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{
		ctx:      runCtx,
		cancel:   cancel,
		out:      make(chan outbound, sendQueueSize),
		events:   make(chan stt.Event, eventBufferSize),
		readDone: make(chan struct{}),
	}
	r.state.Store(int32(Connecting))

	s.mu.Lock()
	if s.cur != nil {
		s.mu.Unlock()
		cancel()
		return nil, fmt.Errorf("%s: start: session already active", s.name)
	}
	s.cur = r
	s.mu.Unlock()

	conn, err := s.connect(ctx, r, language)
	if err != nil {
		s.release(r)
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = conn.CloseNow()
		return nil, fmt.Errorf("%s: start: %w", s.name, context.Canceled)
	}
	r.conn = conn
	r.state.Store(int32(Connected))
	r.mu.Unlock()

	r.wg.Add(2)
	go s.readLoop(r, conn)
	go s.writeLoop(r, conn)

	slog.Debug("streaming session connected", "provider", s.name, "language", language)
	return r.events, nil
}

func (s *Session) connect(ctx context.Context, r *run, language string) (*websocket.Conn, error) {
	endpoint, header, err := s.codec.Endpoint(language)
	if err != nil {
		return nil, fmt.Errorf("%s: start: %w", s.name, err)
	}

	dialCtx, dialCancel := context.WithTimeout(r.ctx, s.dialTimeout)
	defer dialCancel()
	stop := context.AfterFunc(ctx, dialCancel)
	defer stop()

	conn, _, err := websocket.Dial(dialCtx, endpoint, &websocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: s.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: connect: %w: %w", s.name, stt.ErrTransport, err)
	}
	conn.SetReadLimit(readLimit)

	if msg := s.codec.Configure(language); msg != nil {
		if err := conn.Write(dialCtx, websocket.MessageText, msg); err != nil {
			conn.Close(websocket.StatusInternalError, "configure failed")
			return nil, fmt.Errorf("%s: configure: %w: %w", s.name, stt.ErrTransport, err)
		}
	}
	return conn, nil
}

// SendAudio queues chunk for delivery. It never blocks and never fails: if
// no session is connected or the queue is full the chunk is dropped.
func (s *Session) SendAudio(chunk []byte) {
	r := s.current()
	if r == nil || State(r.state.Load()) != Connected {
		return
	}
	typ, data := s.codec.Audio(chunk)
	select {
	case r.out <- outbound{typ: typ, data: data}:
	case <-r.ctx.Done():
	default:
		slog.Warn("streaming send queue full, dropping audio", "provider", s.name, "bytes", len(chunk))
	}
}

// Stop sends end of audio, waits for the receive loop to drain up to the
// finalize timeout (or ctx) and tears the session down. It returns an error
// wrapping [stt.ErrTimeout] if the drain did not complete in time; the
// session is torn down either way.
func (s *Session) Stop(ctx context.Context) error {
	r := s.current()
	if r == nil {
		return nil
	}
	if !r.state.CompareAndSwap(int32(Connected), int32(Finalizing)) {
		s.release(r)
		return nil
	}

	select {
	case r.out <- outbound{typ: websocket.MessageText, data: s.codec.EndOfAudio()}:
	case <-r.ctx.Done():
	}

	timer := time.NewTimer(s.finalize)
	defer timer.Stop()

	var err error
	select {
	case <-r.readDone:
	case <-timer.C:
		err = fmt.Errorf("%s: finalize: %w: no final message after %s", s.name, stt.ErrTimeout, s.finalize)
	case <-ctx.Done():
		err = fmt.Errorf("%s: finalize: %w", s.name, ctx.Err())
	}

	s.release(r)
	r.wg.Wait()
	slog.Debug("streaming session stopped", "provider", s.name, "err", err)
	return err
}

// Cancel tears the session down without waiting for results. Safe to call at
// any point, including during Start and after Stop.
func (s *Session) Cancel() {
	if r := s.current(); r != nil {
		s.release(r)
	}
}

// ---- loops ----

func (s *Session) writeLoop(r *run, conn *websocket.Conn) {
	defer r.wg.Done()

	var tick <-chan time.Time
	if ka := s.codec.KeepAlive(); ka != nil && s.keepAlive > 0 {
		t := time.NewTicker(s.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-r.ctx.Done():
			return
		case m := <-r.out:
			if err := conn.Write(r.ctx, m.typ, m.data); err != nil && r.ctx.Err() == nil {
				slog.Warn("streaming send failed", "provider", s.name, "err", err)
			}
		case <-tick:
			if err := conn.Write(r.ctx, websocket.MessageText, s.codec.KeepAlive()); err != nil && r.ctx.Err() == nil {
				slog.Warn("streaming keep-alive failed", "provider", s.name, "err", err)
			}
		}
	}
}

// readLoop reads complete messages (the websocket layer reassembles
// fragmented frames) and forwards decoded events in arrival order. It is the
// only writer of r.events and closes it on exit.
func (s *Session) readLoop(r *run, conn *websocket.Conn) {
	defer r.wg.Done()
	defer close(r.events)
	defer close(r.readDone)

	for {
		_, msg, err := conn.Read(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			finalizing := State(r.state.Load()) == Finalizing
			if !finalizing || !isNormalClose(err) {
				s.emit(r, stt.Event{
					Type: stt.EventError,
					Err:  fmt.Errorf("%s: receive: %w: %w", s.name, stt.ErrTransport, err),
				})
			}
			if !finalizing {
				slog.Warn("streaming session lost", "provider", s.name, "err", err)
				s.release(r)
			}
			return
		}

		events, last, err := s.codec.Decode(msg)
		if err != nil {
			slog.Warn("dropping malformed message", "provider", s.name, "err", fmt.Errorf("%w: %w", stt.ErrProtocol, err))
			continue
		}
		for _, ev := range events {
			s.emit(r, ev)
		}
		if last && State(r.state.Load()) == Finalizing {
			return
		}
	}
}

func (s *Session) emit(r *run, ev stt.Event) {
	select {
	case r.events <- ev:
	case <-r.ctx.Done():
	}
}

func isNormalClose(err error) bool {
	return websocket.CloseStatus(err) == websocket.StatusNormalClosure
}
