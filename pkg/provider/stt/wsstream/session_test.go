package wsstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/hotmic/pkg/provider/stt"
	"github.com/MrWong99/hotmic/pkg/provider/stt/wsstream"
)

// ── test codec ──────────────────────────────────────────────────────────────

type testCodec struct {
	url       string
	keepAlive bool
}

type testMsg struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
	Last  bool   `json:"last"`
}

func (c testCodec) Endpoint(string) (string, http.Header, error) {
	h := http.Header{}
	h.Set("Authorization", "Token test")
	return c.url, h, nil
}

func (testCodec) Configure(language string) []byte {
	return []byte(`{"configure":"` + language + `"}`)
}

func (testCodec) Audio(chunk []byte) (websocket.MessageType, []byte) {
	return websocket.MessageBinary, chunk
}

func (testCodec) EndOfAudio() []byte { return []byte(`{"eof":true}`) }

func (c testCodec) KeepAlive() []byte {
	if !c.keepAlive {
		return nil
	}
	return []byte(`{"ping":true}`)
}

func (testCodec) Decode(msg []byte) ([]stt.Event, bool, error) {
	var m testMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, false, err
	}
	if m.Last {
		return nil, true, nil
	}
	return []stt.Event{{
		Type:       stt.EventTranscript,
		Transcript: stt.Transcript{Text: m.Text, IsFinal: m.Final},
	}}, false, nil
}

// ── test server ─────────────────────────────────────────────────────────────

type received struct {
	mu       sync.Mutex
	text     []string
	binary   [][]byte
	authSeen string
}

func (r *received) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.text...)
}

func (r *received) count(s string) int {
	var n int
	for _, t := range r.texts() {
		if t == s {
			n++
		}
	}
	return n
}

// startServer runs handler for every accepted connection. onText is called
// for each received text message and may write replies.
func startServer(t *testing.T, rec *received, onText func(ctx context.Context, conn *websocket.Conn, msg string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.authSeen = r.Header.Get("Authorization")
		rec.mu.Unlock()

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageBinary {
				rec.mu.Lock()
				rec.binary = append(rec.binary, data)
				rec.mu.Unlock()
				continue
			}
			rec.mu.Lock()
			rec.text = append(rec.text, string(data))
			rec.mu.Unlock()
			if onText != nil {
				onText(ctx, conn, string(data))
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func send(ctx context.Context, conn *websocket.Conn, m testMsg) {
	data, _ := json.Marshal(m)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

func collect(t *testing.T, events <-chan stt.Event) []stt.Event {
	t.Helper()
	var out []stt.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("event channel not closed")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// ── tests ───────────────────────────────────────────────────────────────────

func TestSession_FullLifecycle(t *testing.T) {
	t.Parallel()
	rec := &received{}
	srv := startServer(t, rec, func(ctx context.Context, conn *websocket.Conn, msg string) {
		switch msg {
		case `{"configure":"de"}`:
			send(ctx, conn, testMsg{Text: "hal"})
			send(ctx, conn, testMsg{Text: "hallo"})
		case `{"eof":true}`:
			send(ctx, conn, testMsg{Text: "hallo welt", Final: true})
			send(ctx, conn, testMsg{Last: true})
		}
	})

	s := wsstream.New("test", testCodec{url: wsURL(srv)})
	events, err := s.Start(context.Background(), "de")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := s.State(); got != wsstream.Connected {
		t.Errorf("State = %v, want connected", got)
	}

	for _, chunk := range []string{"a", "b", "c"} {
		s.SendAudio([]byte(chunk))
	}
	waitFor(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.binary) == 3
	})

	stopErr := make(chan error, 1)
	go func() { stopErr <- s.Stop(context.Background()) }()
	got := collect(t, events)
	if err := <-stopErr; err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []stt.Transcript{{Text: "hal"}, {Text: "hallo"}, {Text: "hallo welt", IsFinal: true}}
	if len(got) != len(want) {
		t.Fatalf("events = %+v, want %d transcripts", got, len(want))
	}
	for i, ev := range got {
		if ev.Type != stt.EventTranscript || ev.Transcript != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, ev, want[i])
		}
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.authSeen != "Token test" {
		t.Errorf("Authorization = %q", rec.authSeen)
	}
	if rec.text[0] != `{"configure":"de"}` {
		t.Errorf("first message = %q, want configure", rec.text[0])
	}
	for i, chunk := range []string{"a", "b", "c"} {
		if string(rec.binary[i]) != chunk {
			t.Errorf("audio %d = %q, want %q", i, rec.binary[i], chunk)
		}
	}
	if s.State() != wsstream.Disconnected {
		t.Errorf("State after Stop = %v", s.State())
	}
}

func TestSession_StopTimesOutWithoutFinal(t *testing.T) {
	t.Parallel()
	srv := startServer(t, &received{}, nil)
	s := wsstream.New("test", testCodec{url: wsURL(srv)}, wsstream.WithFinalizeTimeout(50*time.Millisecond))

	events, err := s.Start(context.Background(), "en")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	start := time.Now()
	err = s.Stop(context.Background())
	if !errors.Is(err, stt.ErrTimeout) {
		t.Errorf("Stop err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Stop took %v, want bounded by finalize timeout", elapsed)
	}
	collect(t, events)
}

func TestSession_KeepAlive(t *testing.T) {
	t.Parallel()
	rec := &received{}
	srv := startServer(t, rec, nil)
	s := wsstream.New("test", testCodec{url: wsURL(srv), keepAlive: true}, wsstream.WithKeepAlive(10*time.Millisecond))

	if _, err := s.Start(context.Background(), "en"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Cancel()
	waitFor(t, func() bool { return rec.count(`{"ping":true}`) >= 2 })
}

func TestSession_CancelIsIdempotent(t *testing.T) {
	t.Parallel()
	srv := startServer(t, &received{}, nil)
	s := wsstream.New("test", testCodec{url: wsURL(srv)})

	s.Cancel() // before Start

	events, err := s.Start(context.Background(), "en")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Cancel()
	s.Cancel()
	collect(t, events)

	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop after Cancel = %v, want nil", err)
	}
	s.SendAudio([]byte("late")) // dropped, must not panic

	// The adapter can be started again.
	events, err = s.Start(context.Background(), "en")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	s.Cancel()
	collect(t, events)
}

func TestSession_StartTwiceFails(t *testing.T) {
	t.Parallel()
	srv := startServer(t, &received{}, nil)
	s := wsstream.New("test", testCodec{url: wsURL(srv)})
	if _, err := s.Start(context.Background(), "en"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Cancel()
	if _, err := s.Start(context.Background(), "en"); err == nil {
		t.Error("second Start succeeded while a session is active")
	}
}

func TestSession_ConnectFailure(t *testing.T) {
	t.Parallel()
	s := wsstream.New("test", testCodec{url: "ws://127.0.0.1:1/nothing"})
	_, err := s.Start(context.Background(), "en")
	if !errors.Is(err, stt.ErrTransport) {
		t.Fatalf("err = %v, want ErrTransport", err)
	}
	if s.State() != wsstream.Disconnected {
		t.Errorf("State = %v, want disconnected", s.State())
	}
}

func TestSession_MalformedMessageDropped(t *testing.T) {
	t.Parallel()
	srv := startServer(t, &received{}, func(ctx context.Context, conn *websocket.Conn, msg string) {
		if strings.HasPrefix(msg, `{"configure"`) {
			_ = conn.Write(ctx, websocket.MessageText, []byte("not json"))
			send(ctx, conn, testMsg{Text: "ok", Final: true})
		}
		if msg == `{"eof":true}` {
			send(ctx, conn, testMsg{Last: true})
		}
	})
	s := wsstream.New("test", testCodec{url: wsURL(srv)})
	events, err := s.Start(context.Background(), "en")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	first := <-events
	if first.Transcript.Text != "ok" {
		t.Errorf("first event = %+v, want transcript ok", first)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestSession_ServerDropEmitsError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		_, _, _ = conn.Read(r.Context()) // configure
		conn.Close(websocket.StatusInternalError, "boom")
	}))
	defer srv.Close()

	s := wsstream.New("test", testCodec{url: wsURL(srv)})
	events, err := s.Start(context.Background(), "en")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := collect(t, events)
	if len(got) != 1 || got[0].Type != stt.EventError || !errors.Is(got[0].Err, stt.ErrTransport) {
		t.Fatalf("events = %+v, want one transport error", got)
	}
	waitFor(t, func() bool { return s.State() == wsstream.Disconnected })
}
