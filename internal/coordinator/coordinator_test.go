package coordinator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/hotmic/internal/config"
	"github.com/MrWong99/hotmic/internal/history"
	"github.com/MrWong99/hotmic/internal/inject"
	injectmock "github.com/MrWong99/hotmic/internal/inject/mock"
	"github.com/MrWong99/hotmic/internal/observe"
	"github.com/MrWong99/hotmic/internal/providers"
	"github.com/MrWong99/hotmic/pkg/audio"
	audiomock "github.com/MrWong99/hotmic/pkg/audio/mock"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
	sttmock "github.com/MrWong99/hotmic/pkg/provider/stt/mock"
)

// ---- event recorder ----

type transcriptCall struct {
	Text  string
	Final bool
}

type recorder struct {
	mu          sync.Mutex
	states      []State
	statuses    []string
	transcripts []transcriptCall
	perProvider map[string]string
	sending     []bool
	panicOn     string
}

func (r *recorder) StateChanged(_, to State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *recorder) StatusChanged(status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) TranscriptChanged(text string, isFinal bool) {
	r.mu.Lock()
	panicOn := r.panicOn
	r.transcripts = append(r.transcripts, transcriptCall{Text: text, Final: isFinal})
	r.mu.Unlock()
	if panicOn != "" && text == panicOn {
		panic("renderer exploded")
	}
}

func (r *recorder) ProviderTranscriptChanged(provider, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.perProvider == nil {
		r.perProvider = make(map[string]string)
	}
	r.perProvider[provider] = text
}

func (r *recorder) RecordingStateChanged(bool) {}

func (r *recorder) SendingStateChanged(sending bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sending = append(r.sending, sending)
}

func (r *recorder) AudioLevelChanged(float64) {}

func (r *recorder) States() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.states)
}

func (r *recorder) Transcripts() []transcriptCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.transcripts)
}

func (r *recorder) Provider(name string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.perProvider[name]
}

func (r *recorder) HasStatus(status string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.statuses, status)
}

func (r *recorder) HasFinal(text string) bool {
	return slices.Contains(r.Transcripts(), transcriptCall{Text: text, Final: true})
}

// ---- harness ----

type harness struct {
	c       *Coordinator
	cfg     *config.Config
	src     *audiomock.Source
	batch   *sttmock.Batch
	stream  *sttmock.Streaming
	surface *injectmock.Surface
	events  *recorder
	history *history.MemoryStore
}

func baseConfig() *config.Config {
	cfg := &config.Config{
		Dictation: config.DictationConfig{
			Provider:        "deepgram",
			Language:        "en",
			HybridThreshold: time.Hour,
			FinalizeTimeout: time.Second,
		},
		Providers: []config.ProviderEntry{{Name: "deepgram", APIKey: "dg-key", Model: "nova-3"}},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

// newHarness wires a coordinator around mocks. register may add more
// providers after "deepgram".
func newHarness(t *testing.T, mutate func(*config.Config), register func(*providers.Registry), opts ...Option) *harness {
	t.Helper()
	cfg := baseConfig()
	if mutate != nil {
		mutate(cfg)
	}

	h := &harness{
		cfg:     cfg,
		src:     &audiomock.Source{StopResult: speech(time.Second)},
		batch:   &sttmock.Batch{Text: "Turn left at the next light."},
		stream:  &sttmock.Streaming{},
		surface: &injectmock.Surface{},
		events:  &recorder{},
		history: history.NewMemoryStore(0),
	}
	reg := providers.New()
	cred, model := providers.FromConfig("deepgram")
	reg.Register("deepgram", h.batch, h.stream, cred, model)
	if register != nil {
		register(reg)
	}

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	opts = append([]Option{
		WithEvents(h.events),
		WithHistory(h.history),
		WithMetrics(metrics),
	}, opts...)
	h.c = New(cfg, reg, h.src, inject.New(h.surface), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

// speech returns a loud square wave of length d in the dictation format.
func speech(d time.Duration) audio.Recording {
	n := int(d.Seconds() * float64(audio.DictationFormat.SampleRate))
	pcm := make([]byte, n*2)
	for i := range n {
		v := int16(8000)
		if (i/20)%2 == 1 {
			v = -8000
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return audio.Recording{PCM: pcm, Format: audio.DictationFormat}
}

func frame(tag byte) audio.Frame {
	return audio.Frame{Data: []byte{tag, tag}, SampleCount: 1, Voiced: true}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func (h *harness) waitStatus(t *testing.T, status string) {
	t.Helper()
	waitFor(t, "status "+status, func() bool { return h.events.HasStatus(status) })
}

func (h *harness) waitCapturing(t *testing.T) {
	t.Helper()
	waitFor(t, "capture start", h.src.Capturing)
}

// ---- scenarios ----

func TestScenarioA_HoldStreams(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Dictation.HybridThreshold = 150 * time.Millisecond
	}, nil)

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.src.Emit(frame(1))
	h.src.Emit(frame(2))

	h.waitStatus(t, StatusStreaming)
	h.src.Emit(frame(3))
	waitFor(t, "live frame", func() bool { return len(h.stream.AudioChunks()) == 3 })
	for i, chunk := range h.stream.AudioChunks() {
		if chunk[0] != byte(i+1) {
			t.Fatalf("chunk %d = %v, want frames in arrival order", i, chunk)
		}
	}

	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "turn left"}})
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "Turn left at the next light.", IsFinal: true}})
	waitFor(t, "final transcript", func() bool { return h.events.HasFinal("Turn left at the next light.") })

	h.c.HotkeyUp()
	h.waitStatus(t, StatusDone)

	if got, want := h.events.States(), []State{HybridPending, Streaming, Idle}; !slices.Equal(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
	ts := h.events.Transcripts()
	firstFinal := slices.IndexFunc(ts, func(c transcriptCall) bool { return c.Final })
	if firstFinal < 1 || ts[0].Final {
		t.Errorf("transcripts = %+v, want an interim before the first final", ts)
	}
	if got := h.surface.Text("window-1"); got != "Turn left at the next light." {
		t.Errorf("surface text = %q", got)
	}
	if h.batch.CallCount() != 0 {
		t.Errorf("batch called %d times during streaming", h.batch.CallCount())
	}
	if got := h.src.Stops(); !slices.Equal(got, []bool{false}) {
		t.Errorf("source stops = %v, want [false]", got)
	}
	entries, _ := h.history.Recent(context.Background(), 0)
	if len(entries) != 1 || entries[0].Mode != "streaming" || entries[0].Provider != "deepgram" {
		t.Errorf("history = %+v", entries)
	}
}

func TestScenarioB_TapBatches(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, nil)

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.src.Emit(frame(1))
	h.c.HotkeyUp()
	waitFor(t, "batch recording", func() bool { return h.c.State() == BatchRecording })
	h.c.HotkeyDown()
	h.c.HotkeyUp()
	h.waitStatus(t, StatusDone)

	if got, want := h.events.States(), []State{HybridPending, BatchRecording, Processing, Idle}; !slices.Equal(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
	if h.batch.CallCount() != 1 {
		t.Fatalf("transcribe calls = %d, want 1", h.batch.CallCount())
	}
	if h.batch.Calls[0].Language != "en" {
		t.Errorf("language = %q", h.batch.Calls[0].Language)
	}
	if h.stream.StartCount() != 0 {
		t.Errorf("streaming started %d times", h.stream.StartCount())
	}
	if got := h.surface.Text("window-1"); got != "Turn left at the next light." {
		t.Errorf("surface text = %q", got)
	}
	if !h.events.HasFinal("Turn left at the next light.") {
		t.Error("no final transcript event")
	}
	if h.c.State() != Idle {
		t.Errorf("state = %s", h.c.State())
	}
	if got := h.events.sending; !slices.Equal(got, []bool{true, false}) {
		t.Errorf("sending = %v", got)
	}
}

func TestScenarioC_DoublePressDiscards(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, nil)

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.src.Emit(frame(1))
	h.c.HotkeyDown()
	h.waitStatus(t, StatusCanceled)

	if h.c.State() != Idle {
		t.Errorf("state = %s, want idle", h.c.State())
	}
	if got := h.src.Stops(); !slices.Equal(got, []bool{true}) {
		t.Errorf("source stops = %v, want [true]", got)
	}
	if h.batch.CallCount() != 0 || h.stream.StartCount() != 0 {
		t.Errorf("provider calls: batch=%d stream=%d", h.batch.CallCount(), h.stream.StartCount())
	}
}

func TestStartButton_ManualBatchNeverAutoSends(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) { cfg.Dictation.AutoSend = true }, nil)

	h.c.StartButton()
	h.waitCapturing(t)
	h.c.StartButton()
	h.waitStatus(t, StatusDone)

	if got, want := h.events.States(), []State{BatchRecording, Processing, Idle}; !slices.Equal(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
	for _, op := range h.surface.Recorded() {
		if op.Kind == "enter" {
			t.Fatal("manual session pressed Enter")
		}
	}
}

func TestAutoSend_HotkeyBatchPressesEnter(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) { cfg.Dictation.AutoSend = true }, nil)

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.c.HotkeyUp()
	h.c.HotkeyDown()
	h.waitStatus(t, StatusDone)

	ops := h.surface.Recorded()
	if len(ops) == 0 || ops[len(ops)-1].Kind != "enter" {
		t.Errorf("ops = %v, want trailing enter", ops)
	}
}

// ---- filters ----

func TestBatch_SilenceSkipsProvider(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, nil)
	h.src.StopResult = audio.Recording{PCM: make([]byte, 32000), Format: audio.DictationFormat}

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.c.HotkeyUp()
	h.c.HotkeyDown()
	h.waitStatus(t, StatusSilent)

	if h.batch.CallCount() != 0 {
		t.Errorf("transcribe called %d times for silence", h.batch.CallCount())
	}
	if h.c.State() != Idle {
		t.Errorf("state = %s", h.c.State())
	}
}

func TestBatch_HallucinationNotInjected(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, nil)
	h.batch.Text = "Thank you for watching!"

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.c.HotkeyUp()
	h.c.HotkeyDown()
	h.waitStatus(t, StatusHallucination)

	if got := h.surface.Text("window-1"); got != "" {
		t.Errorf("surface text = %q, want nothing injected", got)
	}
	if entries, _ := h.history.Recent(context.Background(), 0); len(entries) != 0 {
		t.Errorf("history = %+v", entries)
	}
}

func TestBatch_VocabularyCorrection(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Filters.Vocabulary = []string{"Kubernetes"}
	}, nil)
	h.batch.Text = "deploy to kubernetis now"

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.c.HotkeyUp()
	h.c.HotkeyDown()
	h.waitStatus(t, StatusDone)

	if got := h.surface.Text("window-1"); got != "deploy to Kubernetes now" {
		t.Errorf("surface text = %q", got)
	}
}

func TestBatch_RejectFilterDropsTranscript(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, nil, WithRejectFilter(func(text string) bool {
		return strings.Contains(text, "codename")
	}))
	h.batch.Text = "Ship the codename build tonight."

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.c.HotkeyUp()
	h.c.HotkeyDown()
	h.waitStatus(t, StatusHallucination)

	if got := h.surface.Text("window-1"); got != "" {
		t.Errorf("surface text = %q, want nothing injected", got)
	}
	if entries, _ := h.history.Recent(context.Background(), 0); len(entries) != 0 {
		t.Errorf("history = %+v", entries)
	}
}

func TestStreaming_HallucinatedFinalErasesInterim(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Dictation.HybridThreshold = 10 * time.Millisecond
	}, nil)

	h.c.HotkeyDown()
	h.waitStatus(t, StatusStreaming)
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "Open the door."}})
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "Open the door.", IsFinal: true}})
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "thank"}})
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "Thank you for watching.", IsFinal: true}})
	h.c.HotkeyUp()
	h.waitStatus(t, StatusDone)

	if got := h.surface.Text("window-1"); got != "Open the door." {
		t.Errorf("surface text = %q, want hallucinated segment removed", got)
	}
}

func TestStreaming_SegmentsAreSpaced(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Dictation.HybridThreshold = 10 * time.Millisecond
		cfg.Dictation.AutoSend = true
	}, nil)

	h.c.HotkeyDown()
	h.waitStatus(t, StatusStreaming)
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "First sentence.", IsFinal: true}})
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "Second"}})
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "Second one.", IsFinal: true}})
	// A repeated final must not duplicate text.
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "Second one.", IsFinal: true}})
	h.c.HotkeyUp()
	h.waitStatus(t, StatusDone)

	if got := h.surface.Text("window-1"); got != "First sentence. Second one.\n" {
		t.Errorf("surface text = %q", got)
	}
}

// ---- failures ----

func TestBatch_ProviderErrorFailsThenRecovers(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, nil)
	h.batch.Err = fmt.Errorf("deepgram: %w: connection reset", stt.ErrTransport)

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.c.HotkeyUp()
	h.c.HotkeyDown()
	waitFor(t, "failed state", func() bool { return h.c.State() == Failed })
	if !strings.HasPrefix(h.c.Status(), "Error: ") || !strings.Contains(h.c.Status(), "connection reset") {
		t.Errorf("status = %q", h.c.Status())
	}

	h.batch.Err = nil
	h.c.HotkeyDown()
	waitFor(t, "replay from idle", func() bool { return h.c.State() == HybridPending })
}

func TestStart_MissingCredentialBlocksCapture(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) { cfg.Providers[0].APIKey = "" }, nil)

	h.c.HotkeyDown()
	waitFor(t, "failed state", func() bool { return h.c.State() == Failed })
	if !strings.Contains(h.c.Status(), "API key is not set") {
		t.Errorf("status = %q", h.c.Status())
	}
	if h.src.StartCalls != 0 {
		t.Errorf("capture started %d times", h.src.StartCalls)
	}
}

func TestStart_NoDevice(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, nil)
	h.src.StartErr = audio.ErrNoDevice

	h.c.HotkeyDown()
	waitFor(t, "failed state", func() bool { return h.c.State() == Failed })
	if !strings.Contains(h.c.Status(), "no capture device") {
		t.Errorf("status = %q", h.c.Status())
	}
}

func TestStreaming_ConnectFailure(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Dictation.HybridThreshold = 10 * time.Millisecond
	}, nil)
	h.stream.StartErr = fmt.Errorf("deepgram: %w: dial refused", stt.ErrTransport)

	h.c.HotkeyDown()
	waitFor(t, "failed state", func() bool { return h.c.State() == Failed })
	if got := h.src.Stops(); !slices.Equal(got, []bool{true}) {
		t.Errorf("source stops = %v, want discard", got)
	}
}

func TestStreaming_ErrorEventFailsSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Dictation.HybridThreshold = 10 * time.Millisecond
	}, nil)

	h.c.HotkeyDown()
	h.waitStatus(t, StatusStreaming)
	h.stream.Push(stt.Event{Type: stt.EventError, Err: errors.New("socket closed")})
	waitFor(t, "failed state", func() bool { return h.c.State() == Failed })
	if h.stream.CancelCalls != 1 {
		t.Errorf("cancel calls = %d", h.stream.CancelCalls)
	}
}

func TestPanicInHandlerIsRecovered(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, nil)
	h.events.panicOn = "Turn left at the next light."

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.c.HotkeyUp()
	h.c.HotkeyDown()
	waitFor(t, "failed state", func() bool { return h.c.State() == Failed })
	if !strings.Contains(h.c.Status(), "internal error") {
		t.Errorf("status = %q", h.c.Status())
	}

	h.events.mu.Lock()
	h.events.panicOn = ""
	h.events.mu.Unlock()
	h.c.HotkeyDown()
	waitFor(t, "recovered", func() bool { return h.c.State() == HybridPending })
}

// ---- cancel ----

func TestCancel_Streaming(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Dictation.HybridThreshold = 10 * time.Millisecond
	}, nil)

	h.c.HotkeyDown()
	h.waitStatus(t, StatusStreaming)
	h.c.Cancel()
	h.waitStatus(t, StatusCanceled)

	if h.stream.CancelCalls != 1 || h.stream.StopCalls != 0 {
		t.Errorf("cancel=%d stop=%d, want cancel without finalize", h.stream.CancelCalls, h.stream.StopCalls)
	}
	if entries, _ := h.history.Recent(context.Background(), 0); len(entries) != 0 {
		t.Errorf("history = %+v", entries)
	}
}

func TestCancel_ProcessingAbortsBatch(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, nil)
	h.batch.Delay = time.Minute

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.c.HotkeyUp()
	h.c.HotkeyDown()
	h.waitStatus(t, StatusTranscribing)
	h.c.Cancel()
	h.waitStatus(t, StatusCanceled)

	waitFor(t, "sending cleared", func() bool {
		h.events.mu.Lock()
		defer h.events.mu.Unlock()
		return len(h.events.sending) == 2
	})
	if got := h.surface.Text("window-1"); got != "" {
		t.Errorf("surface text = %q", got)
	}
}

// ---- concurrency between sessions ----

func TestProcessing_NewSessionDoesNotWaitForBatch(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil, nil)
	h.batch.Delay = 100 * time.Millisecond

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.c.HotkeyUp()
	h.c.HotkeyDown()
	h.waitStatus(t, StatusTranscribing)

	h.surface.Target = "window-2"
	h.c.HotkeyDown()
	waitFor(t, "new session", func() bool { return h.c.State() == HybridPending })

	// The superseded result lands in its own window; the new session keeps
	// its state.
	waitFor(t, "superseded injection", func() bool { return h.surface.Text("window-1") == "Turn left at the next light." })
	if h.c.State() != HybridPending {
		t.Errorf("state = %s, want hybrid_pending", h.c.State())
	}
	if h.surface.Text("window-2") != "" {
		t.Errorf("new target received %q", h.surface.Text("window-2"))
	}
}

func TestProcessing_BatchFinishingWhileStreamingIsNotInjected(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Dictation.HybridThreshold = 10 * time.Millisecond
	}, nil)
	h.batch.Delay = 300 * time.Millisecond

	h.c.StartButton()
	h.waitCapturing(t)
	h.c.StartButton()
	h.waitStatus(t, StatusTranscribing)

	h.surface.Target = "window-2"
	h.c.HotkeyDown()
	h.waitStatus(t, StatusStreaming)

	waitFor(t, "batch result recorded", func() bool {
		entries, _ := h.history.Recent(context.Background(), 0)
		return len(entries) == 1
	})
	entries, _ := h.history.Recent(context.Background(), 0)
	if entries[0].Mode != "batch" || entries[0].Text != "Turn left at the next light." {
		t.Errorf("history = %+v", entries)
	}
	if got := h.events.Provider("deepgram"); got != "Turn left at the next light." {
		t.Errorf("provider transcript = %q", got)
	}
	if !h.events.HasFinal("Turn left at the next light.") {
		t.Error("batch result not surfaced")
	}
	if got := h.surface.Text("window-1"); got != "" {
		t.Errorf("batch target received %q", got)
	}
	if got := h.surface.Text("window-2"); got != "" {
		t.Errorf("streaming target received %q from the batch", got)
	}
	if h.c.State() != Streaming {
		t.Errorf("state = %s, want streaming", h.c.State())
	}

	// The streaming session still owns the injector.
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "Keep going.", IsFinal: true}})
	waitFor(t, "streaming injection", func() bool { return h.surface.Text("window-2") == "Keep going." })
	h.c.HotkeyUp()
	waitFor(t, "streaming result recorded", func() bool {
		entries, _ := h.history.Recent(context.Background(), 0)
		return len(entries) == 2
	})
	if got := h.surface.Text("window-2"); got != "Keep going." {
		t.Errorf("streaming target = %q", got)
	}
}

func TestStreaming_HoldAgainWhileDraining(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Dictation.HybridThreshold = 10 * time.Millisecond
		cfg.Dictation.FinalizeTimeout = 2 * time.Second
	}, nil)
	h.stream.StopDelay = 300 * time.Millisecond

	h.c.HotkeyDown()
	h.waitStatus(t, StatusStreaming)
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "First take.", IsFinal: true}})
	waitFor(t, "first final", func() bool { return h.events.HasFinal("First take.") })

	h.c.HotkeyUp()
	h.waitStatus(t, StatusFinishing)
	if !h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "Late words.", IsFinal: true}}) {
		t.Fatal("stream closed before the drain")
	}

	h.surface.Target = "window-2"
	h.c.HotkeyDown()
	waitFor(t, "second session streaming", func() bool {
		return h.stream.StartCount() == 2 && h.c.Status() == StatusStreaming
	})

	if slices.Contains(h.events.States(), Failed) {
		t.Fatalf("states = %v, status = %q", h.events.States(), h.c.Status())
	}
	if got := h.surface.Text("window-1"); got != "First take. Late words." {
		t.Errorf("first target = %q, want late final kept", got)
	}
	entries, _ := h.history.Recent(context.Background(), 0)
	if len(entries) != 1 || entries[0].Text != "First take. Late words." {
		t.Errorf("history = %+v", entries)
	}
	if got := h.surface.Text("window-2"); got != "" {
		t.Errorf("second target = %q before any result", got)
	}

	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "Second take.", IsFinal: true}})
	waitFor(t, "second final", func() bool { return h.surface.Text("window-2") == "Second take." })
	h.c.HotkeyUp()
	waitFor(t, "second session recorded", func() bool {
		entries, _ := h.history.Recent(context.Background(), 0)
		return len(entries) == 2
	})
	if got := h.stream.StopCalls; got != 2 {
		t.Errorf("stop calls = %d, want 2", got)
	}
}

// ---- test mode ----

func TestTestMode_BatchFansOutToAllProviders(t *testing.T) {
	t.Parallel()
	other := &sttmock.Batch{Text: "turn left at the next light", Delay: 30 * time.Millisecond}
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Dictation.TestMode = true
		cfg.Providers = append(cfg.Providers, config.ProviderEntry{Name: "openai", APIKey: "oa-key"})
	}, func(reg *providers.Registry) {
		cred, model := providers.FromConfig("openai")
		reg.Register("openai", other, nil, cred, model)
	})

	h.c.HotkeyDown()
	h.waitCapturing(t)
	h.c.HotkeyUp()
	h.c.HotkeyDown()
	h.waitStatus(t, StatusDone)

	if h.batch.CallCount() != 1 || other.CallCount() != 1 {
		t.Errorf("calls: deepgram=%d openai=%d", h.batch.CallCount(), other.CallCount())
	}
	if got := h.events.Provider("openai"); got != "turn left at the next light" {
		t.Errorf("openai transcript = %q", got)
	}
	if got := h.surface.Text("window-1"); got != "Turn left at the next light." {
		t.Errorf("surface text = %q, want primary provider's result", got)
	}
}

func TestTestMode_StreamingPrimaryDrivesInjection(t *testing.T) {
	t.Parallel()
	other := &sttmock.Streaming{}
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Dictation.TestMode = true
		cfg.Dictation.HybridThreshold = 10 * time.Millisecond
		cfg.Providers = append(cfg.Providers, config.ProviderEntry{Name: "assemblyai", APIKey: "aai-key"})
	}, func(reg *providers.Registry) {
		cred, model := providers.FromConfig("assemblyai")
		reg.Register("assemblyai", &sttmock.Batch{}, other, cred, model)
	})

	h.c.HotkeyDown()
	h.waitStatus(t, StatusStreaming)
	h.src.Emit(frame(7))
	waitFor(t, "audio to both", func() bool {
		return len(h.stream.AudioChunks()) == 1 && len(other.AudioChunks()) == 1
	})

	other.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "Hello there.", IsFinal: true}})
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "Hello, there.", IsFinal: true}})
	waitFor(t, "secondary transcript", func() bool { return h.events.Provider("assemblyai") == "Hello there." })
	h.c.HotkeyUp()
	h.waitStatus(t, StatusDone)

	if got := h.surface.Text("window-1"); got != "Hello, there." {
		t.Errorf("surface text = %q", got)
	}
	if other.StopCalls != 1 || h.stream.StopCalls != 1 {
		t.Errorf("stop calls: primary=%d secondary=%d", h.stream.StopCalls, other.StopCalls)
	}
}

// ---- settings ----

func TestApplySettings_DeferredUntilSessionEnds(t *testing.T) {
	t.Parallel()
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Dictation.HybridThreshold = 10 * time.Millisecond
	}, nil)
	h.c.HotkeyDown()
	h.waitStatus(t, StatusStreaming)

	next := baseConfig()
	next.Providers[0].APIKey = "dg-rotated"
	h.c.ApplySettings(next)
	h.stream.Push(stt.Event{Type: stt.EventTranscript, Transcript: stt.Transcript{Text: "still old key"}})
	waitFor(t, "interim after settings", func() bool {
		ts := h.events.Transcripts()
		return len(ts) > 0 && ts[len(ts)-1].Text == "still old key"
	})
	if got := h.batch.LastSettings().APIKey; got != "dg-key" {
		t.Errorf("api key mid-session = %q, want dg-key", got)
	}

	h.c.HotkeyUp()
	h.waitStatus(t, StatusDone)
	waitFor(t, "settings applied", func() bool { return h.batch.LastSettings().APIKey == "dg-rotated" })
	if got := h.stream.LastSettings().APIKey; got != "dg-rotated" {
		t.Errorf("streaming api key = %q", got)
	}
}
