package assemblyai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/coder/websocket"

	"github.com/MrWong99/hotmic/pkg/audio"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
	"github.com/MrWong99/hotmic/pkg/provider/stt/wsstream"
)

// Streaming implements [stt.StreamingTranscriber] over the v3 streaming API.
// Each turn is reported as one segment: unformatted updates are interim,
// the formatted end-of-turn message is final.
type Streaming struct {
	*wsstream.Session
	creds *credentials
}

// NewStreaming creates a streaming adapter.
func NewStreaming(apiKey string, opts ...Option) *Streaming {
	o := newOptions(opts)
	creds := &credentials{}
	creds.set(apiKey, o.model)

	sessOpts := append([]wsstream.Option{wsstream.WithHTTPClient(o.httpClient)}, o.session...)
	return &Streaming{
		Session: wsstream.New("assemblyai", &codec{endpoint: o.streamingURL, creds: creds}, sessOpts...),
		creds:   creds,
	}
}

// UpdateSettings implements [stt.StreamingTranscriber].
func (s *Streaming) UpdateSettings(apiKey, model string) { s.creds.set(apiKey, model) }

type codec struct {
	endpoint string
	creds    *credentials
}

// Endpoint ignores language: the v3 API selects languages through the
// speech model.
func (c *codec) Endpoint(string) (string, http.Header, error) {
	apiKey, model := c.creds.get()
	if apiKey == "" {
		return "", nil, fmt.Errorf("%w: missing API key", stt.ErrConfiguration)
	}
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", nil, err
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(audio.DictationFormat.SampleRate))
	q.Set("encoding", "pcm_s16le")
	q.Set("format_turns", "true")
	if model != "" {
		q.Set("speech_model", model)
	}
	u.RawQuery = q.Encode()

	h := http.Header{}
	h.Set("Authorization", apiKey)
	return u.String(), h, nil
}

func (c *codec) Configure(string) []byte { return nil }

func (c *codec) Audio(chunk []byte) (websocket.MessageType, []byte) {
	return websocket.MessageBinary, chunk
}

func (c *codec) EndOfAudio() []byte { return []byte(`{"type":"Terminate"}`) }

func (c *codec) KeepAlive() []byte { return nil }

type message struct {
	Type            string `json:"type"`
	Transcript      string `json:"transcript"`
	TurnOrder       *int   `json:"turn_order"`
	EndOfTurn       bool   `json:"end_of_turn"`
	TurnIsFormatted bool   `json:"turn_is_formatted"`
	Error           string `json:"error"`
}

func (c *codec) Decode(data []byte) ([]stt.Event, bool, error) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, err
	}
	switch m.Type {
	case "Turn":
		t := stt.Transcript{
			Text:        m.Transcript,
			IsFinal:     m.EndOfTurn && m.TurnIsFormatted,
			SpeechFinal: m.EndOfTurn,
		}
		if m.TurnOrder != nil {
			t.SegmentID = strconv.Itoa(*m.TurnOrder)
		}
		return []stt.Event{{Type: stt.EventTranscript, Transcript: t}}, false, nil
	case "Termination":
		return nil, true, nil
	case "Error":
		return []stt.Event{{Type: stt.EventError, Err: fmt.Errorf("assemblyai: %s", m.Error)}}, false, nil
	default: // Begin
		return nil, false, nil
	}
}

var _ stt.StreamingTranscriber = (*Streaming)(nil)
