package deepgram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/hotmic/pkg/audio"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
	"github.com/MrWong99/hotmic/pkg/provider/stt/wsstream"
)

// Streaming implements [stt.StreamingTranscriber] over the live API.
type Streaming struct {
	*wsstream.Session
	creds *credentials
}

// NewStreaming creates a streaming adapter. An empty apiKey is accepted;
// Start fails with [stt.ErrConfiguration] until one is set.
func NewStreaming(apiKey string, opts ...Option) *Streaming {
	o := newOptions(opts)
	creds := &credentials{}
	creds.set(apiKey, o.model)

	sessOpts := append([]wsstream.Option{wsstream.WithHTTPClient(o.httpClient)}, o.session...)
	return &Streaming{
		Session: wsstream.New("deepgram", &codec{baseURL: o.baseURL, creds: creds}, sessOpts...),
		creds:   creds,
	}
}

// UpdateSettings implements [stt.StreamingTranscriber].
func (s *Streaming) UpdateSettings(apiKey, model string) { s.creds.set(apiKey, model) }

// ---- codec ----

type codec struct {
	baseURL string
	creds   *credentials
}

func (c *codec) Endpoint(language string) (string, http.Header, error) {
	apiKey, model := c.creds.get()
	if apiKey == "" {
		return "", nil, fmt.Errorf("%w: missing API key", stt.ErrConfiguration)
	}

	u, err := url.Parse(c.baseURL + "/v1/listen")
	if err != nil {
		return "", nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audio.DictationFormat.SampleRate))
	q.Set("channels", strconv.Itoa(audio.DictationFormat.Channels))
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("utterance_end_ms", "1000")
	q.Set("vad_events", "true")
	if language != "" {
		q.Set("language", language)
	}
	u.RawQuery = q.Encode()

	h := http.Header{}
	h.Set("Authorization", "Token "+apiKey)
	return u.String(), h, nil
}

// Configure returns nil: Deepgram takes its configuration from the query
// string.
func (c *codec) Configure(string) []byte { return nil }

func (c *codec) Audio(chunk []byte) (websocket.MessageType, []byte) {
	return websocket.MessageBinary, chunk
}

func (c *codec) EndOfAudio() []byte { return []byte(`{"type":"CloseStream"}`) }

func (c *codec) KeepAlive() []byte { return []byte(`{"type":"KeepAlive"}`) }

// message covers every server message type the adapter reacts to.
type message struct {
	Type        string   `json:"type"`
	IsFinal     bool     `json:"is_final"`
	SpeechFinal bool     `json:"speech_final"`
	Start       *float64 `json:"start"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
	Description string `json:"description"`
}

func (c *codec) Decode(data []byte) ([]stt.Event, bool, error) {
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, err
	}
	switch m.Type {
	case "Results":
		if len(m.Channel.Alternatives) == 0 {
			return nil, false, nil
		}
		t := stt.Transcript{
			Text:        strings.TrimSpace(m.Channel.Alternatives[0].Transcript),
			IsFinal:     m.IsFinal,
			SpeechFinal: m.SpeechFinal,
		}
		if m.Start != nil {
			t.SegmentID = strconv.FormatFloat(*m.Start, 'f', -1, 64)
		}
		return []stt.Event{{Type: stt.EventTranscript, Transcript: t}}, false, nil
	case "UtteranceEnd":
		return []stt.Event{{Type: stt.EventUtteranceEnd}}, false, nil
	case "Metadata":
		// Sent once the stream is closed and all results have been flushed.
		return nil, true, nil
	case "Error":
		return []stt.Event{{
			Type: stt.EventError,
			Err:  fmt.Errorf("deepgram: %s", m.Description),
		}}, false, nil
	default:
		return nil, false, nil
	}
}

var _ stt.StreamingTranscriber = (*Streaming)(nil)
