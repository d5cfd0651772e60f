// Package deepgram provides Deepgram-backed batch and streaming
// transcription adapters.
//
// Batch posts the WAV-wrapped recording to the pre-recorded /v1/listen
// endpoint in one request. Streaming uses the live WebSocket API with interim
// results, a KeepAlive every 5s and CloseStream to flush at end of audio.
package deepgram

import (
	"net/http"
	"strings"
	"sync"

	"github.com/MrWong99/hotmic/pkg/provider/stt/wsstream"
)

const (
	defaultBaseURL = "https://api.deepgram.com"
	defaultModel   = "nova-3"
)

// Option is a functional option shared by [Batch] and [Streaming].
type Option func(*options)

type options struct {
	baseURL    string
	model      string
	httpClient *http.Client
	session    []wsstream.Option
}

// WithModel sets the Deepgram model (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// WithBaseURL overrides the API base URL (https scheme; the streaming
// endpoint is derived by switching to wss).
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests and handshakes.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithSessionOptions passes options to the streaming session (finalize
// timeout, keep-alive interval). Ignored by [Batch].
func WithSessionOptions(opts ...wsstream.Option) Option {
	return func(o *options) { o.session = append(o.session, opts...) }
}

func newOptions(opts []Option) options {
	o := options{
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: http.DefaultClient,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// credentials holds the swappable API key and model.
type credentials struct {
	mu     sync.RWMutex
	apiKey string
	model  string
}

func (c *credentials) set(apiKey, model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = apiKey
	if model != "" {
		c.model = model
	}
}

func (c *credentials) get() (apiKey, model string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey, c.model
}
