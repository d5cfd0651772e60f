// Package assemblyai provides AssemblyAI-backed transcription adapters.
//
// Batch uses the asynchronous pre-recorded API: upload the audio, create a
// transcript job, then poll until it completes. Streaming uses the v3
// universal-streaming WebSocket API with formatted turns.
package assemblyai

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/hotmic/pkg/provider/stt/wsstream"
)

const (
	defaultBaseURL      = "https://api.assemblyai.com"
	defaultStreamingURL = "wss://streaming.assemblyai.com/v3/ws"
	defaultPollInterval = 3 * time.Second
	defaultPollAttempts = 200
)

// Option is a functional option shared by [Batch] and [Streaming].
type Option func(*options)

type options struct {
	baseURL      string
	streamingURL string
	model        string
	httpClient   *http.Client
	pollInterval time.Duration
	pollAttempts int
	session      []wsstream.Option
}

// WithModel sets the speech model ("best", "nano", or a streaming model).
// Empty leaves the vendor default.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithBaseURL overrides the REST API base URL.
func WithBaseURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithStreamingURL overrides the streaming WebSocket endpoint.
func WithStreamingURL(u string) Option {
	return func(o *options) {
		if u != "" {
			o.streamingURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests and handshakes.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithPolling sets the poll interval and attempt budget of batch jobs.
// Defaults: 3s, 200 attempts.
func WithPolling(interval time.Duration, attempts int) Option {
	return func(o *options) {
		if interval > 0 {
			o.pollInterval = interval
		}
		if attempts > 0 {
			o.pollAttempts = attempts
		}
	}
}

// WithSessionOptions passes options to the streaming session. Ignored by
// [Batch].
func WithSessionOptions(opts ...wsstream.Option) Option {
	return func(o *options) { o.session = append(o.session, opts...) }
}

func newOptions(opts []Option) options {
	o := options{
		baseURL:      defaultBaseURL,
		streamingURL: defaultStreamingURL,
		httpClient:   http.DefaultClient,
		pollInterval: defaultPollInterval,
		pollAttempts: defaultPollAttempts,
	}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

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
