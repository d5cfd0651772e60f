// Package openai provides a batch transcription adapter backed by the OpenAI
// audio transcription API. OpenAI has no streaming transcription adapter;
// register [stt.Unsupported] in its place.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/hotmic/pkg/audio"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
	"github.com/MrWong99/hotmic/pkg/provider/stt/job"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = oai.AudioModelWhisper1

// Ensure Batch implements the stt.BatchTranscriber interface.
var _ stt.BatchTranscriber = (*Batch)(nil)

// config holds optional configuration for the adapter.
type config struct {
	baseURL    string
	httpClient *http.Client
	retry      job.SyncConfig
}

// Option is a functional option for Batch.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL (e.g. for a
// compatible self-hosted server).
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithRetry overrides the transport retry policy.
func WithRetry(r job.SyncConfig) Option {
	return func(c *config) { c.retry = r }
}

// Batch implements stt.BatchTranscriber using the OpenAI API.
type Batch struct {
	cfg config

	mu     sync.RWMutex
	apiKey string
	model  string
	client oai.Client
}

// NewBatch constructs an adapter. If model is empty, DefaultModel is used.
// An empty apiKey is accepted; Transcribe fails with stt.ErrConfiguration
// until one is set.
func NewBatch(apiKey, model string, opts ...Option) *Batch {
	b := &Batch{}
	for _, o := range opts {
		o(&b.cfg)
	}
	b.UpdateSettings(apiKey, model)
	return b
}

// UpdateSettings implements stt.BatchTranscriber. The client is rebuilt so
// the next request uses the new key.
func (b *Batch) UpdateSettings(apiKey, model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if model == "" {
		model = b.model
	}
	if model == "" {
		model = DefaultModel
	}
	b.apiKey, b.model = apiKey, model

	// Retries are handled by job.Sync so that only transport failures repeat.
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if b.cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(b.cfg.baseURL))
	}
	if b.cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(b.cfg.httpClient))
	}
	b.client = oai.NewClient(reqOpts...)
}

// Transcribe implements stt.BatchTranscriber.
func (b *Batch) Transcribe(ctx context.Context, rec audio.Recording, language string) (string, error) {
	b.mu.RLock()
	apiKey, model, client := b.apiKey, b.model, b.client
	b.mu.RUnlock()
	if apiKey == "" {
		return "", fmt.Errorf("openai: transcribe: %w: missing API key", stt.ErrConfiguration)
	}

	wav := audio.EncodeWAV(rec.PCM, rec.Format)
	return job.Sync(ctx, "openai", b.cfg.retry, func(ctx context.Context) (string, error) {
		params := oai.AudioTranscriptionNewParams{
			File:  oai.File(bytes.NewReader(wav), "audio.wav", "audio/wav"),
			Model: oai.AudioModel(model),
		}
		if language != "" {
			params.Language = oai.String(language)
		}
		resp, err := client.Audio.Transcriptions.New(ctx, params)
		if err != nil {
			return "", classify(ctx, err)
		}
		return strings.TrimSpace(resp.Text), nil
	})
}

// classify maps SDK errors onto the shared taxonomy: API errors become
// *job.StatusError, everything else not caused by ctx is a transport error.
func classify(ctx context.Context, err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		body := apiErr.Message
		if body == "" {
			body = apiErr.Error()
		}
		return &job.StatusError{Provider: "openai", StatusCode: apiErr.StatusCode, Body: body}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("openai: %w: %w", stt.ErrTransport, err)
}
