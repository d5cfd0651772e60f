// Package whisper provides batch transcription adapters backed by whisper.cpp.
//
// [Server] talks to a running whisper-server binary over its REST API
// (POST /inference). [Native] runs the model in-process through the CGO
// bindings. whisper.cpp is a batch engine, so neither offers streaming;
// register [stt.Unsupported] as the streaming adapter.
//
// Usage:
//
//	b := whisper.NewServer("http://localhost:8080", whisper.WithModel("base.en"))
//	text, err := b.Transcribe(ctx, rec, "en")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/MrWong99/hotmic/pkg/audio"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
	"github.com/MrWong99/hotmic/pkg/provider/stt/job"
)

// Compile-time assertion that Server implements stt.BatchTranscriber.
var _ stt.BatchTranscriber = (*Server)(nil)

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(s *Server) { s.model = model }
}

// WithHTTPClient sets the HTTP client used for inference requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.httpClient = c }
}

// Server implements stt.BatchTranscriber backed by a whisper.cpp HTTP server.
// The server needs no credential; UpdateSettings only changes the model.
type Server struct {
	serverURL  string
	httpClient *http.Client
	retry      job.SyncConfig

	mu    sync.RWMutex
	model string
}

// NewServer creates an adapter for the whisper-server at serverURL
// (e.g., "http://localhost:8080").
func NewServer(serverURL string, opts ...Option) *Server {
	s := &Server{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// UpdateSettings implements stt.BatchTranscriber. The API key is ignored.
func (s *Server) UpdateSettings(_, model string) {
	if model == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
}

// Transcribe implements stt.BatchTranscriber. The recording is posted as a
// WAV file in a multipart form together with optional language and model
// hints.
func (s *Server) Transcribe(ctx context.Context, rec audio.Recording, language string) (string, error) {
	if s.serverURL == "" {
		return "", fmt.Errorf("whisper: transcribe: %w: server URL not set", stt.ErrConfiguration)
	}
	s.mu.RLock()
	model := s.model
	s.mu.RUnlock()

	body, contentType, err := inferenceForm(audio.EncodeWAV(rec.PCM, rec.Format), language, model)
	if err != nil {
		return "", err
	}

	return job.Sync(ctx, "whisper", s.retry, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("whisper: create request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)

		data, err := job.Do(s.httpClient, "whisper", req)
		if err != nil {
			return "", err
		}
		var result struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &result); err != nil {
			return "", fmt.Errorf("whisper: parse JSON response: %w: %w", stt.ErrProtocol, err)
		}
		return strings.TrimSpace(result.Text), nil
	})
}

// inferenceForm builds the multipart body expected by /inference.
func inferenceForm(wav []byte, language, model string) ([]byte, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return nil, "", fmt.Errorf("whisper: write response_format field: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return nil, "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if model != "" {
		if err := mw.WriteField("model", model); err != nil {
			return nil, "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}
	return body.Bytes(), mw.FormDataContentType(), nil
}
