package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/MrWong99/hotmic/pkg/audio"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
	"github.com/MrWong99/hotmic/pkg/provider/stt/job"
)

// Batch implements [stt.BatchTranscriber] with the asynchronous job API.
type Batch struct {
	opts  options
	creds credentials
}

// NewBatch creates a batch adapter. An empty apiKey is accepted; Transcribe
// fails with [stt.ErrConfiguration] until one is set.
func NewBatch(apiKey string, opts ...Option) *Batch {
	o := newOptions(opts)
	b := &Batch{opts: o}
	b.creds.set(apiKey, o.model)
	return b
}

// UpdateSettings implements [stt.BatchTranscriber].
func (b *Batch) UpdateSettings(apiKey, model string) { b.creds.set(apiKey, model) }

type transcriptRequest struct {
	AudioURL          string `json:"audio_url"`
	LanguageCode      string `json:"language_code,omitempty"`
	LanguageDetection bool   `json:"language_detection,omitempty"`
	SpeechModel       string `json:"speech_model,omitempty"`
	Punctuate         bool   `json:"punctuate"`
	FormatText        bool   `json:"format_text"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Transcribe implements [stt.BatchTranscriber]. Upload and job creation
// failures are returned immediately; the job is then polled on a fixed
// interval until it completes, fails or the budget runs out.
func (b *Batch) Transcribe(ctx context.Context, rec audio.Recording, language string) (string, error) {
	apiKey, model := b.creds.get()
	if apiKey == "" {
		return "", fmt.Errorf("assemblyai: transcribe: %w: missing API key", stt.ErrConfiguration)
	}

	uploadURL, err := b.upload(ctx, apiKey, audio.EncodeWAV(rec.PCM, rec.Format))
	if err != nil {
		return "", err
	}

	id, err := b.create(ctx, apiKey, transcriptRequest{
		AudioURL:          uploadURL,
		LanguageCode:      language,
		LanguageDetection: language == "",
		SpeechModel:       model,
		Punctuate:         true,
		FormatText:        true,
	})
	if err != nil {
		return "", err
	}
	slog.Debug("assemblyai job created", "id", id)

	pollCfg := job.PollConfig{Interval: b.opts.pollInterval, MaxAttempts: b.opts.pollAttempts}
	return job.Poll(ctx, "assemblyai", pollCfg, func(ctx context.Context) (job.Result, error) {
		resp, err := b.status(ctx, apiKey, id)
		if err != nil {
			return job.Result{}, err
		}
		switch resp.Status {
		case "completed":
			return job.Result{Status: job.Succeeded, Text: resp.Text}, nil
		case "error":
			return job.Result{Status: job.Failed, Message: resp.Error}, nil
		default:
			return job.Result{Status: job.Pending}, nil
		}
	})
}

func (b *Batch) upload(ctx context.Context, apiKey string, wav []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.opts.baseURL+"/v2/upload", bytes.NewReader(wav))
	if err != nil {
		return "", fmt.Errorf("assemblyai: upload: %w", err)
	}
	req.Header.Set("Authorization", apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	body, err := job.Do(b.opts.httpClient, "assemblyai", req)
	if err != nil {
		return "", fmt.Errorf("assemblyai: upload: %w", err)
	}
	var resp struct {
		UploadURL string `json:"upload_url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.UploadURL == "" {
		return "", fmt.Errorf("assemblyai: upload: %w: no upload_url in %q", stt.ErrProtocol, body)
	}
	return resp.UploadURL, nil
}

func (b *Batch) create(ctx context.Context, apiKey string, tr transcriptRequest) (string, error) {
	payload, err := json.Marshal(tr)
	if err != nil {
		return "", fmt.Errorf("assemblyai: create: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.opts.baseURL+"/v2/transcript", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("assemblyai: create: %w", err)
	}
	req.Header.Set("Authorization", apiKey)
	req.Header.Set("Content-Type", "application/json")

	body, err := job.Do(b.opts.httpClient, "assemblyai", req)
	if err != nil {
		return "", fmt.Errorf("assemblyai: create: %w", err)
	}
	var resp transcriptResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.ID == "" {
		return "", fmt.Errorf("assemblyai: create: %w: no job id in %q", stt.ErrProtocol, body)
	}
	return resp.ID, nil
}

func (b *Batch) status(ctx context.Context, apiKey, id string) (transcriptResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.opts.baseURL+"/v2/transcript/"+url.PathEscape(id), nil)
	if err != nil {
		return transcriptResponse{}, err
	}
	req.Header.Set("Authorization", apiKey)

	body, err := job.Do(b.opts.httpClient, "assemblyai", req)
	if err != nil {
		return transcriptResponse{}, err
	}
	var resp transcriptResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return transcriptResponse{}, fmt.Errorf("%w: %w", stt.ErrProtocol, err)
	}
	return resp, nil
}

var _ stt.BatchTranscriber = (*Batch)(nil)
