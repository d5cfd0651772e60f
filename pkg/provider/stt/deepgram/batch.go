package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/MrWong99/hotmic/pkg/audio"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
	"github.com/MrWong99/hotmic/pkg/provider/stt/job"
)

// Batch implements [stt.BatchTranscriber] against the pre-recorded API.
type Batch struct {
	opts  options
	creds credentials
	retry job.SyncConfig
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

type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe implements [stt.BatchTranscriber].
func (b *Batch) Transcribe(ctx context.Context, rec audio.Recording, language string) (string, error) {
	apiKey, model := b.creds.get()
	if apiKey == "" {
		return "", fmt.Errorf("deepgram: transcribe: %w: missing API key", stt.ErrConfiguration)
	}

	u, err := url.Parse(b.opts.baseURL + "/v1/listen")
	if err != nil {
		return "", fmt.Errorf("deepgram: transcribe: %w", err)
	}
	q := u.Query()
	q.Set("model", model)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	if language != "" {
		q.Set("language", language)
	} else {
		q.Set("detect_language", "true")
	}
	u.RawQuery = q.Encode()

	wav := audio.EncodeWAV(rec.PCM, rec.Format)
	return job.Sync(ctx, "deepgram", b.retry, func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(wav))
		if err != nil {
			return "", fmt.Errorf("deepgram: build request: %w", err)
		}
		req.Header.Set("Authorization", "Token "+apiKey)
		req.Header.Set("Content-Type", "audio/wav")

		body, err := job.Do(b.opts.httpClient, "deepgram", req)
		if err != nil {
			return "", err
		}
		var resp listenResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("deepgram: decode response: %w: %w", stt.ErrProtocol, err)
		}
		if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
			return "", nil
		}
		return resp.Results.Channels[0].Alternatives[0].Transcript, nil
	})
}

var _ stt.BatchTranscriber = (*Batch)(nil)
