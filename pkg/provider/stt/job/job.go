// Package job implements the two batch transcription lifecycles shared by
// the HTTP vendor adapters.
//
// Sync submits audio and receives the transcript in one request. A transport
// failure is retried once after a fixed backoff; a non-2xx response is
// returned immediately as *StatusError and never retried.
//
// Poll drives an asynchronous job after it has been created: it checks the
// job status on a fixed interval until the vendor reports success or failure,
// or the attempt budget runs out.
package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrWong99/hotmic/pkg/provider/stt"
)

const maxErrorBody = 4 << 10

// StatusError is a non-2xx vendor response.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Do sends req with client and returns the response body. Transport failures
// wrap [stt.ErrTransport]; non-2xx responses are returned as *StatusError
// carrying the (truncated) response body.
func Do(client *http.Client, provider string, req *http.Request) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%s: %w: %w", provider, stt.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Body:       string(bytes.TrimSpace(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w: %w", provider, stt.ErrTransport, err)
	}
	return body, nil
}

// SyncConfig configures [Sync].
type SyncConfig struct {
	// Attempts is the total number of tries including the first. Default: 2.
	Attempts int

	// Backoff is the fixed delay between tries. Default: 1s.
	Backoff time.Duration
}

func (c SyncConfig) withDefaults() SyncConfig {
	if c.Attempts <= 0 {
		c.Attempts = 2
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	return c
}

// Sync runs fn, retrying only failures that wrap [stt.ErrTransport].
func Sync(ctx context.Context, provider string, cfg SyncConfig, fn func(context.Context) (string, error)) (string, error) {
	cfg = cfg.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := fn(ctx)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !errors.Is(err, stt.ErrTransport) || attempt == cfg.Attempts {
			break
		}

		slog.Warn("batch request failed, retrying",
			"provider", provider,
			"attempt", attempt,
			"backoff", cfg.Backoff,
			"err", err,
		)
		timer := time.NewTimer(cfg.Backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastErr
}

// Status is the state of an asynchronous job as reported by one poll.
type Status int

const (
	// Pending means the job has not finished; polling continues.
	Pending Status = iota

	// Succeeded means the transcript is available.
	Succeeded

	// Failed means the vendor gave up on the job.
	Failed
)

// Result is the outcome of a single status check.
type Result struct {
	Status Status

	// Text is the transcript when Status is Succeeded.
	Text string

	// Message is the vendor's failure description when Status is Failed.
	Message string
}

// PollConfig configures [Poll].
type PollConfig struct {
	// Interval between status checks. Default: 1s.
	Interval time.Duration

	// MaxAttempts bounds the number of status checks. Default: 300.
	MaxAttempts int
}

func (c PollConfig) withDefaults() PollConfig {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 300
	}
	return c
}

// Poll calls check until it reports a terminal status. A failed job wraps
// [stt.ErrJobFailed] with the vendor's message; an exhausted budget wraps
// [stt.ErrTimeout]. Errors returned by check itself end polling immediately.
func Poll(ctx context.Context, provider string, cfg PollConfig, check func(context.Context) (Result, error)) (string, error) {
	cfg = cfg.withDefaults()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		res, err := check(ctx)
		if err != nil {
			return "", fmt.Errorf("%s: poll: %w", provider, err)
		}
		switch res.Status {
		case Succeeded:
			return res.Text, nil
		case Failed:
			return "", fmt.Errorf("%s: %w: %s", provider, stt.ErrJobFailed, res.Message)
		}

		if attempt == cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
	return "", fmt.Errorf("%s: %w: job not finished after %d polls", provider, stt.ErrTimeout, cfg.MaxAttempts)
}
