package main

import (
	"time"

	"github.com/MrWong99/hotmic/internal/config"
	"github.com/MrWong99/hotmic/pkg/provider/stt"
	"github.com/MrWong99/hotmic/pkg/provider/stt/assemblyai"
	"github.com/MrWong99/hotmic/pkg/provider/stt/deepgram"
	"github.com/MrWong99/hotmic/pkg/provider/stt/openai"
	"github.com/MrWong99/hotmic/pkg/provider/stt/whisper"
	"github.com/MrWong99/hotmic/pkg/provider/stt/wsstream"
)

const defaultWhisperServer = "http://localhost:8080"

// needsKey reports whether provider name authenticates with an API key.
// whisper.cpp runs locally, either as a server or in process.
func needsKey(name string) bool {
	switch name {
	case "whisper", "whisper-native":
		return false
	}
	return true
}

// registerBuiltinProviders wires every provider shipped with hotmic into reg.
// finalize bounds how long a streaming session waits for its last results.
func registerBuiltinProviders(reg *config.Registry, finalize time.Duration) {
	sessionOpts := func(entry config.ProviderEntry) []wsstream.Option {
		return []wsstream.Option{
			wsstream.WithFinalizeTimeout(entry.OptionDuration("finalize_timeout", finalize)),
			wsstream.WithDialTimeout(entry.OptionDuration("dial_timeout", 0)),
		}
	}

	reg.Register("deepgram", func(entry config.ProviderEntry) (stt.BatchTranscriber, stt.StreamingTranscriber, error) {
		opts := []deepgram.Option{
			deepgram.WithModel(entry.Model),
			deepgram.WithBaseURL(entry.BaseURL),
			deepgram.WithSessionOptions(sessionOpts(entry)...),
		}
		return deepgram.NewBatch(entry.APIKey, opts...), deepgram.NewStreaming(entry.APIKey, opts...), nil
	})

	reg.Register("assemblyai", func(entry config.ProviderEntry) (stt.BatchTranscriber, stt.StreamingTranscriber, error) {
		opts := []assemblyai.Option{
			assemblyai.WithModel(entry.Model),
			assemblyai.WithBaseURL(entry.BaseURL),
			assemblyai.WithStreamingURL(entry.OptionString("streaming_url")),
			assemblyai.WithPolling(entry.OptionDuration("poll_interval", 0), entry.OptionInt("poll_attempts", 0)),
			assemblyai.WithSessionOptions(sessionOpts(entry)...),
		}
		return assemblyai.NewBatch(entry.APIKey, opts...), assemblyai.NewStreaming(entry.APIKey, opts...), nil
	})

	reg.Register("openai", func(entry config.ProviderEntry) (stt.BatchTranscriber, stt.StreamingTranscriber, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.NewBatch(entry.APIKey, entry.Model, opts...), stt.Unsupported{Provider: "openai"}, nil
	})

	reg.Register("whisper", func(entry config.ProviderEntry) (stt.BatchTranscriber, stt.StreamingTranscriber, error) {
		serverURL := entry.BaseURL
		if serverURL == "" {
			serverURL = defaultWhisperServer
		}
		return whisper.NewServer(serverURL, whisper.WithModel(entry.Model)), stt.Unsupported{Provider: "whisper"}, nil
	})

	reg.Register("whisper-native", func(entry config.ProviderEntry) (stt.BatchTranscriber, stt.StreamingTranscriber, error) {
		modelPath := entry.OptionString("model_path")
		if modelPath == "" {
			modelPath = entry.Model
		}
		n, err := whisper.NewNative(modelPath)
		if err != nil {
			return nil, nil, err
		}
		return n, stt.Unsupported{Provider: "whisper-native"}, nil
	})
}
