// Package filter holds the local checks applied around a transcription: a
// silence check on raw audio before any network call, a hallucination
// predicate on the returned text, and a phonetic vocabulary corrector for
// accepted final text.
//
// The thresholds are hand-tuned defaults and every one of them can be
// overridden from configuration.
package filter

import (
	"time"

	"github.com/MrWong99/hotmic/pkg/audio"
)

const (
	defaultSilenceWindow  = 50 * time.Millisecond
	defaultRMSThreshold   = 0.01
	defaultMinSpeechRatio = 0.05
)

// Silence classifies recordings as speech or silence by windowed RMS energy.
// The zero value uses the defaults (50ms windows, 0.01 RMS, 5% ratio).
type Silence struct {
	// Window is the analysis window length.
	Window time.Duration

	// Threshold is the normalised RMS energy a window must exceed to count
	// as voiced.
	Threshold float64

	// MinRatio is the fraction of voiced windows required for the recording
	// to contain speech.
	MinRatio float64
}

func (s Silence) withDefaults() Silence {
	if s.Window <= 0 {
		s.Window = defaultSilenceWindow
	}
	if s.Threshold <= 0 {
		s.Threshold = defaultRMSThreshold
	}
	if s.MinRatio <= 0 {
		s.MinRatio = defaultMinSpeechRatio
	}
	return s
}

// ContainsSpeech reports whether rec holds enough voiced windows to be worth
// transcribing. A recording whose format cannot be interpreted counts as
// speech so the provider gets to decide.
func (s Silence) ContainsSpeech(rec audio.Recording) bool {
	s = s.withDefaults()
	if !rec.Format.Valid() || rec.Format.Channels > 2 {
		return true
	}
	mono := audio.Convert(rec.PCM, rec.Format, audio.Format{SampleRate: rec.Format.SampleRate, Channels: 1})

	windowBytes := int(int64(rec.Format.SampleRate)*int64(s.Window)/int64(time.Second)) * 2
	if windowBytes < 2 {
		return true
	}

	var total, voiced int
	for off := 0; off < len(mono); off += windowBytes {
		end := min(off+windowBytes, len(mono))
		if end-off < 2 {
			break
		}
		total++
		if audio.RMS(mono[off:end]) > s.Threshold {
			voiced++
		}
	}
	if total == 0 {
		return false
	}
	return float64(voiced)/float64(total) >= s.MinRatio
}

// ContainsSpeechWAV decodes a WAV container and classifies its audio. Decode
// failures count as speech.
func (s Silence) ContainsSpeechWAV(data []byte) bool {
	rec, err := audio.DecodeWAV(data)
	if err != nil {
		return true
	}
	return s.ContainsSpeech(rec)
}
