package coordinator

import (
	"github.com/MrWong99/hotmic/internal/config"
	"github.com/MrWong99/hotmic/internal/filter"
)

// filters are the local checks around a transcription, rebuilt whenever
// settings change. reject combines the hallucination filter with any
// predicates added through [WithRejectFilter].
type filters struct {
	silence    filter.Silence
	reject     filter.Predicate
	vocabulary *filter.Vocabulary
}

func newFilters(cfg *config.Config, extra []filter.Predicate) filters {
	f := cfg.Filters
	hallucination := filter.NewHallucination(filter.HallucinationConfig{
		MinLength:     f.Hallucination.MinLength,
		MaxTokenShare: f.Hallucination.MaxTokenShare,
		Phrases:       f.Hallucination.Phrases,
		Spam:          f.Hallucination.Spam,
	})
	return filters{
		silence: filter.Silence{
			Window:    f.Silence.Window,
			Threshold: f.Silence.RMSThreshold,
			MinRatio:  f.Silence.MinSpeechRatio,
		},
		reject:     filter.Any(append([]filter.Predicate{hallucination.Predicate()}, extra...)...),
		vocabulary: filter.NewVocabulary(f.Vocabulary),
	}
}
