package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// DictationChanged is true if provider selection, language, test mode,
	// auto-send or timing changed.
	DictationChanged bool

	// FiltersChanged is true if any silence, hallucination or vocabulary
	// setting changed.
	FiltersChanged bool

	ProvidersChanged bool
	ProviderChanges  []ProviderDiff

	// RestartRequired names changed settings that only take effect after a
	// restart ("server.listen_addr", "providers.deepgram.base_url").
	RestartRequired []string
}

// ProviderDiff describes what changed for a single provider. Added and
// removed providers take effect only after a restart.
type ProviderDiff struct {
	Name               string
	CredentialsChanged bool
	ModelChanged       bool
	Added              bool
	Removed            bool
}

// Empty reports whether nothing hot-reloadable changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.DictationChanged && !d.FiltersChanged && !d.ProvidersChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.History != new.History {
		d.RestartRequired = append(d.RestartRequired, "history")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}
	if old.Inject != new.Inject {
		d.RestartRequired = append(d.RestartRequired, "inject")
	}

	d.DictationChanged = old.Dictation != new.Dictation
	d.FiltersChanged = !filtersEqual(old.Filters, new.Filters)

	// Build provider lookup maps keyed by name.
	oldProviders := make(map[string]*ProviderEntry, len(old.Providers))
	for i := range old.Providers {
		oldProviders[old.Providers[i].Name] = &old.Providers[i]
	}
	newProviders := make(map[string]*ProviderEntry, len(new.Providers))
	for i := range new.Providers {
		newProviders[new.Providers[i].Name] = &new.Providers[i]
	}

	// Detect modified and removed providers, in old config order.
	for _, op := range old.Providers {
		np, exists := newProviders[op.Name]
		if !exists {
			d.ProviderChanges = append(d.ProviderChanges, ProviderDiff{Name: op.Name, Removed: true})
			d.ProvidersChanged = true
			d.RestartRequired = append(d.RestartRequired, "providers."+op.Name)
			continue
		}
		if op.BaseURL != np.BaseURL {
			d.RestartRequired = append(d.RestartRequired, "providers."+op.Name+".base_url")
		}
		if !reflect.DeepEqual(op.Options, np.Options) {
			d.RestartRequired = append(d.RestartRequired, "providers."+op.Name+".options")
		}
		pd := ProviderDiff{
			Name:               op.Name,
			CredentialsChanged: op.APIKey != np.APIKey,
			ModelChanged:       op.Model != np.Model,
		}
		if pd.CredentialsChanged || pd.ModelChanged {
			d.ProviderChanges = append(d.ProviderChanges, pd)
			d.ProvidersChanged = true
		}
	}

	// Detect added providers.
	for _, np := range new.Providers {
		if _, exists := oldProviders[np.Name]; !exists {
			d.ProviderChanges = append(d.ProviderChanges, ProviderDiff{Name: np.Name, Added: true})
			d.ProvidersChanged = true
			d.RestartRequired = append(d.RestartRequired, "providers."+np.Name)
		}
	}

	return d
}

func filtersEqual(a, b FiltersConfig) bool {
	return a.Silence == b.Silence &&
		a.Hallucination.MinLength == b.Hallucination.MinLength &&
		a.Hallucination.MaxTokenShare == b.Hallucination.MaxTokenShare &&
		slices.Equal(a.Hallucination.Phrases, b.Hallucination.Phrases) &&
		slices.Equal(a.Hallucination.Spam, b.Hallucination.Spam) &&
		slices.Equal(a.Vocabulary, b.Vocabulary)
}
