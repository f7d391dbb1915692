package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; a changed
// listen address or provider needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PrompterChanged bool
	ModeChanged     bool
	NewPrompter     PrompterConfig

	AlignmentChanged bool
	NewAlignment     AlignmentConfig

	RecognitionChanged bool
	NewRecognition     RecognitionConfig

	// RestartRequired is set when a field outside the hot-reloadable set
	// changed. The new value is ignored until restart.
	RestartRequired []string
}

// Any reports whether d contains a hot-reloadable change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.PrompterChanged || d.AlignmentChanged || d.RecognitionChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Prompter != new.Prompter {
		d.PrompterChanged = true
		d.ModeChanged = old.Prompter.Mode != new.Prompter.Mode
		d.NewPrompter = new.Prompter
	}

	if old.Alignment != new.Alignment {
		d.AlignmentChanged = true
		d.NewAlignment = new.Alignment
	}

	if old.Recognition != new.Recognition {
		d.RecognitionChanged = true
		d.NewRecognition = new.Recognition
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if old.Server.LogFormat != new.Server.LogFormat {
		d.RestartRequired = append(d.RestartRequired, "server.log_format")
	}
	if !sameProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Audio != new.Audio {
		d.RestartRequired = append(d.RestartRequired, "audio")
	}

	return d
}

// sameProviders compares entries by identity fields. Options maps are not
// compared.
func sameProviders(a, b ProvidersConfig) bool {
	if !sameEntry(a.STT, b.STT) || !sameEntry(a.VAD, b.VAD) || len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	for i := range a.Fallbacks {
		if !sameEntry(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return true
}

func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
