package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// network changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VADChanged is true when any voice activity detection parameter changed.
	// New connections pick up the new values; existing ones keep their
	// segmenter until they reconnect.
	VADChanged bool

	// FilterChanged is true when the denylist or its match distance changed.
	FilterChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.VADChanged || d.FilterChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.VAD != new.VAD {
		d.VADChanged = true
	}

	if old.Filter.MaxDistance != new.Filter.MaxDistance || !slices.Equal(old.Filter.Denylist, new.Filter.Denylist) {
		d.FilterChanged = true
	}

	return d
}
