package logging

import (
	"slices"
	"time"
)

// Config selects the sinks a Router feeds and how it filters and decorates
// events before they reach them.
type Config struct {
	// Sinks names the enabled outputs ("console", "json").
	Sinks       []string
	QueueSize   int
	MinSeverity Severity
	// Fields are attached to every routed event that does not already carry
	// the key, e.g. the server instance name.
	Fields   map[string]any
	JSON     JSONConfig
	Console  ConsoleConfig
	DropWarn time.Duration
}

// JSONConfig controls the structured file sink. Rotation limits are passed
// straight to the rotating writer.
type JSONConfig struct {
	FilePath   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type ConsoleConfig struct {
	UseColor bool
}

// DefaultConfig logs info and above to the console only.
func DefaultConfig() Config {
	return Config{
		Sinks:       []string{"console"},
		QueueSize:   defaultQueueSize,
		MinSeverity: SeverityInfo,
		DropWarn:    5 * time.Second,
		JSON: JSONConfig{
			MaxSizeMB:  64,
			MaxBackups: 4,
			MaxAgeDays: 14,
		},
	}
}

func (c Config) Enabled(sink string) bool {
	return slices.Contains(c.Sinks, sink)
}
