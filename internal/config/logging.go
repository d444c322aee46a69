package config

// LoggingConfig configures categorized file logging. The logging package
// reads this section straight from the config file to avoid an import cycle;
// the struct here exists so Save round-trips it.
type LoggingConfig struct {
	Level      string          `yaml:"level"` // debug, info, warn, error
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}
