package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

// LoggingConfig selects the log level and format of every component.
type LoggingConfig struct {
	// Level is a zerolog level name. Empty keeps LOG_LEVEL.
	Level string `json:"level"`
	// Console switches to the human readable writer.
	Console bool `json:"console"`
}

func (c *LoggingConfig) SetDefaults() {}

func (c LoggingConfig) Validate() error {
	if c.Level == "" {
		return nil
	}
	if _, err := zerolog.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("unknown level %q", c.Level)
	}
	return nil
}
