package config

import (
	"errors"
	"time"

	"github.com/kilianp07/displib/auth"
)

// SourceConfig configures how remote instances are fetched.
type SourceConfig struct {
	Auth           auth.Conf `json:"auth"`
	TimeoutSeconds int       `json:"timeout_seconds"`
	// MaxBytes caps the size of a fetched instance.
	MaxBytes int64 `json:"max_bytes"`
}

func (c *SourceConfig) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 64 << 20
	}
}

func (c SourceConfig) Validate() error {
	if c.TimeoutSeconds < 0 {
		return errors.New("timeout_seconds must be >= 0")
	}
	if c.MaxBytes < 0 {
		return errors.New("max_bytes must be >= 0")
	}
	return c.Auth.Validate()
}

func (c SourceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Listen string `json:"listen"`
	// Token enables bearer authentication when non-empty.
	Token        string `json:"token"`
	MaxBodyBytes int64  `json:"max_body_bytes"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 16 << 20
	}
}

func (c HTTPConfig) Validate() error {
	if c.MaxBodyBytes < 0 {
		return errors.New("max_body_bytes must be >= 0")
	}
	return nil
}
