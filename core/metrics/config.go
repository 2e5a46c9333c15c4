package metrics

import "github.com/kilianp07/displib/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks []factory.ModuleConfig `json:"sinks" yaml:"sinks"`
	// Listen is the address of a dedicated Prometheus scrape endpoint
	// started by the serve command. Empty serves /metrics on the API
	// listener instead.
	Listen string `json:"listen" yaml:"listen"`
}
