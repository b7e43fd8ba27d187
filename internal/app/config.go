package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ManifestPath string // .hcl manifest file or directory
	NodeName     string // node to compile the catalog for
	FactsPath    string // optional JSON facts file
	OutputPath   string // catalog output file; empty means stdout
	Environment  string

	ExtensionHostURL string // optional socket.io extension host

	LogFormat string
	LogLevel  string
}

// NewConfig validates a Config and applies defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ManifestPath == "" {
		return nil, errors.New("ManifestPath is a required configuration field and cannot be empty")
	}
	if cfg.NodeName == "" {
		return nil, errors.New("NodeName is a required configuration field and cannot be empty")
	}
	if cfg.Environment == "" {
		cfg.Environment = "production"
	}
	return &cfg, nil
}
