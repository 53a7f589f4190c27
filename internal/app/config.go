package app

import "errors"

// Config holds everything an App needs to boot.
type Config struct {
	// Paths are the HCL manifest files or directories the loader reads.
	Paths []string
	// RepoDir is the repository the run describes. Empty means the current
	// directory.
	RepoDir string

	LogFormat string
	LogLevel  string

	// WorkerCount sizes the executor pool. Zero or negative picks the
	// executor default.
	WorkerCount int
	// HealthcheckPort is the /healthz listen port, bound only when a
	// long-lived session calls StartHealthcheck. Zero picks a free port.
	HealthcheckPort int

	// HistoryPath overrides the run ledger location. Empty means the
	// default under the user's home directory.
	HistoryPath string
}

// NewConfig validates a configuration.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.Paths) == 0 {
		return nil, errors.New("at least one manifest path is required")
	}
	return &cfg, nil
}
