package devnet

import (
	"time"

	"go.uber.org/zap"
)

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config)

// WithLogger sets the logger every step derives its logger from.
func WithLogger(logger *zap.Logger) ConfigOption {
	return func(cfg *Config) {
		cfg.Logger = logger
	}
}

// WithWorkDir sets the directory holding generated artifacts.
func WithWorkDir(dir string) ConfigOption {
	return func(cfg *Config) {
		cfg.WorkDir = dir
	}
}

// WithChainID sets the chain id written to genesis and the descriptor.
func WithChainID(chainID uint64) ConfigOption {
	return func(cfg *Config) {
		cfg.Chain.ChainID = chainID
	}
}

// WithChainImage sets the chain node image.
func WithChainImage(image string) ConfigOption {
	return func(cfg *Config) {
		cfg.Chain.Image = image
	}
}

// WithStorageImage sets the storage node image.
func WithStorageImage(image string) ConfigOption {
	return func(cfg *Config) {
		cfg.Storage.Image = image
	}
}

// WithReadiness sets the readiness timeout and probe interval.
func WithReadiness(timeout, interval time.Duration) ConfigOption {
	return func(cfg *Config) {
		cfg.Readiness.Timeout = timeout
		cfg.Readiness.Interval = interval
	}
}

// WithRPCURL overrides the readiness and seeding endpoint.
func WithRPCURL(url string) ConfigOption {
	return func(cfg *Config) {
		cfg.Readiness.URL = url
	}
}

// WithCORSRetry sets the per-setting retry budget of the storage configuration.
func WithCORSRetry(attempts uint, delay time.Duration) ConfigOption {
	return func(cfg *Config) {
		cfg.CORS.Attempts = attempts
		cfg.CORS.Delay = delay
	}
}

// WithSeedCommand sets the seeder command and the directory it runs in.
// Empty values keep the configured ones.
func WithSeedCommand(dir string, command ...string) ConfigOption {
	return func(cfg *Config) {
		if dir != "" {
			cfg.Seed.Dir = dir
		}
		if len(command) > 0 {
			cfg.Seed.Command = command
		}
	}
}

// WithLogDir makes teardown save container logs to dir.
func WithLogDir(dir string) ConfigOption {
	return func(cfg *Config) {
		cfg.LogDir = dir
	}
}
