package ipfs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/celestiaorg/poa-devnet/framework/docker/container"
	"github.com/celestiaorg/poa-devnet/framework/wait"
)

const (
	// DefaultAttempts is how many times each setting is tried.
	DefaultAttempts = 10
	// DefaultDelay separates attempts of one setting.
	DefaultDelay = 2 * time.Second
)

// Setting is one `ipfs config --json` key and its JSON value.
type Setting struct {
	Key   string
	Value string
}

// Command returns the ipfs CLI invocation that applies s.
func (s Setting) Command() []string {
	return []string{"ipfs", "config", "--json", s.Key, s.Value}
}

// CORSSettings are applied in order to let browser frontends call the API.
var CORSSettings = []Setting{
	{Key: "API.HTTPHeaders.Access-Control-Allow-Origin", Value: `["*"]`},
	{Key: "API.HTTPHeaders.Access-Control-Allow-Methods", Value: `["PUT", "POST", "GET"]`},
	{Key: "API.HTTPHeaders.Access-Control-Allow-Credentials", Value: `["true"]`},
}

// Result is what happened to one attempted setting.
type Result struct {
	Setting Setting
	Outcome wait.Outcome
}

// Report lists the attempted settings in order. Settings after the first
// failure are absent because they were never attempted.
type Report struct {
	Results   []Result
	Restarted bool
}

// OK reports whether no attempted setting failed.
func (r Report) OK() bool {
	for _, res := range r.Results {
		if !res.Outcome.OK() {
			return false
		}
	}
	return true
}

// Err summarises a failed report, or returns nil.
func (r Report) Err(total int) error {
	if r.OK() && len(r.Results) == total {
		return nil
	}
	var applied []string
	for _, res := range r.Results {
		if !res.Outcome.OK() {
			return fmt.Errorf("setting %s failed after %d attempts (applied: [%s]): %w",
				res.Setting.Key, res.Outcome.Attempts, strings.Join(applied, ", "), res.Outcome.Err)
		}
		applied = append(applied, res.Setting.Key)
	}
	return fmt.Errorf("only %d of %d settings applied", len(r.Results), total)
}

// Config controls a Configurator.
type Config struct {
	Logger        *zap.Logger
	Execer        container.Execer
	ContainerName string
	Settings      []Setting
	// Policy bounds the retries of each setting.
	Policy wait.Policy
}

// Configurator applies runtime settings to a running storage node.
type Configurator struct {
	cfg    Config
	logger *zap.Logger
}

// NewConfigurator returns a Configurator. Missing fields fall back to the CORS
// settings and DefaultAttempts tries spaced DefaultDelay apart.
func NewConfigurator(cfg Config) *Configurator {
	if cfg.Settings == nil {
		cfg.Settings = CORSSettings
	}
	if cfg.Policy.MaxAttempts == 0 && cfg.Policy.MaxDuration == 0 {
		cfg.Policy.MaxAttempts = DefaultAttempts
	}
	if cfg.Policy.Strategy == nil {
		cfg.Policy.Strategy = wait.FixedInterval{Interval: DefaultDelay}
	}
	return &Configurator{
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("component", "ipfs-configurator"), zap.String("container", cfg.ContainerName)),
	}
}

// Apply sets each setting in order, retrying each one independently, and stops
// at the first setting that exhausts its retries. When every setting succeeds
// the container is restarted so the node picks them up; a failed restart is
// logged but does not fail the report.
func (c *Configurator) Apply(ctx context.Context) Report {
	var report Report
	for _, s := range c.cfg.Settings {
		policy := c.cfg.Policy
		policy.OnRetry = func(attempt uint, err error) {
			c.logger.Debug("setting not applied yet", zap.String("key", s.Key), zap.Uint("attempt", attempt), zap.Error(err))
		}

		out := wait.Do(ctx, func(ctx context.Context) error {
			_, err := c.cfg.Execer.Exec(ctx, c.cfg.ContainerName, s.Command())
			return err
		}, policy)
		report.Results = append(report.Results, Result{Setting: s, Outcome: out})

		if !out.OK() {
			c.logger.Error("failed to apply setting", zap.String("key", s.Key), zap.Int("attempts", out.Attempts), zap.Error(out.Err))
			return report
		}
		c.logger.Info("applied setting", zap.String("key", s.Key), zap.Int("attempts", out.Attempts))
	}

	if err := c.cfg.Execer.Restart(ctx, c.cfg.ContainerName); err != nil {
		c.logger.Warn("failed to restart after configuration", zap.Error(err))
		return report
	}
	report.Restarted = true
	return report
}

// Configure runs Apply and turns an incomplete report into an error.
func (c *Configurator) Configure(ctx context.Context) (Report, error) {
	report := c.Apply(ctx)
	return report, report.Err(len(c.cfg.Settings))
}
