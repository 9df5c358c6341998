package geth

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/celestiaorg/poa-devnet/framework/artifacts"
)

// Initializer writes the genesis block into the chain database.
type Initializer struct {
	cfg    Config
	logger *zap.Logger
}

// NewInitializer returns an Initializer for cfg.
func NewInitializer(cfg Config) *Initializer {
	return &Initializer{
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("component", "geth-initializer")),
	}
}

// InitializeDatabase runs `geth init` against the genesis artifact once.
// It does not check whether the database already holds a chain.
func (i *Initializer) InitializeDatabase(ctx context.Context) error {
	if err := artifacts.RequireNonEmpty(i.cfg.Layout.Path(i.cfg.Layout.GenesisFile)); err != nil {
		return err
	}

	opts, err := i.cfg.mountOptions()
	if err != nil {
		return err
	}

	cmd := []string{
		"--datadir", relative(i.cfg.Layout.ChainDataDir),
		"init", relative(i.cfg.Layout.GenesisFile),
	}
	i.logger.Info("initializing chain database", zap.String("datadir", i.cfg.Layout.ChainDataDir))
	if _, err := i.cfg.Runner.Run(ctx, cmd, opts); err != nil {
		return fmt.Errorf("initializing chain database: %w", err)
	}
	return nil
}
