package geth

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/celestiaorg/poa-devnet/framework/artifacts"
	"github.com/celestiaorg/poa-devnet/framework/docker/container"
	"github.com/celestiaorg/poa-devnet/framework/types"
)

// ContainerWorkDir is where the host working directory is mounted in geth containers.
const ContainerWorkDir = "/data"

// Config holds what the geth one-shot commands need.
type Config struct {
	Logger *zap.Logger
	// Runner executes geth commands; the image entrypoint is geth itself.
	Runner container.CommandRunner
	Layout artifacts.Layout
}

// mountOptions binds the layout root at ContainerWorkDir and runs from there,
// so relative artifact paths mean the same thing inside and outside.
func (c Config) mountOptions() (container.Options, error) {
	root, err := filepath.Abs(c.Layout.Root)
	if err != nil {
		return container.Options{}, fmt.Errorf("resolving %s: %w", c.Layout.Root, err)
	}
	return container.Options{
		Binds:      []string{root + ":" + ContainerWorkDir},
		WorkingDir: ContainerWorkDir,
	}, nil
}

func relative(name string) string {
	return "./" + filepath.ToSlash(name)
}

// Provisioner creates keystore accounts with `geth account new`.
type Provisioner struct {
	cfg       Config
	extractor ResultExtractor
	logger    *zap.Logger
}

// NewProvisioner returns a Provisioner that reads addresses with MarkerLineExtractor.
func NewProvisioner(cfg Config) *Provisioner {
	return &Provisioner{
		cfg:       cfg,
		extractor: MarkerLineExtractor{Marker: AddressMarker},
		logger:    cfg.Logger.With(zap.String("component", "geth-provisioner")),
	}
}

// WithExtractor swaps the output extractor.
func (p *Provisioner) WithExtractor(e ResultExtractor) *Provisioner {
	p.extractor = e
	return p
}

// ProvisionIdentity creates one account encrypted with the password artifact
// and returns its normalised address. The command is not retried.
func (p *Provisioner) ProvisionIdentity(ctx context.Context, role types.Role) (types.Identity, error) {
	if err := artifacts.RequireNonEmpty(p.cfg.Layout.Path(p.cfg.Layout.PasswordFile)); err != nil {
		return types.Identity{}, err
	}

	opts, err := p.cfg.mountOptions()
	if err != nil {
		return types.Identity{}, err
	}

	cmd := []string{
		"account", "new",
		"--datadir", relative(p.cfg.Layout.ChainDataDir),
		"--password", relative(p.cfg.Layout.PasswordFile),
	}
	p.logger.Info("creating account", zap.String("role", string(role)))
	out, err := p.cfg.Runner.Run(ctx, cmd, opts)
	if err != nil {
		return types.Identity{}, fmt.Errorf("provisioning %s account: %w", role, err)
	}

	raw, err := p.extractor.Extract(out)
	if err != nil {
		return types.Identity{}, err
	}
	addr, err := types.ParseAddress(raw)
	if err != nil {
		return types.Identity{}, &types.ParseError{Marker: AddressMarker, Detail: err.Error()}
	}

	p.logger.Info("account created", zap.String("role", string(role)), zap.Stringer("address", addr))
	return types.Identity{Role: role, Address: addr}, nil
}
