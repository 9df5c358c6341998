package devnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/celestiaorg/poa-devnet/framework/artifacts"
	"github.com/celestiaorg/poa-devnet/framework/docker"
	"github.com/celestiaorg/poa-devnet/framework/docker/compose"
	"github.com/celestiaorg/poa-devnet/framework/docker/container"
	"github.com/celestiaorg/poa-devnet/framework/docker/geth"
	"github.com/celestiaorg/poa-devnet/framework/docker/ipfs"
	"github.com/celestiaorg/poa-devnet/framework/genesis"
	"github.com/celestiaorg/poa-devnet/framework/seed"
	"github.com/celestiaorg/poa-devnet/framework/types"
	"github.com/celestiaorg/poa-devnet/framework/wait"
)

// infoTimeout caps the RPC queries made by ShowInfo.
const infoTimeout = 2 * time.Second

// ServiceStarter brings the descriptor's services up and down.
type ServiceStarter interface {
	Up(ctx context.Context, d compose.Descriptor) (map[string]string, error)
	Down(ctx context.Context, logDir string) error
}

// Devnet runs the bootstrap steps against one working directory.
// Steps are sequential; two Devnets must not share a WorkDir concurrently.
type Devnet struct {
	cfg    Config
	layout artifacts.Layout
	logger *zap.Logger

	dockerClient types.DockerClient
	runner       container.CommandRunner
	execer       container.Execer
	starter      ServiceStarter
	dial         ChainDialer
	out          io.Writer
}

// Option customises a Devnet's collaborators.
type Option func(*Devnet)

// WithDockerClient uses cli instead of one built from the environment.
func WithDockerClient(cli types.DockerClient) Option {
	return func(d *Devnet) { d.dockerClient = cli }
}

// WithCommandRunner replaces the one-shot chain image runner.
func WithCommandRunner(r container.CommandRunner) Option {
	return func(d *Devnet) { d.runner = r }
}

// WithExecer replaces the docker exec implementation.
func WithExecer(e container.Execer) Option {
	return func(d *Devnet) { d.execer = e }
}

// WithServiceStarter replaces the compose starter.
func WithServiceStarter(s ServiceStarter) Option {
	return func(d *Devnet) { d.starter = s }
}

// WithChainDialer replaces the RPC client factory.
func WithChainDialer(dial ChainDialer) Option {
	return func(d *Devnet) { d.dial = dial }
}

// WithOutput sets where user-facing reports are printed.
func WithOutput(w io.Writer) Option {
	return func(d *Devnet) { d.out = w }
}

// New returns a Devnet for cfg. cfg is validated first.
func New(cfg Config, opts ...Option) (*Devnet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	d := &Devnet{
		cfg:    cfg,
		layout: cfg.Layout(),
		logger: cfg.Logger.With(zap.String("component", "devnet")),
		dial:   DialEthClient,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Layout returns the artifact layout in use.
func (d *Devnet) Layout() artifacts.Layout { return d.layout }

func (d *Devnet) dockerAPI(ctx context.Context) (types.DockerClient, error) {
	if d.dockerClient == nil {
		cli, err := docker.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		d.dockerClient = cli
	}
	return d.dockerClient, nil
}

func (d *Devnet) commandRunner(ctx context.Context) (container.CommandRunner, error) {
	if d.runner != nil {
		return d.runner, nil
	}
	img, err := container.ParseImage(d.cfg.Chain.Image)
	if err != nil {
		return nil, err
	}
	cli, err := d.dockerAPI(ctx)
	if err != nil {
		return nil, err
	}
	d.runner = container.NewRunner(d.cfg.Logger, cli, img)
	return d.runner, nil
}

func (d *Devnet) containerExecer(ctx context.Context) (container.Execer, error) {
	if d.execer != nil {
		return d.execer, nil
	}
	cli, err := d.dockerAPI(ctx)
	if err != nil {
		return nil, err
	}
	d.execer = container.NewExecer(d.cfg.Logger, cli)
	return d.execer, nil
}

func (d *Devnet) serviceStarter(ctx context.Context) (ServiceStarter, error) {
	if d.starter != nil {
		return d.starter, nil
	}
	cli, err := d.dockerAPI(ctx)
	if err != nil {
		return nil, err
	}
	d.starter = compose.NewStarter(d.cfg.Logger, cli, d.layout.Root)
	return d.starter, nil
}

func (d *Devnet) gethConfig(ctx context.Context) (geth.Config, error) {
	runner, err := d.commandRunner(ctx)
	if err != nil {
		return geth.Config{}, err
	}
	return geth.Config{Logger: d.cfg.Logger, Runner: runner, Layout: d.layout}, nil
}

// identities reads both persisted identities.
func (d *Devnet) identities() (validator, relayer types.Identity, err error) {
	validator, err = artifacts.ReadIdentity(d.layout.IdentityFile(types.RoleValidator), types.RoleValidator)
	if err != nil {
		return types.Identity{}, types.Identity{}, err
	}
	relayer, err = artifacts.ReadIdentity(d.layout.IdentityFile(types.RoleRelayer), types.RoleRelayer)
	if err != nil {
		return types.Identity{}, types.Identity{}, err
	}
	return validator, relayer, nil
}

// ProvisionAccounts writes the password artifact and creates the validator
// and relayer accounts, one after the other, persisting each address.
func (d *Devnet) ProvisionAccounts(ctx context.Context) error {
	if err := os.MkdirAll(d.layout.Root, 0o755); err != nil {
		return fmt.Errorf("creating work dir: %w", err)
	}
	if err := artifacts.WritePassword(d.layout.Path(d.layout.PasswordFile), d.cfg.Password); err != nil {
		return err
	}
	if err := os.MkdirAll(d.layout.Path(d.layout.ChainDataDir), 0o755); err != nil {
		return fmt.Errorf("creating chain data dir: %w", err)
	}

	gcfg, err := d.gethConfig(ctx)
	if err != nil {
		return err
	}
	provisioner := geth.NewProvisioner(gcfg)

	for _, role := range []types.Role{types.RoleValidator, types.RoleRelayer} {
		id, err := provisioner.ProvisionIdentity(ctx, role)
		if err != nil {
			return err
		}
		if err := artifacts.WriteIdentity(d.layout.IdentityFile(role), id); err != nil {
			return err
		}
	}
	return nil
}

// GenerateGenesis writes the genesis document from the persisted identities.
func (d *Devnet) GenerateGenesis(context.Context) error {
	validator, relayer, err := d.identities()
	if err != nil {
		return err
	}
	g := genesis.Build(validator.Address, relayer.Address, d.cfg.GenesisParams())
	if err := g.WriteFile(d.layout.Path(d.layout.GenesisFile)); err != nil {
		return err
	}
	d.logger.Info("genesis written", zap.String("path", d.layout.Path(d.layout.GenesisFile)), zap.Uint64("chain_id", g.Config.ChainID))
	return nil
}

// GenerateCompose writes the service descriptor, replacing any previous one.
func (d *Devnet) GenerateCompose(context.Context) error {
	validator, relayer, err := d.identities()
	if err != nil {
		return err
	}
	desc := compose.Build(d.cfg.ComposeParams(), validator.Address, relayer.Address)
	if err := desc.WriteFile(d.layout.Path(d.layout.DescriptorFile)); err != nil {
		return err
	}
	d.logger.Info("descriptor written", zap.String("path", d.layout.Path(d.layout.DescriptorFile)))
	return nil
}

// InitializeChain imports the genesis document into the chain database.
func (d *Devnet) InitializeChain(ctx context.Context) error {
	gcfg, err := d.gethConfig(ctx)
	if err != nil {
		return err
	}
	return geth.NewInitializer(gcfg).InitializeDatabase(ctx)
}

// WaitForRPC blocks until url (or the configured endpoint when empty)
// answers, or the readiness timeout passes.
func (d *Devnet) WaitForRPC(ctx context.Context, url string) error {
	if url == "" {
		url = d.cfg.RPCURL()
	}
	ready, err := wait.WaitForRPC(ctx, url, d.cfg.Readiness.Timeout,
		wait.WithInterval(d.cfg.Readiness.Interval),
		wait.WithLogger(d.logger),
	)
	if !ready {
		return err
	}
	return nil
}

// ConfigureStorageCORS applies the CORS settings to the storage node.
// Settings already applied are not rolled back when a later one fails.
func (d *Devnet) ConfigureStorageCORS(ctx context.Context) error {
	execer, err := d.containerExecer(ctx)
	if err != nil {
		return err
	}
	c := ipfs.NewConfigurator(ipfs.Config{
		Logger:        d.cfg.Logger,
		Execer:        execer,
		ContainerName: d.cfg.Storage.Container,
		Policy: wait.Policy{
			Strategy:    wait.FixedInterval{Interval: d.cfg.CORS.Delay},
			MaxAttempts: d.cfg.CORS.Attempts,
		},
	})
	if _, err := c.Configure(ctx); err != nil {
		return fmt.Errorf("configuring storage node: %w", err)
	}
	return nil
}

// Cleanup removes every generated artifact. It never fails; problems are logged.
func (d *Devnet) Cleanup(context.Context) {
	artifacts.NewCleaner(d.cfg.Logger).Cleanup(d.layout.CleanupFiles(), d.layout.CleanupDirs())
}

// Up starts the services in the descriptor.
func (d *Devnet) Up(ctx context.Context) error {
	desc, err := compose.Load(d.layout.Path(d.layout.DescriptorFile))
	if err != nil {
		return err
	}
	starter, err := d.serviceStarter(ctx)
	if err != nil {
		return err
	}
	if _, err := starter.Up(ctx, desc); err != nil {
		return err
	}
	return nil
}

// Down stops and removes the devnet containers.
func (d *Devnet) Down(ctx context.Context) error {
	starter, err := d.serviceStarter(ctx)
	if err != nil {
		return err
	}
	return starter.Down(ctx, d.cfg.LogDir)
}

// Seed hands the devnet's coordinates to the configured seeder.
func (d *Devnet) Seed(ctx context.Context) error {
	validator, relayer, err := d.identities()
	if err != nil {
		return err
	}

	scfg := seed.Config{
		Logger:    d.cfg.Logger,
		Dir:       d.cfg.Seed.Dir,
		Command:   d.cfg.Seed.Command,
		RPCURL:    d.cfg.RPCURL(),
		ChainID:   d.cfg.Chain.ChainID,
		Validator: validator.Address,
		Relayer:   relayer.Address,
		Stdout:    d.out,
		Stderr:    os.Stderr,
	}

	dialCtx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()
	if client, err := d.dial(dialCtx, scfg.RPCURL); err == nil {
		defer client.Close()
		scfg.Chain = client
	} else {
		d.logger.Warn("skipping chain id check", zap.Error(err))
	}
	return seed.Run(ctx, scfg)
}

// Bootstrap runs every step from a clean directory up to a configured,
// running devnet. It stops at the first failing step.
func (d *Devnet) Bootstrap(ctx context.Context) error {
	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"provision-accounts", d.ProvisionAccounts},
		{"generate-genesis", d.GenerateGenesis},
		{"generate-compose", d.GenerateCompose},
		{"initialize-chain", d.InitializeChain},
		{"up", d.Up},
		{"wait-for-rpc", func(ctx context.Context) error { return d.WaitForRPC(ctx, "") }},
		{"configure-storage-cors", d.ConfigureStorageCORS},
	}
	for _, step := range steps {
		d.logger.Info("running step", zap.String("step", step.name))
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

// ShowInfo prints the provisioned identities, or N/A for missing ones.
// When the node answers it also prints the chain id and balances.
// It never fails.
func (d *Devnet) ShowInfo(ctx context.Context) {
	var addrs []types.Identity
	for _, role := range []types.Role{types.RoleValidator, types.RoleRelayer} {
		id, err := artifacts.ReadIdentity(d.layout.IdentityFile(role), role)
		if err != nil {
			var missing *types.MissingPrerequisiteError
			if !errors.As(err, &missing) {
				d.logger.Debug("unreadable identity", zap.String("role", string(role)), zap.Error(err))
			}
			fmt.Fprintf(d.out, "%-10s %s\n", roleTitle(role)+":", "N/A")
			continue
		}
		addrs = append(addrs, id)
		fmt.Fprintf(d.out, "%-10s %s\n", roleTitle(role)+":", id.Address.Hex())
	}

	if g, err := genesis.Load(d.layout.Path(d.layout.GenesisFile)); err == nil {
		fmt.Fprintf(d.out, "%-10s %d\n", "Genesis:", g.Config.ChainID)
	}
	d.checkDescriptor(addrs)
	d.showChain(ctx, addrs)
}

// checkDescriptor warns when the descriptor unlocks other accounts than the
// identity files name, as happens after re-provisioning without regenerating.
func (d *Devnet) checkDescriptor(ids []types.Identity) {
	desc, err := compose.Load(d.layout.Path(d.layout.DescriptorFile))
	if err != nil || len(ids) != 2 {
		return
	}
	unlocked, err := desc.Unlocked()
	if err != nil {
		fmt.Fprintf(d.out, "%-10s %s\n", "Compose:", "unreadable unlock argument")
		return
	}
	if len(unlocked) != 2 || unlocked[0] != ids[0].Address || unlocked[1] != ids[1].Address {
		fmt.Fprintf(d.out, "%-10s %s\n", "Compose:", "stale, run generate-compose")
	}
}

func (d *Devnet) showChain(ctx context.Context, ids []types.Identity) {
	ctx, cancel := context.WithTimeout(ctx, infoTimeout)
	defer cancel()

	url := d.cfg.RPCURL()
	client, err := d.dial(ctx, url)
	if err != nil {
		d.logger.Debug("rpc unavailable", zap.Error(err))
		return
	}
	defer client.Close()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		fmt.Fprintf(d.out, "%-10s %s (%s)\n", "RPC:", "unreachable", url)
		return
	}
	fmt.Fprintf(d.out, "%-10s %s (chain id %s)\n", "RPC:", url, chainID)

	for _, id := range ids {
		bal, err := client.BalanceAt(ctx, id.Address.Common(), nil)
		if err != nil {
			d.logger.Debug("balance unavailable", zap.String("role", string(id.Role)), zap.Error(err))
			continue
		}
		fmt.Fprintf(d.out, "%-10s %s ETH (%s)\n", "Balance:", formatEther(bal), id.Role)
	}
}

func roleTitle(r types.Role) string {
	switch r {
	case types.RoleValidator:
		return "Validator"
	case types.RoleRelayer:
		return "Relayer"
	default:
		return string(r)
	}
}
