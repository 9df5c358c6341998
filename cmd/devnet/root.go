package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/celestiaorg/poa-devnet/framework/devnet"
)

type options struct {
	configPath string
	workDir    string
	logLevel   string
	chainID    uint64
	chainImage string

	// set by individual subcommands.
	logDir   string
	seedDir  string
	seedArgs []string
}

func (o *options) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.configPath, "config", "", "path to a TOML config file (default: ./"+devnet.DefaultConfigFile+" when present)")
	fs.StringVar(&o.workDir, "work-dir", "", "directory holding generated artifacts (overrides work_dir)")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.Uint64Var(&o.chainID, "chain-id", 0, "chain id (overrides chain.chain_id)")
	fs.StringVar(&o.chainImage, "chain-image", "", "chain node image (overrides chain.image)")
}

// configOptions turns the flags that were set into config overrides.
func (o *options) configOptions(logger *zap.Logger) []devnet.ConfigOption {
	opts := []devnet.ConfigOption{devnet.WithLogger(logger)}
	if o.workDir != "" {
		opts = append(opts, devnet.WithWorkDir(o.workDir))
	}
	if o.chainID != 0 {
		opts = append(opts, devnet.WithChainID(o.chainID))
	}
	if o.chainImage != "" {
		opts = append(opts, devnet.WithChainImage(o.chainImage))
	}
	if o.logDir != "" {
		opts = append(opts, devnet.WithLogDir(o.logDir))
	}
	if o.seedDir != "" || len(o.seedArgs) > 0 {
		opts = append(opts, devnet.WithSeedCommand(o.seedDir, o.seedArgs...))
	}
	return opts
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// newDevnet builds the devnet from flags and the config file.
func (o *options) newDevnet(cmd *cobra.Command) (*devnet.Devnet, *zap.Logger, error) {
	logger, err := newLogger(o.logLevel)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := devnet.LoadConfig(o.configPath, o.configOptions(logger)...)
	if err != nil {
		return nil, logger, err
	}
	d, err := devnet.New(cfg, devnet.WithOutput(cmd.OutOrStdout()))
	return d, logger, err
}

// step adapts a devnet operation into a cobra RunE. Every command goes
// through here so errors are logged once and turned into exit code 1.
func (o *options) step(run func(ctx context.Context, d *devnet.Devnet, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		d, logger, err := o.newDevnet(cmd)
		if logger != nil {
			defer func() { _ = logger.Sync() }()
		}
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := run(ctx, d, args); err != nil {
			logger.Error("command failed", zap.String("command", cmd.Name()), zap.Error(err))
			return err
		}
		return nil
	}
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "devnet",
		Short:         "Bootstrap a local proof-of-authority devnet with a storage node.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	o.addFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "provision-accounts",
			Short: "Write the password file and create the validator and relayer accounts.",
			Args:  cobra.NoArgs,
			RunE: o.step(func(ctx context.Context, d *devnet.Devnet, _ []string) error {
				return d.ProvisionAccounts(ctx)
			}),
		},
		&cobra.Command{
			Use:   "generate-genesis",
			Short: "Write genesis.json from the provisioned accounts.",
			Args:  cobra.NoArgs,
			RunE: o.step(func(ctx context.Context, d *devnet.Devnet, _ []string) error {
				return d.GenerateGenesis(ctx)
			}),
		},
		&cobra.Command{
			Use:   "generate-compose",
			Short: "Write docker-compose.yml from the provisioned accounts, replacing any existing file.",
			Args:  cobra.NoArgs,
			RunE: o.step(func(ctx context.Context, d *devnet.Devnet, _ []string) error {
				return d.GenerateCompose(ctx)
			}),
		},
		&cobra.Command{
			Use:   "initialize-chain",
			Short: "Initialise the chain database from genesis.json.",
			Args:  cobra.NoArgs,
			RunE: o.step(func(ctx context.Context, d *devnet.Devnet, _ []string) error {
				return d.InitializeChain(ctx)
			}),
		},
		&cobra.Command{
			Use:   "show-info",
			Short: "Print the provisioned accounts and, when the node is up, its chain id and balances.",
			Args:  cobra.NoArgs,
			RunE: o.step(func(ctx context.Context, d *devnet.Devnet, _ []string) error {
				d.ShowInfo(ctx)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "wait-for-rpc [url]",
			Short: "Block until the chain node answers JSON-RPC or the timeout passes.",
			Args:  cobra.MaximumNArgs(1),
			RunE: o.step(func(ctx context.Context, d *devnet.Devnet, args []string) error {
				var url string
				if len(args) == 1 {
					url = args[0]
				}
				return d.WaitForRPC(ctx, url)
			}),
		},
		&cobra.Command{
			Use:   "configure-storage-cors",
			Short: "Allow cross-origin requests to the storage node API, then restart it.",
			Args:  cobra.NoArgs,
			RunE: o.step(func(ctx context.Context, d *devnet.Devnet, _ []string) error {
				return d.ConfigureStorageCORS(ctx)
			}),
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Remove every generated file and data directory.",
			Args:  cobra.NoArgs,
			RunE: o.step(func(ctx context.Context, d *devnet.Devnet, _ []string) error {
				d.Cleanup(ctx)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "up",
			Short: "Start the services described in docker-compose.yml.",
			Args:  cobra.NoArgs,
			RunE: o.step(func(ctx context.Context, d *devnet.Devnet, _ []string) error {
				return d.Up(ctx)
			}),
		},
		o.downCmd(),
		o.seedCmd(),
		&cobra.Command{
			Use:   "bootstrap",
			Short: "Provision, generate, initialise, start, wait and configure in one go.",
			Args:  cobra.NoArgs,
			RunE: o.step(func(ctx context.Context, d *devnet.Devnet, _ []string) error {
				return d.Bootstrap(ctx)
			}),
		},
	)
	return root
}

func (o *options) downCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the devnet containers.",
		Args:  cobra.NoArgs,
		RunE: o.step(func(ctx context.Context, d *devnet.Devnet, _ []string) error {
			return d.Down(ctx)
		}),
	}
	cmd.Flags().StringVar(&o.logDir, "log-dir", "", "save container logs here before removing them (overrides log_dir)")
	return cmd
}

func (o *options) seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed [-- command...]",
		Short: "Run the seeder with RPC_URL, CHAIN_ID, VALIDATOR and RELAYER set.",
		Long:  "Run the seeder with RPC_URL, CHAIN_ID, VALIDATOR and RELAYER set.\nArguments after -- replace the configured seeder command.",
		Args:  cobra.ArbitraryArgs,
		PreRun: func(_ *cobra.Command, args []string) {
			o.seedArgs = args
		},
		RunE: o.step(func(ctx context.Context, d *devnet.Devnet, _ []string) error {
			return d.Seed(ctx)
		}),
	}
	cmd.Flags().StringVar(&o.seedDir, "seed-dir", "", "directory the seeder runs in (overrides seed.dir)")
	return cmd
}
