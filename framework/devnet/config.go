package devnet

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/celestiaorg/poa-devnet/framework/artifacts"
	"github.com/celestiaorg/poa-devnet/framework/docker/compose"
	"github.com/celestiaorg/poa-devnet/framework/docker/container"
	"github.com/celestiaorg/poa-devnet/framework/genesis"
	"github.com/celestiaorg/poa-devnet/framework/wait"
)

// DefaultConfigFile is read from the working directory when present.
const DefaultConfigFile = "devnet.toml"

// Config describes one devnet. It is passed explicitly to every step.
type Config struct {
	Logger *zap.Logger `toml:"-"`
	// WorkDir holds every generated artifact.
	WorkDir string `toml:"work_dir"`
	// Password encrypts both keystore accounts. It is not a secret.
	Password  string          `toml:"password"`
	Chain     ChainConfig     `toml:"chain"`
	Storage   StorageConfig   `toml:"storage"`
	Readiness ReadinessConfig `toml:"readiness"`
	CORS      CORSConfig      `toml:"cors"`
	Seed      SeedConfig      `toml:"seed"`
	// LogDir receives container logs on teardown when set.
	LogDir string `toml:"log_dir"`
}

// ChainConfig covers genesis parameters and the chain node container.
type ChainConfig struct {
	ChainID      uint64 `toml:"chain_id"`
	Period       uint64 `toml:"period"`
	Epoch        uint64 `toml:"epoch"`
	PrefundUnits uint64 `toml:"prefund_units"`
	GasLimit     string `toml:"gas_limit"`
	Difficulty   string `toml:"difficulty"`
	Image        string `toml:"image"`
	Container    string `toml:"container"`
	RPCPort      int    `toml:"rpc_port"`
	P2PPort      int    `toml:"p2p_port"`
}

// StorageConfig covers the storage node container.
type StorageConfig struct {
	Image       string `toml:"image"`
	Container   string `toml:"container"`
	APIPort     int    `toml:"api_port"`
	GatewayPort int    `toml:"gateway_port"`
}

// ReadinessConfig controls the RPC readiness wait.
type ReadinessConfig struct {
	// URL defaults to the local RPC port when empty.
	URL      string        `toml:"url"`
	Timeout  time.Duration `toml:"timeout"`
	Interval time.Duration `toml:"interval"`
}

// CORSConfig bounds the retries of each storage setting.
type CORSConfig struct {
	Attempts uint          `toml:"attempts"`
	Delay    time.Duration `toml:"delay"`
}

// SeedConfig is the downstream seeder invocation.
type SeedConfig struct {
	Dir     string   `toml:"dir"`
	Command []string `toml:"command"`
}

// DefaultConfig returns the stock devnet rooted at the current directory.
func DefaultConfig() Config {
	gp := genesis.DefaultParams()
	cp := compose.DefaultParams()
	return Config{
		Logger:   zap.NewNop(),
		WorkDir:  ".",
		Password: "password",
		Chain: ChainConfig{
			ChainID:      gp.ChainID,
			Period:       gp.Period,
			Epoch:        gp.Epoch,
			PrefundUnits: gp.PrefundUnits,
			GasLimit:     gp.GasLimit,
			Difficulty:   gp.Difficulty,
			Image:        cp.ChainImage,
			Container:    cp.ChainContainer,
			RPCPort:      cp.RPCPort,
			P2PPort:      cp.P2PPort,
		},
		Storage: StorageConfig{
			Image:       cp.StorageImage,
			Container:   cp.StorageContainer,
			APIPort:     cp.StorageAPIPort,
			GatewayPort: cp.StorageGatewayPort,
		},
		Readiness: ReadinessConfig{
			Timeout:  60 * time.Second,
			Interval: wait.DefaultRPCInterval,
		},
		CORS: CORSConfig{
			Attempts: 10,
			Delay:    2 * time.Second,
		},
		Seed: SeedConfig{
			Dir:     "frontend",
			Command: []string{"pnpm", "exec", "prisma", "db", "seed"},
		},
	}
}

// LoadConfig decodes path over the defaults. An empty path reads
// DefaultConfigFile if it exists and falls back to the defaults otherwise.
func LoadConfig(path string, opts ...ConfigOption) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations no step can run with.
func (c Config) Validate() error {
	var errs []error
	if c.Chain.ChainID == 0 {
		errs = append(errs, errors.New("chain.chain_id must be non-zero"))
	}
	if c.Chain.Period == 0 {
		errs = append(errs, errors.New("chain.period must be non-zero"))
	}
	if c.Password == "" {
		errs = append(errs, errors.New("password must not be empty"))
	}
	if _, err := container.ParseImage(c.Chain.Image); err != nil {
		errs = append(errs, fmt.Errorf("chain.image: %w", err))
	}
	if _, err := container.ParseImage(c.Storage.Image); err != nil {
		errs = append(errs, fmt.Errorf("storage.image: %w", err))
	}
	if c.Chain.Container == "" || c.Storage.Container == "" {
		errs = append(errs, errors.New("container names must not be empty"))
	}
	if c.Readiness.Timeout <= 0 || c.Readiness.Interval <= 0 {
		errs = append(errs, errors.New("readiness timeout and interval must be positive"))
	}
	if c.CORS.Attempts == 0 {
		errs = append(errs, errors.New("cors.attempts must be positive"))
	}
	if c.CORS.Delay < 0 {
		errs = append(errs, errors.New("cors.delay must not be negative"))
	}
	return errors.Join(errs...)
}

// Layout returns the artifact layout under WorkDir.
func (c Config) Layout() artifacts.Layout {
	return artifacts.DefaultLayout(c.WorkDir)
}

// RPCURL is the readiness and seeding endpoint.
func (c Config) RPCURL() string {
	if c.Readiness.URL != "" {
		return c.Readiness.URL
	}
	return fmt.Sprintf("http://127.0.0.1:%d", c.Chain.RPCPort)
}

// GenesisParams maps the chain section onto the genesis builder.
func (c Config) GenesisParams() genesis.Params {
	return genesis.Params{
		ChainID:      c.Chain.ChainID,
		Period:       c.Chain.Period,
		Epoch:        c.Chain.Epoch,
		PrefundUnits: c.Chain.PrefundUnits,
		GasLimit:     c.Chain.GasLimit,
		Difficulty:   c.Chain.Difficulty,
	}
}

// ComposeParams maps the config onto the descriptor renderer.
func (c Config) ComposeParams() compose.Params {
	l := c.Layout()
	return compose.Params{
		ChainID:            c.Chain.ChainID,
		ChainImage:         c.Chain.Image,
		StorageImage:       c.Storage.Image,
		ChainContainer:     c.Chain.Container,
		StorageContainer:   c.Storage.Container,
		RPCPort:            c.Chain.RPCPort,
		P2PPort:            c.Chain.P2PPort,
		StorageAPIPort:     c.Storage.APIPort,
		StorageGatewayPort: c.Storage.GatewayPort,
		ChainDataDir:       l.ChainDataDir,
		StorageDataDir:     l.StorageDataDir,
		PasswordFile:       l.PasswordFile,
	}
}
