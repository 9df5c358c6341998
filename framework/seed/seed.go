package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"github.com/celestiaorg/poa-devnet/framework/types"
)

// Environment variables handed to the seeder.
const (
	EnvRPCURL    = "RPC_URL"
	EnvChainID   = "CHAIN_ID"
	EnvValidator = "VALIDATOR"
	EnvRelayer   = "RELAYER"
)

// ChainIDReader reports the chain id a node serves.
type ChainIDReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// Config describes one seeder run.
type Config struct {
	Logger    *zap.Logger
	Dir       string
	Command   []string
	RPCURL    string
	ChainID   uint64
	Validator types.Address
	Relayer   types.Address
	// Chain, when set, is asked for its chain id before seeding.
	Chain  ChainIDReader
	Stdout io.Writer
	Stderr io.Writer
}

// Env returns the variables describing the devnet to the seeder.
func (c Config) Env() []string {
	return []string{
		EnvRPCURL + "=" + c.RPCURL,
		EnvChainID + "=" + strconv.FormatUint(c.ChainID, 10),
		EnvValidator + "=" + c.Validator.Hex(),
		EnvRelayer + "=" + c.Relayer.Hex(),
	}
}

// ErrChainIDMismatch is returned when the node serves a different chain than configured.
var ErrChainIDMismatch = errors.New("chain id mismatch")

// Run checks the node's chain id when possible, then runs the seeder command
// with the devnet environment added to the current one.
func Run(ctx context.Context, cfg Config) error {
	if len(cfg.Command) == 0 {
		return errors.New("no seed command configured")
	}
	logger := cfg.Logger.With(zap.String("component", "seed"))

	if cfg.Chain != nil {
		id, err := cfg.Chain.ChainID(ctx)
		switch {
		case err != nil:
			logger.Warn("could not read chain id, seeding anyway", zap.Error(err))
		case !id.IsUint64() || id.Uint64() != cfg.ChainID:
			return fmt.Errorf("%w: node serves %s, configured %d", ErrChainIDMismatch, id, cfg.ChainID)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, cfg.Command[0], cfg.Command[1:]...)
	cmd.Dir = cfg.Dir
	cmd.Env = append(os.Environ(), cfg.Env()...)
	cmd.Stdout = teeTo(&stdout, cfg.Stdout)
	cmd.Stderr = teeTo(&stderr, cfg.Stderr)

	logger.Info("running seeder", zap.Strings("cmd", cfg.Command), zap.String("dir", cfg.Dir))
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &types.ProcessError{
				Command:  cfg.Command,
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}
		}
		return fmt.Errorf("running seeder: %w", err)
	}
	return nil
}

func teeTo(buf *bytes.Buffer, w io.Writer) io.Writer {
	if w == nil {
		return buf
	}
	return io.MultiWriter(buf, w)
}
