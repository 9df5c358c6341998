package seed

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/celestiaorg/poa-devnet/framework/types"
)

type fakeChain struct {
	id  *big.Int
	err error
}

func (f fakeChain) ChainID(context.Context) (*big.Int, error) { return f.id, f.err }

func newConfig(t *testing.T, script string) Config {
	return Config{
		Logger:    zaptest.NewLogger(t),
		Dir:       t.TempDir(),
		Command:   []string{"sh", "-c", script},
		RPCURL:    "http://127.0.0.1:8545",
		ChainID:   1515,
		Validator: types.MustParseAddress("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
		Relayer:   types.MustParseAddress("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
	}
}

func TestRun(t *testing.T) {
	t.Parallel()

	t.Run("passes the devnet environment", func(t *testing.T) {
		t.Parallel()
		var out strings.Builder
		cfg := newConfig(t, `printf '%s|%s|%s|%s' "$RPC_URL" "$CHAIN_ID" "$VALIDATOR" "$RELAYER"`)
		cfg.Stdout = &out
		cfg.Chain = fakeChain{id: big.NewInt(1515)}

		require.NoError(t, Run(context.Background(), cfg))
		require.Equal(t,
			"http://127.0.0.1:8545|1515|0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa|0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
			out.String())
	})

	t.Run("chain id mismatch stops before seeding", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t, "touch seeded")
		cfg.Chain = fakeChain{id: big.NewInt(1)}

		err := Run(context.Background(), cfg)
		require.ErrorIs(t, err, ErrChainIDMismatch)
		require.NoFileExists(t, cfg.Dir+"/seeded")
	})

	t.Run("unreachable node does not block seeding", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t, "true")
		cfg.Chain = fakeChain{err: errors.New("connection refused")}
		require.NoError(t, Run(context.Background(), cfg))
	})

	t.Run("non-zero exit", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t, "echo 'seed failed' >&2; exit 3")

		err := Run(context.Background(), cfg)
		var procErr *types.ProcessError
		require.ErrorAs(t, err, &procErr)
		require.Equal(t, 3, procErr.ExitCode)
		require.Contains(t, procErr.Error(), "seed failed")
	})

	t.Run("empty command", func(t *testing.T) {
		t.Parallel()
		cfg := newConfig(t, "")
		cfg.Command = nil
		require.Error(t, Run(context.Background(), cfg))
	})
}
