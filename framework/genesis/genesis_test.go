package genesis

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/celestiaorg/poa-devnet/framework/types"
)

var (
	validatorA = types.MustParseAddress("0x" + strings.Repeat("aa", 20))
	relayerB   = types.MustParseAddress("0x" + strings.Repeat("bb", 20))
)

func TestBuild(t *testing.T) {
	t.Parallel()

	t.Run("end to end scenario", func(t *testing.T) {
		cfg := Build(validatorA, relayerB, DefaultParams())

		wantExtra := "0x" + strings.Repeat("00", 32) + strings.Repeat("aa", 20) + strings.Repeat("00", 65)
		require.Equal(t, wantExtra, cfg.ExtraData)

		require.Len(t, cfg.Alloc, 2)
		require.Equal(t, "1000000000000000000000000", cfg.Alloc["0x"+strings.Repeat("aa", 20)].Balance)
		require.Equal(t, "1000000000000000000000000", cfg.Alloc["0x"+strings.Repeat("bb", 20)].Balance)
	})

	t.Run("chain parameters", func(t *testing.T) {
		cfg := Build(validatorA, relayerB, DefaultParams())

		require.Equal(t, uint64(1515), cfg.Config.ChainID)
		require.Equal(t, uint64(5), cfg.Config.Clique.Period)
		require.Equal(t, uint64(30000), cfg.Config.Clique.Epoch)
		require.Equal(t, "1", cfg.Difficulty)
		require.Equal(t, "0x1C9C380", cfg.GasLimit)
	})

	t.Run("fork markers are all zero", func(t *testing.T) {
		bz, err := Build(validatorA, relayerB, DefaultParams()).Marshal()
		require.NoError(t, err)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(bz, &doc))
		chainCfg := doc["config"].(map[string]any)
		for _, fork := range []string{
			"homesteadBlock", "eip150Block", "eip155Block", "eip158Block", "byzantiumBlock",
			"constantinopleBlock", "petersburgBlock", "istanbulBlock", "berlinBlock", "londonBlock",
		} {
			require.Contains(t, chainCfg, fork)
			require.Equal(t, float64(0), chainCfg[fork], fork)
		}
		clique := chainCfg["clique"].(map[string]any)
		require.Equal(t, float64(5), clique["period"])
		require.Equal(t, float64(30000), clique["epoch"])
	})

	t.Run("deterministic output", func(t *testing.T) {
		first, err := Build(validatorA, relayerB, DefaultParams()).Marshal()
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := Build(validatorA, relayerB, DefaultParams()).Marshal()
			require.NoError(t, err)
			require.True(t, bytes.Equal(first, again))
		}
	})

	t.Run("unnormalized inputs are canonicalised", func(t *testing.T) {
		mixed := types.Address("0xAbCdEf" + strings.Repeat("11", 17))
		cfg := Build(mixed, relayerB, DefaultParams())

		want := "abcdef" + strings.Repeat("11", 17)
		require.Contains(t, cfg.Alloc, "0x"+want)
		require.Contains(t, cfg.ExtraData, want)
	})

	t.Run("same address for both roles collapses to one entry", func(t *testing.T) {
		cfg := Build(validatorA, validatorA, DefaultParams())
		require.Len(t, cfg.Alloc, 1)
	})
}

func TestAuthorityField(t *testing.T) {
	t.Parallel()

	for _, addr := range []types.Address{validatorA, relayerB, types.MustParseAddress(strings.Repeat("0", 40))} {
		f := NewAuthorityField(addr)
		require.Len(t, f, 117)
		require.Len(t, f.Hex(), 236)
		require.Equal(t, addr, f.Signer())

		parsed, err := ParseAuthorityField(f.Hex())
		require.NoError(t, err)
		require.Equal(t, f, parsed)
	}

	_, err := ParseAuthorityField("0x1234")
	require.Error(t, err)
	_, err = ParseAuthorityField("not hex")
	require.Error(t, err)
}

func TestPrefundBalance(t *testing.T) {
	t.Parallel()

	require.Equal(t, "1000000000000000000000000", PrefundBalance(1_000_000))
	require.Equal(t, "1000000000000000000", PrefundBalance(1))
	require.Equal(t, "0", PrefundBalance(0))
	require.Equal(t, "18446744073709551615000000000000000000", PrefundBalance(^uint64(0)))
}

func TestWriteAndLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "genesis.json")
	cfg := Build(validatorA, relayerB, DefaultParams())
	require.NoError(t, cfg.WriteFile(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)

	signer, err := loaded.Signer()
	require.NoError(t, err)
	require.Equal(t, validatorA, signer)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	var missing *types.MissingPrerequisiteError
	require.True(t, errors.As(err, &missing))
}
