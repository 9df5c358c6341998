package genesis

import (
	"encoding/json"
	"fmt"
	"os"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/params"

	"github.com/celestiaorg/poa-devnet/framework/types"
)

// weiPerUnit is the number of decimal places between a whole prefund unit and
// the balance stored in the allocation map.
const weiPerUnit = 18

// Params are the tunables of a generated clique genesis.
type Params struct {
	ChainID      uint64
	Period       uint64
	Epoch        uint64
	PrefundUnits uint64
	GasLimit     string
	Difficulty   string
}

// DefaultParams returns the parameters of the local development chain.
func DefaultParams() Params {
	return Params{
		ChainID:      1515,
		Period:       5,
		Epoch:        30000,
		PrefundUnits: 1_000_000,
		GasLimit:     "0x1C9C380",
		Difficulty:   "1",
	}
}

// ChainConfig holds the chain id, fork activation blocks and consensus section.
// Every fork is active from genesis.
type ChainConfig struct {
	ChainID             uint64               `json:"chainId"`
	HomesteadBlock      uint64               `json:"homesteadBlock"`
	EIP150Block         uint64               `json:"eip150Block"`
	EIP155Block         uint64               `json:"eip155Block"`
	EIP158Block         uint64               `json:"eip158Block"`
	ByzantiumBlock      uint64               `json:"byzantiumBlock"`
	ConstantinopleBlock uint64               `json:"constantinopleBlock"`
	PetersburgBlock     uint64               `json:"petersburgBlock"`
	IstanbulBlock       uint64               `json:"istanbulBlock"`
	BerlinBlock         uint64               `json:"berlinBlock"`
	LondonBlock         uint64               `json:"londonBlock"`
	Clique              *params.CliqueConfig `json:"clique"`
}

// Account is a pre-funded allocation entry. Balance is an exact decimal integer.
type Account struct {
	Balance string `json:"balance"`
}

// Config is the genesis document consumed by `geth init`.
type Config struct {
	Config     ChainConfig        `json:"config"`
	Difficulty string             `json:"difficulty"`
	GasLimit   string             `json:"gasLimit"`
	ExtraData  string             `json:"extraData"`
	Alloc      map[string]Account `json:"alloc"`
}

// Build derives the genesis document for a validator and a relayer.
// Both addresses must already be valid; Build performs no I/O and is deterministic.
func Build(validator, relayer types.Address, p Params) Config {
	validator = types.Address(types.NormalizeAddress(string(validator)))
	relayer = types.Address(types.NormalizeAddress(string(relayer)))

	balance := PrefundBalance(p.PrefundUnits)

	return Config{
		Config: ChainConfig{
			ChainID: p.ChainID,
			Clique: &params.CliqueConfig{
				Period: p.Period,
				Epoch:  p.Epoch,
			},
		},
		Difficulty: p.Difficulty,
		GasLimit:   p.GasLimit,
		ExtraData:  NewAuthorityField(validator).Hex(),
		Alloc: map[string]Account{
			validator.Hex(): {Balance: balance},
			relayer.Hex():   {Balance: balance},
		},
	}
}

// PrefundBalance returns units × 10^18 as a decimal string.
func PrefundBalance(units uint64) string {
	return sdkmath.NewIntFromUint64(units).Mul(sdkmath.NewIntWithDecimal(1, weiPerUnit)).String()
}

// Marshal renders the document as indented JSON with a trailing newline.
func (c Config) Marshal() ([]byte, error) {
	bz, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal genesis: %w", err)
	}
	return append(bz, '\n'), nil
}

// WriteFile writes the document to path, replacing any previous contents.
func (c Config) WriteFile(path string) error {
	bz, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, bz, 0o644); err != nil {
		return fmt.Errorf("writing genesis %s: %w", path, err)
	}
	return nil
}

// Signer decodes the validator address from the authority field.
func (c Config) Signer() (types.Address, error) {
	f, err := ParseAuthorityField(c.ExtraData)
	if err != nil {
		return "", err
	}
	return f.Signer(), nil
}

// Load reads a genesis document written by WriteFile.
func Load(path string) (Config, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, &types.MissingPrerequisiteError{Path: path}
		}
		return Config{}, fmt.Errorf("reading genesis %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(bz, &c); err != nil {
		return Config{}, fmt.Errorf("decoding genesis %s: %w", path, err)
	}
	return c, nil
}
