package devnet

import (
	"context"
	"fmt"
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainReader is the read-only view of the running chain node.
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	Close()
}

// ChainDialer connects to the node's RPC endpoint.
type ChainDialer func(ctx context.Context, url string) (ChainReader, error)

// DialEthClient is the default ChainDialer.
func DialEthClient(ctx context.Context, url string) (ChainReader, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return c, nil
}

// formatEther renders a wei amount with 18 decimals.
func formatEther(wei *big.Int) string {
	return sdkmath.LegacyNewDecFromBigIntWithPrec(wei, 18).String()
}
