package devnet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"

	"github.com/celestiaorg/poa-devnet/framework/docker/compose"
	"github.com/celestiaorg/poa-devnet/framework/docker/container"
	"github.com/celestiaorg/poa-devnet/framework/genesis"
	"github.com/celestiaorg/poa-devnet/framework/types"
)

var testAddresses = []string{
	"0x1111111111111111111111111111111111111111",
	"0x2222222222222222222222222222222222222222",
}

// fakeRunner answers `account new` with successive test addresses and
// records every command.
type fakeRunner struct {
	calls [][]string
	next  int
}

func (f *fakeRunner) Run(_ context.Context, cmd []string, _ container.Options) (container.Output, error) {
	f.calls = append(f.calls, cmd)
	if len(cmd) > 1 && cmd[0] == "account" && cmd[1] == "new" {
		addr := testAddresses[f.next%len(testAddresses)]
		f.next++
		return container.Output{Stdout: "Public address of the key:   " + addr + "\n"}, nil
	}
	return container.Output{}, nil
}

type fakeExecer struct {
	failKey  string
	execs    int
	restarts int
}

func (f *fakeExecer) Exec(_ context.Context, _ string, cmd []string) (container.Output, error) {
	f.execs++
	if f.failKey != "" && cmd[3] == f.failKey {
		return container.Output{}, errors.New("exec failed")
	}
	return container.Output{}, nil
}

func (f *fakeExecer) Restart(context.Context, string) error {
	f.restarts++
	return nil
}

type fakeStarter struct {
	up   []compose.Descriptor
	down int
}

func (f *fakeStarter) Up(_ context.Context, d compose.Descriptor) (map[string]string, error) {
	f.up = append(f.up, d)
	return map[string]string{}, nil
}

func (f *fakeStarter) Down(context.Context, string) error {
	f.down++
	return nil
}

type fakeChain struct {
	chainID  int64
	balances map[common.Address]*big.Int
}

func (f fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(f.chainID), nil }

func (f fakeChain) BalanceAt(_ context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	if b, ok := f.balances[a]; ok {
		return b, nil
	}
	return nil, errors.New("unknown account")
}

func (fakeChain) Close() {}

type DevnetTestSuite struct {
	suite.Suite

	ctx     context.Context
	cfg     Config
	runner  *fakeRunner
	execer  *fakeExecer
	starter *fakeStarter
	out     *bytes.Buffer
	rpc     *httptest.Server
	devnet  *Devnet
}

func TestDevnetTestSuite(t *testing.T) {
	suite.Run(t, new(DevnetTestSuite))
}

func (s *DevnetTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.rpc = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"Geth/v1.13.15"}`)
	}))
	s.T().Cleanup(s.rpc.Close)

	s.cfg = DefaultConfig()
	for _, opt := range []ConfigOption{
		WithLogger(zaptest.NewLogger(s.T())),
		WithWorkDir(s.T().TempDir()),
		WithRPCURL(s.rpc.URL),
		WithReadiness(2*time.Second, 10*time.Millisecond),
		WithCORSRetry(2, 0),
	} {
		opt(&s.cfg)
	}

	s.runner = &fakeRunner{}
	s.execer = &fakeExecer{}
	s.starter = &fakeStarter{}
	s.out = &bytes.Buffer{}
	s.devnet = s.newDevnet(func(context.Context, string) (ChainReader, error) {
		return nil, errors.New("offline")
	})
}

func (s *DevnetTestSuite) newDevnet(dial ChainDialer) *Devnet {
	d, err := New(s.cfg,
		WithCommandRunner(s.runner),
		WithExecer(s.execer),
		WithServiceStarter(s.starter),
		WithChainDialer(dial),
		WithOutput(s.out),
	)
	s.Require().NoError(err)
	return d
}

func (s *DevnetTestSuite) TestProvisionAccounts() {
	s.Require().NoError(s.devnet.ProvisionAccounts(s.ctx))

	l := s.devnet.Layout()
	pw, err := os.ReadFile(l.Path(l.PasswordFile))
	s.Require().NoError(err)
	s.Require().Equal("password", string(pw))
	s.Require().DirExists(l.Path(l.ChainDataDir))

	validator, relayer, err := s.devnet.identities()
	s.Require().NoError(err)
	s.Require().Equal(types.MustParseAddress(testAddresses[0]), validator.Address)
	s.Require().Equal(types.MustParseAddress(testAddresses[1]), relayer.Address)
	s.Require().NotEqual(validator.Address, relayer.Address)
	s.Require().Len(s.runner.calls, 2)
}

func (s *DevnetTestSuite) TestGenerateGenesis_RequiresIdentities() {
	err := s.devnet.GenerateGenesis(s.ctx)
	var missing *types.MissingPrerequisiteError
	s.Require().ErrorAs(err, &missing)
}

func (s *DevnetTestSuite) TestGenerateGenesisAndCompose() {
	s.Require().NoError(s.devnet.ProvisionAccounts(s.ctx))
	s.Require().NoError(s.devnet.GenerateGenesis(s.ctx))
	s.Require().NoError(s.devnet.GenerateCompose(s.ctx))

	l := s.devnet.Layout()
	g, err := genesis.Load(l.Path(l.GenesisFile))
	s.Require().NoError(err)
	s.Require().Equal(uint64(1515), g.Config.ChainID)
	s.Require().Contains(g.Alloc, testAddresses[0])
	s.Require().Contains(g.Alloc, testAddresses[1])
	signer, err := g.Signer()
	s.Require().NoError(err)
	s.Require().Equal(types.MustParseAddress(testAddresses[0]), signer)

	desc, err := compose.Load(l.Path(l.DescriptorFile))
	s.Require().NoError(err)
	unlocked, err := desc.Unlocked()
	s.Require().NoError(err)
	s.Require().Equal([]types.Address{
		types.MustParseAddress(testAddresses[0]),
		types.MustParseAddress(testAddresses[1]),
	}, unlocked)
}

func (s *DevnetTestSuite) TestInitializeChain() {
	err := s.devnet.InitializeChain(s.ctx)
	var missing *types.MissingPrerequisiteError
	s.Require().ErrorAs(err, &missing)
	s.Require().Empty(s.runner.calls)

	s.Require().NoError(s.devnet.ProvisionAccounts(s.ctx))
	s.Require().NoError(s.devnet.GenerateGenesis(s.ctx))
	s.Require().NoError(s.devnet.InitializeChain(s.ctx))
	s.Require().Equal([]string{"--datadir", "./geth-data", "init", "./genesis.json"}, s.runner.calls[len(s.runner.calls)-1])
}

func (s *DevnetTestSuite) TestWaitForRPC() {
	s.Require().NoError(s.devnet.WaitForRPC(s.ctx, ""))

	dead := httptest.NewServer(http.NotFoundHandler())
	dead.Close()
	s.cfg.Readiness.Timeout = 50 * time.Millisecond
	d := s.newDevnet(DialEthClient)

	err := d.WaitForRPC(s.ctx, dead.URL)
	var timeout *types.TimeoutError
	s.Require().ErrorAs(err, &timeout)
}

func (s *DevnetTestSuite) TestConfigureStorageCORS() {
	s.Require().NoError(s.devnet.ConfigureStorageCORS(s.ctx))
	s.Require().Equal(3, s.execer.execs)
	s.Require().Equal(1, s.execer.restarts)
}

func (s *DevnetTestSuite) TestConfigureStorageCORS_PartialFailure() {
	s.execer.failKey = "API.HTTPHeaders.Access-Control-Allow-Methods"
	err := s.devnet.ConfigureStorageCORS(s.ctx)
	s.Require().Error(err)
	s.Require().Contains(err.Error(), "Access-Control-Allow-Methods")
	// one success, two attempts at the failing setting, the third never tried.
	s.Require().Equal(3, s.execer.execs)
	s.Require().Zero(s.execer.restarts)
}

func (s *DevnetTestSuite) TestCleanup() {
	s.Require().NoError(s.devnet.ProvisionAccounts(s.ctx))
	s.Require().NoError(s.devnet.GenerateGenesis(s.ctx))

	s.devnet.Cleanup(s.ctx)

	for _, f := range s.devnet.Layout().CleanupFiles() {
		s.Require().NoFileExists(f)
	}
	for _, dir := range s.devnet.Layout().CleanupDirs() {
		s.Require().NoDirExists(dir)
	}

	// a second cleanup of a clean directory is a no-op.
	s.devnet.Cleanup(s.ctx)
}

func (s *DevnetTestSuite) TestUpRequiresDescriptor() {
	err := s.devnet.Up(s.ctx)
	var missing *types.MissingPrerequisiteError
	s.Require().ErrorAs(err, &missing)
	s.Require().Empty(s.starter.up)
}

func (s *DevnetTestSuite) TestUpAndDown() {
	s.Require().NoError(s.devnet.ProvisionAccounts(s.ctx))
	s.Require().NoError(s.devnet.GenerateCompose(s.ctx))
	s.Require().NoError(s.devnet.Up(s.ctx))
	s.Require().Len(s.starter.up, 1)
	s.Require().Contains(s.starter.up[0].Services, compose.ChainService)

	s.Require().NoError(s.devnet.Down(s.ctx))
	s.Require().Equal(1, s.starter.down)
}

func (s *DevnetTestSuite) TestShowInfo_NothingProvisioned() {
	s.devnet.ShowInfo(s.ctx)
	out := s.out.String()
	s.Require().Equal(2, strings.Count(out, "N/A"), out)
}

func (s *DevnetTestSuite) TestShowInfo_WithChain() {
	s.Require().NoError(s.devnet.ProvisionAccounts(s.ctx))
	s.Require().NoError(s.devnet.GenerateGenesis(s.ctx))
	s.Require().NoError(s.devnet.GenerateCompose(s.ctx))

	oneMillion, ok := new(big.Int).SetString(genesis.PrefundBalance(1_000_000), 10)
	s.Require().True(ok)
	d := s.newDevnet(func(context.Context, string) (ChainReader, error) {
		return fakeChain{chainID: 1515, balances: map[common.Address]*big.Int{
			common.HexToAddress(testAddresses[0]): oneMillion,
		}}, nil
	})

	d.ShowInfo(s.ctx)
	out := s.out.String()
	s.Require().Contains(out, testAddresses[0])
	s.Require().Contains(out, testAddresses[1])
	s.Require().Contains(out, "chain id 1515")
	s.Require().Contains(out, "1000000.000000000000000000 ETH (validator)")
	s.Require().NotContains(out, "N/A")
	s.Require().NotContains(out, "stale")
}

func (s *DevnetTestSuite) TestShowInfo_StaleDescriptor() {
	s.Require().NoError(s.devnet.ProvisionAccounts(s.ctx))
	s.Require().NoError(s.devnet.GenerateCompose(s.ctx))
	// re-provisioning swaps the addresses without regenerating the descriptor.
	s.Require().NoError(s.devnet.ProvisionAccounts(s.ctx))
	l := s.devnet.Layout()
	s.Require().NoError(os.WriteFile(l.IdentityFile(types.RoleValidator), []byte(testAddresses[1]), 0o644))
	s.Require().NoError(os.WriteFile(l.IdentityFile(types.RoleRelayer), []byte(testAddresses[0]), 0o644))

	s.devnet.ShowInfo(s.ctx)
	s.Require().Contains(s.out.String(), "stale")
}

func (s *DevnetTestSuite) TestBootstrap() {
	s.Require().NoError(s.devnet.Bootstrap(s.ctx))

	l := s.devnet.Layout()
	for _, f := range []string{l.PasswordFile, l.ValidatorFile, l.RelayerFile, l.GenesisFile, l.DescriptorFile} {
		s.Require().FileExists(l.Path(f))
	}
	s.Require().Len(s.runner.calls, 3, "two accounts and one init")
	s.Require().Len(s.starter.up, 1)
	s.Require().Equal(1, s.execer.restarts)
}

func (s *DevnetTestSuite) TestBootstrap_StopsAtFirstFailure() {
	s.execer.failKey = "API.HTTPHeaders.Access-Control-Allow-Origin"
	err := s.devnet.Bootstrap(s.ctx)
	s.Require().Error(err)
	s.Require().True(strings.HasPrefix(err.Error(), "configure-storage-cors:"), err.Error())
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.Chain.ChainID = 0
	_, err := New(cfg)
	require.Error(t, err)
}
