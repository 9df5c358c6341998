package compose

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/celestiaorg/poa-devnet/framework/docker/internal"
	"github.com/celestiaorg/poa-devnet/framework/types"
)

const (
	// ChainService is the descriptor key of the chain node.
	ChainService = "geth"
	// StorageService is the descriptor key of the storage node.
	StorageService = "ipfs"

	header = "# Generated by poa-devnet. Manual edits are overwritten on the next render.\n"
)

// Descriptor is a docker compose document.
type Descriptor struct {
	Services map[string]Service `yaml:"services"`
}

// Service is one compose service definition.
type Service struct {
	Image         string   `yaml:"image"`
	ContainerName string   `yaml:"container_name"`
	Volumes       []string `yaml:"volumes,omitempty"`
	Ports         []string `yaml:"ports,omitempty"`
	Environment   []string `yaml:"environment,omitempty"`
	Command       []string `yaml:"command,omitempty"`
	Restart       string   `yaml:"restart,omitempty"`
}

// Params is the static part of the descriptor.
type Params struct {
	ChainID            uint64
	ChainImage         string
	StorageImage       string
	ChainContainer     string
	StorageContainer   string
	RPCPort            int
	P2PPort            int
	StorageAPIPort     int
	StorageGatewayPort int
	ChainDataDir       string
	StorageDataDir     string
	PasswordFile       string
}

// DefaultParams returns the devnet's stock services.
func DefaultParams() Params {
	return Params{
		ChainID:            1515,
		ChainImage:         "ethereum/client-go:v1.13.15",
		StorageImage:       "ipfs/kubo:latest",
		ChainContainer:     "poa-geth",
		StorageContainer:   "carbon-ipfs",
		RPCPort:            8545,
		P2PPort:            30303,
		StorageAPIPort:     5001,
		StorageGatewayPort: 8080,
		ChainDataDir:       "geth-data",
		StorageDataDir:     "ipfs_data",
		PasswordFile:       "password.txt",
	}
}

func portMapping(port int) string {
	return fmt.Sprintf("%d:%d", port, port)
}

// Build assembles the descriptor. Both identities unlock together; the
// validator alone authors blocks.
func Build(p Params, validator, relayer types.Address) Descriptor {
	const mount = "/data"
	gethArgs := []string{
		"--datadir=" + mount + "/" + p.ChainDataDir,
		"--networkid=" + strconv.FormatUint(p.ChainID, 10),
		"--http",
		"--http.addr=0.0.0.0",
		"--http.port=" + strconv.Itoa(p.RPCPort),
		"--http.api=eth,net,web3,personal,clique",
		"--http.corsdomain=*",
		"--http.vhosts=*",
		"--allow-insecure-unlock",
		"--unlock=" + validator.Hex() + "," + relayer.Hex(),
		"--password=" + mount + "/" + p.PasswordFile,
		"--miner.etherbase=" + validator.Hex(),
		"--mine",
		"--syncmode=full",
		"--ipcdisable",
		"--verbosity=3",
	}

	return Descriptor{
		Services: map[string]Service{
			ChainService: {
				Image:         p.ChainImage,
				ContainerName: p.ChainContainer,
				Volumes:       []string{"./:" + mount},
				Ports:         []string{portMapping(p.RPCPort), portMapping(p.P2PPort)},
				Command:       gethArgs,
			},
			StorageService: {
				Image:         p.StorageImage,
				ContainerName: p.StorageContainer,
				Volumes:       []string{"./" + p.StorageDataDir + ":/data/ipfs"},
				Ports:         []string{portMapping(p.StorageAPIPort), portMapping(p.StorageGatewayPort)},
				Environment:   []string{"IPFS_PROFILE=server"},
				Command:       []string{"daemon", "--offline"},
				Restart:       "unless-stopped",
			},
		},
	}
}

// Render builds and encodes the descriptor.
func Render(p Params, validator, relayer types.Address) ([]byte, error) {
	return Build(p, validator, relayer).Marshal()
}

// Marshal encodes d as YAML. Service keys are emitted in sorted order.
func (d Descriptor) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encoding descriptor: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding descriptor: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile replaces path with the encoded descriptor.
func (d Descriptor) WriteFile(path string) error {
	bz, err := d.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, bz, 0o644); err != nil {
		return fmt.Errorf("writing descriptor %s: %w", path, err)
	}
	return nil
}

// ServiceNames returns the service keys in sorted order.
func (d Descriptor) ServiceNames() []string {
	names := make([]string, 0, len(d.Services))
	for name := range d.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unlocked returns the identities the chain node unlocks at startup.
func (d Descriptor) Unlocked() ([]types.Address, error) {
	svc, ok := d.Services[ChainService]
	if !ok {
		return nil, fmt.Errorf("descriptor has no %s service", ChainService)
	}
	unlock, ok := internal.ParseFlags(svc.Command)["unlock"]
	if !ok || unlock == "" {
		return nil, fmt.Errorf("%s service has no unlock argument", ChainService)
	}

	var addrs []types.Address
	for _, raw := range strings.Split(unlock, ",") {
		addr, err := types.ParseAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("unlock argument: %w", err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// Load parses a descriptor written by WriteFile.
func Load(path string) (Descriptor, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Descriptor{}, &types.MissingPrerequisiteError{Path: path}
		}
		return Descriptor{}, fmt.Errorf("reading descriptor %s: %w", path, err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(bz, &d); err != nil {
		return Descriptor{}, fmt.Errorf("decoding descriptor %s: %w", path, err)
	}
	return d, nil
}
