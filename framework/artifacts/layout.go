package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/celestiaorg/poa-devnet/framework/types"
)

// Layout names every artifact bootstrap creates, relative to Root.
type Layout struct {
	Root           string
	PasswordFile   string
	ValidatorFile  string
	RelayerFile    string
	GenesisFile    string
	DescriptorFile string
	ChainDataDir   string
	StorageDataDir string
}

// DefaultLayout returns the layout used by the devnet rooted at root.
func DefaultLayout(root string) Layout {
	return Layout{
		Root:           root,
		PasswordFile:   "password.txt",
		ValidatorFile:  ".validator",
		RelayerFile:    ".relayer",
		GenesisFile:    "genesis.json",
		DescriptorFile: "docker-compose.yml",
		ChainDataDir:   "geth-data",
		StorageDataDir: "ipfs_data",
	}
}

// Path resolves name against Root.
func (l Layout) Path(name string) string {
	return filepath.Join(l.Root, name)
}

// IdentityFile returns the host path of the file holding role's address.
func (l Layout) IdentityFile(role types.Role) string {
	if role == types.RoleValidator {
		return l.Path(l.ValidatorFile)
	}
	return l.Path(l.RelayerFile)
}

// CleanupFiles lists the generated files removed by cleanup.
func (l Layout) CleanupFiles() []string {
	return []string{
		l.Path(l.GenesisFile),
		l.Path(l.PasswordFile),
		l.Path(l.ValidatorFile),
		l.Path(l.RelayerFile),
	}
}

// CleanupDirs lists the generated directories removed by cleanup.
func (l Layout) CleanupDirs() []string {
	return []string{
		l.Path(l.ChainDataDir),
		l.Path(l.StorageDataDir),
	}
}

// WritePassword writes the fixed placeholder password.
func WritePassword(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0o600); err != nil {
		return fmt.Errorf("writing password file: %w", err)
	}
	return nil
}

// RequireNonEmpty fails with a MissingPrerequisiteError unless path exists
// and has content.
func RequireNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &types.MissingPrerequisiteError{Path: path}
		}
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if info.IsDir() {
		return &types.MissingPrerequisiteError{Path: path, Reason: "is a directory"}
	}
	if info.Size() == 0 {
		return &types.MissingPrerequisiteError{Path: path, Reason: "file is empty"}
	}
	return nil
}

// WriteIdentity persists the prefixed address of id to path.
func WriteIdentity(path string, id types.Identity) error {
	if err := os.WriteFile(path, []byte(id.Address.Hex()), 0o644); err != nil {
		return fmt.Errorf("writing %s identity: %w", id.Role, err)
	}
	return nil
}

// ReadIdentity loads and normalises the address stored at path.
func ReadIdentity(path string, role types.Role) (types.Identity, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.Identity{}, &types.MissingPrerequisiteError{Path: path, Reason: fmt.Sprintf("%s identity not provisioned", role)}
		}
		return types.Identity{}, fmt.Errorf("reading %s identity: %w", role, err)
	}
	addr, err := types.ParseAddress(strings.TrimSpace(string(bz)))
	if err != nil {
		return types.Identity{}, fmt.Errorf("%s identity in %s: %w", role, path, err)
	}
	return types.Identity{Role: role, Address: addr}, nil
}
