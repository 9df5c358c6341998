package docker

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/moby/moby/client"
	"github.com/moby/moby/errdefs"
	"go.uber.org/zap"

	dockerclient "github.com/celestiaorg/poa-devnet/framework/docker/client"
	"github.com/celestiaorg/poa-devnet/framework/docker/consts"
)

// NewClient returns a docker client configured from the environment
// (DOCKER_HOST and friends) whose resources carry the devnet cleanup label.
func NewClient(ctx context.Context) (*dockerclient.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	cli.NegotiateAPIVersion(ctx)
	return dockerclient.NewClient(cli, consts.CleanupLabel), nil
}

// LabelFilter selects resources carrying cleanupLabel.
func LabelFilter(cleanupLabel string) filters.Args {
	return filters.NewArgs(filters.Arg("label", cleanupLabel+"="+consts.ProjectLabelValue))
}

// NetworkAPI is the subset of the docker client needed to manage the devnet network.
type NetworkAPI interface {
	CleanupLabel() string
	NetworkList(ctx context.Context, options network.ListOptions) ([]network.Summary, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
}

// EnsureNetwork returns the ID of the bridge network called name, creating it
// on a free /24 subnet when it does not exist yet.
func EnsureNetwork(ctx context.Context, cli NetworkAPI, name string) (string, error) {
	networks, err := cli.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", fmt.Errorf("listing networks: %w", err)
	}
	for _, n := range networks {
		if n.Name == name {
			return n.ID, nil
		}
	}

	usedSubnets, err := getUsedSubnets(ctx, cli)
	if err != nil {
		return "", fmt.Errorf("failed to get used subnets: %w", err)
	}
	octet := uint8(rand.Intn(256))
	subnet, err := findAvailableSubnet(fmt.Sprintf("172.%d.0.0/16", octet), usedSubnets)
	if err != nil {
		return "", fmt.Errorf("failed to find an available subnet: %w", err)
	}

	resp, err := cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		IPAM: &network.IPAM{
			Config: []network.IPAMConfig{
				{
					Subnet: subnet,
				},
			},
		},
		Labels: map[string]string{cli.CleanupLabel(): consts.ProjectLabelValue},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create docker network: %w", err)
	}
	return resp.ID, nil
}

func getUsedSubnets(ctx context.Context, cli NetworkAPI) (map[string]bool, error) {
	usedSubnets := make(map[string]bool)
	networks, err := cli.NetworkList(ctx, network.ListOptions{})
	if err != nil {
		return nil, err
	}

	for _, net := range networks {
		for _, config := range net.IPAM.Config {
			if config.Subnet != "" {
				usedSubnets[config.Subnet] = true
			}
		}
	}
	return usedSubnets, nil
}

func findAvailableSubnet(baseSubnet string, usedSubnets map[string]bool) (string, error) {
	ip, ipNet, err := net.ParseCIDR(baseSubnet)
	if err != nil {
		return "", fmt.Errorf("invalid base subnet: %v", err)
	}
	ip = ip.To4()
	if ip == nil {
		return "", fmt.Errorf("base subnet %s is not IPv4", baseSubnet)
	}

	// try the base /16 and up to 255 following ones.
	for i := 0; i < 256; i++ {
		if !isSubnetUsed(ipNet.String(), usedSubnets) {
			for subIP := ip.Mask(ipNet.Mask); ipNet.Contains(subIP); incrementIP(subIP, 2) {
				subnet := fmt.Sprintf("%s/24", subIP)
				if !isSubnetUsed(subnet, usedSubnets) {
					return subnet, nil
				}
			}
		}

		incrementIP(ip, 3)
		ipNet.IP = ip
	}
	return "", fmt.Errorf("no free subnet near %s", baseSubnet)
}

func isSubnetUsed(subnet string, usedSubnets map[string]bool) bool {
	_, targetNet, err := net.ParseCIDR(subnet)
	if err != nil {
		return true
	}

	for usedSubnet := range usedSubnets {
		_, usedNet, err := net.ParseCIDR(usedSubnet)
		if err != nil {
			continue
		}

		if usedNet.Contains(targetNet.IP) || targetNet.Contains(usedNet.IP) {
			return true
		}
	}
	return false
}

// incrementIP adds one to the byte at len(ip)-level, carrying leftwards.
func incrementIP(ip net.IP, level int) {
	for j := len(ip) - level; j >= 0; j-- {
		ip[j]++
		if ip[j] > 0 {
			break
		}
	}
}

// TeardownAPI is the subset of the docker client used by Teardown.
type TeardownAPI interface {
	CleanupLabel() string
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	NetworksPrune(ctx context.Context, pruneFilter filters.Args) (network.PruneReport, error)
}

// Teardown stops and removes every labelled devnet container and prunes the
// labelled networks. When logDir is set each container's logs are written
// there first. Failures are logged and do not abort the teardown.
func Teardown(ctx context.Context, logger *zap.Logger, cli TeardownAPI, logDir string) error {
	cs, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: LabelFilter(cli.CleanupLabel()),
	})
	if err != nil {
		return fmt.Errorf("listing containers for teardown: %w", err)
	}

	for _, c := range cs {
		containerName := c.ID
		if len(c.Names) > 0 {
			containerName = strings.TrimPrefix(c.Names[0], "/")
		}
		log := logger.With(zap.String("container", containerName))

		if logDir != "" {
			rc, err := cli.ContainerLogs(ctx, c.ID, container.LogsOptions{
				ShowStdout: true,
				ShowStderr: true,
				Tail:       "all",
			})
			if err == nil {
				if err := writeToFile(rc, logDir, fmt.Sprintf("%s.log", containerName)); err != nil {
					log.Warn("failed to write container logs", zap.Error(err))
				}
			}
		}

		var stopTimeout container.StopOptions
		timeout := 10
		timeoutDur := time.Duration(timeout * int(time.Second))
		deadline := time.Now().Add(timeoutDur)
		stopTimeout.Timeout = &timeout
		if err := cli.ContainerStop(ctx, c.ID, stopTimeout); IsLoggableStopError(err) {
			log.Warn("failed to stop container", zap.Error(err))
		}

		waitCtx, cancel := context.WithDeadline(ctx, deadline.Add(500*time.Millisecond))
		waitCh, errCh := cli.ContainerWait(waitCtx, c.ID, container.WaitConditionNotRunning)
		select {
		case <-waitCtx.Done():
			log.Warn("timed out waiting for container")
		case err := <-errCh:
			if !errdefs.IsNotFound(err) {
				log.Warn("failed to wait for container", zap.Error(err))
			}
		case res := <-waitCh:
			if res.Error != nil {
				log.Warn("error while waiting for container", zap.String("error", res.Error.Message))
			}
		}
		cancel()

		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
			log.Warn("failed to remove container", zap.Error(err))
			continue
		}
		log.Info("removed container")
	}

	PruneNetworksWithRetry(ctx, logger, cli)
	return nil
}

// PruneNetworksWithRetry removes labelled networks, retrying while another prune is in progress.
func PruneNetworksWithRetry(ctx context.Context, logger *zap.Logger, cli TeardownAPI) {
	var deleted []string
	err := retry.Do(
		func() error {
			res, err := cli.NetworksPrune(ctx, LabelFilter(cli.CleanupLabel()))
			if err != nil {
				if errdefs.IsConflict(err) {
					// Prune is already in progress; try again.
					return err
				}

				// Give up on any other error.
				return retry.Unrecoverable(err)
			}

			deleted = res.NetworksDeleted
			return nil
		},
		retry.Context(ctx),
		retry.DelayType(retry.FixedDelay),
	)
	if err != nil {
		logger.Warn("failed to prune networks during teardown", zap.Error(err))
		return
	}

	if len(deleted) > 0 {
		logger.Info("pruned networks", zap.Strings("networks", deleted))
	}
}

// IsLoggableStopError reports whether a stop error is worth logging.
func IsLoggableStopError(err error) bool {
	if err == nil {
		return false
	}
	return !(errdefs.IsNotModified(err) || errdefs.IsNotFound(err))
}

// writeToFile writes the contents of an io.ReadCloser to a specified file in the given directory.
// It ensures the directory exists before creating and writing to the file.
// Returns an error if directory creation, file creation, or content copy fails.
func writeToFile(r io.ReadCloser, dir, filename string) error {
	defer r.Close()

	// ensure the directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// create the output file.
	outPath := filepath.Join(dir, filename)
	outFile, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer outFile.Close()

	// copy the contents
	_, err = io.Copy(outFile, r)
	return err
}
