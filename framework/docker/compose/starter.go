package compose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/go-connections/nat"
	"github.com/moby/moby/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/celestiaorg/poa-devnet/framework/docker"
	"github.com/celestiaorg/poa-devnet/framework/docker/consts"
	"github.com/celestiaorg/poa-devnet/framework/docker/internal"
)

// API is the subset of the docker client the Starter drives.
type API interface {
	internal.ImageAPI
	docker.NetworkAPI
	docker.TeardownAPI
	internal.InspectAPI
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
}

// Starter brings the services of a descriptor up and down through the docker API.
type Starter struct {
	client API
	root   string
	logger *zap.Logger
}

// NewStarter returns a Starter resolving relative volumes against root.
func NewStarter(logger *zap.Logger, client API, root string) *Starter {
	return &Starter{
		client: client,
		root:   root,
		logger: logger.With(zap.String("component", "compose")),
	}
}

// NetworkName is the bridge network every service joins.
var NetworkName = consts.DockerPrefix

// Up replaces and starts every service in d, in sorted service order.
// It returns the started container IDs keyed by service.
func (s *Starter) Up(ctx context.Context, d Descriptor) (map[string]string, error) {
	networkID, err := docker.EnsureNetwork(ctx, s.client, NetworkName)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(d.Services))
	for _, name := range d.ServiceNames() {
		id, err := s.start(ctx, name, d.Services[name], networkID)
		if err != nil {
			return ids, fmt.Errorf("starting service %s: %w", name, err)
		}
		ids[name] = id
	}
	return ids, nil
}

func (s *Starter) start(ctx context.Context, name string, svc Service, networkID string) (string, error) {
	log := s.logger.With(zap.String("service", name), zap.String("container", svc.ContainerName))

	if err := internal.EnsureImage(ctx, log, s.client, svc.Image); err != nil {
		return "", err
	}

	exposed, bindings, err := nat.ParsePortSpecs(svc.Ports)
	if err != nil {
		return "", fmt.Errorf("parsing ports: %w", err)
	}

	binds, err := s.resolveBinds(svc.Volumes)
	if err != nil {
		return "", err
	}

	// a previous run may have left a container with the same name.
	if err := s.client.ContainerRemove(ctx, svc.ContainerName, container.RemoveOptions{Force: true}); err != nil && !errdefs.IsNotFound(err) {
		return "", fmt.Errorf("removing stale container: %w", err)
	}

	cc, err := s.client.ContainerCreate(ctx,
		&container.Config{
			Image:        svc.Image,
			Hostname:     internal.CondenseHostName(internal.SanitizeDockerResourceName(svc.ContainerName)),
			Cmd:          svc.Command,
			Env:          svc.Environment,
			ExposedPorts: exposed,
			Labels: map[string]string{
				s.client.CleanupLabel(): consts.ProjectLabelValue,
				consts.ServiceLabel:     name,
			},
		},
		&container.HostConfig{
			Binds:         binds,
			PortBindings:  bindings,
			RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyMode(svc.Restart)},
		},
		&network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				NetworkName: {NetworkID: networkID},
			},
		},
		nil,
		svc.ContainerName,
	)
	if err != nil {
		return "", fmt.Errorf("creating container: %w", err)
	}

	if err := s.client.ContainerStart(ctx, cc.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("starting container: %w", err)
	}
	ip, err := internal.GetContainerInternalIP(ctx, s.client, cc.ID, NetworkName)
	if err != nil {
		log.Warn("service started without a network address", zap.String("id", cc.ID), zap.Error(err))
		return cc.ID, nil
	}
	log.Info("service started", zap.String("id", cc.ID), zap.String("ip", ip))
	return cc.ID, nil
}

// resolveBinds makes relative host paths absolute under root and creates
// missing host directories so they are owned by the caller rather than the daemon.
func (s *Starter) resolveBinds(volumes []string) ([]string, error) {
	binds := make([]string, 0, len(volumes))
	for _, v := range volumes {
		host, target, ok := strings.Cut(v, ":")
		if !ok {
			return nil, fmt.Errorf("volume %q has no container path", v)
		}
		if !filepath.IsAbs(host) {
			abs, err := filepath.Abs(filepath.Join(s.root, host))
			if err != nil {
				return nil, fmt.Errorf("resolving volume %q: %w", v, err)
			}
			host = abs
		}
		if err := os.MkdirAll(host, 0o755); err != nil {
			return nil, fmt.Errorf("creating volume directory %s: %w", host, err)
		}
		binds = append(binds, host+":"+target)
	}
	return binds, nil
}

// Down stops and removes every devnet container, writing their logs to logDir when set.
func (s *Starter) Down(ctx context.Context, logDir string) error {
	return docker.Teardown(ctx, s.logger, s.client, logDir)
}
