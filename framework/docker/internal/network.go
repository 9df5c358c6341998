package internal

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
)

// InspectAPI is the subset of the docker client needed to inspect a container.
type InspectAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
}

// GetContainerInternalIP returns the address of a container on networkName.
func GetContainerInternalIP(ctx context.Context, client InspectAPI, containerID, networkName string) (string, error) {
	inspect, err := client.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("inspecting container: %w", err)
	}
	if inspect.NetworkSettings == nil {
		return "", fmt.Errorf("container network settings not available")
	}
	networks := inspect.NetworkSettings.Networks
	if networks == nil {
		return "", fmt.Errorf("container networks not available")
	}

	if n, ok := networks[networkName]; ok && n.IPAddress != "" {
		return n.IPAddress, nil
	}
	return "", fmt.Errorf("no IP address found for container on network %s", networkName)
}
