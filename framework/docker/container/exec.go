package container

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"go.uber.org/zap"

	poatypes "github.com/celestiaorg/poa-devnet/framework/types"
)

// ExecAPI is the subset of the docker client used to run commands in a live container.
type ExecAPI interface {
	ContainerExecCreate(ctx context.Context, container string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
}

// Execer runs commands inside an already running container.
type Execer interface {
	Exec(ctx context.Context, containerName string, cmd []string) (Output, error)
	Restart(ctx context.Context, containerName string) error
}

var _ Execer = (*DockerExecer)(nil)

// DockerExecer implements Execer with docker exec.
type DockerExecer struct {
	client ExecAPI
	logger *zap.Logger
}

// NewExecer returns a DockerExecer backed by client.
func NewExecer(logger *zap.Logger, client ExecAPI) *DockerExecer {
	return &DockerExecer{client: client, logger: logger.With(zap.String("component", "container-exec"))}
}

// Exec runs cmd in containerName and waits for it to finish.
// A non-zero exit is returned as a *types.ProcessError together with the output.
func (e *DockerExecer) Exec(ctx context.Context, containerName string, cmd []string) (Output, error) {
	exec, err := e.client.ContainerExecCreate(ctx, containerName, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          cmd,
	})
	if err != nil {
		return Output{}, fmt.Errorf("creating exec in %s: %w", containerName, err)
	}

	resp, err := e.client.ContainerExecAttach(ctx, exec.ID, container.ExecAttachOptions{})
	if err != nil {
		return Output{}, fmt.Errorf("attaching to exec %s: %w", exec.ID, err)
	}
	defer resp.Close()

	stdout, stderr, err := demux(resp.Reader)
	if err != nil {
		return Output{Stdout: stdout, Stderr: stderr}, err
	}

	inspect, err := e.client.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return Output{Stdout: stdout, Stderr: stderr}, fmt.Errorf("inspecting exec %s: %w", exec.ID, err)
	}

	out := Output{Stdout: stdout, Stderr: stderr, ExitCode: inspect.ExitCode}
	e.logger.Debug("exec finished", zap.String("container", containerName), zap.Strings("cmd", cmd), zap.Int("exit_code", inspect.ExitCode))
	if inspect.ExitCode != 0 {
		return out, &poatypes.ProcessError{
			Command:  append([]string{"docker", "exec", containerName}, cmd...),
			ExitCode: inspect.ExitCode,
			Stdout:   stdout,
			Stderr:   stderr,
		}
	}
	return out, nil
}

// Restart restarts containerName with the daemon's default stop timeout.
func (e *DockerExecer) Restart(ctx context.Context, containerName string) error {
	if err := e.client.ContainerRestart(ctx, containerName, container.StopOptions{}); err != nil {
		return fmt.Errorf("restarting %s: %w", containerName, err)
	}
	return nil
}
