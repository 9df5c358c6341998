package container

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"

	"github.com/celestiaorg/poa-devnet/framework/docker/consts"
	"github.com/celestiaorg/poa-devnet/framework/docker/internal"
	"github.com/celestiaorg/poa-devnet/framework/types"
)

// CommandRunner runs a command to completion and returns its separated output.
// A non-zero exit is reported as a *types.ProcessError alongside the output.
type CommandRunner interface {
	Run(ctx context.Context, cmd []string, opts Options) (Output, error)
}

// RunAPI is the subset of the docker client used for one-shot containers.
type RunAPI interface {
	internal.ImageAPI
	CleanupLabel() string
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

var _ CommandRunner = (*Runner)(nil)

// Runner executes commands in throw-away containers of a single image,
// the equivalent of `docker run --rm`.
type Runner struct {
	client RunAPI
	image  Image
	logger *zap.Logger
}

// NewRunner returns a Runner for image.
func NewRunner(logger *zap.Logger, client RunAPI, image Image) *Runner {
	return &Runner{
		client: client,
		image:  image,
		logger: logger.With(zap.String("component", "container-runner"), zap.String("image", image.Ref())),
	}
}

// Run creates a container with cmd as its arguments, waits for it to exit and
// collects stdout and stderr separately. The container is always removed.
func (r *Runner) Run(ctx context.Context, cmd []string, opts Options) (Output, error) {
	if err := internal.EnsureImage(ctx, r.logger, r.client, r.image.Ref()); err != nil {
		return Output{}, err
	}

	user := opts.User
	if user == "" {
		user = r.image.UIDGID
	}

	cc, err := r.client.ContainerCreate(ctx,
		&container.Config{
			Image:      r.image.Ref(),
			Cmd:        cmd,
			Env:        opts.Env,
			User:       user,
			WorkingDir: opts.WorkingDir,
			Labels:     map[string]string{r.client.CleanupLabel(): consts.ProjectLabelValue},
		},
		&container.HostConfig{
			Binds: opts.Binds,
		},
		nil, nil, "")
	if err != nil {
		return Output{}, fmt.Errorf("creating container for %v: %w", cmd, err)
	}
	defer func() {
		// removal must happen even when ctx has been cancelled.
		if err := r.client.ContainerRemove(context.Background(), cc.ID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Warn("failed to remove container", zap.String("id", cc.ID), zap.Error(err))
		}
	}()

	if err := r.client.ContainerStart(ctx, cc.ID, container.StartOptions{}); err != nil {
		return Output{}, fmt.Errorf("starting container for %v: %w", cmd, err)
	}

	exitCode, err := r.waitExit(ctx, cc.ID)
	if err != nil {
		return Output{}, err
	}

	rc, err := r.client.ContainerLogs(ctx, cc.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return Output{}, fmt.Errorf("reading container logs: %w", err)
	}
	defer rc.Close()

	stdout, stderr, err := demux(rc)
	out := Output{Stdout: stdout, Stderr: stderr, ExitCode: exitCode}
	if err != nil {
		return out, err
	}

	r.logger.Debug("container exited", zap.Strings("cmd", cmd), zap.Int("exit_code", exitCode))
	if exitCode != 0 {
		return out, &types.ProcessError{
			Command:  append([]string{"docker", "run", r.image.Ref()}, cmd...),
			ExitCode: exitCode,
			Stdout:   stdout,
			Stderr:   stderr,
		}
	}
	return out, nil
}

func (r *Runner) waitExit(ctx context.Context, id string) (int, error) {
	waitCh, errCh := r.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case err := <-errCh:
		return 0, fmt.Errorf("waiting for container %s: %w", id, err)
	case res := <-waitCh:
		if res.Error != nil && res.Error.Message != "" {
			return 0, fmt.Errorf("waiting for container %s: %s", id, res.Error.Message)
		}
		return int(res.StatusCode), nil
	}
}
