package internal

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types/filters"
	dockerimagetypes "github.com/docker/docker/api/types/image"
	"go.uber.org/zap"

	"github.com/celestiaorg/poa-devnet/framework/wait"
)

// ImageAPI is the subset of the docker client needed to ensure an image is present.
type ImageAPI interface {
	ImageList(ctx context.Context, options dockerimagetypes.ListOptions) ([]dockerimagetypes.Summary, error)
	ImagePull(ctx context.Context, ref string, options dockerimagetypes.PullOptions) (io.ReadCloser, error)
}

// Allow multiple callers to check for an image
// by using a protected package-level set.
//
// A mutex allows for retries upon error;
// a sync.Once would not be simple to retry.
var (
	ensureImageMu sync.Mutex
	pulledImages  = map[string]bool{}
)

const (
	// Retry configuration for image pulls
	maxPullAttempts  = 3
	initialPullDelay = 1 * time.Second
	maxPullDelay     = 10 * time.Second
)

// EnsureImage pulls ref unless the daemon already has it.
func EnsureImage(ctx context.Context, logger *zap.Logger, cli ImageAPI, ref string) error {
	ensureImageMu.Lock()
	defer ensureImageMu.Unlock()

	if pulledImages[ref] {
		return nil
	}

	images, err := cli.ImageList(ctx, dockerimagetypes.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return fmt.Errorf("listing images to check %s presence: %w", ref, err)
	}

	if len(images) > 0 {
		pulledImages[ref] = true
		return nil
	}

	logger.Info("pulling image", zap.String("image", ref))
	out := wait.Do(ctx, func(ctx context.Context) error {
		rc, err := cli.ImagePull(ctx, ref, dockerimagetypes.PullOptions{})
		if err != nil {
			return fmt.Errorf("pulling %s: %w", ref, err)
		}

		_, _ = io.Copy(io.Discard, rc)
		_ = rc.Close()
		return nil
	}, wait.Policy{
		Strategy:    wait.ExponentialBackoff{Initial: initialPullDelay, Max: maxPullDelay},
		MaxAttempts: maxPullAttempts,
	})
	if !out.OK() {
		return fmt.Errorf("failed to pull %s after %d attempts: %w", ref, out.Attempts, out.Err)
	}

	pulledImages[ref] = true
	return nil
}
