package container

import (
	"bytes"
	"fmt"
	"io"

	"github.com/docker/docker/pkg/stdcopy"
)

// Output is what a finished command wrote and how it exited.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// demux splits a docker multiplexed stream into stdout and stderr.
func demux(r io.Reader) (stdout, stderr string, err error) {
	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, r); err != nil {
		return outBuf.String(), errBuf.String(), fmt.Errorf("demultiplexing output: %w", err)
	}
	return outBuf.String(), errBuf.String(), nil
}
