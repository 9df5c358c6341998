package geth

import (
	"bufio"
	"strings"

	"github.com/celestiaorg/poa-devnet/framework/docker/container"
	"github.com/celestiaorg/poa-devnet/framework/types"
)

// AddressMarker precedes the new account's address in `geth account new` output.
const AddressMarker = "Public address of the key"

// ResultExtractor pulls a single value out of a finished command's output.
type ResultExtractor interface {
	Extract(out container.Output) (string, error)
}

// MarkerLineExtractor returns the text after the first colon on the first line
// containing Marker. Stdout is searched before stderr, since geth's logger
// writes to stderr and the account summary may land on either stream.
type MarkerLineExtractor struct {
	Marker string
}

var _ ResultExtractor = MarkerLineExtractor{}

// Extract implements ResultExtractor.
func (e MarkerLineExtractor) Extract(out container.Output) (string, error) {
	for _, stream := range []string{out.Stdout, out.Stderr} {
		if v, ok := e.scan(stream); ok {
			return v, nil
		}
	}
	return "", &types.ParseError{Marker: e.Marker}
}

func (e MarkerLineExtractor) scan(stream string) (string, bool) {
	sc := bufio.NewScanner(strings.NewReader(stream))
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, e.Marker) {
			continue
		}
		_, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		return strings.TrimSpace(value), true
	}
	return "", false
}
