package client

import (
	"github.com/moby/moby/client"

	"github.com/celestiaorg/poa-devnet/framework/types"
)

// Client wraps a Docker client with an associated cleanup label.
// the cleanup label is used to tag every container and network the devnet
// creates, so that teardown finds and removes exactly those resources.
//
// Client implements types.DockerClient.
type Client struct {
	*client.Client
	cleanupLabel string
}

var _ types.DockerClient = (*Client)(nil)

// NewClient creates a new Client with the given Docker client and cleanup label.
func NewClient(c *client.Client, cleanupLabel string) *Client {
	return &Client{
		Client:       c,
		cleanupLabel: cleanupLabel,
	}
}

// CleanupLabel returns the cleanup label associated with this client.
func (c *Client) CleanupLabel() string {
	return c.cleanupLabel
}
