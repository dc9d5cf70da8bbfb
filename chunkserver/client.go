package chunkserver

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/mini_hdfs_project/helper"
	"github.com/mini_hdfs_project/wire"
)

// Client issues one-shot STORE / RETRIEVE exchanges against datanodes.
type Client struct {
	// covers connect plus the whole exchange
	Timeout time.Duration
}

func NewClient(timeout time.Duration) *Client {
	return &Client{Timeout: timeout}
}

func (c *Client) exchange(ctx context.Context, addr string, header wire.Header, payload []byte) (wire.Header, []byte, error) {
	dialer := net.Dialer{Timeout: c.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return wire.Header{}, nil, errors.Wrapf(err, "dialing %s", addr)
	}
	defer conn.Close()

	if c.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.Timeout))
	}
	if err := wire.WriteFrame(conn, header, payload); err != nil {
		return wire.Header{}, nil, errors.Wrapf(err, "sending %s to %s", header.Cmd, addr)
	}
	reply, body, err := wire.ReadFrame(conn)
	if err != nil {
		return wire.Header{}, nil, errors.Wrapf(err, "reading %s reply from %s", header.Cmd, addr)
	}
	return reply, body, nil
}

// Store sends data to the datanode at addr. filename is informational only.
func (c *Client) Store(ctx context.Context, addr, chunkID, filename string, data []byte) error {
	reply, _, err := c.exchange(ctx, addr, wire.Header{Cmd: wire.CmdStore, ChunkID: chunkID, Filename: filename}, data)
	if err != nil {
		return err
	}
	if reply.Status != wire.StatusOK {
		return errors.Errorf("store %s on %s: status %q", chunkID, addr, reply.Status)
	}
	return nil
}

// Retrieve fetches a chunk. A NOT_FOUND reply yields helper.ErrChunkNotFound.
func (c *Client) Retrieve(ctx context.Context, addr, chunkID string) ([]byte, error) {
	reply, body, err := c.exchange(ctx, addr, wire.Header{Cmd: wire.CmdRetrieve, ChunkID: chunkID}, nil)
	if err != nil {
		return nil, err
	}
	switch reply.Status {
	case wire.StatusOK:
		return body, nil
	case wire.StatusNotFound:
		return nil, helper.ErrChunkNotFound
	default:
		return nil, errors.Errorf("retrieve %s from %s: status %q", chunkID, addr, reply.Status)
	}
}
