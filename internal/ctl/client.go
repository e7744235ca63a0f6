package ctl

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/kvmdb/kdbcache/pkg/pagecache"
)

// Client is a control-plane connection. Methods are safe for concurrent
// use; requests on one connection are serialized.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to a control socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("ctl: dial %s: %w", socketPath, err)
	}

	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) roundTrip(op uint32, payload []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeRequest(c.conn, op, payload); err != nil {
		return nil, fmt.Errorf("ctl: send: %w", err)
	}

	status, resp, err := readResponse(c.conn)
	if err != nil {
		return nil, fmt.Errorf("ctl: receive: %w", err)
	}

	if status != StatusOK {
		return nil, errorFor(status, string(resp))
	}

	return resp, nil
}

// Hello returns the server's instance ID.
func (c *Client) Hello() (uuid.UUID, error) {
	resp, err := c.roundTrip(OpHello, nil)
	if err != nil {
		return uuid.UUID{}, err
	}

	id, err := uuid.FromBytes(resp)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("%w: hello payload: %v", ErrBadFrame, err)
	}

	return id, nil
}

// SetLayout installs a layout descriptor on the remote cache.
func (c *Client) SetLayout(l pagecache.Layout) error {
	_, err := c.roundTrip(pagecache.OpSetLayout, pagecache.MarshalLayout(l))

	return err
}

// GetLayout reads the remote descriptor.
func (c *Client) GetLayout() (pagecache.Layout, error) {
	resp, err := c.roundTrip(pagecache.OpGetLayout, nil)
	if err != nil {
		return pagecache.Layout{}, err
	}

	return pagecache.UnmarshalLayout(resp)
}

// GetStats reads a statistics snapshot.
func (c *Client) GetStats() (pagecache.Snapshot, error) {
	resp, err := c.roundTrip(pagecache.OpGetStats, nil)
	if err != nil {
		return pagecache.Snapshot{}, err
	}

	return pagecache.UnmarshalSnapshot(resp)
}

// ResetStats zeroes the remote monotonic counters.
func (c *Client) ResetStats() error {
	_, err := c.roundTrip(pagecache.OpResetStats, nil)

	return err
}
