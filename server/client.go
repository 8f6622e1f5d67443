package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"
)

// DefaultReadTimeout is how long a Client waits for a response.
const DefaultReadTimeout = time.Minute

// ErrReadTimeout is returned when a response does not arrive in time.
var ErrReadTimeout = errors.New("timed out waiting for response")

// Client sends requests to a Server over one connection. Requests are sent
// one at a time.
type Client struct {
	conn        net.Conn
	r           *bufio.Reader
	readTimeout time.Duration
	sendLock    sync.Mutex
}

// Dial connects to the server at addr. A readTimeout of 0 uses
// DefaultReadTimeout.
func Dial(ctx context.Context, addr string, readTimeout time.Duration) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if readTimeout == 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Client{
		conn:        conn,
		r:           bufio.NewReader(conn),
		readTimeout: readTimeout,
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send sends req and waits for its response. A failed request is not an
// error; check the response status or call its Err method. If no response
// arrives, the connection is closed and can no longer be used.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	c.sendLock.Lock()
	defer c.sendLock.Unlock()

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err = c.conn.Write(append(data, '\n')); err != nil {
		return nil, err
	}
	return c.readResponse(ctx)
}

func (c *Client) readResponse(ctx context.Context) (*Response, error) {
	type result struct {
		resp *Response
		err  error
	}
	resCh := make(chan result, 1)
	go func(r *bufio.Reader) {
		line, err := readLine(r)
		if err != nil {
			resCh <- result{err: err}
			return
		}
		var resp Response
		if err = json.Unmarshal(line, &resp); err != nil {
			resCh <- result{err: err}
			return
		}
		resCh <- result{resp: &resp}
	}(c.r)

	t := time.NewTimer(c.readTimeout)
	defer t.Stop()

	select {
	case res := <-resCh:
		return res.resp, res.err
	case <-ctx.Done():
		c.conn.Close()
		return nil, ctx.Err()
	case <-t.C:
		c.conn.Close()
		return nil, ErrReadTimeout
	}
}
