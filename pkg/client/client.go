// Package client implements the connecting side of the protocol: it
// frames requests, correlates responses and surfaces uncorrelated
// server pushes as a stream of events.
package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/atriumchat/atrium/pkg/protocol"
)

const eventBuffer = 256

// Client is one live connection. Requests may be issued from any
// goroutine; events must be drained by exactly one consumer.
type Client struct {
	conn *websocket.Conn
	log  zerolog.Logger
	corr *correlator

	writeMu sync.Mutex
	userID  atomic.Uint64

	events  chan protocol.ServerEvent
	limited chan protocol.RateLimited

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to a node and starts the read loop. The first event on
// Events is ClientReady carrying the full sync snapshot.
func Dial(ctx context.Context, nodeURL, username string, log zerolog.Logger) (*Client, error) {
	u, err := url.Parse(nodeURL)
	if err != nil {
		return nil, fmt.Errorf("invalid node url: %w", err)
	}
	q := u.Query()
	q.Set("username", username)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node: %w", err)
	}

	c := &Client{
		conn:    conn,
		log:     log,
		corr:    newCorrelator(),
		events:  make(chan protocol.ServerEvent, eventBuffer),
		limited: make(chan protocol.RateLimited, 1),
		done:    make(chan struct{}),
	}

	go c.readLoop()
	return c, nil
}

// Events streams uncorrelated server pushes in arrival order. The
// channel closes when the connection is lost.
func (c *Client) Events() <-chan protocol.ServerEvent {
	return c.events
}

// RateLimits reports admission refusals. Only the most recent one is
// retained.
func (c *Client) RateLimits() <-chan protocol.RateLimited {
	return c.limited
}

// Done closes when the connection is gone
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// User returns the id the node assigned this connection. Zero until
// the ClientReady snapshot arrives.
func (c *Client) User() protocol.UserID {
	return protocol.UserID(c.userID.Load())
}

// Do submits one request and blocks for its terminal response. A
// response carrying an application error is returned as a
// protocol.Error. Cancelling the context abandons the request; whether
// it was applied on the node is then unknown.
func (c *Client) Do(ctx context.Context, req protocol.ClientRequest) (protocol.OkResponse, error) {
	id, ch, err := c.corr.register()
	if err != nil {
		return nil, err
	}

	buf, err := protocol.EncodeRequest(id, req)
	if err != nil {
		c.corr.deregister(id)
		return nil, err
	}

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.BinaryMessage, buf)
	c.writeMu.Unlock()
	if err != nil {
		c.corr.deregister(id)
		return nil, fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrConnectionLost
		}
		if resp.Err != nil {
			return nil, *resp.Err
		}
		return resp.Ok, nil
	case <-ctx.Done():
		c.corr.deregister(id)
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrConnectionLost
	}
}

// Close tears down the connection and fails everything in flight
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		c.corr.failAll()
	})
}

func (c *Client) readLoop() {
	// The read loop is the only sender on events, so it alone may
	// close the channel.
	defer close(c.events)
	defer c.Close()

	for {
		msgType, buf, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		msg, err := protocol.DecodeServerMessage(buf)
		if err != nil {
			c.log.Warn().Err(err).Msg("undecodable unit from node")
			continue
		}

		switch m := msg.(type) {
		case *protocol.Response:
			if !c.corr.deliver(m) {
				c.log.Debug().Uint32("id", uint32(m.ID)).Msg("response with no waiter dropped")
			}
		case protocol.MalformedMessage:
			c.log.Warn().Msg("node rejected a unit as malformed")
		case protocol.RateLimited:
			select {
			case c.limited <- m:
			default:
			}
		case protocol.ServerEvent:
			if ready, ok := m.(protocol.ClientReady); ok {
				c.userID.Store(uint64(ready.User))
			}
			select {
			case c.events <- m:
			case <-c.done:
				return
			}
		}
	}
}
