package client

import (
	"errors"
	"sync"

	"github.com/atriumchat/atrium/pkg/protocol"
)

var (
	// ErrConnectionLost fails every request in flight when the
	// connection drops. The caller must not assume the request was or
	// was not applied.
	ErrConnectionLost = errors.New("connection lost")

	ErrClientClosed = errors.New("client closed")
)

// correlator matches responses to the requests that caused them.
// Request ids are unique among the requests in flight on one
// connection; responses may complete in any order.
type correlator struct {
	mu      sync.Mutex
	nextID  protocol.RequestID
	pending map[protocol.RequestID]chan *protocol.Response
	closed  bool
}

func newCorrelator() *correlator {
	return &correlator{pending: make(map[protocol.RequestID]chan *protocol.Response)}
}

// register allocates a request id and the channel its response will
// arrive on. The channel is buffered so delivery never blocks the read
// loop even if the waiter already gave up.
func (c *correlator) register() (protocol.RequestID, chan *protocol.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, nil, ErrClientClosed
	}

	c.nextID++
	ch := make(chan *protocol.Response, 1)
	c.pending[c.nextID] = ch
	return c.nextID, ch, nil
}

// deliver routes a response to its waiter. A response with no waiter is
// discarded: the request either timed out or was never ours.
func (c *correlator) deliver(resp *protocol.Response) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.pending[resp.ID]
	if !ok {
		return false
	}

	delete(c.pending, resp.ID)
	ch <- resp
	return true
}

// deregister abandons a request after a timeout. Its id stays burned: a
// late response will find no waiter and be dropped.
func (c *correlator) deregister(id protocol.RequestID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

// failAll wakes every waiter with no response, which they surface as
// ErrConnectionLost. The correlator accepts no further registrations.
func (c *correlator) failAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
}
