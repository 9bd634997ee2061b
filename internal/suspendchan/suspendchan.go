// Package suspendchan provides a channel that can suspend receiving temporarily.
package suspendchan

// Chan is a channel wrapper whose receive side can be suspended.
// While suspended, ReceiveC returns nil so that a select statement on it blocks,
// leaving items queued in the channel buffer. The send side is unaffected.
type Chan[T any] struct {
	ch        chan T
	suspended bool
}

// New returns a new Chan with a buffer of buflen items.
func New[T any](buflen int) *Chan[T] {
	return &Chan[T]{
		ch: make(chan T, buflen),
	}
}

// SendC returns the channel for sending.
func (c *Chan[T]) SendC() chan T {
	return c.ch
}

// ReceiveC returns the channel for receiving. Returns nil if the Chan is suspended.
func (c *Chan[T]) ReceiveC() chan T {
	if c.suspended {
		return nil
	}
	return c.ch
}

// Suspend the channel. Receive on the channel must be retried after Resume.
func (c *Chan[T]) Suspend() {
	c.suspended = true
}

// Resume the suspended channel.
func (c *Chan[T]) Resume() {
	c.suspended = false
}
