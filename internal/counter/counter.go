// Package counter provides a concurrent-safe counter.
package counter

import "sync/atomic"

// Counter provides concurrent-safe access over an int64 value.
type Counter int64

// Inc adds value to the counter.
func (c *Counter) Inc(value int64) {
	atomic.AddInt64((*int64)(c), value)
}

// Read returns the current value of the counter.
func (c *Counter) Read() int64 {
	return atomic.LoadInt64((*int64)(c))
}
