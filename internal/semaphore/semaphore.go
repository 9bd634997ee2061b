// Package semaphore provides a counting semaphore for bounding concurrent work.
package semaphore

// Semaphore bounds the number of concurrent operations.
type Semaphore struct {
	tokens chan struct{}
}

// New returns a new Semaphore that allows n concurrent Wait/Signal pairs.
func New(n int) *Semaphore {
	return &Semaphore{tokens: make(chan struct{}, n)}
}

// Wait acquires a token, blocking until one is available.
func (s *Semaphore) Wait() {
	s.tokens <- struct{}{}
}

// Signal releases a previously acquired token.
func (s *Semaphore) Signal() {
	<-s.tokens
}

// Len returns the number of tokens currently acquired.
func (s *Semaphore) Len() int {
	return len(s.tokens)
}
