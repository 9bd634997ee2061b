// Package resourcemanager hands out tokens from a fixed budget.
// Requests that do not fit wait until enough tokens are released.
package resourcemanager

// ResourceManager limits the number of allocated objects.
// Each request may ask for more than one token.
type ResourceManager[T any] struct {
	limit     int
	available int
	requests  map[string]request[T]
	requestC  chan request[T]
	releaseC  chan int
	statsC    chan chan Stats
	closeC    chan struct{}
	doneC     chan struct{}
}

// Stats about a ResourceManager.
type Stats struct {
	AllocatedObjects int
	PendingRequests  int
}

type request[T any] struct {
	key     string
	data    T
	n       int
	notifyC chan T
	cancelC chan struct{}
	doneC   chan bool
}

// New returns a new ResourceManager with the given token limit.
func New[T any](limit int) *ResourceManager[T] {
	m := &ResourceManager[T]{
		limit:     limit,
		available: limit,
		requests:  make(map[string]request[T]),
		requestC:  make(chan request[T]),
		releaseC:  make(chan int),
		statsC:    make(chan chan Stats),
		closeC:    make(chan struct{}),
		doneC:     make(chan struct{}),
	}
	go m.run()
	return m
}

// Close the manager. Pending requests are never notified after Close.
func (m *ResourceManager[T]) Close() {
	close(m.closeC)
	<-m.doneC
}

// Stats returns statistics about current allocations.
func (m *ResourceManager[T]) Stats() Stats {
	ch := make(chan Stats, 1)
	select {
	case m.statsC <- ch:
		select {
		case s := <-ch:
			return s
		case <-m.closeC:
		}
	case <-m.closeC:
	}
	return Stats{}
}

// Request n tokens under key. Returns true if the tokens were acquired
// immediately. Otherwise the request is queued and data is sent to
// notifyC when the tokens become available, unless cancelC is closed
// before that.
func (m *ResourceManager[T]) Request(key string, data T, n int, notifyC chan T, cancelC chan struct{}) (acquired bool) {
	if n < 0 {
		return
	}
	r := request[T]{
		key:     key,
		data:    data,
		n:       n,
		notifyC: notifyC,
		cancelC: cancelC,
		doneC:   make(chan bool),
	}
	select {
	case m.requestC <- r:
		select {
		case acquired = <-r.doneC:
		case <-m.closeC:
		}
	case <-m.closeC:
	}
	return
}

// Release n tokens back to the manager.
func (m *ResourceManager[T]) Release(n int) {
	select {
	case m.releaseC <- n:
	case <-m.closeC:
	}
}

func (m *ResourceManager[T]) run() {
	for {
		// The zero request blocks the notify and cancel cases below.
		req := m.nextRequest()

		select {
		case r := <-m.requestC:
			m.handleRequest(r)
		case n := <-m.releaseC:
			m.available += n
		case req.notifyC <- req.data:
			m.available -= req.n
			delete(m.requests, req.key)
		case <-req.cancelC:
			delete(m.requests, req.key)
		case ch := <-m.statsC:
			ch <- Stats{
				AllocatedObjects: m.limit - m.available,
				PendingRequests:  len(m.requests),
			}
		case <-m.closeC:
			close(m.doneC)
			return
		}
	}
}

func (m *ResourceManager[T]) nextRequest() request[T] {
	for _, r := range m.requests {
		if m.available >= r.n {
			return r
		}
	}
	return request[T]{}
}

func (m *ResourceManager[T]) handleRequest(r request[T]) {
	acquired := m.available >= r.n
	select {
	case r.doneC <- acquired:
		if acquired {
			m.available -= r.n
		} else {
			m.requests[r.key] = r
		}
	case <-r.cancelC:
	}
}
