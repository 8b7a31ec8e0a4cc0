package scope

import "sync"

// Signal is a reusable one-shot completion event. Frequently awaited
// operations churn through these, so finished signals go back to a pool
// instead of the allocator.
type Signal struct {
	ch chan Status
}

var signalPool = sync.Pool{
	New: func() any {
		return &Signal{ch: make(chan Status, 1)}
	},
}

func acquireSignal() *Signal {
	return signalPool.Get().(*Signal)
}

func (s *Signal) deliver(st Status) {
	s.ch <- st
}

// Wait blocks until the operation finishes and returns its status. The
// signal is recycled; do not use it again after Wait returns.
func (s *Signal) Wait() Status {
	st := <-s.ch
	signalPool.Put(s)
	return st
}

// Done exposes the completion channel for select loops. A signal observed
// through Done is not recycled.
func (s *Signal) Done() <-chan Status {
	return s.ch
}
