// Package event publishes connection lifecycle events to subscribers. It is
// the boundary between the connection client and application code: delivery
// is synchronous and in registration order, and a misbehaving handler cannot
// block the handlers after it.
package event

import (
	"sync"
	"sync/atomic"

	"sutext.github.io/gamelink/xlog"
)

// Handler receives lifecycle events. Implementations run on the publisher's
// goroutine and should return quickly.
type Handler interface {
	OnConnected()
	OnDisconnected()
	OnError(message string)
	OnLatencyMeasured(value float64)
}

// Funcs adapts optional callbacks to Handler. Nil fields are skipped.
type Funcs struct {
	Connected       func()
	Disconnected    func()
	Error           func(message string)
	LatencyMeasured func(value float64)
}

func (f Funcs) OnConnected() {
	if f.Connected != nil {
		f.Connected()
	}
}
func (f Funcs) OnDisconnected() {
	if f.Disconnected != nil {
		f.Disconnected()
	}
}
func (f Funcs) OnError(message string) {
	if f.Error != nil {
		f.Error(message)
	}
}
func (f Funcs) OnLatencyMeasured(value float64) {
	if f.LatencyMeasured != nil {
		f.LatencyMeasured(value)
	}
}

// Notifier fans lifecycle events out to subscribers.
type Notifier struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []*Subscription
	logger *xlog.Logger
}

func NewNotifier() *Notifier {
	return &Notifier{logger: xlog.Default()}
}

// WithLogger replaces the notifier's logger. Returns the notifier for chaining.
func (n *Notifier) WithLogger(l *xlog.Logger) *Notifier {
	n.logger = l
	return n
}

// Subscribe registers h and returns its subscription handle. The handle owns
// the registration; cancelling it is the only way to unsubscribe.
func (n *Notifier) Subscribe(h Handler) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	sub := &Subscription{id: n.nextID, notifier: n, handler: h}
	n.subs = append(n.subs, sub)
	return sub
}

// Connected publishes OnConnected.
func (n *Notifier) Connected() {
	n.publish(func(h Handler) { h.OnConnected() })
}

// Disconnected publishes OnDisconnected.
func (n *Notifier) Disconnected() {
	n.publish(func(h Handler) { h.OnDisconnected() })
}

// Error publishes OnError.
func (n *Notifier) Error(message string) {
	n.publish(func(h Handler) { h.OnError(message) })
}

// LatencyMeasured publishes OnLatencyMeasured.
func (n *Notifier) LatencyMeasured(value float64) {
	n.publish(func(h Handler) { h.OnLatencyMeasured(value) })
}

func (n *Notifier) publish(deliver func(Handler)) {
	n.mu.RLock()
	subs := make([]*Subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.RUnlock()
	for _, sub := range subs {
		n.deliverTo(sub, deliver)
	}
}

func (n *Notifier) deliverTo(sub *Subscription, deliver func(Handler)) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("event handler panicked", xlog.Any("panic", r))
		}
	}()
	if !sub.cancelled.Load() {
		deliver(sub.handler)
	}
}

func (n *Notifier) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, sub := range n.subs {
		if sub.id == id {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			return
		}
	}
}

// Subscription is the disposable handle returned by Subscribe.
type Subscription struct {
	id        uint64
	notifier  *Notifier
	handler   Handler
	cancelled atomic.Bool
}

// Cancel removes the subscription. Idempotent, safe from any goroutine, and
// safe even after the notifier stopped publishing.
func (s *Subscription) Cancel() {
	if s.cancelled.CompareAndSwap(false, true) {
		s.notifier.remove(s.id)
	}
}
