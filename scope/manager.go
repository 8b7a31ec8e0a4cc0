// Package scope implements hierarchical cancellation domains for background
// work: an app scope that lives for the whole process and a session scope
// that is replaced on logical re-login. Operations run under a scope are
// tracked in a registry for introspection and are guaranteed to be
// unregistered when they finish, whatever the outcome.
package scope

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"sutext.github.io/gamelink/internal/safe"
	"sutext.github.io/gamelink/xerr"
	"sutext.github.io/gamelink/xlog"
)

// Scope names a cancellation domain.
type Scope uint8

const (
	App     Scope = iota // cancelled only at process shutdown
	Session              // replaced by ResetSession, cancelled by CancelSession
)

func (s Scope) String() string {
	switch s {
	case App:
		return "app"
	case Session:
		return "session"
	default:
		return "unknown"
	}
}

// Status classifies how an operation ended. Cancellation is a status, not an
// error that propagates to the caller.
type Status uint8

const (
	Running Status = iota
	Completed
	Cancelled
	Failed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Operation is an introspection record for a tracked operation. It is removed
// from the registry when the operation finishes; the record is not used for
// correctness.
type Operation struct {
	ID        string
	Name      string
	Scope     Scope
	Status    Status
	StartedAt time.Time
	EndedAt   time.Time
}

// Manager owns the two scopes. Construct one explicitly and pass it where it
// is needed; there is no package-level instance.
type Manager struct {
	mu            sync.Mutex
	appCtx        context.Context
	appCancel     context.CancelFunc
	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	ops           *safe.Map[string, *opRecord]
	logger        *xlog.Logger
	shutdown      sync.Once
}

// opRecord guards a tracked Operation so Run can finalize it while Operations
// snapshots it from another goroutine.
type opRecord struct {
	mu sync.Mutex
	op Operation
}

func (r *opRecord) snapshot() Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.op
}

func NewManager() *Manager {
	m := &Manager{
		ops:    safe.NewMap[string, *opRecord](),
		logger: xlog.Default(),
	}
	m.appCtx, m.appCancel = context.WithCancel(context.Background())
	m.sessionCtx, m.sessionCancel = context.WithCancel(m.appCtx)
	return m
}

// WithLogger replaces the manager's logger. Returns the manager for chaining.
func (m *Manager) WithLogger(l *xlog.Logger) *Manager {
	m.logger = l
	return m
}

// AppContext returns the process-lifetime context.
func (m *Manager) AppContext() context.Context {
	return m.appCtx
}

// SessionContext returns the current session context. The session derives
// from the app scope, so it observes both session and app cancellation.
func (m *Manager) SessionContext() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionCtx
}

// Linked derives a context from ctx that is additionally cancelled when the
// current session scope cancels. The returned stop func releases the bridge.
func (m *Manager) Linked(ctx context.Context) (context.Context, context.CancelFunc) {
	child, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.SessionContext(), cancel)
	return child, func() {
		stop()
		cancel()
	}
}

// CancelSession cancels every session-scoped operation. App-scoped operations
// are unaffected. The session stays cancelled until ResetSession.
func (m *Manager) CancelSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionCancel()
	m.logger.Debug("session scope cancelled")
}

// ResetSession cancels the current session scope and installs a fresh one.
func (m *Manager) ResetSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionCancel()
	m.sessionCtx, m.sessionCancel = context.WithCancel(m.appCtx)
	m.logger.Debug("session scope reset")
}

// Shutdown cancels both scopes exactly once. Safe to call repeatedly.
func (m *Manager) Shutdown() {
	m.shutdown.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.sessionCancel()
		m.appCancel()
		m.logger.Debug("scope manager shut down")
	})
}

// Run executes fn under the resolved scope context, tracks it in the
// registry, and classifies the outcome. The registry entry is always removed,
// whether fn completes, fails, or is cancelled.
func (m *Manager) Run(name string, s Scope, fn func(context.Context) error) Status {
	ctx := m.contextFor(s)
	rec := &opRecord{op: Operation{
		ID:        uuid.NewString(),
		Name:      name,
		Scope:     s,
		Status:    Running,
		StartedAt: time.Now(),
	}}
	m.ops.Set(rec.op.ID, rec)
	defer m.ops.Delete(rec.op.ID)

	err := fn(ctx)
	status := classify(ctx, err)
	rec.mu.Lock()
	rec.op.EndedAt = time.Now()
	rec.op.Status = status
	rec.mu.Unlock()
	switch status {
	case Failed:
		m.logger.Error("operation failed", xlog.Op(name), xlog.Err(err))
	case Cancelled:
		m.logger.Debug("operation cancelled", xlog.Op(name))
	}
	return status
}

// Go runs fn on its own goroutine and reports the final status on a pooled
// one-shot signal.
func (m *Manager) Go(name string, s Scope, fn func(context.Context) error) *Signal {
	sig := acquireSignal()
	go func() {
		sig.deliver(m.Run(name, s, fn))
	}()
	return sig
}

// Operations returns a snapshot of the currently tracked operations.
func (m *Manager) Operations() []Operation {
	records := m.ops.Values()
	out := make([]Operation, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.snapshot())
	}
	return out
}

func (m *Manager) contextFor(s Scope) context.Context {
	if s == App {
		return m.appCtx
	}
	return m.SessionContext()
}

func classify(ctx context.Context, err error) Status {
	if err == nil {
		if ctx.Err() != nil {
			return Cancelled
		}
		return Completed
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, xerr.SessionCancelled) {
		return Cancelled
	}
	return Failed
}
