package client

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"sutext.github.io/gamelink/xerr"
	"sutext.github.io/gamelink/xlog"
)

// supervisor watches the connection state on its own timer and dials again
// after an unintentional loss. It runs under the session scope, so an
// intentional Disconnect cancels it before the socket goes down and no
// reconnect races the shutdown.
type supervisor struct {
	c        *Client
	interval time.Duration
	running  atomic.Bool
}

func newSupervisor(c *Client, interval time.Duration) *supervisor {
	return &supervisor{c: c, interval: interval}
}

// start launches the watch loop once per session. Subsequent calls while it
// is running are no-ops.
func (s *supervisor) start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.c.trackLoop("connection.supervisor", func(ctx context.Context) error {
		defer s.running.Store(false)
		return s.run(ctx)
	})
}

func (s *supervisor) run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			if s.c.State() != Disconnected {
				continue
			}
			s.c.logger.Info("supervisor reconnecting", xlog.Addr(s.c.cfg.ServerAddress))
			err := s.c.Connect(ctx)
			switch {
			case err == nil:
				continue
			case errors.Is(err, xerr.SessionCancelled):
				return nil
			case !xerr.IsRetryable(err):
				s.c.logger.Error("supervisor giving up", xlog.Err(err))
				return nil
			default:
				s.c.logger.Warn("supervisor reconnect failed", xlog.Err(err))
			}
		}
	}
}
