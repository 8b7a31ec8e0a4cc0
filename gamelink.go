// Package gamelink is a resilient multi-transport client for a game backend.
// It keeps one logical connection alive over a framed stream (TCP or
// WebSocket) or a gRPC byte stream, with automatic retry, keepalive probing,
// reconnect supervision, and hierarchical cancellation of all background
// work.
//
// Application code builds a client.Config, dials, and consumes lifecycle
// events:
//
//	c, err := gamelink.Dial(cfg,
//		client.WithHandler(myHandler),
//	)
//	sub := c.Notifier().Subscribe(event.Funcs{
//		Connected: func() { log.Println("up") },
//	})
//	defer sub.Cancel()
package gamelink

import (
	"context"

	"sutext.github.io/gamelink/client"
)

// New builds a client without connecting it.
func New(cfg client.Config, opts ...client.Option) (*client.Client, error) {
	return client.New(cfg, opts...)
}

// Dial builds a client and connects it. The returned client is connected; on
// error it is already closed.
func Dial(cfg client.Config, opts ...client.Option) (*client.Client, error) {
	return DialContext(context.Background(), cfg, opts...)
}

// DialContext is Dial with a caller-supplied context bounding the initial
// connection attempt.
func DialContext(ctx context.Context, cfg client.Config, opts ...client.Option) (*client.Client, error) {
	c, err := client.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}
