// Command cli is an interactive gamelink client: lines from stdin go out as
// data messages, received messages and lifecycle events go to the log.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sutext.github.io/gamelink"
	"sutext.github.io/gamelink/client"
	"sutext.github.io/gamelink/config"
	"sutext.github.io/gamelink/event"
	"sutext.github.io/gamelink/frame"
	"sutext.github.io/gamelink/xerr"
	"sutext.github.io/gamelink/xlog"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML config file")
		addr       = flag.String("addr", "127.0.0.1:7330", "server address (ignored with -config)")
		transport  = flag.String("transport", "tcp", "transport: tcp, ws or grpc")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if *debug {
		xlog.SetDefault(xlog.NewText(xlog.LevelDebug))
	}

	cfg := client.Config{ServerAddress: *addr, Transport: *transport}
	if *configPath != "" {
		f, err := config.LoadAndValidate(*configPath)
		if err != nil {
			xlog.Error("config error", xlog.Err(err))
			os.Exit(1)
		}
		cfg = f.Connection
	}

	c, err := gamelink.Dial(cfg, client.WithHandler(client.HandlerFunc(func(m *frame.Message) error {
		fmt.Printf("<< %s\n", m.Payload)
		return nil
	})))
	if err != nil {
		xlog.Error("dial failed", xlog.Addr(cfg.ServerAddress), xlog.Err(err))
		os.Exit(1)
	}
	defer c.Close()

	sub := c.Notifier().Subscribe(event.Funcs{
		Connected:    func() { xlog.Info("connected", xlog.Addr(cfg.ServerAddress)) },
		Disconnected: func() { xlog.Info("disconnected") },
		Error:        func(msg string) { xlog.Warn("connection error", xlog.Str("message", msg)) },
		LatencyMeasured: func(ms float64) {
			xlog.Debug("latency", xlog.Float64("ms", ms))
		},
	})
	defer sub.Cancel()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			if err := c.SendData([]byte(line)); err != nil {
				if errors.Is(err, xerr.SendQueueFull) {
					xlog.Warn("backpressure, message dropped")
					continue
				}
				xlog.Warn("send failed", xlog.Err(err))
			}
		}
	}
}
