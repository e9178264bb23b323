package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/core"
	"github.com/mikey/image-mod-relay/internal/metrics"
	"go.uber.org/zap"
)

const (
	maxFrameBytes = 16 << 20
	closeGrace    = time.Second
	pingInterval  = 30 * time.Second
)

// EventHandler receives every decoded frame in arrival order
type EventHandler func(ctx context.Context, ev *core.Event)

// Link holds the event stream connection to the gateway and reconnects
// at a fixed interval whenever it drops
type Link struct {
	url       string
	token     string
	interval  time.Duration
	handler   EventHandler
	maxFrame  int64
	dialer    *websocket.Dialer
	logger    *zap.Logger
	running   atomic.Bool
	connected atomic.Int64

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLink creates a gateway link that feeds frames to handler
func NewLink(cfg config.GatewayConfig, handler EventHandler, logger *zap.Logger) *Link {
	interval := cfg.ReconnectInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Link{
		url:      cfg.WSURL,
		token:    cfg.AccessToken,
		interval: interval,
		handler:  handler,
		maxFrame: maxFrameBytes,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.With(zap.String("system", "gateway-link")),
	}
}

// Running reports whether a connection is currently being served
func (l *Link) Running() bool {
	return l.running.Load()
}

// Connections returns how many connections were established so far
func (l *Link) Connections() int64 {
	return l.connected.Load()
}

// Start runs the link in the background until Stop is called
func (l *Link) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	go func() {
		defer close(done)
		l.Run(ctx)
	}()
}

// Stop closes the connection with a close frame and waits for the link
// to finish
func (l *Link) Stop() {
	l.mu.Lock()
	cancel, done, conn := l.cancel, l.done, l.conn
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	if conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutting down")
		if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)); err != nil {
			l.logger.Warn("Failed to send close frame", zap.Error(err))
		}
	}
	cancel()
	<-done
	l.logger.Info("Gateway link stopped")
}

// Run connects and serves frames until ctx is cancelled. Connection
// failures and drops are retried after the reconnect interval, without
// limit.
func (l *Link) Run(ctx context.Context) {
	first := true
	for {
		if !first {
			metrics.GatewayReconnects.Inc()
		}
		first = false

		err := l.serve(ctx)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("Gateway connection lost, reconnecting",
			zap.Error(err),
			zap.Duration("interval", l.interval))

		select {
		case <-time.After(l.interval):
		case <-ctx.Done():
			return
		}
	}
}

func (l *Link) serve(ctx context.Context) error {
	header := http.Header{}
	if l.token != "" {
		header.Set("Authorization", "Bearer "+l.token)
	}

	conn, _, err := l.dialer.DialContext(ctx, l.url, header)
	if err != nil {
		return fmt.Errorf("gateway dial failed: %w", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.running.Store(true)
	l.connected.Add(1)
	l.logger.Info("Connected to gateway", zap.String("url", l.url))

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		l.running.Store(false)
		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
	}()

	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					l.logger.Warn("Failed to ping gateway", zap.Error(err))
				}
			case <-ctx.Done():
				conn.Close()
				return
			}
		}
	}()

	for {
		mt, r, err := conn.NextReader()
		if err != nil {
			return readError(ctx, err)
		}
		if mt != websocket.TextMessage {
			metrics.FramesDropped.WithLabelValues("not_text").Inc()
			continue
		}
		// an oversized frame is skipped, the rest of it is discarded by
		// the next NextReader call
		data, err := io.ReadAll(io.LimitReader(r, l.maxFrame+1))
		if err != nil {
			return readError(ctx, err)
		}
		if int64(len(data)) > l.maxFrame {
			metrics.FramesDropped.WithLabelValues("too_large").Inc()
			l.logger.Warn("Dropping oversized frame",
				zap.Int64("max_bytes", l.maxFrame),
				zap.ByteString("frame", preview(data)))
			continue
		}
		l.handleFrame(ctx, data)
	}
}

func readError(ctx context.Context, err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("gateway closed the connection: %w", err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("gateway read failed: %w", err)
}

// handleFrame decodes and hands off one frame; nothing here may end the
// connection
func (l *Link) handleFrame(ctx context.Context, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			metrics.FramesDropped.WithLabelValues("panic").Inc()
			l.logger.Error("Recovered from panic while handling frame", zap.Any("panic", r))
		}
	}()

	ev, err := DecodeEvent(data)
	if err != nil {
		metrics.FramesDropped.WithLabelValues("decode").Inc()
		l.logger.Warn("Dropping undecodable frame", zap.Error(err), zap.ByteString("frame", preview(data)))
		return
	}
	l.handler(ctx, ev)
}

func preview(data []byte) []byte {
	const max = 256
	if len(data) > max {
		return data[:max]
	}
	return data
}
