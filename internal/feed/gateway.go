// Package feed moves market data between the upstream gateway, the signal bus
// and the running algos.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
	handshakeTimeout  = 15 * time.Second
)

// Frame is the envelope of every gateway message.
type Frame struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

type subscribeCommand struct {
	Type   string   `json:"type"`
	Topics []string `json:"topics"`
}

// GatewayConfig configures a GatewayClient.
type GatewayConfig struct {
	URL string
	// Topics are sent in the subscribe command, glob patterns allowed.
	Topics []string
	// Exchanges are reported unavailable on md.status.<exchange> whenever
	// the connection drops.
	Exchanges []string
	// ReconnectDelay is the first backoff step. Defaults to 2s.
	ReconnectDelay time.Duration
}

// GatewayClient relays the normalized market data gateway onto the signal
// bus. It reconnects with exponential backoff until its context ends.
type GatewayClient struct {
	cfg    GatewayConfig
	bus    domain.SignalBus
	cache  domain.MarketCache
	logger *slog.Logger

	mu     sync.Mutex
	frames int64
}

// NewGatewayClient creates a GatewayClient.
func NewGatewayClient(cfg GatewayConfig, bus domain.SignalBus, cache domain.MarketCache, logger *slog.Logger) *GatewayClient {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = reconnectDelay
	}
	return &GatewayClient{
		cfg:    cfg,
		bus:    bus,
		cache:  cache,
		logger: logger.With(slog.String("component", "gateway_client")),
	}
}

// Frames returns the number of frames relayed so far.
func (g *GatewayClient) Frames() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frames
}

// Run connects and relays frames until ctx is cancelled.
func (g *GatewayClient) Run(ctx context.Context) error {
	if g.cfg.URL == "" {
		g.logger.Info("no gateway url configured, exiting")
		return nil
	}

	delay := g.cfg.ReconnectDelay
	for {
		relayed, err := g.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.reportDown(ctx, err)
		if relayed > 0 {
			delay = g.cfg.ReconnectDelay
		}

		g.logger.WarnContext(ctx, "gateway disconnected, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

// runConnection serves one connection and returns how many frames it
// relayed before it dropped.
func (g *GatewayClient) runConnection(ctx context.Context) (int, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, g.cfg.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("feed: dial gateway: %w", err)
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(subscribeCommand{Type: "subscribe", Topics: g.cfg.Topics}); err != nil {
		return 0, fmt.Errorf("feed: subscribe: %w", err)
	}
	g.logger.InfoContext(ctx, "gateway subscribed", slog.Int("topics", len(g.cfg.Topics)))

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go g.pingLoop(connCtx, conn)
	go func() {
		<-connCtx.Done()
		_ = conn.SetReadDeadline(time.Now())
	}()

	relayed := 0
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return relayed, fmt.Errorf("feed: read: %w", err)
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Topic == "" {
			g.logger.DebugContext(ctx, "unparseable frame dropped", slog.Int("len", len(raw)))
			continue
		}
		if err := g.relay(ctx, frame); err != nil {
			g.logger.WarnContext(ctx, "relay failed",
				slog.String("topic", frame.Topic),
				slog.String("error", err.Error()),
			)
			continue
		}
		relayed++
	}
}

func (g *GatewayClient) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// relay publishes the frame and keeps the cache current for depth and
// quote topics.
func (g *GatewayClient) relay(ctx context.Context, frame Frame) error {
	if err := g.bus.Publish(ctx, frame.Topic, frame.Payload); err != nil {
		return err
	}
	g.mu.Lock()
	g.frames++
	g.mu.Unlock()

	kind, inst, ok := parseMarketTopic(frame.Topic)
	if !ok || g.cache == nil {
		return nil
	}
	switch kind {
	case "depth":
		var depth domain.Depth
		if err := json.Unmarshal(frame.Payload, &depth); err != nil {
			return fmt.Errorf("feed: decode depth: %w", err)
		}
		depth.Instrument = inst
		return g.cache.SetDepth(ctx, depth)
	case "quote":
		var quote domain.Quote
		if err := json.Unmarshal(frame.Payload, &quote); err != nil {
			return fmt.Errorf("feed: decode quote: %w", err)
		}
		quote.Instrument = inst
		return g.cache.SetQuote(ctx, quote)
	}
	return nil
}

func (g *GatewayClient) reportDown(ctx context.Context, cause error) {
	payload, _ := json.Marshal(domain.ServiceStatus{Available: false, Message: "gateway disconnected"})
	for _, exchange := range g.cfg.Exchanges {
		if err := g.bus.Publish(ctx, domain.StatusTopic(exchange), payload); err != nil && !errors.Is(err, context.Canceled) {
			g.logger.WarnContext(ctx, "status publish failed",
				slog.String("exchange", exchange),
				slog.String("error", err.Error()),
				slog.String("cause", errString(cause)),
			)
		}
	}
}

// parseMarketTopic splits "md.<kind>.<exchange>.<symbol>". Quote symbols are
// upper cased on the wire and may carry a slash ("USD/BRL"); the cache keys
// them the way the algos name their instruments.
func parseMarketTopic(topic string) (string, domain.Instrument, bool) {
	parts := strings.SplitN(topic, ".", 4)
	if len(parts) != 4 || parts[0] != "md" || parts[2] == "" || parts[3] == "" {
		return "", domain.Instrument{}, false
	}
	symbol := strings.ToLower(strings.ReplaceAll(parts[3], "/", ""))
	return parts[1], domain.Instrument{Exchange: parts[2], Symbol: symbol}, true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
