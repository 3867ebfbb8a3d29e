package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/domain"
)

type chanSource struct {
	ch chan domain.Message
}

func (s chanSource) SubscribeMessages(context.Context, string) (<-chan domain.Message, error) {
	return s.ch, nil
}

func TestMatchChannel(t *testing.T) {
	tests := []struct {
		pattern, channel string
		want             bool
	}{
		{"algos.*", "algos.foxbit-otc.state.3", true},
		{"algos.foxbit-otc.*", "algos.btc-usd-arbitrage-taker.state.1", false},
		{"otc.quote.3", "otc.quote.3", true},
		{"otc.quote.?", "otc.quote.4", true},
		{"otc.quote.3", "otc.quote.31", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchChannel(tt.pattern, tt.channel), "%s ~ %s", tt.pattern, tt.channel)
	}
}

func TestHub_Forwards(t *testing.T) {
	source := chanSource{ch: make(chan domain.Message, 4)}
	hub := NewHub(source, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Mode:     "engine",
		Channels: []string{"algos.*"},
		Running:  func() int { return 1 },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var status envelope
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "hub_status", status.Type)

	source.ch <- domain.Message{Channel: "algos.foxbit-otc.state.3", Payload: []byte(`{"to":"quote"}`)}

	var event envelope
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "event", event.Type)
	assert.Equal(t, "algos.foxbit-otc.state.3", event.Channel)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, "quote", payload["to"])
}
