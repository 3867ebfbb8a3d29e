package app

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jthomazinho/vimana-arbitrage/internal/config"
)

func TestNewOMSClient_Secrets(t *testing.T) {
	cfg := config.Defaults().OMS
	cfg.OrdersPerSecond = 0

	client, err := newOMSClient(cfg, false, nil)
	require.NoError(t, err, "no api key means an unauthenticated gateway")
	assert.NotNil(t, client)

	cfg.APIKey = "key"
	cfg.SealedSecretPath = filepath.Join(t.TempDir(), "missing.sealed")
	cfg.SecretPassword = "pw"

	_, err = newOMSClient(cfg, false, nil)
	assert.ErrorContains(t, err, "reading sealed secret")

	client, err = newOMSClient(cfg, true, nil)
	require.NoError(t, err, "dry run tolerates a missing secret")
	assert.NotNil(t, client)
}

func TestRun_UnsupportedMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "backtest"

	a := New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := a.Run(context.Background())
	assert.ErrorContains(t, err, `unsupported mode "backtest"`)
	a.Close()
}
