package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MorpheusAIs/ponder-builders-index/pkg/config"
	"github.com/stretchr/testify/require"
)

func TestServer_Handler(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	cfg.ApplyDefaults()

	LastProcessedBlockSet(42161, 1234)
	ChainHaltedSet(42161, true)
	UpdateSystemMetrics()

	srv := httptest.NewServer(NewServer(cfg, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + cfg.Path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	require.True(t, strings.Contains(text, `stakeindex_last_processed_block{chain_id="42161"} 1234`))
	require.True(t, strings.Contains(text, `stakeindex_chain_halted{chain_id="42161"} 1`))
	require.True(t, strings.Contains(text, "stakeindex_goroutines"))
}

func TestServer_DisabledIsNoOp(t *testing.T) {
	s := NewServer(&config.MetricsConfig{}, nil)
	require.NoError(t, s.Start(t.Context()))
	require.NoError(t, s.Stop(t.Context()))
}
