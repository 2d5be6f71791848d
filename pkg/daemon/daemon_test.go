package daemon

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusci/argus/pkg/api"
	"github.com/argusci/argus/pkg/client"
	"github.com/argusci/argus/pkg/config"
)

const minimalConfig = "version = \"1\"\n\n[project]\nname = \"demo\"\n\n[service]\nname = \"api\"\n\n[service.build]\ncontext = \".\"\n\n[service.container]\nname = \"api\"\n"

func writeMinimalConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "e2e.toml")
	require.NoError(t, os.WriteFile(path, []byte(minimalConfig), 0644))
	return path
}

func newTestDaemon(t *testing.T) (*config.EnvConfig, func()) {
	t.Helper()

	cfg := &config.EnvConfig{}
	cfg.Daemon.Listen = "127.0.0.1:0"
	require.NoError(t, cfg.Load())

	srv, err := New(cfg)
	require.NoError(t, err)

	cfg.Client.Endpoint = "http://" + srv.Addr()

	go func() {
		if err := srv.Serve(); err != nil && err != http.ErrServerClosed {
			t.Logf("daemon serve: %v", err)
		}
	}()

	return cfg, func() {
		_ = srv.Shutdown(context.Background())
	}
}

func TestInitThenStatusRoundTripsOverHTTP(t *testing.T) {
	cfg, stop := newTestDaemon(t)
	defer stop()

	time.Sleep(20 * time.Millisecond)

	cl := client.New(cfg)

	initResp, err := cl.Init(api.InitRequest{ProjectPath: "/proj", ConfigPath: writeMinimalConfig(t)})
	require.NoError(t, err)
	assert.NotEmpty(t, initResp.SessionID)

	statusResp, err := cl.Status(api.StatusRequest{ProjectPath: "/proj"})
	require.NoError(t, err)
	assert.Equal(t, "initialized", string(statusResp.State))
}

func TestInitRejectsMissingProjectPathOverHTTP(t *testing.T) {
	cfg, stop := newTestDaemon(t)
	defer stop()

	time.Sleep(20 * time.Millisecond)

	cl := client.New(cfg)
	_, err := cl.Init(api.InitRequest{})
	require.Error(t, err)
}
