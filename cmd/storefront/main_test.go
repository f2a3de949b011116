package main

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maisonlune/storefront/internal/infra/config"
	"github.com/maisonlune/storefront/internal/infra/persistence/memory"
	httpserver "github.com/maisonlune/storefront/internal/infra/server/http"
)

func TestResolveConfigPath(t *testing.T) {
	require.Equal(t, "config/app.yaml", resolveConfigPath(""))
	require.Equal(t, "/etc/storefront.yaml", resolveConfigPath("/etc/storefront.yaml"))
}

func TestBuildDependenciesWithoutRemoteServices(t *testing.T) {
	cfg := config.Default()
	deps, creator, err := buildDependencies(cfg, nil)
	require.NoError(t, err)
	require.Nil(t, creator)
	require.Nil(t, deps.Catalog)
	require.Nil(t, deps.Assistant)
	require.NotNil(t, deps.Demo)
	require.NotEmpty(t, deps.Demo.All())
}

func TestBuildDependenciesWithRemoteServices(t *testing.T) {
	cfg := config.Default()
	cfg.Storefront.Domain = "maison-lune.myshopify.com"
	cfg.Storefront.AccessToken = "token"
	cfg.Assistant.GatewayURL = "https://gateway.example.com/v1/chat/completions"
	cfg.Assistant.APIKey = "key"

	deps, creator, err := buildDependencies(cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, creator)
	require.NotNil(t, deps.Catalog)
	require.NotNil(t, deps.Assistant)
}

func TestPerformGracefulShutdownFlushesSessions(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	store := memory.New()
	sessions := httpserver.NewSessions(config.Default().Cart, store, nil, nil)
	_, err := sessions.Get(context.Background(), "session-1")
	require.NoError(t, err)

	performGracefulShutdown(context.Background(), logger, gracefulShutdownConfig{sessions: sessions})

	out := buf.String()
	require.True(t, strings.Contains(out, "shutdown: flushing cart sessions completed"), out)
	require.Zero(t, sessions.Len())
	require.Equal(t, 2, store.Len())
}
