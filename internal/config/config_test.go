package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/novalearn/go-portal-client/internal/config"
)

func TestDefaults(t *testing.T) {
	c := config.New()

	require.Equal(t, "Portal Client", c.GetAppName())
	require.Equal(t, "http://localhost:8080/api", c.GetAPIBaseURL())
	require.Equal(t, "ws://localhost:8080/realtime", c.GetRealtimeURL())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, 15*time.Second, c.GetHTTPTimeout())
	require.Equal(t, 5*time.Second, c.GetReconnectDelay())
}

func TestRealtimeURLSchemeRewrite(t *testing.T) {
	c := config.New()

	t.Setenv("REALTIME_URL", "https://portal.example.com/realtime")
	require.Equal(t, "wss://portal.example.com/realtime", c.GetRealtimeURL())

	t.Setenv("REALTIME_URL", "http://portal.example.com/realtime")
	require.Equal(t, "ws://portal.example.com/realtime", c.GetRealtimeURL())

	t.Setenv("REALTIME_URL", "wss://portal.example.com/realtime")
	require.Equal(t, "wss://portal.example.com/realtime", c.GetRealtimeURL())
}

func TestDurationOverrides(t *testing.T) {
	c := config.New()

	t.Setenv("HTTP_TIMEOUT", "30s")
	require.Equal(t, 30*time.Second, c.GetHTTPTimeout())

	// Unparseable values fall back to the default.
	t.Setenv("HTTP_TIMEOUT", "soon")
	require.Equal(t, 15*time.Second, c.GetHTTPTimeout())
}
