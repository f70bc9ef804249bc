package config

import "time"

type ClientConfig interface {
	GetHTTPTimeout() time.Duration
	GetHandshakeTimeout() time.Duration
	GetReconnectDelay() time.Duration
}

type Client struct{}

var _ ClientConfig = Client{}

func (Client) GetHTTPTimeout() time.Duration {
	return getDuration("HTTP_TIMEOUT", 15*time.Second)
}

func (Client) GetHandshakeTimeout() time.Duration {
	return getDuration("REALTIME_HANDSHAKE_TIMEOUT", 10*time.Second)
}

func (Client) GetReconnectDelay() time.Duration {
	return getDuration("REALTIME_RECONNECT_DELAY", 5*time.Second)
}

func getDuration(envVar string, defaultValue time.Duration) time.Duration {
	raw := GetEnv(envVar, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}
