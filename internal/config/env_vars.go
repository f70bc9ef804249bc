package config

import (
	"os"
	"strings"
)

const (
	appNameVar     = "APP_NAME"
	apiBaseURLVar  = "API_BASE_URL"
	realtimeURLVar = "REALTIME_URL"
	folderEnvVar   = "DATA_FOLDER"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Portal Client")
}

// GetAPIBaseURL returns the base URL of the portal REST API
// (e.g. "https://portal.example.com/api")
func (EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiBaseURLVar, "http://localhost:8080/api")
}

// GetRealtimeURL returns the websocket endpoint for the realtime channel.
// An http(s) URL is accepted and rewritten to ws(s).
func (EnvVars) GetRealtimeURL() string {
	url := GetEnv(realtimeURLVar, "ws://localhost:8080/realtime")
	if strings.HasPrefix(url, "http://") {
		url = "ws://" + strings.TrimPrefix(url, "http://")
	} else if strings.HasPrefix(url, "https://") {
		url = "wss://" + strings.TrimPrefix(url, "https://")
	}
	return url
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
