package knot

import (
	"fmt"
	"os"
	"time"
)

// ClientSettings collects the tunables of one client process.
type ClientSettings struct {
	ApiUrl     string
	WsUrl      string
	AppVersion string

	// how long a pending local-only outgoing request survives a
	// snapshot merge that does not mention it. roughly one
	// snapshot-fetch interval.
	SnapshotRetention time.Duration

	TransportSettings *PlatformTransportSettings
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		ApiUrl:            "http://localhost:8080",
		WsUrl:             "ws://localhost:8080/ws",
		AppVersion:        "0.0.1",
		SnapshotRetention: 30 * time.Second,
		TransportSettings: DefaultPlatformTransportSettings(),
	}
}

func LoadClientSettings() (*ClientSettings, error) {
	return LoadClientSettingsFromEnv(os.Getenv)
}

// LoadClientSettingsFromEnv reads settings from the environment with
// an injectable getenv, so tests do not touch the process environment.
func LoadClientSettingsFromEnv(getenv func(string) string) (*ClientSettings, error) {
	settings := DefaultClientSettings()

	if apiUrl := getenv("KNOT_API_URL"); apiUrl != "" {
		settings.ApiUrl = apiUrl
	}
	if wsUrl := getenv("KNOT_WS_URL"); wsUrl != "" {
		settings.WsUrl = wsUrl
	}
	if appVersion := getenv("KNOT_APP_VERSION"); appVersion != "" {
		settings.AppVersion = appVersion
	}
	if retention := getenv("KNOT_SNAPSHOT_RETENTION"); retention != "" {
		d, err := time.ParseDuration(retention)
		if err != nil {
			return nil, fmt.Errorf("KNOT_SNAPSHOT_RETENTION: %w", err)
		}
		settings.SnapshotRetention = d
	}
	if reconnect := getenv("KNOT_RECONNECT_TIMEOUT"); reconnect != "" {
		d, err := time.ParseDuration(reconnect)
		if err != nil {
			return nil, fmt.Errorf("KNOT_RECONNECT_TIMEOUT: %w", err)
		}
		settings.TransportSettings.ReconnectTimeout = d
	}

	return settings, nil
}
