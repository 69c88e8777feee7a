package telemetry

import (
	"fmt"
	"strings"
	"time"
)

const (
	envEndpoint    = "RESTITCH_OTEL_ENDPOINT"
	envInsecure    = "RESTITCH_OTEL_INSECURE"
	envService     = "RESTITCH_OTEL_SERVICE"
	envDialTimeout = "RESTITCH_OTEL_DIAL_TIMEOUT"
	envHeaders     = "RESTITCH_OTEL_HEADERS"
)

const defaultServiceName = "restitch"

type Config struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
	DialTimeout time.Duration
	Headers     map[string]string
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// ConfigFromEnv reads the exporter configuration from the environment. The
// getenv indirection keeps it testable.
func ConfigFromEnv(getenv func(string) string) Config {
	cfg := Config{
		Endpoint:    strings.TrimSpace(getenv(envEndpoint)),
		ServiceName: strings.TrimSpace(getenv(envService)),
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}
	switch strings.ToLower(strings.TrimSpace(getenv(envInsecure))) {
	case "1", "true", "yes", "on":
		cfg.Insecure = true
	}
	if raw := strings.TrimSpace(getenv(envDialTimeout)); raw != "" {
		if dur, err := time.ParseDuration(raw); err == nil && dur > 0 {
			cfg.DialTimeout = dur
		}
	}
	if raw := strings.TrimSpace(getenv(envHeaders)); raw != "" {
		if headers, err := ParseHeaders(raw); err == nil {
			cfg.Headers = headers
		}
	}
	return cfg
}

// ParseHeaders parses "key=value, key2=value2" into a header map. Empty
// values are allowed; empty keys are not.
func ParseHeaders(raw string) (map[string]string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	headers := make(map[string]string)
	for _, pair := range strings.Split(trimmed, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		idx := strings.Index(pair, "=")
		if idx <= 0 {
			return nil, fmt.Errorf("telemetry: malformed header pair %q", pair)
		}
		key := strings.TrimSpace(pair[:idx])
		value := strings.TrimSpace(pair[idx+1:])
		if key == "" {
			return nil, fmt.Errorf("telemetry: malformed header pair %q", pair)
		}
		headers[key] = value
	}
	return headers, nil
}
