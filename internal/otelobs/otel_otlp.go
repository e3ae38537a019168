//go:build otelotlp

package otelobs

import (
	"context"
	"os"

	"fraudshield/internal/logx"
)

// InitTracer wires the OTLP HTTP exporter through InitTracerWithConfig.
// Tracing stays disabled when no endpoint is configured, falling back to the
// standard OTEL_EXPORTER_OTLP_ENDPOINT variable.
func InitTracer(serviceName, endpoint string) func(context.Context) error {
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		logx.Infof("otel: no endpoint configured; tracing disabled for %s", serviceName)
		return func(context.Context) error { return nil }
	}
	shutdown, err := InitTracerWithConfig(TracerConfig{
		ServiceName: serviceName,
		Endpoint:    endpoint,
	})
	if err != nil {
		logx.Errorf("otel: exporter init failed: %v", err)
		return func(context.Context) error { return nil }
	}
	return shutdown
}
