//go:build !otelotlp

package otelobs

import (
	"context"
)

// InitTracer is a no-op by default to keep builds lightweight. Build with
// -tags otelotlp to wire the OTLP exporter via InitTracerWithConfig.
func InitTracer(serviceName, endpoint string) func(context.Context) error {
	return func(context.Context) error { return nil }
}
