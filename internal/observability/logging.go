// Package observability wires the token manager's ambient logging and
// metrics stack: structured logs via log/slog bridged into OpenTelemetry,
// and prometheus counters/histograms for the renewal and expiration
// lifecycle, the same shape of stack the proxy this repository grew out
// of instruments its request pipeline with.
package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// LogConfig configures log export and minimum severity.
type LogConfig struct {
	Level        string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// NewLogger builds a slog.Logger backed by an OpenTelemetry log pipeline:
// stdout in the absence of an OTLPEndpoint, OTLP/HTTP otherwise, with a
// minsev.SeverityVar gate so the minimum level can be reconfigured at
// runtime without rebuilding the pipeline. The returned shutdown func
// flushes and closes the underlying exporter; callers should defer it.
func NewLogger(ctx context.Context, cfg LogConfig) (*slog.Logger, func(context.Context) error, error) {
	exporter, err := newExporter(ctx, cfg.OTLPEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("observability: creating log exporter: %w", err)
	}

	sevVar := &minsev.SeverityVar{}
	sevVar.Set(minsev.Severity(parseSeverity(cfg.Level)))
	gated := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), sevVar)

	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(gated))

	handler := otelslog.NewHandler("tokenmanager", otelslog.WithLoggerProvider(provider))
	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, provider.Shutdown, nil
}

func newExporter(ctx context.Context, otlpEndpoint string) (sdklog.Exporter, error) {
	if otlpEndpoint == "" {
		return stdoutlog.New()
	}
	return otlploghttp.New(ctx, otlploghttp.WithEndpoint(otlpEndpoint))
}

func parseSeverity(level string) otellog.Severity {
	switch level {
	case "debug":
		return otellog.SeverityDebug
	case "warn":
		return otellog.SeverityWarn
	case "error":
		return otellog.SeverityError
	default:
		return otellog.SeverityInfo
	}
}
