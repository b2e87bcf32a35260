// Package otel builds the OpenTelemetry pipelines: logs for the slog bridge
// and metrics for the dispatcher instruments.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ErrNoExporter is returned when neither a writer nor an endpoint is set.
var ErrNoExporter = errors.New("otel: no log writer or endpoint configured")

// DefaultMetricInterval applies when Config.MetricInterval is zero.
const DefaultMetricInterval = 10 * time.Second

// Config selects the exporters. Both destinations may be set; each gets
// logs and metrics.
type Config struct {
	ServiceName    string
	Session        string // reported as service.instance.id
	BatchTimeout   time.Duration
	MetricInterval time.Duration

	LogWriter io.Writer // pretty-printed records, usually the session log file
	Endpoint  string    // OTLP/HTTP collector
	Insecure  bool
}

// Provider owns the log and meter providers and their exporters.
type Provider struct {
	logs    *sdklog.LoggerProvider
	metrics *sdkmetric.MeterProvider
}

// New builds a provider exporting to every configured destination.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	set, err := exporters(ctx, cfg)
	if err != nil {
		return nil, err
	}

	attrs := []resource.Option{resource.WithAttributes(semconv.ServiceName(cfg.ServiceName))}
	if cfg.Session != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceInstanceID(cfg.Session)))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}

	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = DefaultMetricInterval
	}

	logOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, exp := range set.logs {
		logOpts = append(logOpts, sdklog.WithProcessor(
			sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout)),
		))
	}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, exp := range set.metrics {
		metricOpts = append(metricOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval)),
		))
	}

	return &Provider{
		logs:    sdklog.NewLoggerProvider(logOpts...),
		metrics: sdkmetric.NewMeterProvider(metricOpts...),
	}, nil
}

type exporterSet struct {
	logs    []sdklog.Exporter
	metrics []sdkmetric.Exporter
}

func exporters(ctx context.Context, cfg Config) (exporterSet, error) {
	var out exporterSet
	if cfg.LogWriter != nil {
		logs, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return out, fmt.Errorf("file log exporter: %w", err)
		}
		metrics, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.LogWriter))
		if err != nil {
			return out, fmt.Errorf("file metric exporter: %w", err)
		}
		out.logs = append(out.logs, logs)
		out.metrics = append(out.metrics, metrics)
	}
	if cfg.Endpoint != "" {
		logOpts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			logOpts = append(logOpts, otlploghttp.WithInsecure())
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
		}
		logs, err := otlploghttp.New(ctx, logOpts...)
		if err != nil {
			return out, fmt.Errorf("OTLP log exporter: %w", err)
		}
		metrics, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			return out, fmt.Errorf("OTLP metric exporter: %w", err)
		}
		out.logs = append(out.logs, logs)
		out.metrics = append(out.metrics, metrics)
	}
	if len(out.logs) == 0 {
		return out, ErrNoExporter
	}
	return out, nil
}

// LoggerProvider is handed to the otelslog bridge. Nil on a nil Provider.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	if p == nil {
		return nil
	}
	return p.logs
}

// MeterProvider is installed as the global meter provider. Nil on a nil
// Provider.
func (p *Provider) MeterProvider() *sdkmetric.MeterProvider {
	if p == nil {
		return nil
	}
	return p.metrics
}

// Flush exports pending records and a current metric snapshot.
func (p *Provider) Flush(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := errors.Join(p.logs.ForceFlush(ctx), p.metrics.ForceFlush(ctx)); err != nil {
		return fmt.Errorf("otel flush: %w", err)
	}
	return nil
}

// Shutdown flushes and stops every exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := errors.Join(p.logs.Shutdown(ctx), p.metrics.Shutdown(ctx)); err != nil {
		return fmt.Errorf("otel shutdown: %w", err)
	}
	return nil
}
