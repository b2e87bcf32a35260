package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/hexrealm/projector/internal/config"
	"github.com/hexrealm/projector/internal/logging"
	intOtel "github.com/hexrealm/projector/internal/otel"
)

// logOutputs owns everything opened for logging.
type logOutputs struct {
	manager *logging.SlogManager
	zerolog zerolog.Logger
	file    *os.File
	graylog io.Closer
	otel    *intOtel.Provider
	// active reports live subscriptions once the dispatcher exists.
	active func() int
}

func setupLogging(s config.Settings, sessionStart time.Time) (*logOutputs, error) {
	l := &logOutputs{manager: logging.NewSlogManager()}

	if err := os.MkdirAll(s.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	path := logging.LogFilePath(s.LogsDir, AppName, sessionStart)
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l.file = file

	var warnings []string

	if s.OTel.Enabled {
		l.otel, err = intOtel.New(context.Background(), intOtel.Config{
			ServiceName:    s.OTel.ServiceName,
			Session:        sessionStart.Format("20060102T150405"),
			BatchTimeout:   s.OTel.BatchTimeout,
			MetricInterval: s.OTel.MetricInterval,
			LogWriter:      file,
			Endpoint:       s.OTel.Endpoint,
			Insecure:       s.OTel.Insecure,
		})
		if err != nil {
			warnings = append(warnings, "OTel disabled: "+err.Error())
		} else {
			otel.SetMeterProvider(l.otel.MeterProvider())
		}
	}

	opts := logging.Options{
		Level:       s.LogLevel,
		File:        file,
		Provider:    l.otel.LoggerProvider(),
		ServiceName: s.OTel.ServiceName,
		Context: func() []slog.Attr {
			if l.active == nil {
				return nil
			}
			return []slog.Attr{slog.Int("subscriptions", l.active())}
		},
	}
	if s.Graylog.Enabled {
		w, err := logging.NewGraylogWriter(s.Graylog.Address, AppName)
		if err != nil {
			warnings = append(warnings, "Graylog disabled: "+err.Error())
		} else {
			l.graylog = w
			opts.Graylog = w
		}
	}

	l.manager.Setup(opts)
	l.zerolog = logging.NewZerolog(s.LogLevel, os.Stdout, file)

	logger := l.manager.Logger()
	for _, w := range warnings {
		logger.Warn(w)
	}
	logger.Info("Logging to file", "path", path)
	return l, nil
}

func (l *logOutputs) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.otel.Shutdown(ctx); err != nil {
		l.manager.Logger().Error("Failed to shut down OTel", "error", err)
	}
	if l.graylog != nil {
		l.graylog.Close()
	}
	l.file.Close()
}
