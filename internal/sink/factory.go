// internal/sink/factory.go
package sink

import (
	"log/slog"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hexrealm/projector/internal/config"
	"github.com/hexrealm/projector/internal/sink/influx"
	"github.com/hexrealm/projector/internal/sink/memory"
	"github.com/hexrealm/projector/internal/sink/websocket"
)

// Build assembles the configured sinks. The in-memory scene is always
// present and returned separately so callers can query it.
func Build(s config.Settings, logger *slog.Logger, zl zerolog.Logger) (Multi, *memory.Scene) {
	scene := memory.New()
	sinks := Multi{scene}
	logger.Info("Memory sink initialized")

	if s.Websocket.Enabled {
		url := httpToWS(s.Websocket.URL)
		sinks = append(sinks, websocket.New(websocket.Config{
			URL:       url,
			Secret:    s.Websocket.Secret,
			Precision: s.Precision,
			Logger:    logger,
		}))
		logger.Info("WebSocket sink initialized", "url", url)
	}

	if s.Influx.Enabled {
		sinks = append(sinks, influx.New(influx.Config{
			URL:           s.Influx.URL,
			Token:         s.Influx.Token,
			Org:           s.Influx.Org,
			Bucket:        s.Influx.Bucket,
			BackupPath:    s.Influx.BackupPath,
			FlushInterval: s.Influx.FlushInterval,
		}, zl))
		logger.Info("InfluxDB sink initialized", "url", s.Influx.URL, "bucket", s.Influx.Bucket)
	}

	return sinks, scene
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}
