package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/hexrealm/projector/internal/config"
	"github.com/hexrealm/projector/internal/dispatcher"
	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/internal/geo"
	"github.com/hexrealm/projector/internal/logging"
	"github.com/hexrealm/projector/internal/monitor"
	"github.com/hexrealm/projector/internal/parser"
	"github.com/hexrealm/projector/internal/progress"
	"github.com/hexrealm/projector/internal/projection"
	"github.com/hexrealm/projector/internal/sink"
	"github.com/hexrealm/projector/internal/sink/memory"
	"github.com/hexrealm/projector/internal/worker"
	"github.com/hexrealm/projector/pkg/core"
)

const AppName = "projector"

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	fs.String("config-dir", ".", "directory holding "+config.FileName)
	fs.String("log-level", "info", "log level (debug, info, warn, error)")
	fs.String("logs-dir", "./logs", "directory for log files")
	fs.StringP("feed", "f", "", "component feed (JSON lines, .zst allowed, - for stdin)")
	fs.Bool("validate", true, "validate feed lines against the operation schema")
	fs.String("replay", "existing", "replay mode for new subscriptions (existing, changes)")
	fs.String("costs", "", "YAML hyperstructure cost schedule")
	fs.String("ws-url", "", "scene server websocket URL")
	fs.Bool("summary", false, "print a JSON scene summary after ingesting")
	fs.String("hex", "", "focus hex as col,row: watch its buildings and report what is near it")
	fs.Int64("radius", 3, "focus radius in hex steps")
	return fs
}

// focus is the neighbourhood of one hex reported in the summary.
type focus struct {
	Hex        core.HexPosition       `json:"hex"`
	Radius     int64                  `json:"radius"`
	Armies     []core.ArmyUpdate      `json:"armies"`
	Structures []core.StructureUpdate `json:"structures"`
	Buildings  []core.BuildingUpdate  `json:"buildings"`
}

// focusOn reads the armies within radius steps of hex, and the structures
// whose centre lies within the same reach on the world plane.
func focusOn(scene *memory.Scene, hex core.HexPosition, radius int64) *focus {
	reach := float64(radius) * math.Sqrt(3) * geo.HexSize
	return &focus{
		Hex:        hex,
		Radius:     radius,
		Armies:     scene.ArmiesNear(hex, radius),
		Structures: scene.StructuresWithin(hex, reach),
		Buildings:  scene.Buildings(hex),
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	sessionStart := time.Now()

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}
	configDir, _ := fs.GetString("config-dir")
	summary, _ := fs.GetBool("summary")
	radius, _ := fs.GetInt64("radius")

	var focusHex *core.HexPosition
	if coords, _ := fs.GetString("hex"); coords != "" {
		hex, err := geo.ParseHex(coords)
		if err != nil {
			return fmt.Errorf("parse --hex %q: %w", coords, err)
		}
		focusHex = &hex
	}

	settings, err := config.Load(configDir, fs)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logs, err := setupLogging(settings, sessionStart)
	if err != nil {
		return err
	}
	defer logs.Close()
	logger := logs.manager.Logger()

	d, err := dispatcher.New(logging.NewDispatcherLogger(logs.zerolog))
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}
	logs.active = d.Active

	schedule, err := settings.Schedule()
	if err != nil {
		return fmt.Errorf("load cost schedule: %w", err)
	}
	replay, err := settings.ReplayMode()
	if err != nil {
		return err
	}

	store := ecs.NewStore()
	projections := projection.NewManager(store, d,
		progress.NewAggregator(schedule, settings.Aggregation()),
		projection.WithStageable(settings.StageableTypes()...),
		projection.WithDispatchOptions(dispatchOptions(settings.Dispatch)...),
	)

	sinks, scene := sink.Build(settings, logger, logs.zerolog)
	if err := sinks.Init(); err != nil {
		return fmt.Errorf("init sinks: %w", err)
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.Error("Failed to close sinks", "error", err)
		}
	}()

	p, err := parser.NewParser(logger, settings.Feed.Validate)
	if err != nil {
		return err
	}

	workers := worker.NewManager(worker.Dependencies{
		Store:       store,
		Projections: projections,
		Parser:      p,
		Logger:      logger,
	}, sinks)
	workers.Start(projection.WithReplay(replay))
	defer d.Close()
	defer workers.Stop()

	if settings.Monitor.Enabled {
		status := monitor.NewService(monitor.Dependencies{
			Dispatcher: d,
			Scene:      scene,
			Logger:     logger,
			StatusPath: filepath.Join(settings.LogsDir, "status.json"),
			Interval:   settings.Monitor.Interval,
		})
		status.Start()
		defer status.Stop()
	}

	if settings.Feed.Path == "" {
		return errors.New("no feed given (use --feed or feed.path)")
	}
	feed, err := parser.Open(settings.Feed.Path)
	if err != nil {
		return err
	}
	defer feed.Close()

	if focusHex != nil {
		workers.WatchHex(*focusHex, projection.WithReplay(replay))
	}

	logger.Info("Ingesting feed", "path", settings.Feed.Path, "replay", replay.String())
	stats, err := workers.Ingest(logging.ContextWith(ctx, slog.String("feed", settings.Feed.Path)), feed)
	if err != nil {
		return err
	}

	settleCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := d.Settle(settleCtx, 10*time.Millisecond); err != nil {
		logger.Warn("Projections did not settle", "error", err)
	}
	if err := logs.otel.Flush(settleCtx); err != nil {
		logger.Warn("Failed to flush telemetry", "error", err)
	}

	counts := scene.Counts()
	logger.Info("Projection complete",
		"applied", stats.Applied,
		"rejected", stats.Rejected,
		"armies", counts.Armies,
		"structures", counts.Structures,
		"battles", counts.Battles,
		"duration", time.Since(sessionStart),
	)

	var near *focus
	if focusHex != nil {
		near = focusOn(scene, *focusHex, radius)
		logger.Info("Focus hex",
			"col", near.Hex.Col,
			"row", near.Hex.Row,
			"armies", len(near.Armies),
			"structures", len(near.Structures),
			"buildings", len(near.Buildings),
		)
	}

	if summary {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Stats  worker.Stats `json:"stats"`
			Counts any          `json:"scene"`
			Focus  *focus       `json:"focus,omitempty"`
		}{stats, counts, near})
	}
	return nil
}

func dispatchOptions(c config.DispatchConfig) []dispatcher.Option {
	var opts []dispatcher.Option
	if c.BufferSize > 0 {
		opts = append(opts, dispatcher.Buffered(c.BufferSize))
	}
	if c.Blocking {
		opts = append(opts, dispatcher.Blocking())
	}
	if c.Logged {
		opts = append(opts, dispatcher.Logged())
	}
	return opts
}
