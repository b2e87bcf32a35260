package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/hexrealm/projector/pkg/core"
)

// Config holds InfluxDB sink configuration.
type Config struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BackupPath    string
	BatchSize     uint
	FlushInterval time.Duration
	RetentionDays int64
}

// ErrNotRunning is returned when the server answers a ping but reports
// itself not ready.
var ErrNotRunning = errors.New("influxdb is not running")

func pingError(running bool, err error) error {
	switch {
	case err != nil:
		return err
	case !running:
		return ErrNotRunning
	}
	return nil
}

// Sink writes projected events as time series points. When the server is
// unreachable at Init it falls back to a gzipped line protocol file.
type Sink struct {
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu         sync.Mutex
	client     influxdb2.Client
	writer     influxdb2_api.WriteAPI
	backup     *gzip.Writer
	backupFile *os.File
	valid      bool
}

// New creates a new InfluxDB sink.
func New(cfg Config, logger zerolog.Logger) *Sink {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 2500
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 90
	}
	return &Sink{
		cfg:    cfg,
		logger: logger.With().Str("sink", "influx").Logger(),
		now:    time.Now,
	}
}

// Init connects to InfluxDB, or opens the backup file if that fails.
func (s *Sink) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.client = influxdb2.NewClientWithOptions(
		s.cfg.URL,
		s.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(s.cfg.BatchSize).
			SetFlushInterval(uint(s.cfg.FlushInterval.Milliseconds())),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	running, err := s.client.Ping(ctx)
	if err := pingError(running, err); err != nil {
		s.valid = false
		s.client.Close()
		s.client = nil
		if s.cfg.BackupPath == "" {
			return fmt.Errorf("influxdb unreachable and no backup path configured: %w", err)
		}
		s.logger.Info().Str("backupPath", s.cfg.BackupPath).
			Msg("Failed to reach InfluxDB, writing to backup file")

		file, err := os.OpenFile(s.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("error creating backup file: %w", err)
		}
		s.backupFile = file
		s.backup = gzip.NewWriter(file)
		return nil
	}

	if err := s.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}
	s.writer = s.client.WriteAPI(s.cfg.Org, s.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			s.logger.Error().Err(writeErr).Str("bucket", s.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(s.writer.Errors())

	s.valid = true
	s.logger.Info().Str("bucket", s.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (s *Sink) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := s.client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, s.cfg.Org)
	if err != nil {
		s.logger.Info().Str("org", s.cfg.Org).Msg("Organization not found, creating")
		org, err = orgs.CreateOrganizationWithName(ctx, s.cfg.Org)
		if err != nil {
			s.logger.Error().Err(err).Str("org", s.cfg.Org).Msg("Error creating organization")
			return fmt.Errorf("create organization %q: %w", s.cfg.Org, err)
		}
	}

	if _, err := s.client.BucketsAPI().FindBucketByName(ctx, s.cfg.Bucket); err != nil {
		s.logger.Info().Str("bucket", s.cfg.Bucket).Msg("Bucket not found, creating")
		rule := domain.RetentionRuleTypeExpire
		_, err = s.client.BucketsAPI().CreateBucketWithName(ctx, org, s.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: s.cfg.RetentionDays * 24 * 60 * 60,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("bucket", s.cfg.Bucket).Msg("Error creating bucket")
			return fmt.Errorf("create bucket %q: %w", s.cfg.Bucket, err)
		}
	}
	return nil
}

// Close flushes pending points and releases the client and backup file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.writer != nil {
		s.writer.Flush()
		s.writer = nil
	}
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
	if s.backup != nil {
		errs = append(errs, s.backup.Close(), s.backupFile.Close())
		s.backup, s.backupFile = nil, nil
	}
	s.valid = false
	return errors.Join(errs...)
}

// write sends a point to InfluxDB or the backup file.
func (s *Sink) write(points ...*influxdb2_write.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		if s.valid {
			s.writer.WritePoint(p)
			continue
		}
		if s.backup == nil {
			return errors.New("influxdb sink not initialized")
		}
		line := influxdb2_write.PointToLineProtocol(p, time.Nanosecond)
		if _, err := s.backup.Write([]byte(line + "\n")); err != nil {
			return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
		}
	}
	return nil
}

func id(v core.ID) string {
	return strconv.FormatUint(uint64(v), 10)
}

func hexFields(p *influxdb2_write.Point, hex core.HexPosition) *influxdb2_write.Point {
	return p.AddField("col", int64(hex.Col)).AddField("row", int64(hex.Row))
}

func (s *Sink) RecordArmy(e core.ArmyUpdate) error {
	p := influxdb2_write.NewPointWithMeasurement("army").
		AddTag("entity_id", id(e.EntityID)).
		AddTag("owner", string(e.Owner)).
		AddField("health", e.CurrentHealth).
		AddField("battle_id", int64(e.BattleID)).
		AddField("defender", e.IsDefender).
		SetTime(s.now())
	return s.write(hexFields(p, e.HexCoords))
}

// RecordStructure writes the structure state plus one point per resource
// of its construction breakdown.
func (s *Sink) RecordStructure(e core.StructureUpdate) error {
	ts := s.now()
	points := []*influxdb2_write.Point{
		hexFields(influxdb2_write.NewPointWithMeasurement("structure").
			AddTag("entity_id", id(e.EntityID)).
			AddTag("type", e.StructureType.String()).
			AddField("stage", int64(e.Stage)).
			AddField("level", int64(e.Level)).
			AddField("completion", e.Completion).
			SetTime(ts), e.HexCoords),
	}
	for _, r := range e.Progress {
		points = append(points, influxdb2_write.NewPointWithMeasurement("structure_progress").
			AddTag("entity_id", id(e.EntityID)).
			AddTag("resource", strconv.Itoa(int(r.Resource))).
			AddField("amount", r.Amount).
			AddField("percentage", int64(r.Percentage)).
			SetTime(ts))
	}
	return s.write(points...)
}

func (s *Sink) RecordRealm(e core.RealmUpdate) error {
	p := influxdb2_write.NewPointWithMeasurement("realm").
		AddTag("entity_id", id(e.EntityID)).
		AddField("level", int64(e.Level)).
		SetTime(s.now())
	return s.write(hexFields(p, e.HexCoords))
}

func (s *Sink) RecordBattle(e core.BattleUpdate) error {
	p := influxdb2_write.NewPointWithMeasurement("battle").
		AddTag("entity_id", id(e.EntityID)).
		AddField("empty", e.IsEmpty).
		AddField("siege", e.IsSiege).
		AddField("deleted", e.Deleted).
		SetTime(s.now())
	if !e.Deleted {
		p = hexFields(p, e.HexCoords)
	}
	return s.write(p)
}

func (s *Sink) RecordTile(e core.TileUpdate) error {
	p := influxdb2_write.NewPointWithMeasurement("tile").
		AddField("explored", !e.RemoveExplored).
		SetTime(s.now())
	return s.write(hexFields(p, e.HexCoords))
}

func (s *Sink) RecordBuilding(e core.BuildingUpdate) error {
	return s.write(influxdb2_write.NewPointWithMeasurement("building").
		AddTag("outer", fmt.Sprintf("%d,%d", e.OuterCoords.Col, e.OuterCoords.Row)).
		AddTag("type", e.BuildingType).
		AddField("inner_col", int64(e.InnerCol)).
		AddField("inner_row", int64(e.InnerRow)).
		AddField("paused", e.Paused).
		SetTime(s.now()))
}
