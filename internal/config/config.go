package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/internal/progress"
	"github.com/hexrealm/projector/pkg/core"
)

// FileName is the config file looked up in the config directory.
const FileName = "projector.cfg.json"

var (
	// ErrInvalidThresholds is returned when stage thresholds are out of order or range.
	ErrInvalidThresholds = errors.New("invalid stage thresholds")
	// ErrInvalidPrecision is returned for a zero resource precision.
	ErrInvalidPrecision = errors.New("resource precision must be positive")
	// ErrInvalidSchedule is returned for a malformed cost schedule.
	ErrInvalidSchedule = errors.New("invalid cost schedule")
)

// ProgressConfig holds hyperstructure aggregation settings
type ProgressConfig struct {
	HalfThreshold      float64         `json:"halfThreshold" mapstructure:"halfThreshold"`
	FinalThreshold     float64         `json:"finalThreshold" mapstructure:"finalThreshold"`
	Epsilon            float64         `json:"epsilon" mapstructure:"epsilon"`
	TotalContributable float64         `json:"totalContributable" mapstructure:"totalContributable"`
	Stageable          []string        `json:"stageable" mapstructure:"stageable"`
	CostFile           string          `json:"costFile" mapstructure:"costFile"`
	Costs              []progress.Cost `json:"costs" mapstructure:"costs"`
}

// DispatchConfig holds per-subscription dispatcher settings
type DispatchConfig struct {
	BufferSize int  `json:"bufferSize" mapstructure:"bufferSize"`
	Blocking   bool `json:"blocking" mapstructure:"blocking"`
	Logged     bool `json:"logged" mapstructure:"logged"`
}

// FeedConfig holds component feed settings
type FeedConfig struct {
	Path     string `json:"path" mapstructure:"path"`
	Validate bool   `json:"validate" mapstructure:"validate"`
}

// GraylogConfig holds GELF log output settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// OTelConfig holds OpenTelemetry log and metric export settings
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB sink settings
type InfluxConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	URL           string        `json:"url" mapstructure:"url"`
	Token         string        `json:"token" mapstructure:"token"`
	Org           string        `json:"org" mapstructure:"org"`
	Bucket        string        `json:"bucket" mapstructure:"bucket"`
	BackupPath    string        `json:"backupPath" mapstructure:"backupPath"`
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
}

// WebsocketConfig holds websocket sink settings
type WebsocketConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// MonitorConfig holds status file settings
type MonitorConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// Settings is the resolved configuration. It is a plain value; nothing
// reads viper after Load returns.
type Settings struct {
	LogLevel  string          `json:"logLevel" mapstructure:"logLevel"`
	LogsDir   string          `json:"logsDir" mapstructure:"logsDir"`
	Precision uint64          `json:"precision" mapstructure:"precision"`
	Replay    string          `json:"replay" mapstructure:"replay"`
	Progress  ProgressConfig  `json:"progress" mapstructure:"progress"`
	Dispatch  DispatchConfig  `json:"dispatch" mapstructure:"dispatch"`
	Feed      FeedConfig      `json:"feed" mapstructure:"feed"`
	Graylog   GraylogConfig   `json:"graylog" mapstructure:"graylog"`
	OTel      OTelConfig      `json:"otel" mapstructure:"otel"`
	Influx    InfluxConfig    `json:"influx" mapstructure:"influx"`
	Websocket WebsocketConfig `json:"websocket" mapstructure:"websocket"`
	Monitor   MonitorConfig   `json:"monitor" mapstructure:"monitor"`
}

// DefaultCosts is the hyperstructure schedule used when none is configured.
var DefaultCosts = []progress.Cost{
	{Resource: 1, Required: 500, Rarity: 1},    // stone
	{Resource: 3, Required: 500, Rarity: 1},    // wood
	{Resource: 4, Required: 300, Rarity: 1.5},  // copper
	{Resource: 7, Required: 250, Rarity: 2},    // gold
	{Resource: 11, Required: 150, Rarity: 3.5}, // diamonds
	{Resource: 22, Required: 50, Rarity: 10},   // dragonhide
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"log-level": "logLevel",
	"logs-dir":  "logsDir",
	"feed":      "feed.path",
	"validate":  "feed.validate",
	"replay":    "replay",
	"costs":     "progress.costFile",
	"ws-url":    "websocket.url",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("logsDir", "./logs")
	v.SetDefault("precision", progress.DefaultPrecision)
	v.SetDefault("replay", ecs.ReplayExisting.String())

	v.SetDefault("progress.halfThreshold", progress.DefaultHalfThreshold)
	v.SetDefault("progress.finalThreshold", progress.DefaultFinalThreshold)
	v.SetDefault("progress.epsilon", progress.DefaultEpsilon)
	v.SetDefault("progress.totalContributable", 0)
	v.SetDefault("progress.stageable", []string{core.StructureHyperstructure.String()})
	v.SetDefault("progress.costFile", "")

	v.SetDefault("dispatch.bufferSize", 0)
	v.SetDefault("dispatch.blocking", false)
	v.SetDefault("dispatch.logged", false)

	v.SetDefault("feed.path", "")
	v.SetDefault("feed.validate", true)

	v.SetDefault("graylog.enabled", false)
	v.SetDefault("graylog.address", "localhost:12201")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.serviceName", "hexrealm-projector")
	v.SetDefault("otel.batchTimeout", "5s")
	v.SetDefault("otel.metricInterval", "10s")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.insecure", true)

	v.SetDefault("influx.enabled", false)
	v.SetDefault("influx.url", "http://localhost:8086")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "hexrealm")
	v.SetDefault("influx.bucket", "projection")
	v.SetDefault("influx.backupPath", "")
	v.SetDefault("influx.flushInterval", "1s")

	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.url", "ws://localhost:5000/scene")
	v.SetDefault("websocket.secret", "")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", "1s")
}

// Load reads configuration from the JSON file in configDir (optional),
// PROJECTOR_* environment variables and the given flags, in increasing
// priority. flags may be nil.
func Load(configDir string, flags *pflag.FlagSet) (Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PROJECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Settings{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if configDir != "" {
		v.SetConfigName(FileName)
		v.SetConfigType("json")
		v.AddConfigPath(configDir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Settings{}, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("error decoding config: %w", err)
	}
	if len(s.Progress.Costs) == 0 && s.Progress.CostFile == "" {
		s.Progress.Costs = append([]progress.Cost(nil), DefaultCosts...)
	}
	return s, s.Validate()
}

// Validate checks the settings for values the projections cannot work with.
func (s Settings) Validate() error {
	if s.Precision == 0 {
		return ErrInvalidPrecision
	}
	p := s.Progress
	if p.HalfThreshold <= 0 || p.FinalThreshold > 1 || p.HalfThreshold >= p.FinalThreshold {
		return fmt.Errorf("%w: half=%v final=%v", ErrInvalidThresholds, p.HalfThreshold, p.FinalThreshold)
	}
	if p.Epsilon < 0 {
		return fmt.Errorf("%w: negative epsilon", ErrInvalidThresholds)
	}
	if _, err := s.ReplayMode(); err != nil {
		return err
	}
	for _, name := range p.Stageable {
		if core.ParseStructureType(name) == core.StructureNone {
			return fmt.Errorf("unknown stageable structure type %q", name)
		}
	}
	return validateCosts(p.Costs)
}

func validateCosts(costs []progress.Cost) error {
	seen := make(map[core.ResourceID]bool, len(costs))
	for _, c := range costs {
		if seen[c.Resource] {
			return fmt.Errorf("%w: resource %d listed twice", ErrInvalidSchedule, c.Resource)
		}
		seen[c.Resource] = true
		if c.Required < 0 || c.Rarity < 0 {
			return fmt.Errorf("%w: resource %d has negative cost", ErrInvalidSchedule, c.Resource)
		}
	}
	return nil
}

// ReplayMode parses the default replay mode.
func (s Settings) ReplayMode() (ecs.ReplayMode, error) {
	switch strings.ToLower(s.Replay) {
	case "", ecs.ReplayExisting.String():
		return ecs.ReplayExisting, nil
	case ecs.ChangesOnly.String():
		return ecs.ChangesOnly, nil
	}
	return ecs.ReplayExisting, fmt.Errorf("unknown replay mode %q", s.Replay)
}

// StageableTypes returns the structure categories that report stages.
func (s Settings) StageableTypes() []core.StructureType {
	out := make([]core.StructureType, 0, len(s.Progress.Stageable))
	for _, name := range s.Progress.Stageable {
		out = append(out, core.ParseStructureType(name))
	}
	return out
}

// Schedule returns the hyperstructure cost schedule, from the cost file
// when one is configured.
func (s Settings) Schedule() (progress.Schedule, error) {
	if s.Progress.CostFile != "" {
		return LoadCostSchedule(s.Progress.CostFile)
	}
	return progress.Schedule(append([]progress.Cost(nil), s.Progress.Costs...)), nil
}

// Aggregation returns the aggregator configuration.
func (s Settings) Aggregation() progress.Config {
	return progress.Config{
		Precision:          s.Precision,
		HalfThreshold:      s.Progress.HalfThreshold,
		FinalThreshold:     s.Progress.FinalThreshold,
		Epsilon:            s.Progress.Epsilon,
		TotalContributable: s.Progress.TotalContributable,
	}
}

type costFile struct {
	Costs []progress.Cost `yaml:"costs"`
}

// LoadCostSchedule reads a YAML cost table:
//
//	costs:
//	  - {resource: 1, required: 500, rarity: 1}
func LoadCostSchedule(path string) (progress.Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read cost schedule: %w", err)
	}
	var f costFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
	}
	if len(f.Costs) == 0 {
		return nil, fmt.Errorf("%w: no costs in %s", ErrInvalidSchedule, path)
	}
	if err := validateCosts(f.Costs); err != nil {
		return nil, err
	}
	return progress.Schedule(f.Costs), nil
}
