// Package progress aggregates per-resource contributions toward a staged
// construction objective into a completion fraction and a stage.
package progress

import (
	"math"

	"github.com/hexrealm/projector/internal/util"
	"github.com/hexrealm/projector/pkg/core"
)

const (
	DefaultPrecision      = 1000
	DefaultHalfThreshold  = 0.5
	DefaultFinalThreshold = 1.0
	DefaultEpsilon        = 1e-10
)

// Cost is the requirement for one resource.
type Cost struct {
	Resource core.ResourceID `json:"resource" yaml:"resource"`
	Required float64         `json:"required" yaml:"required"` // display units
	Rarity   float64         `json:"rarity" yaml:"rarity"`
}

// Schedule lists the resources an objective needs, in display order.
type Schedule []Cost

// TotalContributable is the sum of required amount times rarity.
func (s Schedule) TotalContributable() float64 {
	var total float64
	for _, c := range s {
		total += c.Required * c.Rarity
	}
	return total
}

// Record is one raw fixed-point contribution.
type Record struct {
	Resource core.ResourceID
	Amount   uint64
}

// Config controls the aggregation.
type Config struct {
	Precision      uint64
	HalfThreshold  float64
	FinalThreshold float64
	Epsilon        float64
	// TotalContributable overrides Schedule.TotalContributable when positive.
	TotalContributable float64
}

// DefaultConfig returns the standard thresholds and precision.
func DefaultConfig() Config {
	return Config{
		Precision:      DefaultPrecision,
		HalfThreshold:  DefaultHalfThreshold,
		FinalThreshold: DefaultFinalThreshold,
		Epsilon:        DefaultEpsilon,
	}
}

// Result is the outcome of one aggregation.
type Result struct {
	Resources []core.ResourceProgress
	Fraction  float64
	Stage     core.Stage
}

// Aggregator folds progress records against a fixed schedule. It holds no
// mutable state and is safe for concurrent use.
type Aggregator struct {
	schedule Schedule
	cfg      Config
	total    float64
}

// NewAggregator creates an aggregator. Zero config fields take their defaults.
func NewAggregator(schedule Schedule, cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.Precision == 0 {
		cfg.Precision = def.Precision
	}
	if cfg.HalfThreshold == 0 {
		cfg.HalfThreshold = def.HalfThreshold
	}
	if cfg.FinalThreshold == 0 {
		cfg.FinalThreshold = def.FinalThreshold
	}
	if cfg.Epsilon == 0 {
		cfg.Epsilon = def.Epsilon
	}

	total := cfg.TotalContributable
	if total <= 0 {
		total = schedule.TotalContributable()
	}
	return &Aggregator{
		schedule: append(Schedule(nil), schedule...),
		cfg:      cfg,
		total:    total,
	}
}

// Schedule returns a copy of the cost schedule.
func (a *Aggregator) Schedule() Schedule {
	return append(Schedule(nil), a.schedule...)
}

// Config returns the effective configuration.
func (a *Aggregator) Config() Config {
	return a.cfg
}

// Aggregate computes the per-resource breakdown, the completion fraction and
// the stage. Records for resources outside the schedule are ignored; when a
// resource has several records the first one counts.
func (a *Aggregator) Aggregate(records []Record) Result {
	res := Result{Resources: make([]core.ResourceProgress, 0, len(a.schedule))}

	for _, cost := range a.schedule {
		var raw uint64
		for _, r := range records {
			if r.Resource == cost.Resource {
				raw = r.Amount
				break
			}
		}

		amount := util.DivideByPrecision(raw, a.cfg.Precision)
		pct := 0
		if cost.Required > 0 {
			pct = int(math.Floor(amount / cost.Required * 100))
		}
		var remaining uint64
		if required := util.MultiplyByPrecision(cost.Required, a.cfg.Precision); raw < required {
			remaining = required - raw
		}
		res.Resources = append(res.Resources, core.ResourceProgress{
			Resource:   cost.Resource,
			Amount:     amount,
			Percentage: pct,
			CostNeeded: cost.Required,
			Remaining:  remaining,
		})

		if a.total > 0 {
			res.Fraction += amount * cost.Rarity / a.total
		}
	}

	res.Fraction = a.normalize(res.Fraction)
	res.Stage = a.Stage(res.Fraction)
	return res
}

func (a *Aggregator) normalize(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	if math.Abs(f-1) < a.cfg.Epsilon {
		f = 1
	}
	return math.Max(0, math.Min(1, f))
}

// Stage maps a completion fraction to a construction stage.
func (a *Aggregator) Stage(fraction float64) core.Stage {
	switch {
	case fraction >= a.cfg.FinalThreshold:
		return core.Stage3
	case fraction >= a.cfg.HalfThreshold:
		return core.Stage2
	default:
		return core.Stage1
	}
}
