package progress

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexrealm/projector/pkg/core"
)

const (
	resA core.ResourceID = 1
	resB core.ResourceID = 2
)

func twoResourceSchedule() Schedule {
	return Schedule{
		{Resource: resA, Required: 100, Rarity: 1},
		{Resource: resB, Required: 100, Rarity: 3},
	}
}

func TestAggregate_WeightedFraction(t *testing.T) {
	agg := NewAggregator(twoResourceSchedule(), Config{})

	res := agg.Aggregate([]Record{{Resource: resA, Amount: 100 * DefaultPrecision}})

	assert.InDelta(t, 0.25, res.Fraction, 1e-12)
	assert.Equal(t, core.Stage1, res.Stage)
	require.Len(t, res.Resources, 2)
	assert.Equal(t, core.ResourceProgress{Resource: resA, Amount: 100, Percentage: 100, CostNeeded: 100, Remaining: 0}, res.Resources[0])
	assert.Equal(t, core.ResourceProgress{Resource: resB, Amount: 0, Percentage: 0, CostNeeded: 100, Remaining: 100 * DefaultPrecision}, res.Resources[1])
}

func TestAggregate_FirstRecordWins(t *testing.T) {
	agg := NewAggregator(twoResourceSchedule(), Config{})

	res := agg.Aggregate([]Record{
		{Resource: resB, Amount: 50 * DefaultPrecision},
		{Resource: resB, Amount: 100 * DefaultPrecision},
	})

	assert.Equal(t, 50, res.Resources[1].Percentage)
	assert.InDelta(t, 50.0*3/400, res.Fraction, 1e-12)
}

func TestAggregate_IgnoresUnscheduledResources(t *testing.T) {
	agg := NewAggregator(twoResourceSchedule(), Config{})

	res := agg.Aggregate([]Record{{Resource: 99, Amount: 1_000_000 * DefaultPrecision}})

	assert.Zero(t, res.Fraction)
	assert.Len(t, res.Resources, 2)
	for _, r := range res.Resources {
		assert.NotEqual(t, core.ResourceID(99), r.Resource)
	}
}

func TestAggregate_SnapsToComplete(t *testing.T) {
	var sched Schedule
	var records []Record
	for i := 0; i < 10; i++ {
		sched = append(sched, Cost{Resource: core.ResourceID(i + 1), Required: 1, Rarity: 1})
		records = append(records, Record{Resource: core.ResourceID(i + 1), Amount: DefaultPrecision})
	}

	// summing 0.1 ten times falls just short of 1
	var naive float64
	for i := 0; i < 10; i++ {
		naive += 0.1
	}
	require.NotEqual(t, 1.0, naive)

	res := NewAggregator(sched, Config{}).Aggregate(records)
	assert.Equal(t, 1.0, res.Fraction)
	assert.Equal(t, core.Stage3, res.Stage)
}

func TestAggregate_Clamped(t *testing.T) {
	agg := NewAggregator(twoResourceSchedule(), Config{})

	res := agg.Aggregate([]Record{
		{Resource: resA, Amount: 500 * DefaultPrecision},
		{Resource: resB, Amount: 500 * DefaultPrecision},
	})

	assert.Equal(t, 1.0, res.Fraction)
	assert.Equal(t, 500, res.Resources[0].Percentage)
}

func TestAggregate_ZeroRequirement(t *testing.T) {
	agg := NewAggregator(Schedule{{Resource: resA, Required: 0, Rarity: 1}}, Config{})

	res := agg.Aggregate([]Record{{Resource: resA, Amount: 5 * DefaultPrecision}})

	assert.Equal(t, 0, res.Resources[0].Percentage)
	assert.Zero(t, res.Fraction, "no contributable weight means no progress")
	assert.False(t, math.IsNaN(res.Fraction))
}

func TestAggregate_TotalOverride(t *testing.T) {
	agg := NewAggregator(twoResourceSchedule(), Config{TotalContributable: 200})

	res := agg.Aggregate([]Record{{Resource: resA, Amount: 100 * DefaultPrecision}})

	assert.InDelta(t, 0.5, res.Fraction, 1e-12)
	assert.Equal(t, core.Stage2, res.Stage)
}

func TestAggregate_FractionalAmounts(t *testing.T) {
	agg := NewAggregator(Schedule{{Resource: resA, Required: 3, Rarity: 1}}, Config{})

	res := agg.Aggregate([]Record{{Resource: resA, Amount: 1500}})

	assert.InDelta(t, 1.5, res.Resources[0].Amount, 1e-12)
	assert.Equal(t, 50, res.Resources[0].Percentage)
	assert.InDelta(t, 0.5, res.Fraction, 1e-12)
	assert.Equal(t, uint64(1500), res.Resources[0].Remaining)
}

func TestAggregate_RemainingSaturates(t *testing.T) {
	agg := NewAggregator(Schedule{{Resource: resA, Required: 2.5, Rarity: 1}}, Config{Precision: 10})

	over := agg.Aggregate([]Record{{Resource: resA, Amount: 40}})
	assert.Zero(t, over.Resources[0].Remaining)

	partial := agg.Aggregate([]Record{{Resource: resA, Amount: 7}})
	assert.Equal(t, uint64(18), partial.Resources[0].Remaining)
}

func TestStage_Boundaries(t *testing.T) {
	agg := NewAggregator(nil, DefaultConfig())

	tests := []struct {
		fraction float64
		want     core.Stage
	}{
		{0, core.Stage1},
		{0.5 - 1e-9, core.Stage1},
		{0.5, core.Stage2},
		{1 - 1e-9, core.Stage2},
		{1, core.Stage3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, agg.Stage(tt.fraction), "fraction %v", tt.fraction)
	}
}

func TestStage_CustomThresholds(t *testing.T) {
	agg := NewAggregator(nil, Config{HalfThreshold: 0.4, FinalThreshold: 0.9})

	tests := []struct {
		fraction float64
		want     core.Stage
	}{
		{0, core.Stage1},
		{0.4 - 1e-9, core.Stage1},
		{0.4, core.Stage2},
		{0.9 - 1e-9, core.Stage2},
		{0.9, core.Stage3},
		{1, core.Stage3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, agg.Stage(tt.fraction), "fraction %v", tt.fraction)
	}
}

func TestNewAggregator_Defaults(t *testing.T) {
	agg := NewAggregator(twoResourceSchedule(), Config{})
	assert.Equal(t, DefaultConfig(), agg.Config())

	sched := agg.Schedule()
	sched[0].Required = 1
	assert.Equal(t, 100.0, agg.Schedule()[0].Required, "schedule is copied")
}
