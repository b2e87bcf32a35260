package geo

import (
	"errors"
	"math"
	"strconv"
	"strings"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/hexrealm/projector/pkg/core"
)

// HEX GRID
// Contract coordinates are unsigned and centred on FeltCenter. Rendering works in
// normalized (signed) coordinates, laid out pointy-top with odd rows shifted half a
// hex toward the origin column.

// FeltCenter is the contract coordinate of the world origin.
const FeltCenter uint32 = 2147483646

// HexSize is the hex radius in world units.
const HexSize = 1.0

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// Normalized is a hex cell relative to the world origin.
type Normalized struct {
	Col int64
	Row int64
}

// Normalize converts contract coordinates to normalized ones.
func Normalize(h core.HexPosition) Normalized {
	return Normalized{
		Col: int64(h.Col) - int64(FeltCenter),
		Row: int64(h.Row) - int64(FeltCenter),
	}
}

// Contract converts normalized coordinates back to contract ones.
func (n Normalized) Contract() core.HexPosition {
	return core.HexPosition{
		Col: uint32(n.Col + int64(FeltCenter)),
		Row: uint32(n.Row + int64(FeltCenter)),
	}
}

// WorldPoint returns the centre of a hex on the world plane.
func WorldPoint(h core.HexPosition) geom.Point {
	n := Normalize(h)
	width := math.Sqrt(3) * HexSize
	vert := 2 * HexSize * 0.75

	x := float64(n.Col) * width
	if n.Row%2 != 0 {
		x -= width / 2
	}
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: float64(n.Row) * vert},
		Type: geom.DimXY,
	})
}

// WorldDistance is the straight-line distance between two hex centres.
func WorldDistance(a, b core.HexPosition) float64 {
	d, ok := geom.Distance(WorldPoint(a).AsGeometry(), WorldPoint(b).AsGeometry())
	if !ok {
		return math.Inf(1)
	}
	return d
}

// Distance is the number of hex steps between two cells.
func Distance(a, b core.HexPosition) int64 {
	aq, ar := cube(Normalize(a))
	bq, br := cube(Normalize(b))
	dq, dr := aq-bq, ar-br
	return (abs(dq) + abs(dr) + abs(dq+dr)) / 2
}

// cube returns the axial (q, r) of an offset cell.
func cube(n Normalized) (int64, int64) {
	return n.Col - (n.Row+(n.Row&1))/2, n.Row
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// ParseHex parses a "col,row" string of contract coordinates.
func ParseHex(coords string) (core.HexPosition, error) {
	parts := strings.Split(coords, ",")
	if len(parts) != 2 {
		return core.HexPosition{}, ErrInvalidCoordinates
	}
	col, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return core.HexPosition{}, ErrInvalidCoordinates
	}
	row, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 32)
	if err != nil {
		return core.HexPosition{}, ErrInvalidCoordinates
	}
	return core.HexPosition{Col: uint32(col), Row: uint32(row)}, nil
}
