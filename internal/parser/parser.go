// Package parser decodes the JSON-lines component feed into store operations.
//
// Each line is one operation:
//
//	{"op":"set","kind":"Position","entity":7,"value":{"entity_id":7,"x":10,"y":20}}
//	{"op":"remove","kind":"Battle","entity":"0x2a"}
package parser

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/internal/model"
)

//go:embed op.schema.json
var opSchema string

var (
	// ErrUnknownKind is returned for a line naming a kind outside the registry.
	ErrUnknownKind = fmt.Errorf("feed: %w", model.ErrUnknownKind)
	// ErrInvalidOp is returned for a line that is not a well-formed operation.
	ErrInvalidOp = errors.New("invalid feed operation")
)

// OpType is the operation verb.
type OpType string

const (
	OpSet    OpType = "set"
	OpRemove OpType = "remove"
)

// Op is one decoded feed operation. Component is nil for removals.
type Op struct {
	Line      int
	Type      OpType
	Kind      ecs.Kind
	Entity    ecs.Entity
	Component ecs.Component
}

type rawOp struct {
	Op     OpType          `json:"op"`
	Kind   ecs.Kind        `json:"kind"`
	Entity json.RawMessage `json:"entity"`
	Value  json.RawMessage `json:"value"`
}

// Parser turns feed lines into operations.
type Parser struct {
	logger *slog.Logger
	schema *jsonschema.Schema
}

// NewParser creates a parser. With validate set, every line is checked
// against the operation schema before decoding.
func NewParser(logger *slog.Logger, validate bool) (*Parser, error) {
	p := &Parser{logger: logger}
	if validate {
		s, err := jsonschema.CompileString("op.schema.json", opSchema)
		if err != nil {
			return nil, fmt.Errorf("compile feed schema: %w", err)
		}
		p.schema = s
	}
	return p, nil
}

// ParseLine decodes a single feed line.
func (p *Parser) ParseLine(line []byte) (Op, error) {
	if p.schema != nil {
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			return Op{}, fmt.Errorf("%w: %v", ErrInvalidOp, err)
		}
		if err := p.schema.Validate(doc); err != nil {
			return Op{}, fmt.Errorf("%w: %v", ErrInvalidOp, err)
		}
	}

	var raw rawOp
	if err := json.Unmarshal(line, &raw); err != nil {
		return Op{}, fmt.Errorf("%w: %v", ErrInvalidOp, err)
	}
	if !model.Registered(raw.Kind) {
		return Op{}, fmt.Errorf("%w: %q", ErrUnknownKind, raw.Kind)
	}
	entity, err := parseEntity(raw.Entity)
	if err != nil {
		return Op{}, fmt.Errorf("%w: entity: %v", ErrInvalidOp, err)
	}

	op := Op{Type: raw.Op, Kind: raw.Kind, Entity: entity}
	switch raw.Op {
	case OpSet:
		if len(raw.Value) == 0 {
			return Op{}, fmt.Errorf("%w: set without value", ErrInvalidOp)
		}
		c, err := model.Decode(raw.Kind, raw.Value)
		if err != nil {
			return Op{}, fmt.Errorf("%w: %v", ErrInvalidOp, err)
		}
		op.Component = c
	case OpRemove:
	default:
		return Op{}, fmt.Errorf("%w: unknown op %q", ErrInvalidOp, raw.Op)
	}
	return op, nil
}

// parseEntity accepts a JSON number or a string holding a decimal or 0x-prefixed
// hex key.
func parseEntity(raw json.RawMessage) (ecs.Entity, error) {
	if len(raw) == 0 {
		return 0, errors.New("missing")
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
	} else {
		s = string(raw)
	}
	if hex, ok := strings.CutPrefix(s, "0x"); ok {
		v, err := strconv.ParseUint(hex, 16, 64)
		return ecs.Entity(v), err
	}
	v, err := parseUintFromFloat(s)
	return ecs.Entity(v), err
}

// parseUintFromFloat parses a string that may be an integer ("32") or float ("32.00") into uint64.
// Feed producers backed by JavaScript numbers may serialize keys as floats.
func parseUintFromFloat(s string) (uint64, error) {
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != float64(uint64(f)) {
		return 0, fmt.Errorf("parseUintFromFloat: %q is not a valid uint64", s)
	}
	return uint64(f), nil
}

// Decoder reads operations from a feed stream.
type Decoder struct {
	p    *Parser
	sc   *bufio.Scanner
	line int
}

// NewDecoder wraps r. Lines may be up to 8 MiB.
func (p *Parser) NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	return &Decoder{p: p, sc: sc}
}

// Next returns the next operation, skipping blank lines and lines starting
// with '#'. It returns io.EOF at the end of the stream. A malformed line
// yields an error but the decoder stays usable.
func (d *Decoder) Next() (Op, error) {
	for d.sc.Scan() {
		d.line++
		line := bytes.TrimSpace(d.sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		op, err := d.p.ParseLine(line)
		if err != nil {
			d.p.logger.Debug("Rejected feed line", "line", d.line, "error", err)
			return Op{Line: d.line}, fmt.Errorf("line %d: %w", d.line, err)
		}
		op.Line = d.line
		return op, nil
	}
	if err := d.sc.Err(); err != nil {
		return Op{}, fmt.Errorf("read feed: %w", err)
	}
	return Op{}, io.EOF
}
