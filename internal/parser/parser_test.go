package parser

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hexrealm/projector/internal/ecs"
	"github.com/hexrealm/projector/internal/model"
)

func newTestParser(t *testing.T, validate bool) *Parser {
	t.Helper()
	p, err := NewParser(slog.New(slog.DiscardHandler), validate)
	require.NoError(t, err)
	return p
}

func TestParseUintFromFloat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    uint64
		wantErr bool
	}{
		{"integer", "32", 32, false},
		{"zero", "0", 0, false},
		{"float with decimals", "32.00", 32, false},
		{"large integer", "18446744073709551615", 18446744073709551615, false},
		{"fractional rejects", "10.99", 0, true},
		{"empty string", "", 0, true},
		{"non-numeric", "abc", 0, true},
		{"negative", "-1", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseUintFromFloat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseLine(t *testing.T) {
	for _, validate := range []bool{true, false} {
		p := newTestParser(t, validate)

		op, err := p.ParseLine([]byte(`{"op":"set","kind":"Position","entity":7,"value":{"entity_id":7,"x":10,"y":20}}`))
		require.NoError(t, err)
		assert.Equal(t, OpSet, op.Type)
		assert.Equal(t, model.KindPosition, op.Kind)
		assert.Equal(t, ecs.Entity(7), op.Entity)
		assert.Equal(t, model.Position{EntityID: 7, X: 10, Y: 20}, op.Component)

		op, err = p.ParseLine([]byte(`{"op":"remove","kind":"Battle","entity":"0x2a"}`))
		require.NoError(t, err)
		assert.Equal(t, OpRemove, op.Type)
		assert.Equal(t, ecs.Entity(42), op.Entity)
		assert.Nil(t, op.Component)

		op, err = p.ParseLine([]byte(`{"op":"remove","kind":"Tile","entity":"12.00"}`))
		require.NoError(t, err)
		assert.Equal(t, ecs.Entity(12), op.Entity)
	}
}

func TestParseLine_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"not json", `{op:`, ErrInvalidOp},
		{"unknown op", `{"op":"upsert","kind":"Army","entity":1,"value":{}}`, ErrInvalidOp},
		{"set without value", `{"op":"set","kind":"Army","entity":1}`, ErrInvalidOp},
		{"negative entity", `{"op":"remove","kind":"Army","entity":-4}`, ErrInvalidOp},
		{"bad value", `{"op":"set","kind":"Army","entity":1,"value":{"battle_id":"x"}}`, ErrInvalidOp},
		{"unknown kind", `{"op":"remove","kind":"Weather","entity":1}`, ErrUnknownKind},
	}

	for _, validate := range []bool{true, false} {
		p := newTestParser(t, validate)
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := p.ParseLine([]byte(tt.line))
				assert.ErrorIs(t, err, tt.want)
			})
		}
	}
}

func TestParseLine_SchemaRejectsExtraFields(t *testing.T) {
	line := []byte(`{"op":"remove","kind":"Army","entity":1,"extra":true}`)

	_, err := newTestParser(t, true).ParseLine(line)
	assert.ErrorIs(t, err, ErrInvalidOp)

	_, err = newTestParser(t, false).ParseLine(line)
	assert.NoError(t, err, "extra fields are ignored without validation")
}

func TestErrUnknownKind_WrapsModel(t *testing.T) {
	assert.True(t, errors.Is(ErrUnknownKind, model.ErrUnknownKind))
}

func TestDecoder(t *testing.T) {
	feed := strings.Join([]string{
		`# fixture`,
		`{"op":"set","kind":"Army","entity":1,"value":{"entity_id":1}}`,
		``,
		`{"op":"set","kind":"Nope","entity":1,"value":{}}`,
		`{"op":"remove","kind":"Army","entity":1}`,
	}, "\n")

	d := newTestParser(t, true).NewDecoder(strings.NewReader(feed))

	op, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, op.Line)
	assert.Equal(t, model.Army{EntityID: 1}, op.Component)

	op, err = d.Next()
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, 4, op.Line)
	assert.Contains(t, err.Error(), "line 4")

	op, err = d.Next()
	require.NoError(t, err, "decoder continues after a bad line")
	assert.Equal(t, OpRemove, op.Type)
	assert.Equal(t, 5, op.Line)

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	line := `{"op":"remove","kind":"Tile","entity":3}` + "\n"

	plain := filepath.Join(dir, "feed.jsonl")
	require.NoError(t, os.WriteFile(plain, []byte(line), 0644))

	compressed := filepath.Join(dir, "feed.jsonl.zst")
	f, err := os.Create(compressed)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte(line))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	p := newTestParser(t, true)
	for _, path := range []string{plain, compressed} {
		rc, err := Open(path)
		require.NoError(t, err, path)

		op, err := p.NewDecoder(rc).Next()
		require.NoError(t, err, path)
		assert.Equal(t, ecs.Entity(3), op.Entity)
		assert.Equal(t, model.KindTile, op.Kind)
		require.NoError(t, rc.Close())
	}

	_, err = Open(filepath.Join(dir, "missing.jsonl"))
	assert.Error(t, err)
}
