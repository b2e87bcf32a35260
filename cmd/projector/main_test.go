package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFeed = `{"op":"set","kind":"Position","entity":1,"value":{"entity_id":1,"x":4,"y":4}}
{"op":"set","kind":"Structure","entity":1,"value":{"entity_id":1,"category":"Hyperstructure"}}
{"op":"set","kind":"Progress","entity":50,"value":{"hyperstructure_entity_id":1,"resource_type":1,"amount":250000}}
{"op":"set","kind":"Tile","entity":60,"value":{"col":4,"row":4,"explored_by_id":1,"explored_at":1,"biome":"Ocean"}}
{"op":"set","kind":"Nope","entity":1,"value":{}}
`

func TestRun_Summary(t *testing.T) {
	dir := t.TempDir()
	feed := filepath.Join(dir, "feed.jsonl")
	require.NoError(t, os.WriteFile(feed, []byte(testFeed), 0644))

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"--config-dir", dir,
		"--logs-dir", filepath.Join(dir, "logs"),
		"--feed", feed,
		"--summary",
	}, &out)
	require.NoError(t, err)

	var summary struct {
		Stats struct {
			Applied  int `json:"applied"`
			Rejected int `json:"rejected"`
		} `json:"stats"`
		Scene struct {
			Structures int `json:"structures"`
			Explored   int `json:"explored"`
		} `json:"scene"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, 4, summary.Stats.Applied)
	assert.Equal(t, 1, summary.Stats.Rejected)
	assert.Equal(t, 1, summary.Scene.Structures)
	assert.Equal(t, 1, summary.Scene.Explored)

	logs, err := filepath.Glob(filepath.Join(dir, "logs", AppName+".*.log"))
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.FileExists(t, filepath.Join(dir, "logs", "status.json"))
}

const focusFeed = `{"op":"set","kind":"Realm","entity":1,"value":{"entity_id":1,"realm_id":5,"order":2,"level":1}}
{"op":"set","kind":"Position","entity":1,"value":{"entity_id":1,"x":10,"y":10}}
{"op":"set","kind":"Structure","entity":1,"value":{"entity_id":1,"category":"Realm"}}
{"op":"set","kind":"Owner","entity":1,"value":{"entity_id":1,"address":"0xabc"}}
{"op":"set","kind":"EntityOwner","entity":2,"value":{"entity_id":2,"entity_owner_id":1}}
{"op":"set","kind":"Health","entity":2,"value":{"entity_id":2,"current":5000,"lifetime":5000}}
{"op":"set","kind":"Position","entity":2,"value":{"entity_id":2,"x":11,"y":10}}
{"op":"set","kind":"Army","entity":2,"value":{"entity_id":2,"battle_id":0,"battle_side":"None"}}
{"op":"set","kind":"Position","entity":3,"value":{"entity_id":3,"x":40,"y":40}}
{"op":"set","kind":"Structure","entity":3,"value":{"entity_id":3,"category":"Bank"}}
{"op":"set","kind":"Building","entity":200,"value":{"outer_col":10,"outer_row":10,"inner_col":1,"inner_row":2,"category":"Farm"}}
`

func TestRun_FocusHex(t *testing.T) {
	dir := t.TempDir()
	feed := filepath.Join(dir, "feed.jsonl")
	require.NoError(t, os.WriteFile(feed, []byte(focusFeed), 0644))

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"--config-dir", dir,
		"--logs-dir", filepath.Join(dir, "logs"),
		"--feed", feed,
		"--summary",
		"--hex", "10,10",
		"--radius", "1",
	}, &out)
	require.NoError(t, err)

	var summary struct {
		Scene struct {
			Structures int `json:"structures"`
		} `json:"scene"`
		Focus *struct {
			Hex struct {
				Col uint32 `json:"col"`
				Row uint32 `json:"row"`
			} `json:"hex"`
			Radius int64 `json:"radius"`
			Armies     []struct {
				EntityID uint64 `json:"entityId"`
			} `json:"armies"`
			Structures []struct {
				EntityID uint64 `json:"entityId"`
			} `json:"structures"`
			Buildings []json.RawMessage `json:"buildings"`
		} `json:"focus"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, 2, summary.Scene.Structures)

	require.NotNil(t, summary.Focus)
	assert.Equal(t, uint32(10), summary.Focus.Hex.Col)
	assert.Equal(t, uint32(10), summary.Focus.Hex.Row)
	assert.Equal(t, int64(1), summary.Focus.Radius)
	require.Len(t, summary.Focus.Armies, 1)
	assert.Equal(t, uint64(2), summary.Focus.Armies[0].EntityID)
	require.Len(t, summary.Focus.Structures, 1, "the distant bank is out of reach")
	assert.Equal(t, uint64(1), summary.Focus.Structures[0].EntityID)
	assert.Len(t, summary.Focus.Buildings, 1)
}

func TestRun_BadHex(t *testing.T) {
	dir := t.TempDir()
	err := run(context.Background(), []string{"--config-dir", dir, "--hex", "10"}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "parse --hex")
}

func TestRun_NoFeed(t *testing.T) {
	dir := t.TempDir()
	err := run(context.Background(), []string{"--config-dir", dir, "--logs-dir", filepath.Join(dir, "logs")}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "no feed")
}

func TestRun_BadFlag(t *testing.T) {
	err := run(context.Background(), []string{"--nope"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRun_BadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "projector.cfg.json"), []byte(`{"precision": 0}`), 0644))
	err := run(context.Background(), []string{"--config-dir", dir}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "load config")
}
