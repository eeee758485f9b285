package input

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
	"github.com/tsinghua-fib-lab/green-corridor/utils/config"
)

const inventory = `signals:
  - signal_id: S2
    location: {latitude: 28.62, longitude: 77.21}
    current_state: green
  - signal_id: S1
    location: {latitude: 28.61, longitude: 77.20}
  - signal_id: BAD
    location: {latitude: 128.61, longitude: 77.20}
  - signal_id: S2
    location: {latitude: 28.63, longitude: 77.22}
    current_state: yellow
  - signal_id: S3
    location: {latitude: 28.64, longitude: 77.23}
    current_state: blue
`

func TestInitFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.yaml")
	require.NoError(t, os.WriteFile(path, []byte(inventory), 0o644))

	c := config.Default()
	c.Input.Signals = &config.InputPath{File: path}
	res, err := Init(context.Background(), c, "")
	require.NoError(t, err)
	require.Len(t, res.Signals, 2)

	assert.Equal(t, "S2", res.Signals[0].SignalID)
	assert.Equal(t, entity.LightYellow, res.Signals[0].CurrentState)
	assert.Equal(t, entity.Location{Latitude: 28.63, Longitude: 77.22}, *res.Signals[0].Location)
	assert.Equal(t, "S1", res.Signals[1].SignalID)
	assert.Equal(t, entity.LightState(""), res.Signals[1].CurrentState)
}

func TestInitWithoutInventory(t *testing.T) {
	res, err := Init(context.Background(), config.Default(), "")
	require.NoError(t, err)
	assert.Empty(t, res.Signals)
}

func TestInitMissingFile(t *testing.T) {
	c := config.Default()
	c.Input.Signals = &config.InputPath{File: filepath.Join(t.TempDir(), "missing.yaml")}
	_, err := Init(context.Background(), c, "")
	assert.Error(t, err)
}

func TestCacheHitSkipsMongo(t *testing.T) {
	dir := t.TempDir()
	path := config.InputPath{DB: "traffic", Col: "signals"}
	require.NoError(t, saveFile(cachePath(dir, path), []entity.Signal{
		{SignalID: "C1", Location: entity.Location{Latitude: 1, Longitude: 2}},
	}))

	// URI不可达，只有命中缓存才能成功
	signals, err := loadWithCache(context.Background(), "mongodb://127.0.0.1:1", path, dir)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "C1", signals[0].SignalID)
	assert.Equal(t, entity.Location{Latitude: 1, Longitude: 2}, signals[0].Location)
}

func TestPreCheckCache(t *testing.T) {
	assert.False(t, preCheckCache(""))
	assert.True(t, preCheckCache(t.TempDir()))
	assert.False(t, preCheckCache(filepath.Join(t.TempDir(), "nope")))
}
