package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
out: /data/rookt
event: Rated Bullet game
time_control: 60+0
min_moves: 20
min_monthly_games: 10
min_total_games: 100
year: 2023
buffer_ceiling: 512MB
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rookt.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/data/rookt", cfg.OutDir)
	assert.Equal(t, "Rated Bullet game", cfg.Event)
	assert.Equal(t, "60+0", cfg.TimeControl)
	assert.Equal(t, 20, cfg.MinMoves)
	assert.Equal(t, 10, cfg.MinMonthlyGames)
	assert.Equal(t, 100, cfg.MinTotalGames)
	assert.Equal(t, 2023, cfg.Year)
	assert.Equal(t, 512*datasize.MB, cfg.BufferCeiling)
}

func TestValidate(t *testing.T) {
	ok := Default()
	require.NoError(t, ok.Validate())

	bad := ok
	bad.Event = ""
	assert.Error(t, bad.Validate())

	bad = ok
	bad.Year = 1999
	assert.Error(t, bad.Validate())

	bad = ok
	bad.MinMoves = -1
	assert.Error(t, bad.Validate())

	bad = ok
	bad.BufferCeiling = 0
	assert.Error(t, bad.Validate())
}

func TestPaths(t *testing.T) {
	cfg := Default()
	cfg.OutDir = "/data/out"
	assert.Equal(t, filepath.Join("/data/out", "index.db"), cfg.IndexPath())
	assert.Equal(t, filepath.Join("/data/out", "temp"), cfg.TempDir())
}
