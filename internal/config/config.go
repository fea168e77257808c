// Package config holds the immutable run configuration.
package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/viper"
)

// Default accumulator ceiling for the archive writer.
const DefaultBufferCeiling = 2 * datasize.GB

// Config is built once at startup and read-only afterwards.
type Config struct {
	// OutDir is the output root. The index, temp downloads, and the
	// per-player archive all live under it.
	OutDir string

	// Event is the exact Event tag a game must carry to be counted.
	Event string

	// TimeControl is the exact TimeControl tag required; empty accepts all.
	TimeControl string

	// MinMoves is the minimum full-move count per game.
	MinMoves int

	// MinMonthlyGames is the per-dataset qualification threshold: players
	// with fewer valid games in a month contribute nothing for that month.
	MinMonthlyGames int

	// MinTotalGames is the retention threshold applied by the final prune.
	MinTotalGames int

	// Year selects the twelve monthly datasets to process.
	Year int

	// BufferCeiling bounds total accumulator residency in the writer.
	BufferCeiling datasize.ByteSize
}

// Default returns the built-in configuration used by headless mode when no
// config file overrides it.
func Default() Config {
	return Config{
		OutDir:          "rookt-out",
		Event:           "Rated Blitz game",
		TimeControl:     "300+0",
		MinMoves:        30,
		MinMonthlyGames: 50,
		MinTotalGames:   500,
		Year:            2024,
		BufferCeiling:   DefaultBufferCeiling,
	}
}

// Load reads rookt.yaml from dir (or the working directory when dir is
// empty), applying defaults for anything unset. A missing file is not an
// error.
func Load(dir string) (Config, error) {
	def := Default()

	v := viper.New()
	v.SetConfigName("rookt")
	v.SetConfigType("yaml")
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)

	v.SetDefault("out", def.OutDir)
	v.SetDefault("event", def.Event)
	v.SetDefault("time_control", def.TimeControl)
	v.SetDefault("min_moves", def.MinMoves)
	v.SetDefault("min_monthly_games", def.MinMonthlyGames)
	v.SetDefault("min_total_games", def.MinTotalGames)
	v.SetDefault("year", def.Year)
	v.SetDefault("buffer_ceiling", def.BufferCeiling.String())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var ceiling datasize.ByteSize
	if err := ceiling.UnmarshalText([]byte(v.GetString("buffer_ceiling"))); err != nil {
		return Config{}, fmt.Errorf("parse buffer_ceiling: %w", err)
	}

	cfg := Config{
		OutDir:          v.GetString("out"),
		Event:           v.GetString("event"),
		TimeControl:     v.GetString("time_control"),
		MinMoves:        v.GetInt("min_moves"),
		MinMonthlyGames: v.GetInt("min_monthly_games"),
		MinTotalGames:   v.GetInt("min_total_games"),
		Year:            v.GetInt("year"),
		BufferCeiling:   ceiling,
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the pipeline cannot run with.
func (c Config) Validate() error {
	if c.OutDir == "" {
		return errors.New("output directory must be set")
	}
	if c.Event == "" {
		return errors.New("event predicate must be set")
	}
	if c.MinMoves < 0 || c.MinMonthlyGames < 0 || c.MinTotalGames < 0 {
		return errors.New("thresholds must not be negative")
	}
	if c.Year < 2013 || c.Year > 2100 {
		return fmt.Errorf("year %d outside the supported range", c.Year)
	}
	if c.BufferCeiling == 0 {
		return errors.New("buffer ceiling must be positive")
	}
	return nil
}

// IndexPath is the location of the SQLite index under the output root.
func (c Config) IndexPath() string { return filepath.Join(c.OutDir, "index.db") }

// TempDir is where dataset downloads are staged.
func (c Config) TempDir() string { return filepath.Join(c.OutDir, "temp") }
