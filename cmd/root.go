// Package cmd wires the command-line surface: interactive dashboard by
// default, plain console output with --headless.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/andrewyernau/rookt/internal/archive"
	"github.com/andrewyernau/rookt/internal/config"
	"github.com/andrewyernau/rookt/internal/event"
	"github.com/andrewyernau/rookt/internal/fetch"
	"github.com/andrewyernau/rookt/internal/index"
	"github.com/andrewyernau/rookt/internal/pipeline"
	"github.com/andrewyernau/rookt/internal/tui"
)

var (
	headless    bool
	configDir   string
	outDir      string
	year        int
	eventName   string
	timeControl string
	minMoves    int
	minMonthly  int
	minTotal    int
	bufferSize  string
)

var rootCmd = &cobra.Command{
	Use:   "rookt",
	Short: "Build per-player archives from the monthly game dumps",
	Long: `rookt streams the monthly compressed game dumps, filters games by
event, time control, and length, and builds one compressed archive per
qualifying player, sharded by username prefix.

Processing is resumable: committed months are never re-processed, and an
interrupted download or pass is picked up again on the next run.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.BoolVar(&headless, "headless", false, "run with console output instead of the dashboard")
	f.StringVar(&configDir, "config", "", "directory containing rookt.yaml")
	f.StringVar(&outDir, "out", "", "output root directory")
	f.IntVar(&year, "year", 0, "year whose twelve monthly datasets are processed")
	f.StringVar(&eventName, "event", "", "exact Event tag a game must carry")
	f.StringVar(&timeControl, "time-control", "", "exact TimeControl tag (empty accepts all)")
	f.IntVar(&minMoves, "min-moves", -1, "minimum full moves per game")
	f.IntVar(&minMonthly, "min-monthly", -1, "minimum valid games per player per month")
	f.IntVar(&minTotal, "min-total", -1, "minimum cumulative games to keep a player at prune time")
	f.StringVar(&bufferSize, "buffer", "", "accumulator ceiling, e.g. 2GB")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	store, err := index.Open(cfg.IndexPath())
	if err != nil {
		return err
	}
	defer store.Close()

	writer, err := archive.NewWriter(cfg.OutDir, int64(cfg.BufferCeiling.Bytes()))
	if err != nil {
		return err
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if headless {
		return runHeadless(ctx, cfg, store, writer)
	}
	return runDashboard(ctx, cfg, store, writer)
}

func runHeadless(ctx context.Context, cfg config.Config, store *index.Store, writer *archive.Writer) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	sink := event.NewConsoleSink(logger)

	pipe := pipeline.New(cfg, store, writer, fetch.NewHTTP(), sink)
	res, err := pipe.Run(ctx)
	return exitError(res, err)
}

func runDashboard(ctx context.Context, cfg config.Config, store *index.Store, writer *archive.Writer) error {
	sink := event.NewQueueSink(512)
	pipe := pipeline.New(cfg, store, writer, fetch.NewHTTP(), sink)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		res pipeline.Result
		err error
	}
	doneCh := make(chan outcome, 1)
	go func() {
		res, err := pipe.Run(runCtx)
		sink.Close()
		doneCh <- outcome{res: res, err: err}
	}()

	program := tea.NewProgram(tui.New(sink), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		// The terminal is gone; stop the pipeline at its next suspension
		// point and wait for a consistent state.
		cancel()
		<-doneCh
		return fmt.Errorf("dashboard: %w", err)
	}

	out := <-doneCh
	return exitError(out.res, out.err)
}

// exitError maps a pipeline outcome to the process exit contract: nil on
// clean completion, and on cancellation only when at least one dataset
// committed this run or before it.
func exitError(res pipeline.Result, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pipeline.ErrCancelled) {
		if res.Committed+res.Skipped > 0 {
			return nil
		}
		return errors.New("cancelled before any dataset committed")
	}
	return err
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return config.Config{}, err
	}

	f := cmd.Flags()
	if f.Changed("out") {
		cfg.OutDir = outDir
	}
	if f.Changed("year") {
		cfg.Year = year
	}
	if f.Changed("event") {
		cfg.Event = eventName
	}
	if f.Changed("time-control") {
		cfg.TimeControl = timeControl
	}
	if f.Changed("min-moves") {
		cfg.MinMoves = minMoves
	}
	if f.Changed("min-monthly") {
		cfg.MinMonthlyGames = minMonthly
	}
	if f.Changed("min-total") {
		cfg.MinTotalGames = minTotal
	}
	if f.Changed("buffer") {
		if err := cfg.BufferCeiling.UnmarshalText([]byte(bufferSize)); err != nil {
			return config.Config{}, fmt.Errorf("parse --buffer: %w", err)
		}
	}
	return cfg, cfg.Validate()
}
