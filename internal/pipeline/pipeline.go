// Package pipeline orchestrates the two-pass extraction over the monthly
// datasets: download, qualify (pass 1), extract (pass 2), commit, and the
// final prune.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/andrewyernau/rookt/internal/archive"
	"github.com/andrewyernau/rookt/internal/config"
	"github.com/andrewyernau/rookt/internal/event"
	"github.com/andrewyernau/rookt/internal/fetch"
	"github.com/andrewyernau/rookt/internal/index"
	"github.com/andrewyernau/rookt/pkg/pgn"
)

// ErrCancelled is returned when a cancel control is honoured at a
// suspension point. Any datasets committed before it remain committed.
var ErrCancelled = errors.New("pipeline cancelled")

// progressEvery is the record cadence of PassProgress events.
const progressEvery = 25000

// Result summarises a completed (or cancelled) run.
type Result struct {
	Committed int // datasets committed during this run
	Skipped   int // datasets already done before this run
	Failed    int // datasets left pending after a retryable failure
	Pruned    int // players removed by the final prune
}

// Pipeline wires the downloader, scanner, writer, and index together.
// One dataset is processed at a time; suspension points sit between
// records and between datasets.
type Pipeline struct {
	cfg     config.Config
	store   *index.Store
	writer  *archive.Writer
	fetcher fetch.Fetcher
	sink    event.Sink
	filter  pgn.Filter
}

// New assembles a pipeline. The store, writer, and fetcher are owned by the
// caller; the pipeline only drives them.
func New(cfg config.Config, store *index.Store, writer *archive.Writer, fetcher fetch.Fetcher, sink event.Sink) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		store:   store,
		writer:  writer,
		fetcher: fetcher,
		sink:    sink,
		filter: pgn.Filter{
			Event:       cfg.Event,
			TimeControl: cfg.TimeControl,
			MinMoves:    cfg.MinMoves,
		},
	}
}

// Run processes every dataset of the configured year in chronological
// order, then prunes players below the retention threshold. Datasets that
// fail retryably are left pending and reported in the result; the prune
// only runs once every dataset is done.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	var res Result

	if err := os.MkdirAll(p.cfg.TempDir(), 0o755); err != nil {
		return res, fmt.Errorf("create temp dir: %w", err)
	}

	datasets := DatasetsForYear(p.cfg.Year, p.cfg.TempDir())
	for _, ds := range datasets {
		done, err := p.store.IsDone(ds.ID)
		if err != nil {
			return res, err
		}
		if done {
			res.Skipped++
			p.logf(event.LevelInfo, "dataset %s already done, skipping", ds.ID)
			continue
		}
		if err := p.checkpoint(ctx); err != nil {
			p.finish(res)
			return res, err
		}
		if err := p.process(ctx, ds); err != nil {
			if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
				p.logf(event.LevelInfo, "cancelled during dataset %s", ds.ID)
				p.finish(res)
				return res, ErrCancelled
			}
			// Retryable: the dataset stays pending and the next run picks
			// it up again.
			res.Failed++
			p.logf(event.LevelError, "dataset %s failed: %v", ds.ID, err)
			continue
		}
		res.Committed++
	}

	if res.Failed == 0 {
		pruned, err := p.prune()
		if err != nil {
			return res, err
		}
		res.Pruned = pruned
	} else {
		p.logf(event.LevelWarn, "%d dataset(s) pending, prune deferred to a later run", res.Failed)
	}

	p.finish(res)
	return res, nil
}

func (p *Pipeline) finish(res Result) {
	p.sink.Emit(event.PipelineDone{Committed: res.Committed, Pruned: res.Pruned})
}

// process runs one dataset through download, both passes, and commit.
// Any error leaves the dataset pending; the index is only touched by the
// final commit.
func (p *Pipeline) process(ctx context.Context, ds Dataset) error {
	p.sink.Emit(event.DatasetStarted{ID: ds.ID})

	err := p.fetcher.Fetch(ctx, ds.URL, ds.TempPath, func(done, total int64) {
		p.sink.Emit(event.DownloadProgress{ID: ds.ID, Bytes: done, Total: total})
	})
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		return fmt.Errorf("download: %w", err)
	}

	contributions, err := p.passQualify(ctx, ds)
	if err != nil {
		return err
	}

	games, err := p.passExtract(ctx, ds, contributions)
	if err != nil {
		return err
	}

	if err := p.writer.FlushAll(); err != nil {
		return fmt.Errorf("flush writer: %w", err)
	}
	if err := p.store.MarkDone(ds.ID, contributions); err != nil {
		return err
	}
	if err := os.Remove(ds.TempPath); err != nil && !os.IsNotExist(err) {
		// The dataset is committed; a leftover temp file only costs disk.
		p.logf(event.LevelWarn, "delete temp %s: %v", ds.TempPath, err)
	}

	p.sink.Emit(event.DatasetFinished{ID: ds.ID, Games: games, Players: len(contributions)})
	return nil
}

// passQualify streams the dataset in header mode, counting valid games per
// player, and returns the monthly counts of players meeting the monthly
// threshold.
func (p *Pipeline) passQualify(ctx context.Context, ds Dataset) (map[string]int, error) {
	counts := make(map[string]int)

	err := p.scanDataset(ctx, ds, 1, pgn.ModeHeader, func(g *pgn.Game) error {
		counts[g.Tags["White"]]++
		counts[g.Tags["Black"]]++
		return nil
	})
	if err != nil {
		return nil, err
	}

	qualifying := make(map[string]int)
	for name, n := range counts {
		if n >= p.cfg.MinMonthlyGames {
			qualifying[name] = n
		}
	}
	p.logf(event.LevelInfo, "dataset %s: %d qualifying players of %d seen",
		ds.ID, len(qualifying), len(counts))
	return qualifying, nil
}

// passExtract streams the dataset again in full mode and appends each valid
// game to the accumulator of every qualifying player in it. Returns the
// number of games appended at least once.
func (p *Pipeline) passExtract(ctx context.Context, ds Dataset, qualifying map[string]int) (int64, error) {
	var games int64

	err := p.scanDataset(ctx, ds, 2, pgn.ModeFull, func(g *pgn.Game) error {
		white, black := g.Tags["White"], g.Tags["Black"]
		appended := false
		if _, ok := qualifying[white]; ok {
			if err := p.writer.Append(white, g.Raw); err != nil {
				return err
			}
			appended = true
		}
		if _, ok := qualifying[black]; ok && black != white {
			if err := p.writer.Append(black, g.Raw); err != nil {
				return err
			}
			appended = true
		}
		if appended {
			games++
		}
		return nil
	})
	return games, err
}

// scanDataset opens the compressed dump and drives the scanner, invoking fn
// for every valid record. Controls are observed between records; progress
// is emitted at a bounded cadence.
func (p *Pipeline) scanDataset(ctx context.Context, ds Dataset, pass int, mode pgn.Mode, fn func(*pgn.Game) error) error {
	f, err := os.Open(ds.TempPath)
	if err != nil {
		return fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return fmt.Errorf("open decoder: %w", err)
	}
	defer dec.Close()

	sc := pgn.NewScanner(dec, mode)
	sc.OnWarning(func(err error) {
		p.logf(event.LevelWarn, "dataset %s pass %d: %v", ds.ID, pass, err)
	})

	var total, valid int64
	for {
		if err := p.checkpoint(ctx); err != nil {
			return err
		}
		g, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("scan dataset %s: %w", ds.ID, err)
		}
		total++
		if p.filter.Match(g) {
			valid++
			if err := fn(g); err != nil {
				return err
			}
		}
		if total%progressEvery == 0 {
			p.sink.Emit(event.PassProgress{
				ID: ds.ID, Pass: pass, Games: total, Valid: valid, Skipped: int64(sc.Skipped()),
			})
		}
	}
	p.sink.Emit(event.PassProgress{
		ID: ds.ID, Pass: pass, Games: total, Valid: valid, Skipped: int64(sc.Skipped()),
	})
	return nil
}

// prune deletes the archive of every player whose cumulative total fell
// short of the retention threshold, and drops their index rows. Safe to
// re-run.
func (p *Pipeline) prune() (int, error) {
	below, err := p.store.PlayersBelow(p.cfg.MinTotalGames)
	if err != nil {
		return 0, err
	}
	for _, name := range below {
		if err := p.writer.Remove(name); err != nil {
			return 0, err
		}
		if err := p.store.RemovePlayer(name); err != nil {
			return 0, err
		}
	}
	if len(below) > 0 {
		p.logf(event.LevelInfo, "pruned %d players below %d games", len(below), p.cfg.MinTotalGames)
	}
	return len(below), nil
}

// checkpoint is the suspension point between records and datasets: it
// honours pause, resume, and cancel controls, and context cancellation.
func (p *Pipeline) checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}
	ctrl, ok := p.sink.PollControl()
	if !ok {
		return nil
	}
	switch ctrl {
	case event.ControlCancel:
		return ErrCancelled
	case event.ControlPause:
		p.logf(event.LevelInfo, "paused")
		for {
			select {
			case <-ctx.Done():
				return ErrCancelled
			case <-time.After(50 * time.Millisecond):
			}
			if c, ok := p.sink.PollControl(); ok {
				switch c {
				case event.ControlCancel:
					return ErrCancelled
				case event.ControlResume:
					p.logf(event.LevelInfo, "resumed")
					return nil
				}
			}
		}
	}
	return nil
}

func (p *Pipeline) logf(level event.Level, format string, args ...any) {
	p.sink.Emit(event.Log{Level: level, Message: fmt.Sprintf(format, args...)})
}
