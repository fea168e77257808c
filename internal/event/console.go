package event

import (
	"github.com/c2h5oh/datasize"
	"github.com/rs/zerolog"
)

// ConsoleSink renders events as log lines. It is the headless-mode sink;
// it never produces control commands, so cancellation comes from the
// context alone.
type ConsoleSink struct {
	log zerolog.Logger
}

// NewConsoleSink creates a sink writing through the given logger.
func NewConsoleSink(log zerolog.Logger) *ConsoleSink {
	return &ConsoleSink{log: log}
}

func (s *ConsoleSink) Emit(e Event) {
	switch ev := e.(type) {
	case DatasetStarted:
		s.log.Info().Str("dataset", ev.ID).Msg("dataset started")
	case DatasetFinished:
		s.log.Info().
			Str("dataset", ev.ID).
			Int64("games", ev.Games).
			Int("players", ev.Players).
			Msg("dataset committed")
	case DownloadProgress:
		l := s.log.Info().
			Str("dataset", ev.ID).
			Str("downloaded", datasize.ByteSize(ev.Bytes).HR())
		if ev.Total >= 0 {
			l = l.Str("total", datasize.ByteSize(ev.Total).HR())
		}
		l.Msg("downloading")
	case PassProgress:
		s.log.Info().
			Str("dataset", ev.ID).
			Int("pass", ev.Pass).
			Int64("games", ev.Games).
			Int64("valid", ev.Valid).
			Int64("skipped", ev.Skipped).
			Msg("scanning")
	case Log:
		switch ev.Level {
		case LevelWarn:
			s.log.Warn().Msg(ev.Message)
		case LevelError:
			s.log.Error().Msg(ev.Message)
		default:
			s.log.Info().Msg(ev.Message)
		}
	case PipelineDone:
		s.log.Info().
			Int("committed", ev.Committed).
			Int("pruned", ev.Pruned).
			Msg("pipeline complete")
	}
}

func (s *ConsoleSink) PollControl() (Control, bool) { return 0, false }
