package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(s *QueueSink) []Event {
	var out []Event
	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestQueueDeliversInOrder(t *testing.T) {
	s := NewQueueSink(4)
	s.Emit(DatasetStarted{ID: "2024-01"})
	s.Emit(PassProgress{ID: "2024-01", Pass: 1, Games: 100})

	events := drain(s)
	require.Len(t, events, 2)
	assert.Equal(t, DatasetStarted{ID: "2024-01"}, events[0])
}

func TestQueueDropsOldestNonCritical(t *testing.T) {
	s := NewQueueSink(2)
	s.Emit(PassProgress{Games: 1})
	s.Emit(PassProgress{Games: 2})
	// Queue full: the oldest progress event gives way.
	s.Emit(PassProgress{Games: 3})

	events := drain(s)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].(PassProgress).Games)
	assert.Equal(t, int64(3), events[1].(PassProgress).Games)
}

func TestQueueKeepsCriticalUnderPressure(t *testing.T) {
	s := NewQueueSink(2)
	s.Emit(Log{Level: LevelError, Message: "disk full"})
	s.Emit(PassProgress{Games: 1})
	s.Emit(PassProgress{Games: 2})

	events := drain(s)
	require.Len(t, events, 2)
	assert.Equal(t, Log{Level: LevelError, Message: "disk full"}, events[0])
	assert.Equal(t, int64(2), events[1].(PassProgress).Games)
}

func TestEmitAfterCloseIsIgnored(t *testing.T) {
	s := NewQueueSink(2)
	s.Close()
	s.Emit(PassProgress{Games: 1}) // must not panic
	s.Close()                      // idempotent

	_, ok := <-s.Events()
	assert.False(t, ok)
}

func TestPollControl(t *testing.T) {
	s := NewQueueSink(2)

	_, ok := s.PollControl()
	assert.False(t, ok)

	s.SendControl(ControlPause)
	s.SendControl(ControlResume)

	c, ok := s.PollControl()
	require.True(t, ok)
	assert.Equal(t, ControlPause, c)
	c, ok = s.PollControl()
	require.True(t, ok)
	assert.Equal(t, ControlResume, c)
}
