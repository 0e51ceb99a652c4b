package analytics

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/cimillas/odl-lending/internal/domain"
)

// LogSink writes circulation events as structured log lines, one per event,
// for whatever collects the process logs.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{log: logger.With().Str("component", "analytics").Logger()}
}

func (s *LogSink) Publish(_ context.Context, events ...domain.CirculationEvent) {
	for _, e := range events {
		entry := s.log.Info().
			Str("event", string(e.Type)).
			Str("pool_id", e.PoolID).
			Time("occurred_at", e.OccurredAt)
		if e.PatronID != "" {
			entry = entry.Str("patron_id", e.PatronID)
		}
		if e.OldValue != e.NewValue {
			entry = entry.Int("old_value", e.OldValue).Int("new_value", e.NewValue)
		}
		entry.Msg("circulation event")
	}
}
