package emitter

import (
	"context"

	"github.com/signflow/signflow/internal/store"
)

// Recorder persists events to the store's words table.
type Recorder struct {
	words *store.WordRepository
}

// NewRecorder creates a Recorder writing to s.
func NewRecorder(s *store.Store) *Recorder {
	return &Recorder{words: s.Words()}
}

// Emit inserts the event as a word row.
func (r *Recorder) Emit(_ context.Context, ev Event) error {
	return r.words.Create(&store.Word{
		SessionID:   ev.SessionID,
		Language:    ev.Language,
		Mode:        ev.Mode,
		Gloss:       ev.Gloss,
		ClassID:     ev.ClassID,
		Confidence:  ev.Confidence,
		TargetGloss: ev.TargetGloss,
		Correct:     ev.Correct,
		CreatedAt:   ev.At,
	})
}

// Close is a no-op; the store is owned by the caller.
func (r *Recorder) Close() error { return nil }
