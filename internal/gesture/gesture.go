// Package gesture defines recognized gestures and the debounce rule that turns
// per-window classifications into stable word emissions.
package gesture

import (
	"errors"
	"fmt"
)

const (
	// BackgroundClass is the reserved class index meaning "no gesture".
	BackgroundClass = 0
	// NoLabel marks that nothing has been emitted yet.
	NoLabel = -1
)

// ErrEmptyScores is returned when a classifier produced no scores.
var ErrEmptyScores = errors.New("empty score vector")

// Gesture is the result of one inference pass over a window.
type Gesture struct {
	Gloss      string  `json:"gloss"`
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
}

// Labels maps class indices to glosses for one language.
type Labels []string

// Gloss returns the label for a class, or a placeholder if the table is short.
func (l Labels) Gloss(classID int) string {
	if classID >= 0 && classID < len(l) {
		return l[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}

// FromScores selects the class with the highest score and resolves its gloss.
// Ties resolve to the lowest index.
func FromScores(scores []float32, labels Labels) (Gesture, error) {
	if len(scores) == 0 {
		return Gesture{}, ErrEmptyScores
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}

	return Gesture{
		Gloss:      labels.Gloss(best),
		ClassID:    best,
		Confidence: float64(scores[best]),
	}, nil
}

// Debouncer confirms a gesture only when the two most recent windows agree on
// a non-background class with enough confidence.
type Debouncer struct {
	Threshold float64
}

// NewDebouncer creates a Debouncer with the given confidence threshold.
func NewDebouncer(threshold float64) *Debouncer {
	return &Debouncer{Threshold: threshold}
}

// Decide inspects the last two predictions and returns the confirmed gesture.
// lastEmitted is the class id of the previous emission, or NoLabel.
// The caller is responsible for recording the returned ClassID as the new
// lastEmitted value.
func (d *Debouncer) Decide(predictions []Gesture, lastEmitted int) (Gesture, bool) {
	if len(predictions) < 2 {
		return Gesture{}, false
	}

	a := predictions[len(predictions)-2]
	b := predictions[len(predictions)-1]

	if b.ClassID == BackgroundClass {
		return Gesture{}, false
	}
	if a.ClassID != b.ClassID {
		return Gesture{}, false
	}
	if max(a.Confidence, b.Confidence) <= d.Threshold {
		return Gesture{}, false
	}
	if b.ClassID == lastEmitted {
		return Gesture{}, false
	}

	return b, true
}
