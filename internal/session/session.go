// Package session implements the per-connection recognition state machine:
// mode, active language and training gloss, and the worker they own.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signflow/signflow/internal/gesture"
)

// Mode is the operating mode of a session.
type Mode string

// Modes.
const (
	Live     Mode = "LIVE"
	Training Mode = "TRAINING"
)

// Errors returned by the Controller. The server maps them to status codes.
var (
	ErrInvalidMode          = errors.New("invalid mode")
	ErrUnsupportedLanguage  = errors.New("unsupported language")
	ErrLanguageConfig       = errors.New("language config unavailable")
	ErrModelLoad            = errors.New("failed to load model")
	ErrInvalidGloss         = errors.New("gloss must not be empty")
	ErrGlossOutsideTraining = errors.New("GLOSS must be set only in TRAINING MODE")
	ErrNoWorker             = errors.New("model not initialized")
	ErrWorkerFailed         = errors.New("recognition worker failed")
	ErrInvalidImage         = errors.New("image must start with data:image")
	ErrImageDecode          = errors.New("error processing image")
	ErrClosed               = errors.New("session closed")
)

// ParseMode validates a client-supplied mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case Live, Training:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Session is an immutable snapshot of the controller's state. Every
// transition stores a new value.
type Session struct {
	ID       string
	Mode     Mode
	Language string
	// Gloss is the active training gloss, empty when none is set.
	Gloss string
	// LastEmitted is the class id of the last surfaced word or gesture.NoLabel.
	LastEmitted int
	StartedAt   time.Time
}

func (s Session) withMode(m Mode) *Session {
	s.Mode = m
	s.Gloss = ""
	s.LastEmitted = gesture.NoLabel
	return &s
}

func (s Session) withLanguage(lang string) *Session {
	s.Language = lang
	s.Mode = Live
	s.Gloss = ""
	s.LastEmitted = gesture.NoLabel
	return &s
}

func (s Session) withGloss(gloss string) *Session {
	s.Gloss = strings.ToLower(gloss)
	s.LastEmitted = gesture.NoLabel
	return &s
}

func (s Session) withLastEmitted(classID int) *Session {
	s.LastEmitted = classID
	return &s
}

// Surfaces reports whether debounced words are delivered in this state.
func (s Session) Surfaces() bool {
	return s.Mode == Live || (s.Mode == Training && s.Gloss != "")
}
