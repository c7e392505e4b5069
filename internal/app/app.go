// Package app runs a recognition session against a local camera instead of a
// websocket client.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/signflow/signflow/internal/capture"
	"github.com/signflow/signflow/internal/gesture"
	"github.com/signflow/signflow/internal/logging"
	"github.com/signflow/signflow/internal/session"
)

// Config holds configuration options for the application.
type Config struct {
	Camera     capture.Camera
	Controller *session.Controller
	// Gate, when set, only feeds frames while motion is seen.
	Gate *capture.MotionGate
	// Preview receives every captured frame as JPEG.
	Preview *capture.Preview
	// OnWord is called for every confirmed word.
	OnWord func(gesture.Gesture)
	Logger *slog.Logger
}

// App feeds camera frames into a session controller and reports the words it
// confirms.
type App struct {
	config Config
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	frames  int
	words   int
}

// Stats counts what a run has processed.
type Stats struct {
	Frames int
	Words  int
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.OnWord == nil {
		config.OnWord = func(gesture.Gesture) {}
	}
	return &App{
		config: config,
		logger: logging.For(config.Logger, logging.CategoryApp),
	}
}

// Run opens the camera and processes frames until ctx is cancelled, the
// camera runs out of frames, or the session loses its worker.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return errors.New("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	cam := a.config.Camera
	if err := cam.Open(); err != nil {
		return err
	}
	defer func() {
		if err := cam.Close(); err != nil {
			a.logger.Warn("error closing camera", "error", err)
		}
	}()

	fps := cam.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	a.logger.Info("capture started", "fps", fps, "motion_gate", a.config.Gate != nil)

	active := a.config.Gate == nil
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		err := a.step(ctx, &active)
		switch {
		case err == nil:
		case errors.Is(err, capture.ErrEndOfFrames):
			a.logger.Info("capture finished", "frames", a.Stats().Frames)
			return nil
		case errors.Is(err, session.ErrNoWorker), errors.Is(err, session.ErrWorkerFailed):
			return err
		default:
			a.logger.Warn("frame skipped", "error", err)
		}
	}
}

func (a *App) step(ctx context.Context, active *bool) error {
	frame, err := a.config.Camera.ReadFrame()
	if err != nil {
		return err
	}
	defer frame.Close()

	jpeg, err := capture.Encode(*frame)
	if err != nil {
		return err
	}
	if a.config.Preview != nil {
		a.config.Preview.Set(jpeg)
	}

	if gate := a.config.Gate; gate != nil {
		open, changed := gate.Observe(*frame, time.Now())
		if open != *active {
			*active = open
			if open {
				a.logger.Debug("motion detected, recognizing", "changed_pct", changed)
			} else {
				// Frames from before the pause must not join the next window.
				a.config.Controller.Reset()
				a.logger.Debug("no motion, pausing")
			}
		}
		if !open {
			return nil
		}
	}

	ctrl := a.config.Controller
	if err := ctrl.OnFrame(capture.EncodeDataURI("image/jpeg", jpeg)); err != nil {
		return err
	}

	a.mu.Lock()
	a.frames++
	a.mu.Unlock()

	if g, ok := ctrl.PollAnswer(ctx); ok {
		a.mu.Lock()
		a.words++
		a.mu.Unlock()
		a.config.OnWord(g)
	}
	return nil
}

// Stats returns counters for the current or last run.
func (a *App) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{Frames: a.frames, Words: a.words}
}
