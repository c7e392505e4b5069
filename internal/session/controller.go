package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/signflow/signflow/internal/buffer"
	"github.com/signflow/signflow/internal/config"
	"github.com/signflow/signflow/internal/emitter"
	"github.com/signflow/signflow/internal/gesture"
	"github.com/signflow/signflow/internal/metrics"
	"github.com/signflow/signflow/internal/model"
	"github.com/signflow/signflow/internal/recognizer"
	"github.com/signflow/signflow/internal/tensor"
)

const imagePrefix = "data:image"

// Ingestor preprocesses client images into the frame queue.
type Ingestor interface {
	// IngestDataURI decodes and, on the frame interval, enqueues an image.
	IngestDataURI(uri string) (bool, error)
}

// IngestorFactory builds an Ingestor for a language writing into frames.
type IngestorFactory func(lang *config.Language, frames *buffer.Queue[tensor.Frame]) Ingestor

// Options configures a Controller.
type Options struct {
	// Languages the client may switch to.
	Languages []string
	// LoadLanguage returns the config for a language code.
	LoadLanguage func(code string) (*config.Language, error)
	NewIngestor  IngestorFactory
	Loader       model.Loader

	StartTimeout time.Duration
	StopTimeout  time.Duration
	IdleInterval time.Duration
	// MaxBacklog is the number of windows the frame queue may hold before
	// stale frames are flushed. Zero means 4.
	MaxBacklog int

	Emitter emitter.Emitter
	Logger  *slog.Logger
}

// Controller owns one session: its state, buffers, and the worker for the
// active language. Transitions are serialized; the state is read lock-free.
type Controller struct {
	opts   Options
	logger *slog.Logger

	state atomic.Pointer[Session]

	frames      *buffer.Queue[tensor.Frame]
	predictions *buffer.Queue[gesture.Gesture]

	mu        sync.Mutex
	lang      *config.Language
	ingestor  Ingestor
	worker    *recognizer.Worker
	debouncer *gesture.Debouncer
	closed    bool
}

// New creates a controller with no language loaded.
func New(opts Options) *Controller {
	if opts.StartTimeout <= 0 {
		opts.StartTimeout = 60 * time.Second
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 2 * time.Second
	}
	if opts.MaxBacklog <= 0 {
		opts.MaxBacklog = 4
	}
	if opts.Emitter == nil {
		opts.Emitter = emitter.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	id := uuid.NewString()
	c := &Controller{
		opts:        opts,
		logger:      opts.Logger.With("session_id", id),
		frames:      buffer.New[tensor.Frame](),
		predictions: buffer.New[gesture.Gesture](),
	}
	c.state.Store(&Session{
		ID:          id,
		Mode:        Live,
		LastEmitted: gesture.NoLabel,
		StartedAt:   time.Now().UTC(),
	})
	return c
}

// Session returns the current state.
func (c *Controller) Session() Session {
	return *c.state.Load()
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.state.Load().ID
}

// SetMode switches the operating mode. It reports whether the mode changed;
// an unchanged mode leaves everything as is.
func (c *Controller) SetMode(mode string) (bool, error) {
	m, err := ParseMode(mode)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.state.Load()
	if cur.Mode == m {
		return false, nil
	}

	c.resetBuffers()
	c.state.Store(cur.withMode(m))
	c.logger.Info("mode changed", "from", cur.Mode, "to", m)
	return true, nil
}

// SetLanguage replaces the worker with one for code and blocks until its
// model is ready. The session returns to LIVE with no gloss.
func (c *Controller) SetLanguage(ctx context.Context, code string) error {
	if !slices.Contains(c.opts.Languages, code) {
		return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, code)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	lang, err := c.opts.LoadLanguage(code)
	if err != nil {
		c.logger.Error("language config unavailable", "language", code, "error", err)
		return fmt.Errorf("%w: %w", ErrLanguageConfig, err)
	}

	c.stopWorker()
	c.resetBuffers()
	c.lang = lang
	c.debouncer = gesture.NewDebouncer(lang.Threshold)
	c.state.Store(c.state.Load().withLanguage(code))

	c.ingestor = c.opts.NewIngestor(lang, c.frames)
	worker := recognizer.New(recognizer.Config{
		Language:     code,
		ModelPath:    lang.ModelPath,
		WindowSize:   lang.WindowSize,
		Stride:       lang.Stride,
		Labels:       gesture.Labels(lang.Labels),
		IdleInterval: c.opts.IdleInterval,
	}, c.opts.Loader, c.frames, c.predictions, c.logger)

	loadCtx, cancel := context.WithTimeout(ctx, c.opts.StartTimeout)
	defer cancel()

	if err := worker.Start(loadCtx); err != nil {
		return fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	if err := worker.WaitReady(loadCtx); err != nil {
		worker.Stop(c.opts.StopTimeout)
		c.ingestor = nil
		return fmt.Errorf("%w for %s: %w", ErrModelLoad, code, err)
	}

	c.worker = worker
	c.logger.Info("language loaded",
		"language", code,
		"window_size", lang.WindowSize,
		"stride", lang.EffectiveStride(),
		"threshold", lang.Threshold)
	return nil
}

// SetGloss sets the training target. Outside TRAINING mode it returns
// ErrGlossOutsideTraining and changes nothing.
func (c *Controller) SetGloss(gloss string) error {
	gloss = strings.TrimSpace(gloss)
	if gloss == "" {
		return ErrInvalidGloss
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.state.Load()
	if cur.Mode != Training {
		return ErrGlossOutsideTraining
	}

	c.resetBuffers()
	next := cur.withGloss(gloss)
	c.state.Store(next)
	c.logger.Info("gloss set", "gloss", next.Gloss)
	return nil
}

// OnFrame forwards an image data URI to the active ingestor.
func (c *Controller) OnFrame(uri string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkWorker(); err != nil {
		return err
	}
	if !strings.HasPrefix(uri, imagePrefix) {
		return ErrInvalidImage
	}

	if _, err := c.ingestor.IngestDataURI(uri); err != nil {
		c.logger.Warn("frame rejected", "error", err)
		return fmt.Errorf("%w: %w", ErrImageDecode, err)
	}

	if backlog := c.frames.Len(); backlog > c.opts.MaxBacklog*c.lang.WindowSize {
		dropped := c.worker.ClearWindow()
		c.logger.Warn("worker falling behind, flushed stale frames", "backlog", backlog, "dropped", dropped)
	}
	return nil
}

// Ready reports whether a worker is running for the active language. It has
// the same side effects as the check OnFrame performs.
func (c *Controller) Ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checkWorker()
}

// checkWorker reports a missing or failed worker. A failed worker is torn
// down so later calls see ErrNoWorker until a language is loaded again.
func (c *Controller) checkWorker() error {
	if c.worker == nil {
		return ErrNoWorker
	}

	select {
	case <-c.worker.Done():
	default:
		return nil
	}

	err := c.worker.Err()
	c.worker.Stop(c.opts.StopTimeout)
	c.worker = nil
	c.ingestor = nil
	if err == nil {
		return ErrNoWorker
	}
	return fmt.Errorf("%w: %w", ErrWorkerFailed, err)
}

// PollAnswer returns a confirmed word if the debouncer accepts the latest
// predictions and the session state surfaces words.
func (c *Controller) PollAnswer(ctx context.Context) (gesture.Gesture, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.state.Load()
	if c.debouncer == nil || !cur.Surfaces() {
		return gesture.Gesture{}, false
	}

	g, ok := c.debouncer.Decide(c.predictions.Tail(2), cur.LastEmitted)
	if !ok {
		return gesture.Gesture{}, false
	}

	c.state.Store(cur.withLastEmitted(g.ClassID))
	metrics.RecordWord(cur.Language, string(cur.Mode))
	c.logger.Info("word", "gloss", g.Gloss, "class_id", g.ClassID, "confidence", g.Confidence)

	ev := emitter.Event{
		SessionID:  cur.ID,
		Language:   cur.Language,
		Mode:       string(cur.Mode),
		Gloss:      g.Gloss,
		ClassID:    g.ClassID,
		Confidence: g.Confidence,
		At:         time.Now().UTC(),
	}
	if cur.Mode == Training {
		ev.TargetGloss = cur.Gloss
		ev.Correct = strings.EqualFold(g.Gloss, cur.Gloss)
	}
	if err := c.opts.Emitter.Emit(ctx, ev); err != nil {
		c.logger.Warn("word event not delivered", "error", err)
	}

	return g, true
}

// Reset drops buffered frames and predictions and forgets the last emitted
// word. Mode, language and gloss are kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetBuffers()
	c.state.Store(c.state.Load().withLastEmitted(gesture.NoLabel))
}

// Snapshot is a diagnostic view of the controller.
type Snapshot struct {
	SessionID   string            `json:"session_id"`
	Mode        Mode              `json:"current_mode"`
	Language    string            `json:"language"`
	Gloss       *string           `json:"current_gloss"`
	LastEmitted int               `json:"last_emitted"`
	Frames      int               `json:"len_frames"`
	Predictions []gesture.Gesture `json:"prediction_list"`
	WorkerState string            `json:"worker_state"`
	WorkerError string            `json:"worker_error,omitempty"`
}

// snapshotPredictions bounds how many recent predictions Snapshot returns.
const snapshotPredictions = 10

// Snapshot returns the current state for diagnostics.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.state.Load()
	snap := Snapshot{
		SessionID:   cur.ID,
		Mode:        cur.Mode,
		Language:    cur.Language,
		LastEmitted: cur.LastEmitted,
		Frames:      c.frames.Len(),
		Predictions: c.predictions.Tail(snapshotPredictions),
		WorkerState: recognizer.Stopped.String(),
	}
	if cur.Gloss != "" {
		g := cur.Gloss
		snap.Gloss = &g
	}
	if snap.Predictions == nil {
		snap.Predictions = []gesture.Gesture{}
	}
	if c.worker != nil {
		snap.WorkerState = c.worker.State().String()
		if err := c.worker.Err(); err != nil {
			snap.WorkerError = err.Error()
		}
	}
	return snap
}

// Close stops the worker and clears the buffers. It is safe to call twice.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	err := c.stopWorker()
	c.resetBuffers()
	c.logger.Info("session closed")
	return err
}

func (c *Controller) stopWorker() error {
	if c.worker == nil {
		return nil
	}

	err := c.worker.Stop(c.opts.StopTimeout)
	if errors.Is(err, recognizer.ErrStopTimeout) {
		c.logger.Warn("worker force-stopped", "timeout", c.opts.StopTimeout)
	}
	c.worker = nil
	c.ingestor = nil
	return err
}

func (c *Controller) resetBuffers() {
	if c.worker != nil {
		c.worker.Invalidate()
	}
	c.frames.Clear()
	c.predictions.Clear()
}
