// Package recognizer runs the inference worker that turns buffered frames into
// per-window predictions.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signflow/signflow/internal/buffer"
	"github.com/signflow/signflow/internal/gesture"
	"github.com/signflow/signflow/internal/metrics"
	"github.com/signflow/signflow/internal/model"
	"github.com/signflow/signflow/internal/tensor"
)

// DefaultIdleInterval is how long the worker sleeps when no window is ready.
const DefaultIdleInterval = 10 * time.Millisecond

var (
	// ErrStopTimeout is returned by Stop when the loop did not exit in time
	// and the model was force-closed.
	ErrStopTimeout = errors.New("worker did not stop in time")
	// ErrNotReady is returned by Step before a model is loaded.
	ErrNotReady = errors.New("worker model is not loaded")
	// ErrAlreadyStarted is returned when Start or Load is called twice.
	ErrAlreadyStarted = errors.New("worker already started")
)

// State is the lifecycle state of a Worker.
type State int32

// Worker states.
const (
	Stopped State = iota
	Loading
	Ready
	Running
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Loading:
		return "LOADING"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Config holds the per-language settings a worker runs with.
type Config struct {
	Language   string
	ModelPath  string
	WindowSize int
	// Stride is the number of frames dropped after each window.
	// Zero means a full window.
	Stride       int
	Labels       gesture.Labels
	IdleInterval time.Duration
}

func (c Config) stride() int {
	if c.Stride > 0 {
		return c.Stride
	}
	return c.WindowSize
}

// Worker classifies windows taken from a frame queue and appends the results
// to a prediction queue.
type Worker struct {
	cfg         Config
	loader      model.Loader
	frames      *buffer.Queue[tensor.Frame]
	predictions *buffer.Queue[gesture.Gesture]
	logger      *slog.Logger

	state   atomic.Int32
	started atomic.Bool
	looping atomic.Bool
	// generation is bumped by Invalidate; results of windows taken under an
	// older generation are discarded.
	generation atomic.Uint64

	mu         sync.Mutex
	classifier model.Classifier
	err        error

	ready    chan struct{}
	readyErr error

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	runCtx      context.Context
	cancelRun   context.CancelFunc
	releaseOnce sync.Once
}

// New creates a stopped worker.
func New(cfg Config, loader model.Loader, frames *buffer.Queue[tensor.Frame], predictions *buffer.Queue[gesture.Gesture], logger *slog.Logger) *Worker {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &Worker{
		cfg:         cfg,
		loader:      loader,
		frames:      frames,
		predictions: predictions,
		logger:      logger.With("language", cfg.Language),
		ready:       make(chan struct{}),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		runCtx:      runCtx,
		cancelRun:   cancel,
	}
}

// Start loads the model and runs the loop in a new goroutine.
// ctx bounds loading only. Use WaitReady to block until the model is loaded.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	w.looping.Store(true)
	go func() {
		if err := w.load(ctx); err != nil {
			close(w.done)
			return
		}
		w.run()
	}()
	return nil
}

// Load loads the model synchronously without starting the loop.
// Windows can then be processed with Step.
func (w *Worker) Load(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	err := w.load(ctx)
	if err != nil {
		close(w.done)
	}
	return err
}

func (w *Worker) load(ctx context.Context) error {
	w.state.Store(int32(Loading))
	start := time.Now()

	c, err := w.loader.Load(ctx, w.cfg.ModelPath)
	if err == nil {
		if verr := c.Info().Validate(); verr != nil {
			c.Close()
			err = verr
		}
	}
	if err == nil && w.stopping() {
		c.Close()
		err = errors.New("worker stopped during load")
	}

	if err != nil {
		err = fmt.Errorf("load model %s: %w", w.cfg.ModelPath, err)
		metrics.RecordModelLoad(w.cfg.Language, "error", time.Since(start).Seconds())
		w.logger.Error("model load failed", "error", err)

		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
		w.readyErr = err
		w.state.Store(int32(Stopped))
		close(w.ready)
		return err
	}

	w.mu.Lock()
	w.classifier = c
	w.mu.Unlock()

	metrics.RecordModelLoad(w.cfg.Language, "success", time.Since(start).Seconds())
	info := c.Info()
	w.logger.Info("model ready",
		"input", info.InputName,
		"input_shape", info.InputShape,
		"outputs", info.OutputNames,
		"duration", time.Since(start))

	w.state.Store(int32(Ready))
	close(w.ready)
	return nil
}

func (w *Worker) run() {
	defer close(w.done)

	w.state.Store(int32(Running))

	idle := time.NewTimer(w.cfg.IdleInterval)
	defer idle.Stop()

	for {
		select {
		case <-w.stopCh:
			w.release()
			w.state.Store(int32(Stopped))
			return
		default:
		}

		worked, err := w.Step()
		if err != nil {
			if w.stopping() {
				// Force-closed mid-inference.
				w.release()
				w.state.Store(int32(Stopped))
				return
			}
			w.fail(err)
			return
		}
		if worked {
			continue
		}

		idle.Reset(w.cfg.IdleInterval)
		select {
		case <-w.stopCh:
			w.release()
			w.state.Store(int32(Stopped))
			return
		case <-idle.C:
		}
	}
}

// Step processes one window if enough frames are buffered.
// It reports whether a window was consumed.
func (w *Worker) Step() (bool, error) {
	w.mu.Lock()
	c := w.classifier
	w.mu.Unlock()
	if c == nil {
		return false, ErrNotReady
	}

	gen := w.generation.Load()
	window, ok := w.frames.TakeWindow(w.cfg.WindowSize, w.cfg.stride())
	if !ok {
		return false, nil
	}

	input, shape, err := tensor.Stack(window)
	if err != nil {
		return true, fmt.Errorf("stack window: %w", err)
	}

	start := time.Now()
	scores, err := c.Classify(w.runCtx, input, shape)
	if err != nil {
		return true, fmt.Errorf("classify: %w", err)
	}
	elapsed := time.Since(start)

	g, err := gesture.FromScores(scores, w.cfg.Labels)
	if err != nil {
		return true, err
	}
	if gen != w.generation.Load() {
		w.logger.Debug("discarding prediction for invalidated window", "gloss", g.Gloss)
		return true, nil
	}
	w.predictions.Push(g)

	queued := w.frames.Len()
	metrics.RecordInference(w.cfg.Language, elapsed.Seconds())
	metrics.SetFrameQueueLength(queued)
	w.logger.Debug("prediction",
		"gloss", g.Gloss,
		"class_id", g.ClassID,
		"confidence", g.Confidence,
		"latency", elapsed,
		"queued", queued)

	return true, nil
}

func (w *Worker) stopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

func (w *Worker) fail(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()

	metrics.RecordWorkerFailure(w.cfg.Language, "inference")
	w.logger.Error("worker failed", "error", err)

	w.release()
	w.state.Store(int32(Stopped))
}

func (w *Worker) release() {
	w.releaseOnce.Do(func() {
		w.cancelRun()

		w.mu.Lock()
		c := w.classifier
		w.classifier = nil
		w.mu.Unlock()

		if c != nil {
			if err := c.Close(); err != nil {
				w.logger.Warn("model close failed", "error", err)
			}
		}
	})
}

// WaitReady blocks until the model is loaded or loading failed.
func (w *Worker) WaitReady(ctx context.Context) error {
	select {
	case <-w.ready:
		return w.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop signals the loop to exit and waits up to timeout for it to do so.
// If the loop is stuck the model is force-closed and ErrStopTimeout returned.
func (w *Worker) Stop(timeout time.Duration) error {
	w.stopOnce.Do(func() { close(w.stopCh) })

	if !w.started.Load() || !w.looping.Load() {
		w.release()
		w.state.Store(int32(Stopped))
		return nil
	}

	select {
	case <-w.done:
		w.release()
		w.state.Store(int32(Stopped))
		return nil
	case <-time.After(timeout):
		return w.forceStop()
	}
}

func (w *Worker) forceStop() error {
	metrics.RecordWorkerFailure(w.cfg.Language, "stop_timeout")
	w.logger.Warn("worker did not stop, force-closing model")
	w.release()
	w.state.Store(int32(Stopped))
	return ErrStopTimeout
}

// Invalidate discards the result of any window currently being classified.
// Callers use it before clearing the buffers.
func (w *Worker) Invalidate() {
	w.generation.Add(1)
}

// ClearWindow drops stale frames from the head of the frame queue: stride
// frames when a stride is configured, otherwise a full window.
func (w *Worker) ClearWindow() int {
	if w.cfg.Stride > 0 {
		return w.frames.Drop(w.cfg.Stride)
	}
	return w.frames.Drop(w.cfg.WindowSize)
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Err returns the error that terminated the worker, if any.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done is closed when the worker has stopped running.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Info returns the loaded model's tensors, or false before loading.
func (w *Worker) Info() (model.Info, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.classifier == nil {
		return model.Info{}, false
	}
	return w.classifier.Info(), true
}

// Config returns the worker's settings.
func (w *Worker) Config() Config {
	return w.cfg
}
