package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signflow/signflow/internal/buffer"
	"github.com/signflow/signflow/internal/config"
	"github.com/signflow/signflow/internal/emitter"
	"github.com/signflow/signflow/internal/model"
	"github.com/signflow/signflow/internal/tensor"
)

const frameURI = "data:image/jpeg;base64,AAAA"

// fakeIngestor enqueues one 1x1 frame per image, or fails on "corrupt" payloads.
type fakeIngestor struct {
	frames *buffer.Queue[tensor.Frame]
}

func (f *fakeIngestor) IngestDataURI(uri string) (bool, error) {
	if strings.Contains(uri, "corrupt") {
		return false, errors.New("cannot decode")
	}
	f.frames.Push(tensor.NewFrame(1, 1))
	return true, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitter.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev emitter.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEmitter) Close() error { return nil }

func (r *recordingEmitter) Events() []emitter.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]emitter.Event(nil), r.events...)
}

// scores returns a six-class score vector peaking at class with p.
func scores(class int, p float32) []float32 {
	s := make([]float32, 6)
	rest := (1 - p) / 5
	for i := range s {
		s[i] = rest
	}
	s[class] = p
	return s
}

type harness struct {
	ctrl    *Controller
	emitter *recordingEmitter

	mu          sync.Mutex
	loadErr     error
	next        []*model.MockClassifier
	classifiers []*model.MockClassifier
}

func newHarness(t *testing.T, window, stride int) *harness {
	t.Helper()

	h := &harness{emitter: &recordingEmitter{}}

	langs := map[string]*config.Language{
		"ru": {
			Code: "ru", ModelPath: "ru.onnx", FrameInterval: 1,
			WindowSize: window, Stride: stride, Threshold: 0.8,
			Labels: []string{"---", "привет", "пока", "да", "нет", "спасибо"},
		},
		"en": {
			Code: "en", ModelPath: "en.onnx", FrameInterval: 1,
			WindowSize: window, Stride: stride, Threshold: 0.8,
			Labels: []string{"---", "hello", "bye", "yes", "no", "thanks"},
		},
	}

	h.ctrl = New(Options{
		Languages: []string{"ru", "en", "fr"},
		LoadLanguage: func(code string) (*config.Language, error) {
			lang, ok := langs[code]
			if !ok {
				return nil, fmt.Errorf("%w: config_%s.yaml", config.ErrLanguageNotFound, code)
			}
			cp := *lang
			return &cp, nil
		},
		NewIngestor: func(_ *config.Language, frames *buffer.Queue[tensor.Frame]) Ingestor {
			return &fakeIngestor{frames: frames}
		},
		Loader:       model.LoaderFunc(h.load),
		StartTimeout: time.Second,
		StopTimeout:  time.Second,
		IdleInterval: time.Millisecond,
		Emitter:      h.emitter,
	})
	t.Cleanup(func() { h.ctrl.Close() })
	return h
}

func (h *harness) load(ctx context.Context, path string) (model.Classifier, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.loadErr != nil {
		return nil, h.loadErr
	}
	c := model.NewMockClassifier(scores(0, 0.9))
	if len(h.next) > 0 {
		c = h.next[0]
		h.next = h.next[1:]
	}
	h.classifiers = append(h.classifiers, c)
	return c, nil
}

// queue makes the next load return c.
func (h *harness) queue(c *model.MockClassifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next = append(h.next, c)
}

func (h *harness) failLoads(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loadErr = err
}

func (h *harness) loaded() []*model.MockClassifier {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*model.MockClassifier(nil), h.classifiers...)
}

func (h *harness) feed(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := h.ctrl.OnFrame(frameURI); err != nil {
			t.Fatalf("OnFrame() #%d error = %v", i, err)
		}
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestController_LiveWordAfterTwoAgreeingWindows(t *testing.T) {
	h := newHarness(t, 32, 1)
	h.queue(model.NewMockClassifier(scores(5, 0.9), scores(5, 0.85)))

	if err := h.ctrl.SetLanguage(context.Background(), "ru"); err != nil {
		t.Fatalf("SetLanguage() error = %v", err)
	}

	h.feed(t, 33)

	var word string
	eventually(t, "word", func() bool {
		g, ok := h.ctrl.PollAnswer(context.Background())
		word = g.Gloss
		return ok
	})
	if word != "спасибо" {
		t.Errorf("word = %q, want спасибо", word)
	}

	if _, ok := h.ctrl.PollAnswer(context.Background()); ok {
		t.Error("same class emitted twice in a row")
	}
	if got := h.ctrl.Session().LastEmitted; got != 5 {
		t.Errorf("LastEmitted = %d, want 5", got)
	}

	events := h.emitter.Events()
	if len(events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(events))
	}
	if events[0].Mode != "LIVE" || events[0].Language != "ru" || events[0].ClassID != 5 {
		t.Errorf("event = %+v", events[0])
	}
}

func TestController_NoWordBelowThreshold(t *testing.T) {
	h := newHarness(t, 4, 1)
	h.queue(model.NewMockClassifier(scores(2, 0.7), scores(2, 0.75)))
	h.ctrl.SetLanguage(context.Background(), "ru")

	h.feed(t, 5)
	eventually(t, "two classifications", func() bool { return len(h.ctrl.Snapshot().Predictions) == 2 })

	if _, ok := h.ctrl.PollAnswer(context.Background()); ok {
		t.Error("word emitted below threshold")
	}
}

func TestController_TrainingRequiresGloss(t *testing.T) {
	h := newHarness(t, 4, 1)
	h.queue(model.NewMockClassifier(scores(1, 0.95)))
	h.ctrl.SetLanguage(context.Background(), "ru")

	if changed, err := h.ctrl.SetMode("TRAINING"); err != nil || !changed {
		t.Fatalf("SetMode() = %v, %v", changed, err)
	}

	h.feed(t, 5)
	eventually(t, "two classifications", func() bool { return len(h.ctrl.Snapshot().Predictions) == 2 })
	if _, ok := h.ctrl.PollAnswer(context.Background()); ok {
		t.Fatal("word surfaced in TRAINING without a gloss")
	}

	if err := h.ctrl.SetGloss("ПРИВЕТ"); err != nil {
		t.Fatalf("SetGloss() error = %v", err)
	}
	if got := h.ctrl.Session().Gloss; got != "привет" {
		t.Errorf("Gloss = %q, want lowercased", got)
	}

	h.feed(t, 5)
	eventually(t, "word", func() bool {
		_, ok := h.ctrl.PollAnswer(context.Background())
		return ok
	})

	events := h.emitter.Events()
	if len(events) != 1 {
		t.Fatalf("emitted %d events, want 1", len(events))
	}
	if !events[0].Correct || events[0].TargetGloss != "привет" || events[0].Mode != "TRAINING" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestController_GlossOutsideTraining(t *testing.T) {
	h := newHarness(t, 32, 1)
	h.ctrl.SetLanguage(context.Background(), "ru")
	h.feed(t, 3)
	before := h.ctrl.Session()

	err := h.ctrl.SetGloss("привет")
	if !errors.Is(err, ErrGlossOutsideTraining) {
		t.Fatalf("SetGloss() error = %v, want ErrGlossOutsideTraining", err)
	}
	if h.ctrl.Session() != before {
		t.Error("rejected gloss changed session state")
	}
	if h.ctrl.Snapshot().Frames != 3 {
		t.Error("rejected gloss cleared buffers")
	}

	if err := h.ctrl.SetGloss("   "); !errors.Is(err, ErrInvalidGloss) {
		t.Errorf("blank gloss error = %v, want ErrInvalidGloss", err)
	}
}

func TestController_TransitionsResetBuffers(t *testing.T) {
	tests := []struct {
		name  string
		apply func(c *Controller) error
	}{
		{"mode", func(c *Controller) error {
			_, err := c.SetMode("TRAINING")
			return err
		}},
		{"gloss", func(c *Controller) error {
			c.SetMode("TRAINING")
			return c.SetGloss("да")
		}},
		{"language", func(c *Controller) error {
			return c.SetLanguage(context.Background(), "en")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 32, 1)
			h.ctrl.SetLanguage(context.Background(), "ru")
			h.feed(t, 10)

			if err := tt.apply(h.ctrl); err != nil {
				t.Fatalf("transition error = %v", err)
			}

			snap := h.ctrl.Snapshot()
			if snap.Frames != 0 || len(snap.Predictions) != 0 {
				t.Errorf("buffers not reset: %d frames, %d predictions", snap.Frames, len(snap.Predictions))
			}
			if snap.LastEmitted != -1 {
				t.Errorf("LastEmitted = %d, want -1", snap.LastEmitted)
			}
		})
	}
}

func TestController_SameModeIsNoop(t *testing.T) {
	h := newHarness(t, 32, 1)
	h.ctrl.SetLanguage(context.Background(), "ru")
	h.feed(t, 4)

	changed, err := h.ctrl.SetMode("LIVE")
	if err != nil || changed {
		t.Errorf("SetMode(LIVE) = %v, %v; want false, nil", changed, err)
	}
	if h.ctrl.Snapshot().Frames != 4 {
		t.Error("unchanged mode cleared buffers")
	}

	if _, err := h.ctrl.SetMode("live"); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("SetMode(live) error = %v, want ErrInvalidMode", err)
	}
}

func TestController_LanguageSwitch(t *testing.T) {
	h := newHarness(t, 32, 1)
	h.ctrl.SetLanguage(context.Background(), "ru")
	h.ctrl.SetMode("TRAINING")
	h.ctrl.SetGloss("да")

	if err := h.ctrl.SetLanguage(context.Background(), "en"); err != nil {
		t.Fatalf("SetLanguage(en) error = %v", err)
	}

	s := h.ctrl.Session()
	if s.Language != "en" || s.Mode != Live || s.Gloss != "" {
		t.Errorf("session after switch = %+v", s)
	}

	loaded := h.loaded()
	if len(loaded) != 2 {
		t.Fatalf("loaded %d models, want 2", len(loaded))
	}
	if !loaded[0].Closed() {
		t.Error("previous model not released")
	}
	if loaded[1].Closed() {
		t.Error("new model closed")
	}
}

func TestController_MissingLanguageConfigKeepsWorker(t *testing.T) {
	h := newHarness(t, 32, 1)
	h.ctrl.SetLanguage(context.Background(), "ru")
	h.feed(t, 2)

	err := h.ctrl.SetLanguage(context.Background(), "fr")
	if !errors.Is(err, ErrLanguageConfig) {
		t.Fatalf("SetLanguage(fr) error = %v, want ErrLanguageConfig", err)
	}

	if h.ctrl.Session().Language != "ru" {
		t.Errorf("Language = %q, want ru", h.ctrl.Session().Language)
	}
	if h.loaded()[0].Closed() {
		t.Error("worker torn down by a failed switch")
	}
	if err := h.ctrl.OnFrame(frameURI); err != nil {
		t.Errorf("OnFrame() after failed switch error = %v", err)
	}
	if h.ctrl.Snapshot().Frames != 3 {
		t.Error("failed switch cleared buffers")
	}
}

func TestController_UnsupportedLanguage(t *testing.T) {
	h := newHarness(t, 32, 1)

	err := h.ctrl.SetLanguage(context.Background(), "de")
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Errorf("SetLanguage(de) error = %v, want ErrUnsupportedLanguage", err)
	}
	if len(h.loaded()) != 0 {
		t.Error("model loaded for unsupported language")
	}
}

func TestController_ModelLoadFailure(t *testing.T) {
	h := newHarness(t, 32, 1)
	h.failLoads(errors.New("no such file"))

	err := h.ctrl.SetLanguage(context.Background(), "ru")
	if !errors.Is(err, ErrModelLoad) {
		t.Fatalf("SetLanguage() error = %v, want ErrModelLoad", err)
	}

	if err := h.ctrl.OnFrame(frameURI); !errors.Is(err, ErrNoWorker) {
		t.Errorf("OnFrame() error = %v, want ErrNoWorker", err)
	}
	if got := h.ctrl.Snapshot().WorkerState; got != "STOPPED" {
		t.Errorf("WorkerState = %q, want STOPPED", got)
	}
}

func TestController_WorkerFailure(t *testing.T) {
	h := newHarness(t, 2, 1)
	c := model.NewMockClassifier()
	c.SetError(errors.New("bad tensor"))
	h.queue(c)
	h.ctrl.SetLanguage(context.Background(), "ru")

	h.feed(t, 2)
	eventually(t, "worker failure", func() bool { return h.ctrl.Snapshot().WorkerError != "" })

	if err := h.ctrl.OnFrame(frameURI); !errors.Is(err, ErrWorkerFailed) {
		t.Fatalf("first OnFrame() error = %v, want ErrWorkerFailed", err)
	}
	if err := h.ctrl.OnFrame(frameURI); !errors.Is(err, ErrNoWorker) {
		t.Errorf("second OnFrame() error = %v, want ErrNoWorker", err)
	}

	// Reloading the language recovers.
	if err := h.ctrl.SetLanguage(context.Background(), "ru"); err != nil {
		t.Fatalf("SetLanguage() error = %v", err)
	}
	if err := h.ctrl.OnFrame(frameURI); err != nil {
		t.Errorf("OnFrame() after reload error = %v", err)
	}
}

func TestController_OnFrameErrors(t *testing.T) {
	h := newHarness(t, 32, 1)

	if err := h.ctrl.OnFrame(frameURI); !errors.Is(err, ErrNoWorker) {
		t.Errorf("OnFrame() before language error = %v, want ErrNoWorker", err)
	}

	h.ctrl.SetLanguage(context.Background(), "ru")

	tests := []struct {
		name string
		uri  string
		want error
	}{
		{"missing prefix", "iVBORw0KGgo=", ErrInvalidImage},
		{"other scheme", "data:text/plain;base64,aGk=", ErrInvalidImage},
		{"corrupt payload", "data:image/png;base64,corrupt", ErrImageDecode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.ctrl.OnFrame(tt.uri); !errors.Is(err, tt.want) {
				t.Errorf("OnFrame() error = %v, want %v", err, tt.want)
			}
		})
	}

	if h.ctrl.Snapshot().Frames != 0 {
		t.Error("rejected images were enqueued")
	}
}

func TestController_BacklogFlush(t *testing.T) {
	h := newHarness(t, 4, 2)
	c := model.NewMockClassifier()
	release := c.Block()
	defer release()
	h.queue(c)
	h.ctrl.SetLanguage(context.Background(), "ru")

	// The worker holds one window; the rest piles up.
	h.feed(t, 4)
	eventually(t, "window taken", func() bool { return h.ctrl.Snapshot().Frames == 2 })
	h.feed(t, 15)

	if got := h.ctrl.Snapshot().Frames; got > 16 {
		t.Errorf("backlog = %d frames, want at most 16", got)
	}
}

func TestController_Snapshot(t *testing.T) {
	h := newHarness(t, 32, 1)
	h.ctrl.SetLanguage(context.Background(), "ru")
	h.ctrl.SetMode("TRAINING")
	h.ctrl.SetGloss("Пока")
	h.feed(t, 3)

	snap := h.ctrl.Snapshot()
	if snap.Mode != Training || snap.Language != "ru" || snap.Frames != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Gloss == nil || *snap.Gloss != "пока" {
		t.Errorf("Gloss = %v, want пока", snap.Gloss)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var fields map[string]any
	json.Unmarshal(data, &fields)
	for _, key := range []string{"session_id", "current_mode", "current_gloss", "len_frames", "prediction_list", "worker_state"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("snapshot JSON missing %q", key)
		}
	}
}

func TestController_Close(t *testing.T) {
	h := newHarness(t, 32, 1)
	h.ctrl.SetLanguage(context.Background(), "ru")

	if err := h.ctrl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := h.ctrl.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if !h.loaded()[0].Closed() {
		t.Error("model not released on close")
	}
	if err := h.ctrl.SetLanguage(context.Background(), "ru"); !errors.Is(err, ErrClosed) {
		t.Errorf("SetLanguage() after close error = %v, want ErrClosed", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"LIVE", Live, false},
		{"TRAINING", Training, false},
		{"training", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
			}
		})
	}
}

func TestController_Reset(t *testing.T) {
	h := newHarness(t, 4, 1)
	h.queue(model.NewMockClassifier(scores(3, 0.9)))
	h.ctrl.SetLanguage(context.Background(), "ru")
	h.ctrl.SetMode("TRAINING")
	h.ctrl.SetGloss("да")

	h.feed(t, 5)
	eventually(t, "word", func() bool {
		_, ok := h.ctrl.PollAnswer(context.Background())
		return ok
	})

	h.ctrl.Reset()

	s := h.ctrl.Session()
	if s.LastEmitted != -1 || s.Mode != Training || s.Gloss != "да" {
		t.Errorf("session after Reset = %+v", s)
	}
	if snap := h.ctrl.Snapshot(); snap.Frames != 0 || len(snap.Predictions) != 0 {
		t.Errorf("buffers after Reset: %d frames, %d predictions", snap.Frames, len(snap.Predictions))
	}
}
