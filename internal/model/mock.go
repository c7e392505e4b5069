package model

import (
	"context"
	"sync"
)

// MockClassifier is a test implementation of the Classifier interface.
// It returns scripted score vectors in order and repeats the last one.
type MockClassifier struct {
	mu      sync.Mutex
	info    Info
	scores  [][]float32
	err     error
	calls   int
	shapes  [][]int64
	closed  bool
	blockCh chan struct{}
}

// NewMockClassifier creates a MockClassifier returning the given scores.
func NewMockClassifier(scores ...[]float32) *MockClassifier {
	return &MockClassifier{
		info: Info{
			InputName:   "input",
			InputShape:  []int64{1, -1, 3, 224, 224},
			OutputNames: []string{"output"},
		},
		scores: scores,
	}
}

// SetScores replaces the scripted score vectors.
func (m *MockClassifier) SetScores(scores ...[]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = scores
}

// SetError sets the error returned by Classify.
func (m *MockClassifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetInfo overrides the reported tensor info.
func (m *MockClassifier) SetInfo(info Info) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.info = info
}

// Block makes Classify wait until the returned release function is called or
// the classifier is closed.
func (m *MockClassifier) Block() (release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan struct{})
	m.blockCh = ch
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Info returns the configured tensor info.
func (m *MockClassifier) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.info
}

// Classify returns the next scripted score vector or the configured error.
func (m *MockClassifier) Classify(ctx context.Context, input []float32, shape []int64) ([]float32, error) {
	m.mu.Lock()
	block := m.blockCh
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	m.calls++
	m.shapes = append(m.shapes, append([]int64(nil), shape...))

	if m.err != nil {
		return nil, m.err
	}
	if len(m.scores) == 0 {
		return []float32{1}, nil
	}

	i := m.calls - 1
	if i >= len(m.scores) {
		i = len(m.scores) - 1
	}
	return m.scores[i], nil
}

// Close marks the classifier closed.
func (m *MockClassifier) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns how many times Classify ran.
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Shapes returns the input shapes passed to Classify.
func (m *MockClassifier) Shapes() [][]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]int64(nil), m.shapes...)
}

// Closed reports whether Close was called.
func (m *MockClassifier) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockLoader hands out a fixed classifier or error.
type MockLoader struct {
	mu         sync.Mutex
	classifier Classifier
	err        error
	paths      []string
}

// NewMockLoader creates a loader returning c.
func NewMockLoader(c Classifier) *MockLoader {
	return &MockLoader{classifier: c}
}

// SetError makes Load fail with err.
func (l *MockLoader) SetError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Load returns the configured classifier.
func (l *MockLoader) Load(ctx context.Context, modelPath string) (Classifier, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.paths = append(l.paths, modelPath)
	if l.err != nil {
		return nil, l.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.classifier, nil
}

// Paths returns the model paths Load was called with.
func (l *MockLoader) Paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}
