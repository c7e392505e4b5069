package gesture

import (
	"errors"
	"testing"
)

func TestDebouncer_Decide(t *testing.T) {
	d := NewDebouncer(0.8)

	tests := []struct {
		name        string
		predictions []Gesture
		last        int
		wantOK      bool
		wantClass   int
	}{
		{
			name:        "no predictions",
			predictions: nil,
			last:        NoLabel,
		},
		{
			name:        "single prediction",
			predictions: []Gesture{{ClassID: 5, Confidence: 0.99}},
			last:        NoLabel,
		},
		{
			name: "background class",
			predictions: []Gesture{
				{ClassID: BackgroundClass, Confidence: 0.99},
				{ClassID: BackgroundClass, Confidence: 0.99},
			},
			last: NoLabel,
		},
		{
			name: "disagreeing windows",
			predictions: []Gesture{
				{ClassID: 4, Confidence: 0.99},
				{ClassID: 5, Confidence: 0.99},
			},
			last: NoLabel,
		},
		{
			name: "confidence at threshold",
			predictions: []Gesture{
				{ClassID: 5, Confidence: 0.8},
				{ClassID: 5, Confidence: 0.7},
			},
			last: NoLabel,
		},
		{
			name: "agreeing windows above threshold",
			predictions: []Gesture{
				{ClassID: 5, Confidence: 0.9},
				{ClassID: 5, Confidence: 0.85},
			},
			last:      NoLabel,
			wantOK:    true,
			wantClass: 5,
		},
		{
			name: "only one window above threshold",
			predictions: []Gesture{
				{ClassID: 5, Confidence: 0.5},
				{ClassID: 5, Confidence: 0.81},
			},
			last:      NoLabel,
			wantOK:    true,
			wantClass: 5,
		},
		{
			name: "repeat of last emission",
			predictions: []Gesture{
				{ClassID: 5, Confidence: 0.9},
				{ClassID: 5, Confidence: 0.9},
			},
			last: 5,
		},
		{
			name: "different from last emission",
			predictions: []Gesture{
				{ClassID: 7, Confidence: 0.9},
				{ClassID: 7, Confidence: 0.9},
			},
			last:      5,
			wantOK:    true,
			wantClass: 7,
		},
		{
			name: "only the last two windows count",
			predictions: []Gesture{
				{ClassID: 3, Confidence: 0.99},
				{ClassID: 6, Confidence: 0.9},
				{ClassID: 6, Confidence: 0.9},
			},
			last:      NoLabel,
			wantOK:    true,
			wantClass: 6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Decide(tt.predictions, tt.last)
			if ok != tt.wantOK {
				t.Fatalf("Decide() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.ClassID != tt.wantClass {
				t.Errorf("Decide() class = %d, want %d", got.ClassID, tt.wantClass)
			}
		})
	}
}

func TestDebouncer_NoRepeatWithoutIntervening(t *testing.T) {
	d := NewDebouncer(0.5)
	stream := []int{2, 2, 2, 2, 0, 2, 2, 3, 3, 2, 2}

	var predictions []Gesture
	last := NoLabel
	var emitted []int

	for _, class := range stream {
		predictions = append(predictions, Gesture{ClassID: class, Confidence: 0.9})
		if g, ok := d.Decide(predictions, last); ok {
			emitted = append(emitted, g.ClassID)
			last = g.ClassID
		}
	}

	want := []int{2, 3, 2}
	if len(emitted) != len(want) {
		t.Fatalf("emitted = %v, want %v", emitted, want)
	}
	for i := range want {
		if emitted[i] != want[i] {
			t.Fatalf("emitted = %v, want %v", emitted, want)
		}
	}
	for i := 1; i < len(emitted); i++ {
		if emitted[i] == emitted[i-1] {
			t.Errorf("class %d emitted twice in a row", emitted[i])
		}
	}
}

func TestFromScores(t *testing.T) {
	labels := Labels{"---", "hello", "thanks"}

	t.Run("picks argmax", func(t *testing.T) {
		g, err := FromScores([]float32{0.1, 0.2, 0.7}, labels)
		if err != nil {
			t.Fatalf("FromScores() error = %v", err)
		}
		if g.ClassID != 2 || g.Gloss != "thanks" {
			t.Errorf("got %+v, want class 2 thanks", g)
		}
		if g.Confidence < 0.69 || g.Confidence > 0.71 {
			t.Errorf("confidence = %f, want 0.7", g.Confidence)
		}
	})

	t.Run("ties resolve to lowest index", func(t *testing.T) {
		g, _ := FromScores([]float32{0.5, 0.5, 0.1}, labels)
		if g.ClassID != 0 {
			t.Errorf("class = %d, want 0", g.ClassID)
		}
	})

	t.Run("label table shorter than output", func(t *testing.T) {
		g, _ := FromScores([]float32{0, 0, 0, 1}, labels)
		if g.Gloss != "class_3" {
			t.Errorf("gloss = %q, want class_3", g.Gloss)
		}
	})

	t.Run("empty scores", func(t *testing.T) {
		if _, err := FromScores(nil, labels); !errors.Is(err, ErrEmptyScores) {
			t.Errorf("expected ErrEmptyScores, got %v", err)
		}
	})
}
