package tensor

import (
	"errors"
	"math"
	"testing"
)

const epsilon = 1e-5

func TestFromHWC(t *testing.T) {
	// 1x2 image: pixel0 = (10, 20, 30), pixel1 = (40, 50, 60)
	pixels := []byte{10, 20, 30, 40, 50, 60}
	mean := [Channels]float64{10, 20, 30}
	std := [Channels]float64{2, 4, 5}

	f, err := FromHWC(pixels, 1, 2, mean, std)
	if err != nil {
		t.Fatalf("FromHWC() error = %v", err)
	}

	if f.Height != 1 || f.Width != 2 {
		t.Fatalf("shape = %dx%d, want 1x2", f.Height, f.Width)
	}

	tests := []struct {
		c, x int
		want float32
	}{
		{0, 0, 0}, {1, 0, 0}, {2, 0, 0},
		{0, 1, 15}, {1, 1, 7.5}, {2, 1, 6},
	}
	for _, tt := range tests {
		got := f.At(tt.c, 0, tt.x)
		if math.Abs(float64(got-tt.want)) > epsilon {
			t.Errorf("At(%d, 0, %d) = %f, want %f", tt.c, tt.x, got, tt.want)
		}
	}

	// Channel-first layout: all of channel 0 precedes channel 1.
	if math.Abs(float64(f.Data[1]-15)) > epsilon {
		t.Errorf("Data[1] = %f, want channel 0 of pixel 1 (15)", f.Data[1])
	}
}

func TestFromHWC_WrongSize(t *testing.T) {
	_, err := FromHWC([]byte{1, 2, 3}, 2, 2, [Channels]float64{}, [Channels]float64{1, 1, 1})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestStack(t *testing.T) {
	t.Run("stacks in order", func(t *testing.T) {
		a := NewFrame(2, 2)
		b := NewFrame(2, 2)
		for i := range b.Data {
			b.Data[i] = 1
		}

		data, shape, err := Stack([]Frame{a, b})
		if err != nil {
			t.Fatalf("Stack() error = %v", err)
		}

		wantShape := []int64{1, 2, Channels, 2, 2}
		for i := range wantShape {
			if shape[i] != wantShape[i] {
				t.Fatalf("shape = %v, want %v", shape, wantShape)
			}
		}
		if len(data) != 2*a.Len() {
			t.Fatalf("len(data) = %d, want %d", len(data), 2*a.Len())
		}
		if data[0] != 0 || data[a.Len()] != 1 {
			t.Error("frames not stacked in arrival order")
		}
	})

	t.Run("rejects mixed shapes", func(t *testing.T) {
		_, _, err := Stack([]Frame{NewFrame(2, 2), NewFrame(3, 2)})
		if !errors.Is(err, ErrShapeMismatch) {
			t.Errorf("expected ErrShapeMismatch, got %v", err)
		}
	})

	t.Run("rejects empty window", func(t *testing.T) {
		if _, _, err := Stack(nil); err == nil {
			t.Error("expected error for empty window")
		}
	})
}
