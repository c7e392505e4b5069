// Package tensor provides the normalized frame type fed to the classifier and
// helpers for batching frames into model input.
package tensor

import (
	"errors"
	"fmt"
)

// Channels is the number of color channels in a normalized frame.
const Channels = 3

// ErrShapeMismatch is returned when frames in a window do not share a shape.
var ErrShapeMismatch = errors.New("frame shape mismatch")

// Frame is a normalized image in channel-first (C, H, W) order.
// A Frame must not be modified once it has been appended to a buffer.
type Frame struct {
	Data   []float32
	Height int
	Width  int
}

// NewFrame allocates a zeroed frame of the given size.
func NewFrame(height, width int) Frame {
	return Frame{
		Data:   make([]float32, Channels*height*width),
		Height: height,
		Width:  width,
	}
}

// Len returns the number of values in the frame.
func (f Frame) Len() int {
	return len(f.Data)
}

// At returns the value at channel c, row y, column x.
func (f Frame) At(c, y, x int) float32 {
	return f.Data[c*f.Height*f.Width+y*f.Width+x]
}

// FromHWC converts interleaved 8-bit pixels (row-major, RGB) to a normalized
// channel-first frame using (pixel - mean[c]) / std[c].
func FromHWC(pixels []byte, height, width int, mean, std [Channels]float64) (Frame, error) {
	if len(pixels) != height*width*Channels {
		return Frame{}, fmt.Errorf("%w: got %d bytes for %dx%dx%d", ErrShapeMismatch, len(pixels), height, width, Channels)
	}

	f := NewFrame(height, width)
	plane := height * width

	var scale, offset [Channels]float32
	for c := 0; c < Channels; c++ {
		scale[c] = float32(1.0 / std[c])
		offset[c] = float32(mean[c] / std[c])
	}

	for i := 0; i < plane; i++ {
		p := pixels[i*Channels : i*Channels+Channels]
		for c := 0; c < Channels; c++ {
			f.Data[c*plane+i] = float32(p[c])*scale[c] - offset[c]
		}
	}

	return f, nil
}

// Stack concatenates frames into a single batched input of shape
// [1, len(frames), Channels, H, W]. It returns the flat data and the shape.
func Stack(frames []Frame) ([]float32, []int64, error) {
	if len(frames) == 0 {
		return nil, nil, errors.New("no frames to stack")
	}

	h, w := frames[0].Height, frames[0].Width
	size := frames[0].Len()
	out := make([]float32, 0, size*len(frames))

	for i, f := range frames {
		if f.Height != h || f.Width != w || f.Len() != size {
			return nil, nil, fmt.Errorf("%w: frame %d is %dx%d, want %dx%d", ErrShapeMismatch, i, f.Height, f.Width, h, w)
		}
		out = append(out, f.Data...)
	}

	shape := []int64{1, int64(len(frames)), Channels, int64(h), int64(w)}
	return out, shape, nil
}
