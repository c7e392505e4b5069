package capture

import "math"

// Letterbox describes an aspect-preserving resize into a target size followed
// by symmetric padding.
type Letterbox struct {
	Scale         float64
	Width, Height int // resized size before padding
	Top, Bottom   int
	Left, Right   int
}

// NewLetterbox computes the resize and padding that fit a srcW x srcH image
// into dstW x dstH. Odd padding puts the extra pixel at the bottom or right.
func NewLetterbox(srcW, srcH, dstW, dstH int) Letterbox {
	r := math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))

	lb := Letterbox{
		Scale:  r,
		Width:  int(math.Round(float64(srcW) * r)),
		Height: int(math.Round(float64(srcH) * r)),
	}

	dw := float64(dstW-lb.Width) / 2
	dh := float64(dstH-lb.Height) / 2

	lb.Top, lb.Bottom = int(math.Round(dh-0.1)), int(math.Round(dh+0.1))
	lb.Left, lb.Right = int(math.Round(dw-0.1)), int(math.Round(dw+0.1))
	return lb
}

// NeedsResize reports whether the source differs from the resized size.
func (lb Letterbox) NeedsResize(srcW, srcH int) bool {
	return srcW != lb.Width || srcH != lb.Height
}
