package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Preview holds the latest camera frame as JPEG for MJPEG streaming.
type Preview struct {
	mu   sync.RWMutex
	jpeg []byte
}

// Encode compresses img to JPEG.
func Encode(img gocv.Mat) ([]byte, error) {
	if img.Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrDecode)
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

// Set replaces the latest frame.
func (p *Preview) Set(jpeg []byte) {
	p.mu.Lock()
	p.jpeg = jpeg
	p.mu.Unlock()
}

// JPEG returns the latest frame, or false before the first one.
func (p *Preview) JPEG() ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.jpeg, p.jpeg != nil
}
