package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Motion gate defaults.
const (
	// DefaultMotionThreshold is the percentage of changed pixels that counts
	// as motion.
	DefaultMotionThreshold = 1.0
	// DefaultMotionHold keeps the gate open after the last motion.
	DefaultMotionHold = 2 * time.Second

	motionBlur     = 21
	motionDiffGray = 25
)

// MotionGate decides whether a signer is active in front of the camera.
// It opens when enough pixels change between consecutive frames and stays
// open for a hold period after the last change.
type MotionGate struct {
	threshold float64
	hold      time.Duration

	mu         sync.Mutex
	prev       gocv.Mat
	primed     bool
	lastMotion time.Time
}

// NewMotionGate creates a gate. Non-positive arguments take the defaults.
func NewMotionGate(threshold float64, hold time.Duration) *MotionGate {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	if hold <= 0 {
		hold = DefaultMotionHold
	}
	return &MotionGate{threshold: threshold, hold: hold, prev: gocv.NewMat()}
}

// Observe compares img with the previous frame and reports whether the gate
// is open at now, with the percentage of pixels that changed.
// The first frame only primes the gate.
func (g *MotionGate) Observe(img gocv.Mat, now time.Time) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if img.Empty() {
		return g.open(now), 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if img.Channels() > 1 {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	} else {
		img.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Pt(motionBlur, motionBlur), 0, 0, gocv.BorderDefault)

	if !g.primed || g.prev.Rows() != blurred.Rows() || g.prev.Cols() != blurred.Cols() {
		g.swap(blurred)
		g.primed = true
		return g.open(now), 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prev, &diff)
	gocv.Threshold(diff, &diff, motionDiffGray, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(diff)) / float64(diff.Rows()*diff.Cols()) * 100
	g.swap(blurred)

	if changed > g.threshold {
		g.lastMotion = now
	}
	return g.open(now), changed
}

func (g *MotionGate) open(now time.Time) bool {
	return !g.lastMotion.IsZero() && now.Sub(g.lastMotion) <= g.hold
}

func (g *MotionGate) swap(next gocv.Mat) {
	g.prev.Close()
	g.prev = next
}

// Reset forgets the baseline frame and closes the gate.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.swap(gocv.NewMat())
	g.primed = false
	g.lastMotion = time.Time{}
}

// Close releases the baseline frame.
func (g *MotionGate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.primed = false
	return g.prev.Close()
}
