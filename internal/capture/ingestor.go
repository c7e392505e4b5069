// Package capture turns camera frames and client images into normalized
// model input frames.
package capture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/signflow/signflow/internal/buffer"
	"github.com/signflow/signflow/internal/config"
	"github.com/signflow/signflow/internal/metrics"
	"github.com/signflow/signflow/internal/tensor"
)

// PadColor is the letterbox fill color.
var PadColor = color.RGBA{R: 114, G: 114, B: 114, A: 0}

// Preprocess holds the settings the ingestor applies to every accepted frame.
type Preprocess struct {
	Language      string
	Width, Height int
	Mean, Std     [tensor.Channels]float64
	// FrameInterval keeps every FrameInterval-th frame.
	FrameInterval int
}

// PreprocessFor builds the preprocessing settings for a language config.
func PreprocessFor(lang *config.Language) Preprocess {
	return Preprocess{
		Language:      lang.Code,
		Width:         lang.InputSize.Width,
		Height:        lang.InputSize.Height,
		Mean:          lang.Mean,
		Std:           lang.Std,
		FrameInterval: lang.FrameInterval,
	}
}

// Ingestor decimates incoming images, preprocesses the kept ones and appends
// them to a frame queue.
type Ingestor struct {
	cfg    Preprocess
	frames *buffer.Queue[tensor.Frame]

	mu      sync.Mutex
	counter int
}

// NewIngestor creates an Ingestor writing into frames.
func NewIngestor(cfg Preprocess, frames *buffer.Queue[tensor.Frame]) *Ingestor {
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = 1
	}
	return &Ingestor{cfg: cfg, frames: frames}
}

// Ingest preprocesses img if it falls on the frame interval and enqueues it.
// It reports whether a frame was appended. img is not modified.
func (in *Ingestor) Ingest(img gocv.Mat) (bool, error) {
	if !in.tick() {
		metrics.RecordFrame(in.cfg.Language, "skipped")
		return false, nil
	}

	frame, err := Preprocessed(img, in.cfg)
	if err != nil {
		metrics.RecordFrame(in.cfg.Language, "error")
		return false, err
	}

	in.frames.Push(frame)
	metrics.RecordFrame(in.cfg.Language, "accepted")
	return true, nil
}

// IngestDataURI decodes an image data URI and ingests it. The payload is
// decoded on every call, so malformed images are reported even when the frame
// would be skipped.
func (in *Ingestor) IngestDataURI(uri string) (bool, error) {
	data, err := DecodeDataURI(uri)
	if err != nil {
		metrics.RecordFrame(in.cfg.Language, "error")
		return false, err
	}
	return in.IngestBytes(data)
}

// IngestBytes decodes an encoded image (JPEG, PNG, ...) and ingests it.
func (in *Ingestor) IngestBytes(data []byte) (bool, error) {
	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		metrics.RecordFrame(in.cfg.Language, "error")
		return false, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer img.Close()

	if img.Empty() {
		metrics.RecordFrame(in.cfg.Language, "error")
		return false, fmt.Errorf("%w: unsupported or corrupt image", ErrDecode)
	}

	return in.Ingest(img)
}

// Reset restarts the decimation counter.
func (in *Ingestor) Reset() {
	in.mu.Lock()
	in.counter = 0
	in.mu.Unlock()
}

func (in *Ingestor) tick() bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.counter++
	if in.counter < in.cfg.FrameInterval {
		return false
	}
	in.counter = 0
	return true
}

// Preprocessed converts a BGR image into a normalized CHW frame: BGR to RGB,
// letterbox to the target size, normalize, transpose.
func Preprocessed(img gocv.Mat, cfg Preprocess) (tensor.Frame, error) {
	if img.Empty() {
		return tensor.Frame{}, errors.New("empty image")
	}
	if img.Channels() != tensor.Channels {
		return tensor.Frame{}, fmt.Errorf("expected %d channels, got %d", tensor.Channels, img.Channels())
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(img, &rgb, gocv.ColorBGRToRGB)
	if rgb.Empty() {
		return tensor.Frame{}, errors.New("color conversion failed")
	}

	boxed, err := letterbox(rgb, cfg.Width, cfg.Height)
	if err != nil {
		return tensor.Frame{}, err
	}
	defer boxed.Close()

	if boxed.Cols() != cfg.Width || boxed.Rows() != cfg.Height {
		return tensor.Frame{}, fmt.Errorf("letterbox produced %dx%d, want %dx%d", boxed.Cols(), boxed.Rows(), cfg.Width, cfg.Height)
	}

	return tensor.FromHWC(boxed.ToBytes(), cfg.Height, cfg.Width, cfg.Mean, cfg.Std)
}

func letterbox(src gocv.Mat, width, height int) (gocv.Mat, error) {
	lb := NewLetterbox(src.Cols(), src.Rows(), width, height)

	resized := src
	if lb.NeedsResize(src.Cols(), src.Rows()) {
		resized = gocv.NewMat()
		defer resized.Close()
		gocv.Resize(src, &resized, image.Pt(lb.Width, lb.Height), 0, 0, gocv.InterpolationLinear)
		if resized.Empty() {
			return gocv.Mat{}, errors.New("resize failed")
		}
	}

	out := gocv.NewMat()
	gocv.CopyMakeBorder(resized, &out, lb.Top, lb.Bottom, lb.Left, lb.Right, gocv.BorderConstant, PadColor)
	if out.Empty() {
		out.Close()
		return gocv.Mat{}, errors.New("padding failed")
	}
	return out, nil
}
