// Package testdata builds frames and language configs for end-to-end tests.
package testdata

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"

	"github.com/signflow/signflow/internal/capture"
)

// SolidFrame returns a BGR frame filled with v. The caller closes it.
func SolidFrame(width, height int, v float64) gocv.Mat {
	m := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(v, v, v, 0))
	return m
}

// FrameDataURI encodes a solid frame as a JPEG data URI, the form a browser
// client sends in IMAGE commands.
func FrameDataURI(width, height int, v float64) (string, error) {
	m := SolidFrame(width, height, v)
	defer m.Close()

	jpeg, err := capture.Encode(m)
	if err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return capture.EncodeDataURI("image/jpeg", jpeg), nil
}

// Language describes a config_<code>.yaml to write.
type Language struct {
	Code       string
	WindowSize int
	Stride     int
	Threshold  float64
	Labels     []string
	// WithModel creates an empty model file next to the config.
	WithModel bool
}

// WriteLanguage writes the config (and labels file) for l into dir.
func WriteLanguage(dir string, l Language) error {
	labels := filepath.Join(dir, "labels_"+l.Code+".txt")
	if err := os.WriteFile(labels, []byte(strings.Join(l.Labels, "\n")+"\n"), 0644); err != nil {
		return err
	}

	model := l.Code + ".onnx"
	if l.WithModel {
		if err := os.WriteFile(filepath.Join(dir, model), nil, 0644); err != nil {
			return err
		}
	}

	cfg := fmt.Sprintf(`model_path: %s
labels_path: labels_%s.txt
frame_interval: 1
window_size: %d
stride: %d
threshold: %g
mean: [123.675, 116.28, 103.53]
std: [58.395, 57.12, 57.375]
input_size:
  width: 32
  height: 32
`, model, l.Code, l.WindowSize, l.Stride, l.Threshold)

	return os.WriteFile(filepath.Join(dir, "config_"+l.Code+".yaml"), []byte(cfg), 0644)
}
