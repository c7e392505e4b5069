package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default preprocessing settings.
const (
	DefaultInputSize     = 224
	DefaultFrameInterval = 1
)

// ErrLanguageNotFound is returned when no configuration file exists for a language.
var ErrLanguageNotFound = errors.New("language config not found")

// Size is a width/height pair in pixels.
type Size struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Language is the recognition configuration for one sign language.
type Language struct {
	Code          string     `yaml:"-"`
	ModelPath     string     `yaml:"model_path"`
	FrameInterval int        `yaml:"frame_interval"`
	WindowSize    int        `yaml:"window_size"`
	Stride        int        `yaml:"stride"` // 0 means "advance by a full window"
	Threshold     float64    `yaml:"threshold"`
	Mean          [3]float64 `yaml:"mean"`
	Std           [3]float64 `yaml:"std"`
	InputSize     Size       `yaml:"input_size"`
	Labels        []string   `yaml:"labels,omitempty"`
	LabelsPath    string     `yaml:"labels_path,omitempty"`
}

// EffectiveStride returns the number of frames dropped after each window.
func (l *Language) EffectiveStride() int {
	if l.Stride > 0 {
		return l.Stride
	}
	return l.WindowSize
}

// Validate checks the configuration for values the pipeline cannot run with.
func (l *Language) Validate() error {
	if l.ModelPath == "" {
		return fmt.Errorf("model_path is required")
	}
	if l.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive, got %d", l.WindowSize)
	}
	if l.Stride < 0 || l.Stride > l.WindowSize {
		return fmt.Errorf("stride must be in [0, window_size], got %d", l.Stride)
	}
	if l.FrameInterval <= 0 {
		return fmt.Errorf("frame_interval must be positive, got %d", l.FrameInterval)
	}
	if l.Threshold < 0 || l.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0, 1], got %f", l.Threshold)
	}
	for c, s := range l.Std {
		if s == 0 {
			return fmt.Errorf("std[%d] must be non-zero", c)
		}
	}
	if l.InputSize.Width <= 0 || l.InputSize.Height <= 0 {
		return fmt.Errorf("input_size must be positive, got %dx%d", l.InputSize.Width, l.InputSize.Height)
	}
	if len(l.Labels) == 0 {
		return fmt.Errorf("label table is empty")
	}
	return nil
}

// LanguagePath returns the config file path for a language inside dir.
func LanguagePath(dir, code string) string {
	return filepath.Join(dir, fmt.Sprintf("config_%s.yaml", code))
}

// LoadLanguage reads, resolves and validates the configuration for code.
// Relative model and label paths are resolved against dir.
func LoadLanguage(dir, code string) (*Language, error) {
	path := LanguagePath(dir, code)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrLanguageNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	lang, err := ParseLanguage(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	lang.Code = code

	lang.ModelPath = resolve(dir, lang.ModelPath)
	if lang.LabelsPath != "" {
		lang.LabelsPath = resolve(dir, lang.LabelsPath)
		labels, err := ReadLabels(lang.LabelsPath)
		if err != nil {
			return nil, err
		}
		lang.Labels = labels
	}

	if err := lang.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return lang, nil
}

// ParseLanguage decodes a language config and fills in defaults.
func ParseLanguage(data []byte) (*Language, error) {
	lang := &Language{}
	if err := yaml.Unmarshal(data, lang); err != nil {
		return nil, err
	}

	if lang.FrameInterval == 0 {
		lang.FrameInterval = DefaultFrameInterval
	}
	if lang.InputSize.Width == 0 {
		lang.InputSize.Width = DefaultInputSize
	}
	if lang.InputSize.Height == 0 {
		lang.InputSize.Height = DefaultInputSize
	}

	return lang, nil
}

// ReadLabels reads a label table with one gloss per line.
// The line number (from zero) is the class id; blank lines keep their slot.
func ReadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}

	// Trailing blank lines are not classes.
	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}

	return labels, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
