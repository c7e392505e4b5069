// Package model defines the classifier interface used by the inference worker
// and its implementations.
package model

import (
	"context"
	"errors"
)

// ErrClosed is returned when classifying with a released classifier.
var ErrClosed = errors.New("classifier is closed")

// Info describes the tensors a loaded model exposes.
type Info struct {
	InputName   string   `json:"input_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputNames []string `json:"output_names"`
}

// Validate checks that the model has one input and at least one output.
func (i Info) Validate() error {
	if i.InputName == "" {
		return errors.New("model has no input tensor")
	}
	if len(i.OutputNames) == 0 {
		return errors.New("model has no output tensors")
	}
	return nil
}

// Classifier runs one classification pass over a batched window.
type Classifier interface {
	// Info returns the resolved input and output tensors.
	Info() Info

	// Classify runs the model on input with the given shape and returns the
	// scores of the first output for the first batch item.
	Classify(ctx context.Context, input []float32, shape []int64) ([]float32, error)

	// Close releases the model. It must be safe to call concurrently with an
	// in-flight Classify, which then fails.
	Close() error
}

// Loader loads a model artifact into a ready Classifier.
type Loader interface {
	Load(ctx context.Context, modelPath string) (Classifier, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, modelPath string) (Classifier, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, modelPath string) (Classifier, error) {
	return f(ctx, modelPath)
}
