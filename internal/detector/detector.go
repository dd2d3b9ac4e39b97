package detector

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
)

// ErrProviderInit is returned when the detection model cannot be loaded.
var ErrProviderInit = errors.New("detection provider failed to initialize")

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns detected hand landmarks.
	// A frame without hands yields an empty Result and a nil error.
	Detect(frame *gocv.Mat) (Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// ModelComplexity selects the landmark model variant.
type ModelComplexity int

const (
	// ComplexityLow is the lite model.
	ComplexityLow ModelComplexity = 0
	// ComplexityHigh is the full model.
	ComplexityHigh ModelComplexity = 1
)

// Config holds configuration options for hand detection.
type Config struct {
	// MaxHands is the maximum number of hands to detect (1 or 2).
	MaxHands int

	// Complexity selects the lite or full model.
	Complexity ModelComplexity

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64
}

// DefaultConfig returns the single-hand, lite-model configuration.
func DefaultConfig() Config {
	return Config{
		MaxHands:        1,
		Complexity:      ComplexityLow,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}

// Validate checks that every knob is within its accepted range.
func (c Config) Validate() error {
	if c.MaxHands != 1 && c.MaxHands != 2 {
		return fmt.Errorf("max hands must be 1 or 2, got %d", c.MaxHands)
	}
	if c.Complexity != ComplexityLow && c.Complexity != ComplexityHigh {
		return fmt.Errorf("model complexity must be 0 or 1, got %d", c.Complexity)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("detection confidence must be within [0,1], got %f", c.MinConfidence)
	}
	if c.MinTrackingConf < 0 || c.MinTrackingConf > 1 {
		return fmt.Errorf("tracking confidence must be within [0,1], got %f", c.MinTrackingConf)
	}
	return nil
}

// Unavailable is a Detector whose provider could not be created. Every call
// to Detect fails with ErrProviderInit.
type Unavailable struct {
	Err error
}

// NewUnavailable wraps err so that it matches ErrProviderInit.
func NewUnavailable(err error) *Unavailable {
	if !errors.Is(err, ErrProviderInit) {
		err = fmt.Errorf("%w: %v", ErrProviderInit, err)
	}
	return &Unavailable{Err: err}
}

// Detect returns the initialization error.
func (u *Unavailable) Detect(frame *gocv.Mat) (Result, error) {
	return Result{}, u.Err
}

// Close does nothing.
func (u *Unavailable) Close() error {
	return nil
}
