// Package app provides the frame pipeline that drives the nail overlay session.
package app

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ayusman/nailosophy/internal/capture"
	"github.com/ayusman/nailosophy/internal/detector"
	"github.com/ayusman/nailosophy/internal/session"
)

// Config holds configuration options for the application.
type Config struct {
	Session  *session.Session
	Detector detector.Detector

	// FPS is the pipeline tick rate; zero selects capture.DefaultFPS.
	FPS int

	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// App owns the pipeline goroutine. It is the only caller of the session's
// detection callback.
type App struct {
	config   Config
	session  *session.Session
	detector detector.Detector
	clock    clock.Clock
	logger   *zap.SugaredLogger
	enabled  bool
	mu       sync.RWMutex
	stopCh   chan struct{}
	doneCh   chan struct{}

	// initErr latches a provider initialization failure; detection is not
	// retried after it.
	initErr error

	// cycleMu is held for one detection cycle, so a pause waits for the
	// cycle in flight before hiding the overlay.
	cycleMu sync.Mutex

	frames atomic.Uint64
}

// New creates a new App instance with the given configuration. Detection is
// enabled.
func New(config Config) *App {
	if config.FPS <= 0 {
		config.FPS = capture.DefaultFPS
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &App{
		config:   config,
		session:  config.Session,
		detector: config.Detector,
		clock:    clk,
		logger:   logger,
		enabled:  true,
	}
}

// SetEnabled pauses or resumes detection. Paused ticks do not touch the
// camera, and pausing hides the overlay.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	paused := a.enabled && !enabled
	a.enabled = enabled
	a.mu.Unlock()

	if paused {
		a.cycleMu.Lock()
		a.session.Hide()
		a.cycleMu.Unlock()
		a.logger.Info("detection paused")
	}
}

// IsEnabled returns whether detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetDetector sets the hand detector implementation to use. A latched
// initialization failure is cleared.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
	a.initErr = nil
}

// Detector returns the hand detector.
func (a *App) Detector() detector.Detector {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.detector
}

// Session returns the session the pipeline feeds.
func (a *App) Session() *session.Session {
	return a.session
}

// Frames returns the number of frames that completed a detection cycle.
func (a *App) Frames() uint64 {
	return a.frames.Load()
}

// Running reports whether the pipeline goroutine is active.
func (a *App) Running() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stopCh != nil
}

// Start begins the detection pipeline and acquires the front camera. A camera
// error is returned but the pipeline keeps running, so a later flip may
// recover.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.stopCh != nil {
		a.mu.Unlock()
		return nil
	}
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.runPipeline(a.stopCh, a.doneCh)
	a.mu.Unlock()

	a.logger.Infow("detection pipeline started", "fps", a.config.FPS)
	return a.session.StartCamera(ctx)
}

// Stop halts the pipeline and releases the camera and the detector.
func (a *App) Stop() error {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	d := a.detector
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	var err error
	if e := a.session.Close(); e != nil {
		err = multierr.Append(err, e)
	}
	if d != nil {
		if e := d.Close(); e != nil {
			err = multierr.Append(err, e)
		}
	}

	a.logger.Infow("detection pipeline stopped", "frames", a.Frames())
	return err
}

// interval is the tick period for the configured FPS.
func (a *App) interval() time.Duration {
	return time.Second / time.Duration(a.config.FPS)
}
