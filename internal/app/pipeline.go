package app

import (
	"errors"

	"github.com/ayusman/nailosophy/internal/detector"
)

// runPipeline is the frame loop. Each tick reads the latest frame from the
// session's camera, runs detection and hands the result to the session,
// which renders before the next tick is taken. Ticks that arrive while a
// cycle is still running are dropped by the ticker.
func (a *App) runPipeline(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := a.clock.Ticker(a.interval())
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			a.processFrame()
		}
	}
}

// processFrame runs one detection and render cycle. It reports whether a
// frame was processed.
func (a *App) processFrame() bool {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	if !a.IsEnabled() {
		return false
	}

	cam := a.session.Camera()
	if cam == nil {
		return false
	}

	frame, err := cam.ReadFrame()
	if err != nil {
		a.logger.Debugw("dropping frame", "error", err)
		return false
	}
	defer frame.Close()

	a.mu.RLock()
	d, initErr := a.detector, a.initErr
	a.mu.RUnlock()

	switch {
	case initErr != nil:
		// Keep the preview running with the overlay hidden.
		a.session.HandleError(frame, initErr)
	case d == nil:
		a.session.HandleResult(frame, detector.Result{})
	default:
		result, err := d.Detect(frame)
		if err != nil {
			if errors.Is(err, detector.ErrProviderInit) {
				a.mu.Lock()
				a.initErr = err
				a.mu.Unlock()
				a.logger.Errorw("detection provider unavailable", "error", err)
			}
			a.session.HandleError(frame, err)
			break
		}
		a.session.HandleResult(frame, result)
	}

	a.frames.Add(1)
	return true
}
