// Package session owns the per-process AR state: facing mode, viewport and
// the current camera, and hosts the per-frame detection callback.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/nailosophy/internal/capture"
	"github.com/ayusman/nailosophy/internal/detector"
	"github.com/ayusman/nailosophy/internal/overlay"
	"github.com/ayusman/nailosophy/internal/render"
)

// Config holds the collaborators of a Session.
type Config struct {
	Opener   capture.Opener
	Mapper   *overlay.Mapper
	Renderer render.Renderer
	Viewport overlay.Viewport

	// CameraWidth and CameraHeight are requested from the camera; zero
	// selects 640x480.
	CameraWidth  int
	CameraHeight int
	FPS          int

	Sinks  []StatusSink
	Logger *zap.SugaredLogger
	Clock  clock.Clock
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Facing     overlay.FacingMode `json:"facing"`
	Viewport   overlay.Viewport   `json:"viewport"`
	Transform  overlay.Transform  `json:"transform"`
	Status     Status             `json:"status"`
	Message    string             `json:"message"`
	SessionID  string             `json:"session_id"`
	CameraOpen bool               `json:"camera_open"`
}

// Session is the explicit context object shared by the frame callback, the
// resize action and the flip action.
type Session struct {
	config Config
	logger *zap.SugaredLogger
	clock  clock.Clock

	// camMu serializes camera restarts.
	camMu sync.Mutex
	// renderMu serializes render passes.
	renderMu sync.Mutex
	// sinkMu keeps sink delivery in publish order.
	sinkMu sync.Mutex

	mu        sync.Mutex
	facing    overlay.FacingMode
	viewport  overlay.Viewport
	camera    capture.Camera
	sessionID string
	last      overlay.Transform
	status    StatusEvent
}

// New creates a Session facing front. No camera is opened until StartCamera.
func New(config Config) *Session {
	if config.Mapper == nil {
		config.Mapper = overlay.NewMapper(overlay.DefaultParams())
	}
	if config.Renderer == nil {
		config.Renderer = render.Multi{}
	}
	if config.CameraWidth <= 0 || config.CameraHeight <= 0 {
		config.CameraWidth = capture.DefaultWidth
		config.CameraHeight = capture.DefaultHeight
	}
	if config.FPS <= 0 {
		config.FPS = capture.DefaultFPS
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	s := &Session{
		config: config,
		logger: logger,
		clock:  clk,
		facing: overlay.FacingFront,
	}
	s.status = StatusEvent{Status: StatusInitializing, Message: "Initializing...", At: clk.Now()}

	switch err := config.Viewport.Check(); {
	case err == nil:
		s.viewport = config.Viewport
		if rs, ok := config.Renderer.(render.Resizer); ok {
			rs.Resize(config.Viewport)
		}
	case errors.Is(err, overlay.ErrViewportTooLarge):
		logger.Warnw("ignoring initial viewport", "width", config.Viewport.Width, "height", config.Viewport.Height, "error", err)
	}

	return s
}

// HandleResult is the detection callback. It maps the result to a transform,
// publishes the hand status and runs one render pass before returning.
// A frame that arrives after its camera was released renders hidden.
func (s *Session) HandleResult(frame *gocv.Mat, result detector.Result) overlay.Transform {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.mu.Lock()
	facing, vp := s.facing, s.viewport
	released := frame != nil && s.camera == nil
	s.mu.Unlock()

	if released {
		s.hide(facing)
		return overlay.Hidden()
	}

	f, ok := overlay.Normalize(result)
	t, err := s.config.Mapper.Map(f, ok, facing, vp)
	if err != nil {
		// Not measured yet; keep hidden and wait for Resize.
		s.logger.Debugw("deferring transform", "error", err)
		s.setTransform(overlay.Hidden())
		return overlay.Hidden()
	}

	var nails []overlay.Transform
	if ok {
		// vp is known once the first hand mapped.
		nails, _ = s.config.Mapper.MapAll(overlay.NormalizeAll(result), facing, vp)
	}

	s.setTransform(t)
	if ok {
		s.publish(StatusHandDetected, "AR Active")
	} else {
		s.publish(StatusSearching, "Searching for hand...")
	}

	s.renderPass(render.Pass{
		Frame:     frame,
		Transform: t,
		Nails:     nails,
		Result:    result,
		Facing:    facing,
	})
	return t
}

// HandleError is called when the detection provider fails on a frame. The
// overlay is hidden and the failure surfaced as status.
func (s *Session) HandleError(frame *gocv.Mat, err error) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.mu.Lock()
	facing := s.facing
	s.mu.Unlock()

	s.setTransform(overlay.Hidden())
	if errors.Is(err, detector.ErrProviderInit) {
		s.publish(StatusDetectorError, "MediaPipe Init Error: "+err.Error())
	} else {
		s.logger.Warnw("detection failed", "error", err)
		s.publish(StatusSearching, "Searching for hand...")
	}

	s.renderPass(render.Pass{Frame: frame, Transform: overlay.Hidden(), Facing: facing})
}

// Hide clears the overlay and renders one hidden pass without a frame, so
// renderers drop whatever they showed last.
func (s *Session) Hide() {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.mu.Lock()
	facing := s.facing
	s.mu.Unlock()

	s.hide(facing)
}

// hide is Hide with renderMu held.
func (s *Session) hide(facing overlay.FacingMode) {
	s.setTransform(overlay.Hidden())
	s.renderPass(render.Pass{Transform: overlay.Hidden(), Facing: facing})
}

func (s *Session) renderPass(p render.Pass) {
	if err := s.config.Renderer.Render(p); err != nil {
		s.logger.Warnw("render failed", "error", err)
	}
}

// Resize replaces the viewport. Renderers that depend on it are
// re-synchronized before Resize returns.
func (s *Session) Resize(width, height int) error {
	vp := overlay.Viewport{Width: width, Height: height}
	if err := vp.Check(); err != nil {
		return fmt.Errorf("invalid viewport %dx%d: %w", width, height, err)
	}

	s.mu.Lock()
	s.viewport = vp
	s.mu.Unlock()

	if rs, ok := s.config.Renderer.(render.Resizer); ok {
		rs.Resize(vp)
	}
	s.logger.Debugw("viewport resized", "width", width, "height", height)
	return nil
}

// StartCamera (re)acquires the camera for the current facing mode.
func (s *Session) StartCamera(ctx context.Context) error {
	s.camMu.Lock()
	defer s.camMu.Unlock()

	s.stopCamera()

	s.mu.Lock()
	facing := s.facing
	s.mu.Unlock()

	return s.openCamera(ctx, facing)
}

// Flip swaps the facing mode and restarts the camera with it. The old camera
// is released before the new one is requested; a failure to stop it is
// ignored. On error the session stays usable and Flip may be called again.
func (s *Session) Flip(ctx context.Context) (overlay.FacingMode, error) {
	s.camMu.Lock()
	defer s.camMu.Unlock()

	s.stopCamera()

	s.mu.Lock()
	s.facing = s.facing.Toggle()
	facing := s.facing
	s.mu.Unlock()

	s.logger.Infow("facing mode switched", "facing", facing.String())
	return facing, s.openCamera(ctx, facing)
}

// stopCamera closes the current camera, best effort. camMu must be held.
func (s *Session) stopCamera() {
	if err := s.releaseCamera(); err != nil {
		s.logger.Warnw("camera stop failed", "error", err)
	}
}

// releaseCamera closes the current camera and hides the overlay, which was
// computed from its frames. camMu must be held.
func (s *Session) releaseCamera() error {
	s.mu.Lock()
	cam := s.camera
	s.camera = nil
	s.mu.Unlock()

	var err error
	if cam != nil {
		err = cam.Close()
	}
	s.Hide()
	return err
}

// openCamera acquires a camera for facing. camMu must be held.
func (s *Session) openCamera(ctx context.Context, facing overlay.FacingMode) error {
	s.publish(StatusRequestingCamera, "Requesting Camera...")

	if err := ctx.Err(); err != nil {
		s.publish(StatusCameraError, "Camera Error: "+err.Error())
		return err
	}

	cam, err := s.config.Opener.Open(capture.Request{
		Facing: facing,
		Width:  s.config.CameraWidth,
		Height: s.config.CameraHeight,
		FPS:    s.config.FPS,
	})
	if err != nil {
		s.publish(StatusCameraError, "Camera Error: "+err.Error())
		return fmt.Errorf("start %s camera: %w", facing, err)
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.camera = cam
	s.sessionID = id
	s.mu.Unlock()

	s.logger.Infow("camera started", "facing", facing.String(), "session", id)
	s.publish(StatusCameraActive, "Camera Active. Detecting...")
	return nil
}

// Camera returns the current camera, or nil while none is open.
func (s *Session) Camera() capture.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera
}

// Facing returns the current facing mode.
func (s *Session) Facing() overlay.FacingMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// Snapshot returns a consistent copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Facing:     s.facing,
		Viewport:   s.viewport,
		Transform:  s.last,
		Status:     s.status.Status,
		Message:    s.status.Message,
		SessionID:  s.sessionID,
		CameraOpen: s.camera != nil,
	}
}

// ReportStatus publishes an externally observed status, such as a detector
// initialization failure at startup.
func (s *Session) ReportStatus(status Status, message string) {
	s.publish(status, message)
}

// Close releases the camera and hides the overlay.
func (s *Session) Close() error {
	s.camMu.Lock()
	defer s.camMu.Unlock()

	return s.releaseCamera()
}

func (s *Session) setTransform(t overlay.Transform) {
	s.mu.Lock()
	s.last = t
	s.mu.Unlock()
}

// publish records the status and notifies sinks when it changed. Sinks see
// changes in the order they were recorded.
func (s *Session) publish(status Status, message string) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()

	s.mu.Lock()
	if s.status.Status == status && s.status.Message == message {
		s.mu.Unlock()
		return
	}
	ev := StatusEvent{Status: status, Message: message, SessionID: s.sessionID, At: s.clock.Now()}
	s.status = ev
	s.mu.Unlock()

	s.logger.Infow(message, "status", string(status))
	for _, sink := range s.config.Sinks {
		sink.SetStatus(ev)
	}
}
