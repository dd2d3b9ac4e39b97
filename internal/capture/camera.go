// Package capture provides camera capture functionality using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/nailosophy/internal/overlay"
)

// Default camera settings
const (
	DefaultFPS    = 15
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrCameraAccess is returned when a camera cannot be acquired: permission
	// denied, device busy or no device.
	ErrCameraAccess = errors.New("camera access failed")
)

// Request describes the stream to acquire.
type Request struct {
	Facing overlay.FacingMode
	Width  int
	Height int
	FPS    int
}

// DefaultRequest returns a 640x480 request for the given facing mode.
func DefaultRequest(facing overlay.FacingMode) Request {
	return Request{
		Facing: facing,
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
	}
}

// Camera is one acquired capture session.
type Camera interface {
	ReadFrame() (*gocv.Mat, error)
	Close() error
	IsOpen() bool
	Request() Request
}

// Opener acquires cameras.
type Opener interface {
	Open(req Request) (Camera, error)
}

// DeviceOpener maps facing modes to OpenCV device indices.
type DeviceOpener struct {
	FrontDevice int
	BackDevice  int
}

// Open acquires the device for req.Facing and applies the requested size.
func (o DeviceOpener) Open(req Request) (Camera, error) {
	deviceID := o.FrontDevice
	if req.Facing == overlay.FacingBack {
		deviceID = o.BackDevice
	}

	capture, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrCameraAccess, deviceID, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: device %d unavailable", ErrCameraAccess, deviceID)
	}

	if req.Width > 0 && req.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(req.Width))
		capture.Set(gocv.VideoCaptureFrameHeight, float64(req.Height))
	}
	if req.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(req.FPS))
	}

	return &cameraImpl{
		deviceID: deviceID,
		req:      req,
		capture:  capture,
		running:  true,
	}, nil
}

// cameraImpl manages video capture from a camera device using GoCV.
type cameraImpl struct {
	deviceID int
	req      Request
	capture  *gocv.VideoCapture
	mu       sync.Mutex
	running  bool
}

// Close closes the camera and releases resources.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame from the camera.
// The caller is responsible for closing the returned Mat.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, fmt.Errorf("failed to read frame from device %d", c.deviceID)
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	return &mat, nil
}

// IsOpen returns true if the camera is currently open and running.
func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

// Request returns the parameters the camera was opened with.
func (c *cameraImpl) Request() Request {
	return c.req
}
