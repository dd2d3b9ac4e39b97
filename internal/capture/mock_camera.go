package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// MockCamera plays back pre-recorded frames for testing
type MockCamera struct {
	frames   []*gocv.Mat
	index    int
	loop     bool
	req      Request
	closeErr error
	onClose  func()
	mu       sync.Mutex
	running  bool
}

// NewMockCamera creates an open MockCamera.
func NewMockCamera(frames []*gocv.Mat, loop bool) *MockCamera {
	return &MockCamera{
		frames:  frames,
		loop:    loop,
		running: true,
	}
}

// Close stops playback. A configured close error is returned after the
// camera is released.
func (c *MockCamera) Close() error {
	c.mu.Lock()
	wasRunning := c.running
	c.running = false
	err := c.closeErr
	onClose := c.onClose
	c.mu.Unlock()

	if wasRunning && onClose != nil {
		onClose()
	}
	return err
}

func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}

	if len(c.frames) == 0 {
		return nil, fmt.Errorf("no frames available")
	}

	if c.index >= len(c.frames) {
		if c.loop {
			c.index = 0
		} else {
			return nil, fmt.Errorf("no more frames")
		}
	}

	// Clone the frame so the original isn't modified
	frame := c.frames[c.index].Clone()
	c.index++

	return &frame, nil
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *MockCamera) Request() Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.req
}

// SetCloseError makes Close return err.
func (c *MockCamera) SetCloseError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
}

// Reset restarts playback from the beginning
func (c *MockCamera) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
}

// MockOpener hands out MockCameras and records every request. It tracks how
// many cameras are open at once.
type MockOpener struct {
	mu       sync.Mutex
	frames   []*gocv.Mat
	openErr  error
	closeErr error
	requests []Request
	cameras  []*MockCamera
	open     int
	maxOpen  int
}

// NewMockOpener creates an opener whose cameras loop over frames.
func NewMockOpener(frames []*gocv.Mat) *MockOpener {
	return &MockOpener{frames: frames}
}

// Open records req and returns a new MockCamera, or the configured error.
func (o *MockOpener) Open(req Request) (Camera, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.requests = append(o.requests, req)
	if o.openErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraAccess, o.openErr)
	}

	cam := NewMockCamera(o.frames, true)
	cam.req = req
	cam.closeErr = o.closeErr
	cam.onClose = o.released
	o.cameras = append(o.cameras, cam)

	o.open++
	if o.open > o.maxOpen {
		o.maxOpen = o.open
	}

	return cam, nil
}

func (o *MockOpener) released() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.open--
}

// SetOpenError makes subsequent Open calls fail. Pass nil to recover.
func (o *MockOpener) SetOpenError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openErr = err
}

// SetCloseError makes cameras opened from now on fail on Close.
func (o *MockOpener) SetCloseError(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closeErr = err
}

// Requests returns every request seen so far.
func (o *MockOpener) Requests() []Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Request(nil), o.requests...)
}

// Cameras returns every camera handed out so far.
func (o *MockOpener) Cameras() []*MockCamera {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*MockCamera(nil), o.cameras...)
}

// OpenCount returns the number of cameras not yet closed.
func (o *MockOpener) OpenCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.open
}

// MaxOpen returns the highest number of simultaneously open cameras.
func (o *MockOpener) MaxOpen() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.maxOpen
}

// ErrBusy is a convenience error for simulating a device in use.
var ErrBusy = errors.New("device busy")
