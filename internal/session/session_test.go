package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gocv.io/x/gocv"

	"github.com/ayusman/nailosophy/internal/capture"
	"github.com/ayusman/nailosophy/internal/detector"
	"github.com/ayusman/nailosophy/internal/overlay"
	"github.com/ayusman/nailosophy/internal/render"
)

type recorder struct {
	mu       sync.Mutex
	passes   []render.Pass
	viewport overlay.Viewport
	resizes  int
}

func (r *recorder) Render(p render.Pass) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes = append(r.passes, p)
	return nil
}

func (r *recorder) Resize(vp overlay.Viewport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewport = vp
	r.resizes++
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.passes)
}

type statusLog struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (l *statusLog) SetStatus(ev StatusEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *statusLog) statuses() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Status, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Status
	}
	return out
}

type fixture struct {
	session *Session
	opener  *capture.MockOpener
	render  *recorder
	status  *statusLog
	clock   *clock.Mock
}

func newFixture(t *testing.T, vp overlay.Viewport) *fixture {
	return newFrameFixture(t, vp, nil)
}

// newFrameFixture is newFixture with cameras that deliver frames.
func newFrameFixture(t *testing.T, vp overlay.Viewport, frames []*gocv.Mat) *fixture {
	f := &fixture{
		opener: capture.NewMockOpener(frames),
		render: &recorder{},
		status: &statusLog{},
		clock:  clock.NewMock(),
	}
	f.session = New(Config{
		Opener:   f.opener,
		Renderer: f.render,
		Viewport: vp,
		Sinks:    []StatusSink{f.status},
		Logger:   zaptest.NewLogger(t).Sugar(),
		Clock:    f.clock,
	})
	return f
}

func pointingHand() detector.Result {
	hand := detector.PointingLandmarks(
		detector.Point3D{X: 0.75, Y: 0.25},
		detector.Point3D{X: 0.70, Y: 0.30},
		detector.Point3D{X: 0.5, Y: 0.5},
		detector.Point3D{X: 0.55, Y: 0.4},
	)
	return detector.Result{Hands: []detector.HandLandmarks{hand}}
}

func TestNew(t *testing.T) {
	f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})

	snap := f.session.Snapshot()
	require.Equal(t, overlay.FacingFront, snap.Facing)
	require.Equal(t, StatusInitializing, snap.Status)
	require.False(t, snap.CameraOpen)
	require.False(t, snap.Transform.Visible)
	require.Equal(t, 1, f.render.resizes, "initial viewport synchronizes the renderer")
}

func TestHandleResult(t *testing.T) {
	t.Run("hand present", func(t *testing.T) {
		f := newFixture(t, overlay.Viewport{Width: 1000, Height: 1000})

		tr := f.session.HandleResult(nil, pointingHand())

		require.True(t, tr.Visible)
		require.InDelta(t, -0.5, tr.Position.X(), 1e-9)
		require.Equal(t, 1, f.render.count())
		require.Equal(t, tr, f.render.passes[0].Transform)
		require.Equal(t, overlay.FacingFront, f.render.passes[0].Facing)

		snap := f.session.Snapshot()
		require.Equal(t, StatusHandDetected, snap.Status)
		require.Equal(t, tr, snap.Transform)
	})

	t.Run("hides immediately when the hand is lost", func(t *testing.T) {
		f := newFixture(t, overlay.Viewport{Width: 1000, Height: 1000})

		require.True(t, f.session.HandleResult(nil, pointingHand()).Visible)

		const frames = 4
		for i := 0; i < frames; i++ {
			tr := f.session.HandleResult(nil, detector.Result{})
			require.False(t, tr.Visible)
			require.Equal(t, StatusSearching, f.session.Snapshot().Status)
			require.False(t, f.render.passes[len(f.render.passes)-1].Transform.Visible)
		}
		require.Equal(t, frames+1, f.render.count())
		require.Equal(t, []Status{StatusHandDetected, StatusSearching}, f.status.statuses(), "sinks only see changes")
	})

	t.Run("deferred until viewport is known", func(t *testing.T) {
		f := newFixture(t, overlay.Viewport{})

		tr := f.session.HandleResult(nil, pointingHand())
		require.False(t, tr.Visible)
		require.Equal(t, 0, f.render.count())

		require.NoError(t, f.session.Resize(640, 480))
		require.True(t, f.session.HandleResult(nil, pointingHand()).Visible)
		require.Equal(t, 1, f.render.count())
	})

	t.Run("back camera is not mirrored", func(t *testing.T) {
		f := newFixture(t, overlay.Viewport{Width: 1000, Height: 1000})
		_, err := f.session.Flip(context.Background())
		require.NoError(t, err)

		tr := f.session.HandleResult(nil, pointingHand())
		require.InDelta(t, 0.5, tr.Position.X(), 1e-9)
	})
}

func TestHandleError(t *testing.T) {
	f := newFixture(t, overlay.Viewport{Width: 1000, Height: 1000})
	f.session.HandleResult(nil, pointingHand())

	f.session.HandleError(nil, fmt.Errorf("%w: model missing", detector.ErrProviderInit))

	snap := f.session.Snapshot()
	require.Equal(t, StatusDetectorError, snap.Status)
	require.False(t, snap.Transform.Visible)
	require.False(t, f.render.passes[len(f.render.passes)-1].Transform.Visible)

	t.Run("transient errors report searching", func(t *testing.T) {
		f := newFixture(t, overlay.Viewport{Width: 1000, Height: 1000})
		f.session.HandleResult(nil, pointingHand())
		require.Equal(t, StatusHandDetected, f.session.Snapshot().Status)

		f.session.HandleError(nil, errors.New("read response: EOF"))
		require.Equal(t, StatusSearching, f.session.Snapshot().Status)
		require.False(t, f.session.Snapshot().Transform.Visible)
	})
}

func TestHandleResult_EveryHandGetsANail(t *testing.T) {
	f := newFixture(t, overlay.Viewport{Width: 1000, Height: 1000})

	second := detector.PointingLandmarks(
		detector.Point3D{X: 0.25, Y: 0.25},
		detector.Point3D{X: 0.30, Y: 0.30},
		detector.Point3D{X: 0.5, Y: 0.5},
		detector.Point3D{X: 0.45, Y: 0.4},
	)
	result := pointingHand()
	result.Hands = append(result.Hands, second)

	tr := f.session.HandleResult(nil, result)

	pass := f.render.passes[len(f.render.passes)-1]
	require.Len(t, pass.Nails, 2)
	require.Equal(t, tr, pass.Nails[0])
	require.True(t, pass.Nails[1].Visible)
	require.InDelta(t, 0.5, pass.Nails[1].Position.X(), 1e-9, "second hand is mirrored too")

	f.session.HandleResult(nil, detector.Result{})
	require.Empty(t, f.render.passes[len(f.render.passes)-1].Nails)
}

func TestResize(t *testing.T) {
	f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})

	_ = f.session.HandleResult(nil, pointingHand())
	landscape := f.session.Snapshot().Transform

	require.NoError(t, f.session.Resize(720, 1280))
	require.Equal(t, overlay.Viewport{Width: 720, Height: 1280}, f.render.viewport)
	require.Equal(t, overlay.Viewport{Width: 720, Height: 1280}, f.session.Snapshot().Viewport)

	portrait := f.session.HandleResult(nil, pointingHand())
	require.NotEqual(t, landscape.Position.X(), portrait.Position.X())
	require.Equal(t, landscape.Position.Y(), portrait.Position.Y())

	t.Run("rejects unmeasured sizes", func(t *testing.T) {
		for _, size := range [][2]int{{0, 0}, {1280, 0}, {0, 720}, {-1, -1}} {
			err := f.session.Resize(size[0], size[1])
			require.ErrorIs(t, err, overlay.ErrViewportUnknown)
		}
		require.Equal(t, overlay.Viewport{Width: 720, Height: 1280}, f.session.Snapshot().Viewport)
	})

	t.Run("rejects oversized sizes", func(t *testing.T) {
		for _, size := range [][2]int{{1000000, 1000000}, {overlay.MaxViewportSide + 1, 720}, {720, overlay.MaxViewportSide + 1}} {
			err := f.session.Resize(size[0], size[1])
			require.ErrorIs(t, err, overlay.ErrViewportTooLarge)
		}
		require.Equal(t, overlay.Viewport{Width: 720, Height: 1280}, f.session.Snapshot().Viewport)
		require.Equal(t, overlay.Viewport{Width: 720, Height: 1280}, f.render.viewport)
	})

	t.Run("oversized initial viewport is ignored", func(t *testing.T) {
		f := newFixture(t, overlay.Viewport{Width: overlay.MaxViewportSide * 2, Height: 720})
		require.Equal(t, overlay.Viewport{}, f.session.Snapshot().Viewport)
		require.Equal(t, 0, f.render.resizes)
	})
}

func TestStartCamera(t *testing.T) {
	f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})

	require.NoError(t, f.session.StartCamera(context.Background()))

	reqs := f.opener.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, capture.Request{Facing: overlay.FacingFront, Width: 640, Height: 480, FPS: capture.DefaultFPS}, reqs[0])

	snap := f.session.Snapshot()
	require.True(t, snap.CameraOpen)
	require.NotEmpty(t, snap.SessionID)
	require.Equal(t, StatusCameraActive, snap.Status)
	require.Equal(t, []Status{StatusRequestingCamera, StatusCameraActive}, f.status.statuses())

	t.Run("restart releases the previous camera first", func(t *testing.T) {
		first := f.session.Camera()
		require.NoError(t, f.session.StartCamera(context.Background()))
		require.False(t, first.IsOpen())
		require.Equal(t, 1, f.opener.MaxOpen())
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		require.ErrorIs(t, f.session.StartCamera(ctx), context.Canceled)
		require.False(t, f.session.Snapshot().CameraOpen)
	})

	require.NoError(t, f.session.Close())
	require.Equal(t, 0, f.opener.OpenCount())
}

func TestFlip(t *testing.T) {
	f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})
	require.NoError(t, f.session.StartCamera(context.Background()))
	front := f.session.Camera()

	facing, err := f.session.Flip(context.Background())
	require.NoError(t, err)
	require.Equal(t, overlay.FacingBack, facing)
	require.Equal(t, overlay.FacingBack, f.session.Facing())

	require.False(t, front.IsOpen(), "old camera released")
	require.Equal(t, overlay.FacingBack, f.session.Camera().Request().Facing)
	require.Equal(t, 1, f.opener.MaxOpen(), "never two cameras at once")

	facing, err = f.session.Flip(context.Background())
	require.NoError(t, err)
	require.Equal(t, overlay.FacingFront, facing)

	reqs := f.opener.Requests()
	require.Len(t, reqs, 3)
	require.Equal(t, overlay.FacingFront, reqs[2].Facing)
	require.NoError(t, f.session.Close())
}

func TestFlip_StopFailureIgnored(t *testing.T) {
	f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})
	f.opener.SetCloseError(errors.New("track already stopped"))
	require.NoError(t, f.session.StartCamera(context.Background()))

	_, err := f.session.Flip(context.Background())
	require.NoError(t, err)
	require.True(t, f.session.Snapshot().CameraOpen)
	require.Equal(t, StatusCameraActive, f.session.Snapshot().Status)
	require.Equal(t, 1, f.opener.OpenCount())
}

func TestFlip_CameraErrorLeavesControlUsable(t *testing.T) {
	f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})
	f.opener.SetOpenError(errors.New("permission denied"))

	err := f.session.StartCamera(context.Background())
	require.ErrorIs(t, err, capture.ErrCameraAccess)
	require.Equal(t, StatusCameraError, f.session.Snapshot().Status)
	require.Contains(t, f.session.Snapshot().Message, "permission denied")
	require.False(t, f.session.Snapshot().CameraOpen)

	_, err = f.session.Flip(context.Background())
	require.Error(t, err)
	require.Equal(t, overlay.FacingBack, f.session.Facing())

	f.opener.SetOpenError(nil)
	facing, err := f.session.Flip(context.Background())
	require.NoError(t, err)
	require.Equal(t, overlay.FacingFront, facing)
	require.Equal(t, StatusCameraActive, f.session.Snapshot().Status)
	require.NoError(t, f.session.Close())
}

func TestCameraRelease_HidesOverlay(t *testing.T) {
	lastPass := func(f *fixture) render.Pass {
		f.render.mu.Lock()
		defer f.render.mu.Unlock()
		return f.render.passes[len(f.render.passes)-1]
	}

	t.Run("failed flip", func(t *testing.T) {
		f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})
		require.NoError(t, f.session.StartCamera(context.Background()))
		require.True(t, f.session.HandleResult(nil, pointingHand()).Visible)

		f.opener.SetOpenError(errors.New("device busy"))
		_, err := f.session.Flip(context.Background())
		require.Error(t, err)

		snap := f.session.Snapshot()
		require.Equal(t, StatusCameraError, snap.Status)
		require.False(t, snap.Transform.Visible)

		pass := lastPass(f)
		require.Nil(t, pass.Frame)
		require.False(t, pass.Transform.Visible)
		require.Empty(t, pass.Nails)
	})

	t.Run("restart", func(t *testing.T) {
		f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})
		require.NoError(t, f.session.StartCamera(context.Background()))
		require.True(t, f.session.HandleResult(nil, pointingHand()).Visible)

		require.NoError(t, f.session.StartCamera(context.Background()))
		require.False(t, f.session.Snapshot().Transform.Visible)
		require.False(t, lastPass(f).Transform.Visible)
		require.NoError(t, f.session.Close())
	})

	t.Run("close", func(t *testing.T) {
		f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})
		require.NoError(t, f.session.StartCamera(context.Background()))
		require.True(t, f.session.HandleResult(nil, pointingHand()).Visible)

		require.NoError(t, f.session.Close())
		require.False(t, f.session.Snapshot().Transform.Visible)
		require.False(t, lastPass(f).Transform.Visible)
	})

	t.Run("hide", func(t *testing.T) {
		f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})
		require.True(t, f.session.HandleResult(nil, pointingHand()).Visible)

		f.session.Hide()
		require.False(t, f.session.Snapshot().Transform.Visible)
		require.Nil(t, lastPass(f).Frame)
		require.False(t, lastPass(f).Transform.Visible)
	})

	t.Run("frame outlives its camera", func(t *testing.T) {
		if testing.Short() {
			t.Skip("skipping test that requires GoCV Mat creation")
		}
		src := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
		defer src.Close()

		f := newFrameFixture(t, overlay.Viewport{Width: 1280, Height: 720}, []*gocv.Mat{&src})
		require.NoError(t, f.session.StartCamera(context.Background()))

		frame, err := f.session.Camera().ReadFrame()
		require.NoError(t, err)
		defer frame.Close()

		require.NoError(t, f.session.Close())

		tr := f.session.HandleResult(frame, pointingHand())
		require.False(t, tr.Visible)
		require.False(t, f.session.Snapshot().Transform.Visible)
		require.False(t, lastPass(f).Transform.Visible)
	})
}

func TestPublish_SinksSeeRecordedOrder(t *testing.T) {
	f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})

	var wg sync.WaitGroup
	for _, status := range []Status{StatusSearching, StatusHandDetected} {
		wg.Add(1)
		go func(status Status) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				f.session.ReportStatus(status, fmt.Sprintf("%s %d", status, i))
			}
		}(status)
	}
	wg.Wait()

	f.status.mu.Lock()
	defer f.status.mu.Unlock()
	require.Len(t, f.status.events, 200)
	last := f.status.events[len(f.status.events)-1]
	snap := f.session.Snapshot()
	require.Equal(t, snap.Status, last.Status)
	require.Equal(t, snap.Message, last.Message)
}

func TestStatusEventTimestamps(t *testing.T) {
	f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})
	f.clock.Add(42)

	f.session.ReportStatus(StatusDetectorError, "MediaPipe Init Error")

	f.status.mu.Lock()
	defer f.status.mu.Unlock()
	require.Len(t, f.status.events, 1)
	require.Equal(t, f.clock.Now(), f.status.events[0].At)
}

func TestConcurrentStateChanges(t *testing.T) {
	f := newFixture(t, overlay.Viewport{Width: 1280, Height: 720})
	require.NoError(t, f.session.StartCamera(context.Background()))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			f.session.Flip(context.Background())
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			if i%2 == 0 {
				f.session.Resize(1280, 720)
			} else {
				f.session.Resize(720, 1280)
			}
		}
	}()

	for i := 0; i < 50; i++ {
		tr := f.session.HandleResult(nil, pointingHand())
		require.True(t, tr.Visible)
		vp := f.session.Snapshot().Viewport
		require.True(t, vp == overlay.Viewport{Width: 1280, Height: 720} || vp == overlay.Viewport{Width: 720, Height: 1280})
	}
	wg.Wait()

	require.Equal(t, 1, f.opener.MaxOpen())
	require.Equal(t, overlay.FacingFront, f.session.Facing(), "an even number of flips")
	require.NoError(t, f.session.Close())
}
