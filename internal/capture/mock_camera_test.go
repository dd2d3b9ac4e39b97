package capture

import (
	"errors"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/nailosophy/internal/overlay"
)

func TestMockCamera_Playback(t *testing.T) {
	frame1 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame1.Close()
	frame2 := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame2.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame1, &frame2}, false)
	defer cam.Close()

	f1, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	f1.Close()

	f2, err := cam.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	f2.Close()

	// Third read should fail (no loop)
	if _, err = cam.ReadFrame(); err == nil {
		t.Error("expected error after all frames consumed")
	}
}

func TestMockCamera_Loop(t *testing.T) {
	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cam := NewMockCamera([]*gocv.Mat{&frame}, true)
	defer cam.Close()

	for i := 0; i < 5; i++ {
		f, err := cam.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() iteration %d error = %v", i, err)
		}
		f.Close()
	}
}

func TestMockCamera_ReadAfterClose(t *testing.T) {
	cam := NewMockCamera(nil, true)
	cam.Close()

	if _, err := cam.ReadFrame(); !errors.Is(err, ErrCameraNotOpen) {
		t.Errorf("ReadFrame() = %v, want ErrCameraNotOpen", err)
	}
}

func TestMockOpener(t *testing.T) {
	t.Run("records requests and tracks open handles", func(t *testing.T) {
		o := NewMockOpener(nil)

		front, err := o.Open(DefaultRequest(overlay.FacingFront))
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if o.OpenCount() != 1 {
			t.Errorf("OpenCount() = %d, want 1", o.OpenCount())
		}

		front.Close()
		front.Close()
		if o.OpenCount() != 0 {
			t.Errorf("OpenCount() after double close = %d, want 0", o.OpenCount())
		}

		back, _ := o.Open(DefaultRequest(overlay.FacingBack))
		defer back.Close()

		reqs := o.Requests()
		if len(reqs) != 2 || reqs[0].Facing != overlay.FacingFront || reqs[1].Facing != overlay.FacingBack {
			t.Errorf("unexpected requests %+v", reqs)
		}
		if back.Request().Facing != overlay.FacingBack {
			t.Errorf("camera request facing = %v, want back", back.Request().Facing)
		}
		if o.MaxOpen() != 1 {
			t.Errorf("MaxOpen() = %d, want 1", o.MaxOpen())
		}
	})

	t.Run("open error wraps ErrCameraAccess", func(t *testing.T) {
		o := NewMockOpener(nil)
		o.SetOpenError(ErrBusy)

		_, err := o.Open(DefaultRequest(overlay.FacingFront))
		if !errors.Is(err, ErrCameraAccess) {
			t.Errorf("Open() error = %v, want ErrCameraAccess", err)
		}
		if o.OpenCount() != 0 {
			t.Errorf("OpenCount() = %d, want 0", o.OpenCount())
		}
	})

	t.Run("close error still releases", func(t *testing.T) {
		o := NewMockOpener(nil)
		o.SetCloseError(errors.New("stop failed"))

		cam, _ := o.Open(DefaultRequest(overlay.FacingFront))
		if err := cam.Close(); err == nil {
			t.Error("expected close error")
		}
		if o.OpenCount() != 0 {
			t.Errorf("OpenCount() = %d, want 0", o.OpenCount())
		}
	})
}
