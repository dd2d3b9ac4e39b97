// Package tray provides the system tray surface: the flip camera control and
// the status text.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/nailosophy/internal/session"
)

// Tray represents the system tray application.
type Tray struct {
	onFlip    func()
	onToggle  func(enabled bool)
	onPreview func()
	onQuit    func()
	enabled   bool
	status    session.StatusEvent
	ready     bool
	mu        sync.RWMutex

	// Menu items stored for later updates
	menuStatus *systray.MenuItem
	menuToggle *systray.MenuItem
}

// New creates a new Tray instance with detection enabled.
func New() *Tray {
	return &Tray{
		enabled: true,
		status:  session.StatusEvent{Status: session.StatusInitializing, Message: "Initializing..."},
	}
}

// OnFlip sets the callback run when "Flip camera" is clicked.
func (t *Tray) OnFlip(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFlip = fn
}

// OnToggle sets the callback function to be called when detection is paused
// or resumed.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnPreview sets the callback run when "Open preview" is clicked.
func (t *Tray) OnPreview(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPreview = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTooltip("Nailosophy AR nail preview")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem("", "Current status")
	t.menuStatus.Disable()
	systray.AddSeparator()

	menuFlip := systray.AddMenuItem("Flip camera", "Switch between front and back camera")
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume hand detection")
	systray.AddSeparator()

	menuPreview := systray.AddMenuItem("Open preview...", "Open the preview in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Nailosophy")

	t.ready = true
	t.applyStatus()
	t.mu.Unlock()

	go func() {
		for {
			select {
			case <-menuFlip.ClickedCh:
				t.handleFlip()
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuPreview.ClickedCh:
				t.handlePreview()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ready = false
}

// SetStatus shows ev as the tray title. It implements session.StatusSink.
func (t *Tray) SetStatus(ev session.StatusEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = ev
	if t.ready {
		t.applyStatus()
	}
}

// applyStatus pushes the stored status to the tray. t.mu must be held.
func (t *Tray) applyStatus() {
	systray.SetTitle(Title(t.status))
	t.menuStatus.SetTitle(t.status.Message)
}

// Status returns the last status received.
func (t *Tray) Status() session.StatusEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Title is the short tray title for a status.
func Title(ev session.StatusEvent) string {
	switch ev.Status {
	case session.StatusHandDetected:
		return "AR Active"
	case session.StatusSearching:
		return "Searching"
	case session.StatusCameraError, session.StatusDetectorError:
		return "Error"
	default:
		return "Nailosophy"
	}
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Detecting"
	}
	return "○ Paused"
}

func (t *Tray) handleFlip() {
	t.mu.RLock()
	callback := t.onFlip
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled

	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}

	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handlePreview() {
	t.mu.RLock()
	callback := t.onPreview
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// Quit stops the tray, making Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// IsEnabled returns whether detection is enabled.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}
