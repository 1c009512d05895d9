//go:build !linux

package tray

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/attendancekit/nfc-backend/internal/api"
	"github.com/attendancekit/nfc-backend/internal/reader"
	"github.com/getlantern/systray"
)

// TrayApp manages the system tray icon and menu.
type TrayApp struct {
	serverAddr string
	ctrl       *reader.Controller
	onQuit     func()

	mStatus *systray.MenuItem
	mToggle *systray.MenuItem
}

// New creates a new TrayApp instance.
func New(serverAddr string, ctrl *reader.Controller, onQuit func()) *TrayApp {
	return &TrayApp{
		serverAddr: serverAddr,
		ctrl:       ctrl,
		onQuit:     onQuit,
	}
}

// RunWithServer runs the tray on the main thread and starts the server in
// a goroutine. Blocks until Quit; must be called from the main goroutine
// on macOS.
func (t *TrayApp) RunWithServer(serverStart func()) {
	systray.Run(func() {
		t.onReady()
		if serverStart != nil {
			go serverStart()
		}
	}, t.onExit)
}

func (t *TrayApp) onReady() {
	systray.SetTitle("NFC")
	systray.SetTooltip("NFC Backend")

	mVersion := systray.AddMenuItem(fmt.Sprintf("NFC Backend v%s", api.Version), "")
	mVersion.Disable()

	systray.AddSeparator()

	t.mStatus = systray.AddMenuItem("Scan: idle", "Continuous mode state")
	t.mStatus.Disable()

	t.mToggle = systray.AddMenuItem("Start continuous mode", "Toggle continuous scanning")

	systray.AddSeparator()

	mOpenUI := systray.AddMenuItem("Open Status Page", "Open web UI in browser")

	systray.AddSeparator()

	mQuit := systray.AddMenuItem("Quit", "Exit NFC Backend")

	go t.refreshLoop()

	go func() {
		for {
			select {
			case <-t.mToggle.ClickedCh:
				t.toggleContinuous()
			case <-mOpenUI.ClickedCh:
				t.openBrowser(fmt.Sprintf("http://%s/", t.serverAddr))
			case <-mQuit.ClickedCh:
				systray.Quit()
			}
		}
	}()
}

func (t *TrayApp) onExit() {
	if t.onQuit != nil {
		t.onQuit()
	}
}

func (t *TrayApp) toggleContinuous() {
	if t.ctrl.Running() {
		t.ctrl.Stop()
	} else {
		// Errors show up in the status line on the next refresh.
		t.ctrl.Start()
	}
	t.refresh()
}

func (t *TrayApp) refreshLoop() {
	for range time.Tick(2 * time.Second) {
		t.refresh()
	}
}

func (t *TrayApp) refresh() {
	status := t.ctrl.Status()

	line := "Scan: " + status.State.String()
	if status.Faulted {
		line += " (reader fault)"
	}
	if status.Buffered > 0 {
		line += fmt.Sprintf(", %d buffered", status.Buffered)
	}
	t.mStatus.SetTitle(line)

	if status.Running {
		t.mToggle.SetTitle("Stop continuous mode")
	} else {
		t.mToggle.SetTitle("Start continuous mode")
	}
}

func (t *TrayApp) openBrowser(url string) {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}

	cmd.Start()
}

// IsSupported returns true if the system tray is supported on this platform.
func IsSupported() bool {
	return true
}
