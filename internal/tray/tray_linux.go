//go:build linux

package tray

import "github.com/attendancekit/nfc-backend/internal/reader"

// TrayApp is a no-op on Linux (runs headless).
type TrayApp struct {
	serverAddr string
	onQuit     func()
}

// New creates a new TrayApp instance (no-op on Linux).
func New(serverAddr string, _ *reader.Controller, onQuit func()) *TrayApp {
	return &TrayApp{
		serverAddr: serverAddr,
		onQuit:     onQuit,
	}
}

// RunWithServer starts the server immediately on Linux (no tray).
func (t *TrayApp) RunWithServer(serverStart func()) {
	if serverStart != nil {
		serverStart()
	}
}

// IsSupported returns false on Linux.
func IsSupported() bool {
	return false
}
