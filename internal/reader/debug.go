package reader

import (
	"sync"
	"time"

	"github.com/attendancekit/nfc-backend/internal/logging"
)

// debugCadence is how long a debug poll takes before producing a card,
// keeping the loop pacing roughly comparable to real hardware.
const debugCadence = 50 * time.Millisecond

// Debug is a Transport that produces synthetic UIDs without hardware,
// selected via the debug_mode setting. Each synthetic card is presented
// twice in a row so continuous mode exercises duplicate suppression the
// same way a card resting on a real reader would.
type Debug struct {
	mu  sync.Mutex
	seq int
}

// debugUIDs is a fixed rotation of FeliCa-style 8-byte IDm values.
var debugUIDs = []UID{
	{0x01, 0x01, 0x06, 0x01, 0x2e, 0x4f, 0x80, 0xd5},
	{0x01, 0x2e, 0x3d, 0x0a, 0x95, 0xf0, 0x12, 0x6b},
	{0x01, 0x10, 0x07, 0x01, 0xc4, 0x81, 0x39, 0xaa},
}

// NewDebug creates a synthetic transport.
func NewDebug() *Debug {
	return &Debug{}
}

func (d *Debug) Open() error { return nil }

// Poll returns the next synthetic UID after a fixed cadence, or an absent
// result if the caller's timeout is shorter than the cadence.
func (d *Debug) Poll(timeout time.Duration) ScanResult {
	if timeout < debugCadence {
		time.Sleep(timeout)
		return ScanResult{}
	}
	time.Sleep(debugCadence)

	d.mu.Lock()
	uid := debugUIDs[(d.seq/2)%len(debugUIDs)]
	d.seq++
	d.mu.Unlock()

	logging.Debug(logging.CatReader, "Synthetic card read", map[string]any{
		"uid": uid.Hex(),
	})
	return ScanResult{UID: uid}
}

func (d *Debug) Close() error { return nil }
