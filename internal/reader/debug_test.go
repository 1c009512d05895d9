package reader

import (
	"regexp"
	"testing"
	"time"
)

var hexUID = regexp.MustCompile(`^[0-9a-f]{8,20}$`)

func TestDebug_ReadOnceWithoutHardware(t *testing.T) {
	ctrl := NewController(NewDebug(), NewScanBuffer(0), 0)

	res := ctrl.ReadOnce(time.Second)
	if res.Err != nil {
		t.Fatalf("ReadOnce() err = %v", res.Err)
	}
	if !res.Present() {
		t.Fatal("debug transport should always produce a card")
	}
	if !hexUID.MatchString(res.UID.Hex()) {
		t.Errorf("UID %q is not well-formed lowercase hex", res.UID.Hex())
	}
}

func TestDebug_ShortTimeoutIsAbsent(t *testing.T) {
	d := NewDebug()

	res := d.Poll(time.Millisecond)
	if res.Err != nil {
		t.Errorf("Poll() err = %v, want nil", res.Err)
	}
	if res.Present() {
		t.Error("a timeout shorter than the cadence should be absent")
	}
}

func TestDebug_RepeatsThenRotates(t *testing.T) {
	d := NewDebug()

	first := d.Poll(time.Second)
	second := d.Poll(time.Second)
	third := d.Poll(time.Second)

	// Each synthetic card is presented twice so continuous mode has
	// duplicates to suppress.
	if !first.UID.Equal(second.UID) {
		t.Errorf("first two polls should repeat: %s vs %s", first.UID.Hex(), second.UID.Hex())
	}
	if third.UID.Equal(second.UID) {
		t.Errorf("third poll should rotate to a new UID, got %s again", third.UID.Hex())
	}
}

func TestDebug_ContinuousScanAccumulates(t *testing.T) {
	ctrl := NewController(NewDebug(), NewScanBuffer(10), 200*time.Millisecond)

	if err := ctrl.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer ctrl.Stop()

	waitFor(t, 2*time.Second, func() bool { return ctrl.Status().Buffered >= 2 })

	uids := ctrl.Drain()
	for i := 1; i < len(uids); i++ {
		if uids[i].Equal(uids[i-1]) {
			t.Errorf("consecutive duplicate in buffer at %d: %s", i, uids[i].Hex())
		}
	}
}
