//go:build integration

package reader

// Integration tests require a connected PC/SC reader and a running
// smart-card service. Run with: go test -tags integration ./internal/reader

import (
	"errors"
	"testing"
	"time"
)

func TestPCSC_OpenRealReader(t *testing.T) {
	p := NewPCSC("")
	if err := p.Open(); err != nil {
		t.Fatalf("Open() failed (is a reader connected and pcscd running?): %v", err)
	}
	defer p.Close()

	if p.reader == "" {
		t.Error("no reader selected after Open()")
	}
	t.Logf("selected reader: %s", p.reader)

	// Open must be idempotent on an established context.
	if err := p.Open(); err != nil {
		t.Errorf("second Open() failed: %v", err)
	}
}

func TestPCSC_PollNoCardIsAbsent(t *testing.T) {
	// Run without a card on the reader.
	p := NewPCSC("")
	if err := p.Open(); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer p.Close()

	res := p.Poll(500 * time.Millisecond)
	if res.Err != nil {
		t.Fatalf("Poll() err = %v, want nil on timeout", res.Err)
	}
	if res.Present() {
		t.Skipf("a card is on the reader (uid %s); remove it for this test", res.UID.Hex())
	}
}

func TestPCSC_ReadCardOnReader(t *testing.T) {
	// Run with a card resting on the reader.
	p := NewPCSC("")
	if err := p.Open(); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer p.Close()

	res := p.Poll(3 * time.Second)
	if res.Err != nil {
		t.Fatalf("Poll() err = %v", res.Err)
	}
	if !res.Present() {
		t.Skip("no card on the reader; place one for this test")
	}
	if l := len(res.UID); l < 4 || l > 10 {
		t.Errorf("UID length = %d, want 4-10 bytes", l)
	}
	t.Logf("card uid: %s", res.UID.Hex())
}

func TestPCSC_NoMatchingDevice(t *testing.T) {
	p := NewPCSC("no-such-reader-name")
	err := p.Open()
	if !errors.Is(err, ErrNoReader) {
		t.Errorf("Open() = %v, want ErrNoReader for an impossible device match", err)
	}
}
