package reader

import (
	"fmt"
	"testing"
)

func TestScanBuffer_CapacityNeverExceeded(t *testing.T) {
	buf := NewScanBuffer(10)

	for i := 0; i < 100; i++ {
		buf.Push(UID{byte(i)})
		if l := buf.Len(); l > 10 {
			t.Fatalf("after push %d: len = %d, want <= 10", i, l)
		}
	}
}

func TestScanBuffer_FIFOEviction(t *testing.T) {
	buf := NewScanBuffer(5)

	// Push 12 distinct UIDs; only the 5 most recent should survive.
	for i := 0; i < 12; i++ {
		buf.Push(UID{byte(i)})
	}

	got := buf.Drain()
	if len(got) != 5 {
		t.Fatalf("drained %d entries, want 5", len(got))
	}
	for i, uid := range got {
		want := byte(7 + i)
		if uid[0] != want {
			t.Errorf("entry %d = %#x, want %#x", i, uid[0], want)
		}
	}
}

func TestScanBuffer_EvictionScenario(t *testing.T) {
	buf := NewScanBuffer(3)

	for _, hex := range []byte{0xaa, 0xbb, 0xcc, 0xdd} {
		buf.Push(UID{hex})
	}

	got := buf.Drain()
	want := []byte{0xbb, 0xcc, 0xdd}
	if len(got) != len(want) {
		t.Fatalf("drained %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i][0] != want[i] {
			t.Errorf("entry %d = %#x, want %#x", i, got[i][0], want[i])
		}
	}
}

func TestScanBuffer_DrainEmptiesBuffer(t *testing.T) {
	buf := NewScanBuffer(10)
	buf.Push(UID{0x11})
	buf.Push(UID{0x22})

	first := buf.Drain()
	if len(first) != 2 {
		t.Errorf("first drain returned %d entries, want 2", len(first))
	}

	second := buf.Drain()
	if len(second) != 0 {
		t.Errorf("second drain returned %d entries, want 0", len(second))
	}
	if buf.Len() != 0 {
		t.Errorf("len after drain = %d, want 0", buf.Len())
	}
}

func TestScanBuffer_DrainPreservesInsertionOrder(t *testing.T) {
	buf := NewScanBuffer(100)

	for i := 0; i < 20; i++ {
		buf.Push(UID{byte(i), byte(i + 1)})
	}

	got := buf.Drain()
	for i, uid := range got {
		if uid[0] != byte(i) {
			t.Fatalf("entry %d = %#x, want %#x", i, uid[0], byte(i))
		}
	}
}

func TestScanBuffer_DefaultCapacity(t *testing.T) {
	tests := []struct {
		capacity int
		want     int
	}{
		{0, DefaultBufferSize},
		{-5, DefaultBufferSize},
		{1, 1},
		{250, 250},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("capacity=%d", tt.capacity), func(t *testing.T) {
			buf := NewScanBuffer(tt.capacity)
			for i := 0; i < tt.want+10; i++ {
				buf.Push(UID{byte(i)})
			}
			if l := buf.Len(); l != tt.want {
				t.Errorf("len = %d, want %d", l, tt.want)
			}
		})
	}
}

func TestScanBuffer_ReuseAfterDrain(t *testing.T) {
	buf := NewScanBuffer(3)
	buf.Push(UID{0x01})
	buf.Drain()

	buf.Push(UID{0x02})
	buf.Push(UID{0x03})

	got := buf.Drain()
	if len(got) != 2 || got[0][0] != 0x02 || got[1][0] != 0x03 {
		t.Errorf("drain after reuse = %v, want [02 03]", got)
	}
}
