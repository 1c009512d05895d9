package reader

import "testing"

func TestUID_Hex(t *testing.T) {
	tests := []struct {
		name string
		uid  UID
		want string
	}{
		{"4-byte ISO 14443", UID{0x93, 0x2b, 0xae, 0x0e}, "932bae0e"},
		{"7-byte NTAG", UID{0x04, 0x42, 0x48, 0x8a, 0x83, 0x72, 0x80}, "0442488a837280"},
		{"8-byte FeliCa IDm", UID{0x01, 0x01, 0x06, 0x01, 0x2e, 0x4f, 0x80, 0xd5}, "010106012e4f80d5"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.uid.Hex(); got != tt.want {
				t.Errorf("Hex() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUID_Equal(t *testing.T) {
	a := UID{0x01, 0x02}
	b := UID{0x01, 0x02}
	c := UID{0x01, 0x03}

	if !a.Equal(b) {
		t.Error("identical byte sequences should be equal")
	}
	if a.Equal(c) {
		t.Error("different byte sequences should not be equal")
	}
	if a.Equal(nil) {
		t.Error("non-empty UID should not equal nil")
	}
	if !UID(nil).Equal(UID{}) {
		t.Error("nil and empty UID should be equal")
	}
}

func TestScanResult_Present(t *testing.T) {
	if !(ScanResult{UID: UID{0x01}}).Present() {
		t.Error("result with UID should be present")
	}
	if (ScanResult{}).Present() {
		t.Error("empty result should be absent")
	}
	if (ScanResult{UID: UID{0x01}, Err: ErrReaderFault}).Present() {
		t.Error("faulted result should not be present")
	}
}

func TestAccepted(t *testing.T) {
	a := UID{0x11}
	b := UID{0x22}

	tests := []struct {
		name      string
		candidate UID
		last      UID
		want      bool
	}{
		{"first card", a, nil, true},
		{"repeat suppressed", a, a, false},
		{"different card", b, a, true},
		{"empty candidate", nil, a, false},
		{"empty candidate, empty last", nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := accepted(tt.candidate, tt.last); got != tt.want {
				t.Errorf("accepted(%v, %v) = %v, want %v", tt.candidate, tt.last, got, tt.want)
			}
		})
	}
}

// TestAccepted_Sequence verifies the [A, A, B] law: a repeated card yields
// one acceptance, a new card yields another.
func TestAccepted_Sequence(t *testing.T) {
	a := UID{0xaa}
	b := UID{0xbb}

	var last UID
	count := 0
	for _, candidate := range []UID{a, a, b} {
		if accepted(candidate, last) {
			last = candidate
			count++
		}
	}

	if count != 2 {
		t.Errorf("accepted %d of [A, A, B], want 2", count)
	}
	if !last.Equal(b) {
		t.Errorf("last = %v, want %v", last, b)
	}
}
