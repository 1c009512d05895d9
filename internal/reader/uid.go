package reader

import (
	"bytes"
	"encoding/hex"
	"errors"
)

// UID is the unique identifier of a contactless card. Length depends on the
// card family (4-10 bytes). Rendered externally as lowercase hex without
// separators.
type UID []byte

// Hex returns the UID as a lowercase hex string, e.g. "0123456789ab".
func (u UID) Hex() string {
	return hex.EncodeToString(u)
}

// Equal reports byte-exact equality.
func (u UID) Equal(other UID) bool {
	return bytes.Equal(u, other)
}

// ScanResult is the outcome of a single poll attempt. A nil UID with a nil
// Err means no card was seen within the poll window - a normal outcome,
// not an error.
type ScanResult struct {
	UID UID
	Err error
}

// Present reports whether the poll saw a card.
func (r ScanResult) Present() bool {
	return r.Err == nil && len(r.UID) > 0
}

// Common errors
var (
	// ErrAlreadyRunning indicates continuous mode is already active
	ErrAlreadyRunning = errors.New("continuous mode is already running")
	// ErrNoReader indicates no usable reader device could be opened
	ErrNoReader = errors.New("no card reader available")
	// ErrReaderFault indicates a transient I/O fault during an open session
	ErrReaderFault = errors.New("reader transport fault")
)

// accepted reports whether a freshly polled UID should enter the scan
// buffer. A candidate identical to the previously accepted UID is
// suppressed, so a card resting on the reader yields one entry rather than
// one per poll. The caller owns the "last" value and updates it on true.
func accepted(candidate, last UID) bool {
	return len(candidate) > 0 && !candidate.Equal(last)
}
