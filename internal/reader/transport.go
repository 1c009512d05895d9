package reader

import (
	"strings"
	"time"
)

// Transport abstracts the connection to a card reader device. Exactly one
// hardware operation may be in flight at a time; the Controller enforces
// this, implementations do not need their own serialization.
type Transport interface {
	// Open establishes the device connection, reusing an existing one if
	// still valid. Called lazily before the first poll.
	Open() error

	// Poll blocks up to timeout waiting for a card and reads its UID.
	// A timeout yields an absent result, not an error. Transport faults
	// are reported in the result rather than aborting the caller.
	Poll(timeout time.Duration) ScanResult

	// Close releases the device connection.
	Close() error
}

// knownReaderPrefixes lists PC/SC reader name prefixes of devices this
// backend has been verified against, in preference order. The RC-S300
// family is the primary target.
var knownReaderPrefixes = []string{
	"SONY FeliCa RC-S300",
	"Sony FeliCa RC-S300",
	"SONY FeliCa RC-S380",
	"ACS ACR122U",
	"ACS ACR1252",
}

// isKnownReader reports whether a PC/SC reader name matches the verified
// device table.
func isKnownReader(name string) bool {
	for _, prefix := range knownReaderPrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// isSAMSlot reports whether a reader name denotes a SAM slot rather than
// a contactless (PICC) interface. Dual-interface readers expose both and
// only the PICC side can see cards in the field.
func isSAMSlot(name string) bool {
	nameLower := strings.ToLower(name)
	return strings.Contains(nameLower, " sam") || strings.Contains(nameLower, "sam ")
}
