package reader

import "sync"

// DefaultBufferSize is the scan buffer capacity when none is configured.
const DefaultBufferSize = 100

// ScanBuffer accumulates accepted UIDs in acceptance order, capped at a
// fixed capacity. Once full, each push silently evicts the oldest entry.
// Safe for concurrent use by the scan loop and drain requests.
type ScanBuffer struct {
	mu      sync.Mutex
	uids    []UID
	maxSize int
	head    int // next write position
	count   int // number of entries (up to maxSize)
}

// NewScanBuffer creates a buffer with the given capacity. Non-positive
// capacities fall back to DefaultBufferSize.
func NewScanBuffer(capacity int) *ScanBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &ScanBuffer{
		uids:    make([]UID, capacity),
		maxSize: capacity,
	}
}

// Push appends a UID, evicting the oldest entry when the buffer is full.
func (b *ScanBuffer) Push(uid UID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.uids[b.head] = uid
	b.head = (b.head + 1) % b.maxSize
	if b.count < b.maxSize {
		b.count++
	}
}

// Drain returns the buffered UIDs in insertion order and empties the
// buffer in the same critical section, so no UID can be seen by two drains
// and nothing pushed after a drain begins is included in its result.
func (b *ScanBuffer) Drain() []UID {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]UID, 0, b.count)
	for i := 0; i < b.count; i++ {
		idx := (b.head - b.count + i + b.maxSize) % b.maxSize
		result = append(result, b.uids[idx])
	}

	b.head = 0
	b.count = 0
	return result
}

// Len returns the number of buffered UIDs.
func (b *ScanBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
