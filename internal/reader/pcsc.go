package reader

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/attendancekit/nfc-backend/internal/logging"
	"github.com/ebfe/scard"
)

// getUIDCommand is the PC/SC pseudo-APDU for reading the UID (IDm for
// FeliCa cards) of the card currently in the field: GET DATA, INS 0xCA.
var getUIDCommand = []byte{0xFF, 0xCA, 0x00, 0x00, 0x00}

// PCSC reads cards through the host smart-card service (pcscd on Linux,
// WinSCard on Windows). The context is established lazily on first use and
// dropped on service-level faults so the next poll can reestablish it.
type PCSC struct {
	deviceMatch string

	mu     sync.Mutex
	ctx    *scard.Context
	reader string
}

// NewPCSC creates a PC/SC transport. deviceMatch is an optional substring
// matched against reader names; when empty the first known contactless
// reader is used.
func NewPCSC(deviceMatch string) *PCSC {
	return &PCSC{deviceMatch: deviceMatch}
}

// Open establishes the PC/SC context and selects a reader. Reuses the
// existing context if one is already established.
func (p *PCSC) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.openLocked()
}

func (p *PCSC) openLocked() error {
	if p.ctx != nil {
		return nil
	}

	ctx, err := scard.EstablishContext()
	if err != nil {
		// Usually means pcscd is not running
		return fmt.Errorf("%w: establish PC/SC context: %v", ErrNoReader, err)
	}

	name, err := selectReader(ctx, p.deviceMatch)
	if err != nil {
		ctx.Release()
		return err
	}

	p.ctx = ctx
	p.reader = name
	logging.Info(logging.CatReader, "Reader opened", map[string]any{
		"reader": name,
	})
	return nil
}

// selectReader picks a contactless reader from the PC/SC reader list.
// A configured device match takes precedence, then the known-device table,
// then any PICC interface.
func selectReader(ctx *scard.Context, deviceMatch string) (string, error) {
	names, err := ctx.ListReaders()
	if err != nil {
		return "", fmt.Errorf("%w: list readers: %v", ErrNoReader, err)
	}

	picc := make([]string, 0, len(names))
	for _, name := range names {
		if isSAMSlot(name) {
			continue
		}
		picc = append(picc, name)
	}
	if len(picc) == 0 {
		return "", fmt.Errorf("%w: no contactless reader connected", ErrNoReader)
	}

	if deviceMatch != "" {
		for _, name := range picc {
			if strings.Contains(name, deviceMatch) {
				return name, nil
			}
		}
		return "", fmt.Errorf("%w: no reader matches %q", ErrNoReader, deviceMatch)
	}

	for _, name := range picc {
		if isKnownReader(name) {
			return name, nil
		}
	}
	return picc[0], nil
}

// Poll waits up to timeout for a card to enter the field and reads its UID.
func (p *PCSC) Poll(timeout time.Duration) ScanResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.openLocked(); err != nil {
		return ScanResult{Err: err}
	}

	deadline := time.Now().Add(timeout)
	state := scard.ReaderState{
		Reader:       p.reader,
		CurrentState: scard.StateUnaware,
	}

	for {
		remain := time.Until(deadline)
		if remain <= 0 {
			return ScanResult{}
		}

		states := []scard.ReaderState{state}
		if err := p.ctx.GetStatusChange(states, remain); err != nil {
			if err == scard.ErrTimeout {
				return ScanResult{}
			}
			// Service-level fault (device unplugged, pcscd restarted).
			// Drop the context so the next poll reestablishes it.
			p.dropLocked()
			return ScanResult{Err: fmt.Errorf("%w: wait for card: %v", ErrReaderFault, err)}
		}

		if states[0].EventState&scard.StatePresent != 0 {
			return p.readUIDLocked()
		}
		state.CurrentState = states[0].EventState
	}
}

func (p *PCSC) readUIDLocked() ScanResult {
	card, err := p.ctx.Connect(p.reader, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		// The card may have left the field between detection and connect.
		return ScanResult{Err: fmt.Errorf("%w: connect: %v", ErrReaderFault, err)}
	}
	defer card.Disconnect(scard.LeaveCard)

	rsp, err := card.Transmit(getUIDCommand)
	if err != nil {
		return ScanResult{Err: fmt.Errorf("%w: transmit: %v", ErrReaderFault, err)}
	}
	if len(rsp) < 2 || rsp[len(rsp)-2] != 0x90 || rsp[len(rsp)-1] != 0x00 {
		return ScanResult{Err: fmt.Errorf("%w: GET DATA failed, status %x", ErrReaderFault, rsp)}
	}

	uid := make(UID, len(rsp)-2)
	copy(uid, rsp[:len(rsp)-2])
	return ScanResult{UID: uid}
}

func (p *PCSC) dropLocked() {
	if p.ctx != nil {
		p.ctx.Release()
		p.ctx = nil
		p.reader = ""
	}
}

// Close releases the PC/SC context.
func (p *PCSC) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropLocked()
	return nil
}
