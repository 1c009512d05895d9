// reader-probe is a small developer tool for poking at a PC/SC reader with
// raw APDUs. Useful for verifying which commands an RC-S300 (or other
// contactless reader) answers before relying on them in the agent.
package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"github.com/ebfe/scard"
)

func main() {
	ctx, err := scard.EstablishContext()
	if err != nil {
		log.Fatal(err)
	}
	defer ctx.Release()

	readers, err := ctx.ListReaders()
	if err != nil {
		log.Fatal(err)
	}
	if len(readers) == 0 {
		log.Fatal("no PC/SC readers found")
	}

	fmt.Println("Readers:")
	for i, name := range readers {
		fmt.Printf("  [%d] %s\n", i, name)
	}

	// Prefer a contactless interface; SAM slots cannot see cards.
	var readerName string
	for _, name := range readers {
		lower := strings.ToLower(name)
		if strings.Contains(lower, " sam") || strings.Contains(lower, "sam ") {
			continue
		}
		readerName = name
		break
	}
	if readerName == "" {
		log.Fatal("no contactless reader found")
	}

	fmt.Printf("\nConnecting to: %s\n", readerName)
	fmt.Println("Place a card on the reader...")

	states := []scard.ReaderState{{
		Reader:       readerName,
		CurrentState: scard.StateUnaware,
	}}
	for states[0].EventState&scard.StatePresent == 0 {
		if err := ctx.GetStatusChange(states, -1); err != nil {
			log.Fatal(err)
		}
		states[0].CurrentState = states[0].EventState
	}

	card, err := ctx.Connect(readerName, scard.ShareShared, scard.ProtocolAny)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer card.Disconnect(scard.LeaveCard)

	fmt.Println("\n=== GET DATA (UID/IDm) ===")
	probe(card, "GET DATA", []byte{0xFF, 0xCA, 0x00, 0x00, 0x00})

	fmt.Println("\n=== GET DATA (ATS historical bytes) ===")
	probe(card, "GET DATA P1=01", []byte{0xFF, 0xCA, 0x01, 0x00, 0x00})

	status, err := card.Status()
	if err == nil {
		fmt.Printf("\nATR: %s\n", hex.EncodeToString(status.Atr))
	}
}

func probe(card *scard.Card, name string, cmd []byte) {
	fmt.Printf("%s: %s\n", name, hex.EncodeToString(cmd))
	rsp, err := card.Transmit(cmd)
	if err != nil {
		fmt.Printf("  Error: %v\n", err)
		return
	}

	fmt.Printf("  Response (%d bytes): %s\n", len(rsp), hex.EncodeToString(rsp))
	if len(rsp) >= 2 {
		sw1 := rsp[len(rsp)-2]
		sw2 := rsp[len(rsp)-1]
		fmt.Printf("  Status: %02X %02X", sw1, sw2)
		if sw1 == 0x90 && sw2 == 0x00 {
			fmt.Printf(" (SUCCESS)")
		} else {
			fmt.Printf(" (FAILED)")
		}
		fmt.Println()
	}
}
