/*
Package pppoe is a library for PPP over Ethernet applications.  It
contains no operating-system-specific code.

PPPoE is specified by RFC2516, and is widely used in home broadband
links when connecting the client's router into the Internet Service
Provider network.

Currently package pppoe implements:

 * Protocol support for the PPPoE Active Discovery sequence (RFC2516):
   building and parsing PADI/PADO/PADR/PADS/PADT packets and their
   tags, including the RFC4638 PPP-Max-Payload tag and the RFC4937
   DSL Forum vendor-specific sub-TLVs. Protocol support for both
   client and server applications is provided.

Sending and receiving the resulting frames is the job of whatever
kernel transport a caller wires up (e.g. internal/netgraph on
FreeBSD); package pppoe only builds and parses the wire format.
Actual session data packets are managed using a PPP daemon and are
outside the scope of package pppoe.

Usage

	# Note we're ignoring errors for brevity

	import (
		"fmt"
		"github.com/AxeyGabriel/mpd-ng/pppoe"
	)

	// Build a PADI packet to kick off the discovery process.
	srcHWAddr := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	padi, _ := pppoe.NewPADI(srcHWAddr, "SuperBroadbandServiceName")

	// Encode the packet ready for transmission over a caller-supplied
	// transport.
	b, _ := padi.ToBytes()

	// Parse frames received over that transport back into PPPoE
	// packets.
	parsed, _ := pppoe.ParsePacketBuffer(b)
	fmt.Printf("received: %v\n", parsed[0])
*/
package pppoe
