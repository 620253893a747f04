// Package spp implements the Serial Packet Protocol (spec §6): the host
// link framing used between the OBDH and a ground-side terminal/debug
// tool, distinct from the over-the-air NGHam framing in package ngham.
// Its 5-byte-header-then-payload shape and CRC-guarded parse loop mirror
// the teacher's npiPhyReader byte scanner (npi_phy.go), generalized from
// a 1-byte XOR checksum to a CRC-16 header.
package spp

import (
	"fmt"

	"github.com/sigurn/crc16"
)

// Type identifies an SPP frame's payload kind (spec §6).
type Type uint8

const (
	TypeRX      Type = 0
	TypeTX      Type = 1
	TypeLocal   Type = 2
	TypeCommand Type = 3
)

const startByte = 0x24

var crcTable = crc16.MakeTable(crc16.CRC16_GENIBUS)

// Frame is one parsed SPP packet.
type Frame struct {
	Type    Type
	Payload []byte
}

// Marshal renders a Frame to its wire bytes: start, CRC-16, type, length,
// payload.
func (f Frame) Marshal() []byte {
	out := make([]byte, 5+len(f.Payload))
	out[0] = startByte
	out[3] = byte(f.Type)
	out[4] = byte(len(f.Payload))
	copy(out[5:], f.Payload)

	crc := crc16.Checksum(out[3:5+len(f.Payload)], crcTable)
	out[1] = byte(crc >> 8)
	out[2] = byte(crc)
	return out
}

type parseState int

const (
	stateAwaitStart parseState = iota
	stateHeader
	statePayload
)

// Parser is a byte-at-a-time SPP frame parser.
type Parser struct {
	state  parseState
	header [4]byte // crcHi, crcLo, type, pl_len
	hdrPos int
	buf    []byte
}

// Feed advances the parser by one byte. It returns a non-nil Frame when a
// complete, CRC-valid frame has been parsed; a non-nil error when a frame
// completed but failed CRC (the frame is then discarded and parsing
// resumes at stateAwaitStart); and (nil, nil) otherwise.
func (p *Parser) Feed(c byte) (*Frame, error) {
	switch p.state {
	case stateAwaitStart:
		if c == startByte {
			p.state = stateHeader
			p.hdrPos = 0
		}
		return nil, nil

	case stateHeader:
		p.header[p.hdrPos] = c
		p.hdrPos++
		if p.hdrPos == len(p.header) {
			plLen := int(p.header[3])
			p.buf = make([]byte, 0, plLen)
			if plLen == 0 {
				return p.complete()
			}
			p.state = statePayload
		}
		return nil, nil

	case statePayload:
		p.buf = append(p.buf, c)
		if len(p.buf) == int(p.header[3]) {
			return p.complete()
		}
		return nil, nil
	}
	return nil, nil
}

func (p *Parser) complete() (*Frame, error) {
	p.state = stateAwaitStart

	typ := Type(p.header[2])
	plLen := p.header[3]
	crcBody := append([]byte{p.header[2], plLen}, p.buf...)
	want := uint16(p.header[0])<<8 | uint16(p.header[1])
	got := crc16.Checksum(crcBody, crcTable)
	if got != want {
		return nil, fmt.Errorf("spp: CRC mismatch: got %04X want %04X", got, want)
	}

	payload := make([]byte, len(p.buf))
	copy(payload, p.buf)
	return &Frame{Type: typ, Payload: payload}, nil
}
