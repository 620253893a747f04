// Package ngham implements the NGHam framed-link codec (spec §4.1, §6):
// seven fixed payload-size buckets, RS(255,223/239) forward error
// correction, CRC-16-CCITT, CCSDS byte scrambling, and a corner-corrected
// size tag. It is grounded on the teacher's npi_protocol.go/npi_phy.go
// shape — a small Serialize()-producing frame struct plus a byte-driven
// reader state machine — generalized from the NPI link's fixed checksum
// framing to NGHam's FEC-protected framing.
package ngham

import (
	"github.com/sigurn/crc16"
)

// Preamble and sync word, MSB-first on the wire (spec §6).
var (
	Preamble = [4]byte{0xAA, 0xAA, 0xAA, 0xAA}
	Sync     = [4]byte{0x5D, 0xE6, 0x2A, 0x7E}
)

// RS codec parameters (spec §4.1, §6): GF(256), generator 0x187, first
// consecutive root 112, primitive element 11.
const (
	rsGenPoly = 0x187
	rsFcr     = 112
	rsPrim    = 11

	maxPad = 28 // header pad-count field is 5 bits: [0, 28]
)

// sizeBucket describes one of the seven fixed NGHam payload-size buckets.
type sizeBucket struct {
	payloadCap int
	fullCap    int
	parity     int
	sizeTag    uint32
}

// buckets is the canonical seven-entry size table (spec §6). Index is the
// bucket number s.
var buckets = [7]sizeBucket{
	{payloadCap: 28, fullCap: 31, parity: 16, sizeTag: 0x3B49CD},
	{payloadCap: 60, fullCap: 63, parity: 16, sizeTag: 0x4DDA57},
	{payloadCap: 92, fullCap: 95, parity: 16, sizeTag: 0x769CD6},
	{payloadCap: 124, fullCap: 127, parity: 32, sizeTag: 0x9BB492},
	{payloadCap: 156, fullCap: 159, parity: 32, sizeTag: 0xA83F63},
	{payloadCap: 188, fullCap: 191, parity: 32, sizeTag: 0xD66EF9},
	{payloadCap: 220, fullCap: 223, parity: 32, sizeTag: 0xEB4934},
}

// rsCodecs caches one RSCodec per distinct nroots value, shared across all
// size buckets using that nroots (spec §9 design note).
var rsCodecs = map[int]*RSCodec{
	16: NewRSCodec(rsGenPoly, rsFcr, rsPrim, 16),
	32: NewRSCodec(rsGenPoly, rsFcr, rsPrim, 32),
}

// rsCodecFor returns the shared RS codec for a size bucket.
func rsCodecFor(s int) *RSCodec {
	return rsCodecs[buckets[s].parity]
}

// crcTable is the CRC-16-CCITT (poly 0x1021, init 0xFFFF, no final XOR)
// table, provided by the small focused checksum library the teacher's own
// checksum code (XorBuffer) suggests this codebase would reach for rather
// than hand-rolling one more bit-banged table (see DESIGN.md).
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// crc16ccitt computes CRC-16-CCITT over buf.
func crc16ccitt(buf []byte) uint16 {
	return crc16.Checksum(buf, crcTable)
}

// pickBucket selects the smallest size bucket whose payload capacity can
// hold a payload of length l. Returns -1 if l is out of range.
func pickBucket(l int) int {
	if l < 1 || l > buckets[len(buckets)-1].payloadCap {
		return -1
	}
	for s, b := range buckets {
		if b.payloadCap >= l {
			return s
		}
	}
	return -1
}

// header packs the pad count and user flags into the single NGHam header
// byte (spec §4.1, §6): bits 4..0 = pad count, bits 7..5 = flags.
func header(pad int, flags uint8) byte {
	return byte(pad&0x1F) | (flags << 5)
}

// unpackHeader extracts pad count and flags from a header byte.
func unpackHeader(h byte) (pad int, flags uint8) {
	return int(h & 0x1F), h >> 5
}

// hamming24 returns the Hamming distance between two 24-bit values.
func hamming24(a, b uint32) int {
	x := (a ^ b) & 0xFFFFFF
	n := 0
	for x != 0 {
		n++
		x &= x - 1
	}
	return n
}

// matchSizeTag compares tag against each canonical size tag under Hamming
// distance, accepting the closest if within 6 bits (spec §4.1). Returns
// the bucket index, or -1 if no bucket is close enough.
func matchSizeTag(tag uint32) int {
	best := -1
	bestDist := 7 // reject anything further than 6
	for s, b := range buckets {
		d := hamming24(tag, b.sizeTag)
		if d < bestDist {
			bestDist = d
			best = s
		}
	}
	return best
}
