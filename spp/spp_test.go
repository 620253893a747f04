package spp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func feedAll(p *Parser, b []byte) (*Frame, error) {
	var lastFrame *Frame
	var lastErr error
	for _, c := range b {
		f, err := p.Feed(c)
		if f != nil || err != nil {
			lastFrame, lastErr = f, err
		}
	}
	return lastFrame, lastErr
}

func TestMarshalParseRoundTrip(t *testing.T) {
	want := Frame{Type: TypeCommand, Payload: []byte("PING")}
	wire := want.Marshal()
	require.Equal(t, byte(0x24), wire[0])
	require.Equal(t, byte(len(want.Payload)), wire[4])

	var p Parser
	got, err := feedAll(&p, wire)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, want.Type, got.Type)
	require.Equal(t, want.Payload, got.Payload)
}

func TestEmptyPayloadRoundTrip(t *testing.T) {
	want := Frame{Type: TypeLocal, Payload: nil}
	wire := want.Marshal()

	var p Parser
	got, err := feedAll(&p, wire)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, TypeLocal, got.Type)
	require.Len(t, got.Payload, 0)
}

func TestCorruptedCRCRejected(t *testing.T) {
	f := Frame{Type: TypeRX, Payload: []byte{1, 2, 3}}
	wire := f.Marshal()
	wire[len(wire)-1] ^= 0xFF // corrupt last payload byte after CRC computed

	var p Parser
	got, err := feedAll(&p, wire)
	require.Error(t, err)
	require.Nil(t, got)
}

func TestGarbageBeforeStartIgnored(t *testing.T) {
	f := Frame{Type: TypeTX, Payload: []byte{0xAA}}
	wire := append([]byte{0x00, 0xFF}, f.Marshal()...)

	var p Parser
	got, err := feedAll(&p, wire)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, TypeTX, got.Type)
	require.Equal(t, f.Payload, got.Payload)
}
