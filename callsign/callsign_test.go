package callsign

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAcceptsValidCallsigns(t *testing.T) {
	cases := []string{"PY0EFS", "py0efs-11", "ABC-5", "X"}
	for _, s := range cases {
		c, err := Parse(s)
		require.NoError(t, err, s)
		require.True(t, len(c.Sign) >= 1 && len(c.Sign) <= 6)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	_, err := Parse("TOOLONGCALL")
	require.Error(t, err)
	_, err = Parse("ABC-999")
	require.Error(t, err)
}

func TestPack6RoundTrip(t *testing.T) {
	c := Call{Sign: "PY0EFS", SSID: 11}
	packed := c.Pack6()
	got := Unpack6(packed)
	require.Equal(t, c.Sign, got.Sign)
	require.Equal(t, c.SSID, got.SSID)
}

func TestUnpacked7RoundTrip(t *testing.T) {
	c := Call{Sign: "PY0EFS", SSID: 0}
	raw := c.Unpacked7()
	require.Equal(t, [7]byte{'P', 'Y', '0', 'E', 'F', 'S', 0}, raw)

	got := ParseUnpacked7(raw)
	require.Equal(t, c.Sign, got.Sign)
	require.Equal(t, c.SSID, got.SSID)
}
