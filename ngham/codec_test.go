package ngham

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeTagHammingDistance(t *testing.T) {
	for i := range buckets {
		for j := range buckets {
			if i == j {
				continue
			}
			d := hamming24(buckets[i].sizeTag, buckets[j].sizeTag)
			require.GreaterOrEqualf(t, d, 13, "buckets %d,%d too close: distance=%d", i, j, d)
		}
	}
}

func TestCRC16CCITTReferenceVector(t *testing.T) {
	// Standard CRC-16/CCITT-FALSE check value for the ASCII string
	// "123456789".
	got := crc16ccitt([]byte("123456789"))
	require.Equal(t, uint16(0x29B1), got)
}

func TestPickBucket(t *testing.T) {
	cases := []struct {
		l    int
		want int
	}{
		{1, 0}, {28, 0}, {29, 1}, {60, 1}, {61, 2}, {220, 6},
	}
	for _, c := range cases {
		require.Equal(t, c.want, pickBucket(c.l), "len=%d", c.l)
	}
	require.Equal(t, -1, pickBucket(0))
	require.Equal(t, -1, pickBucket(221))
}

func TestHeaderPackUnpack(t *testing.T) {
	h := header(17, 0x5)
	pad, flags := unpackHeader(h)
	require.Equal(t, 17, pad)
	require.Equal(t, uint8(0x5), flags)
}

func TestEncodeDecodeRoundTripNoErrors(t *testing.T) {
	for _, l := range []int{1, 28, 29, 92, 220} {
		payload := make([]byte, l)
		for i := range payload {
			payload[i] = byte(i + 1)
		}
		frame, err := Encode(payload, 0x3)
		require.NoError(t, err)

		// Strip preamble(4) + sync(4); the decoder starts at the size tag.
		body := frame[8:]
		result := DecodeFrame(body)
		require.NotNil(t, result)
		require.Equal(t, ConditionOk, result.Condition)
		require.Equal(t, 0, result.Errors)
		require.Equal(t, uint8(0x3), result.Flags)
		require.Equal(t, payload, result.Payload)
	}
}

func TestEncodeRejectsOutOfRangePayload(t *testing.T) {
	_, err := Encode(nil, 0)
	require.Error(t, err)

	_, err = Encode(make([]byte, 221), 0)
	require.Error(t, err)
}

func TestDecoderPreFailOnGarbage(t *testing.T) {
	dec := NewDecoder()
	var got *Result
	for _, b := range []byte{0x00, 0x01, 0x02} {
		got = dec.Feed(b)
	}
	require.NotNil(t, got)
	require.Equal(t, ConditionPreFail, got.Condition)
}

func TestDecodeCorrectsRSErrors(t *testing.T) {
	// Spec §8: "byte sequences B differing from a valid frame by <= k
	// RS-correctable bytes after scrambling: decode returns the original
	// payload with error-count == k." Bucket 0 has nroots=16, so it can
	// correct up to 8 byte errors.
	payload := make([]byte, 28)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	frame, err := Encode(payload, 0)
	require.NoError(t, err)
	body := append([]byte{}, frame[8:]...)

	// Corrupt k=5 distinct bytes within the transmitted (scrambled) body,
	// past the 3-byte size tag; flipping bits post-scramble is equivalent
	// to corrupting the corresponding codeword/parity symbol once
	// descrambled.
	const k = 5
	for i := 0; i < k; i++ {
		body[3+i*9] ^= 0xFF
	}

	result := DecodeFrame(body)
	require.NotNil(t, result)
	require.Equal(t, ConditionOk, result.Condition)
	require.Equal(t, k, result.Errors)
	require.Equal(t, payload, result.Payload)
}

func TestDecodeFailsWhenErrorsExceedCorrectionCapacity(t *testing.T) {
	payload := make([]byte, 28)
	frame, err := Encode(payload, 0)
	require.NoError(t, err)
	body := append([]byte{}, frame[8:]...)

	// Bucket 0's nroots=16 corrects at most 8 byte errors; corrupt 9, past
	// the 3-byte size tag.
	for i := 0; i < 9; i++ {
		body[3+i*5] ^= 0xFF
	}

	result := DecodeFrame(body)
	require.NotNil(t, result)
	require.Equal(t, ConditionFail, result.Condition)
}

func TestSizeTagCornerRecovery(t *testing.T) {
	// Flip each of the low six bits of every valid 24-bit size tag, one
	// bit at a time, and check the decoder still selects the correct size
	// bucket.
	for s, b := range buckets {
		for bit := 0; bit < 6; bit++ {
			corrupted := b.sizeTag ^ (1 << bit)
			require.Equal(t, s, matchSizeTag(corrupted), "bucket %d, bit %d", s, bit)
		}
	}
}

func TestMidReceptionHookFires(t *testing.T) {
	payload := make([]byte, 28)
	frame, err := Encode(payload, 0)
	require.NoError(t, err)
	body := frame[8:]

	dec := NewDecoder()
	fired := false
	dec.OnMidReception = func() { fired = true }

	for _, b := range body {
		dec.Feed(b)
	}
	require.True(t, fired)
}
