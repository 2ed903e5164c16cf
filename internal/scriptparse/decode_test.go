package scriptparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		script []byte
		opcode Opcode
		ok     bool
	}{
		{"claim name", []byte{0xb5, 0x00}, OpClaimName, true},
		{"support claim", []byte{0xb6}, OpSupportClaim, true},
		{"update claim", []byte{0xb7}, OpUpdateClaim, true},
		{"unrecognized opcode", []byte{0xff}, 0, false},
		{"empty script", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, ok := Detect(tt.script)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.opcode, op)
			}
		})
	}
}

func TestEncodeDecodeClaimName(t *testing.T) {
	claim := ClaimName{
		Name:           "my-channel",
		ClaimID:        "claim-abc123",
		ChannelClaimID: "",
		IsChannel:      true,
	}
	script := EncodeClaimName(claim)

	op, ok := Detect(script)
	require.True(t, ok)
	require.Equal(t, OpClaimName, op)

	decoded, err := DecodeClaimName(script)
	require.NoError(t, err)
	assert.Equal(t, claim, decoded)
}

func TestEncodeDecodeClaimNameWithChannel(t *testing.T) {
	claim := ClaimName{
		Name:           "my-video",
		ClaimID:        "claim-content-1",
		ChannelClaimID: "claim-channel-1",
		IsChannel:      false,
	}
	script := EncodeClaimName(claim)

	decoded, err := DecodeClaimName(script)
	require.NoError(t, err)
	assert.Equal(t, claim, decoded)
}

func TestDecodeClaimNameRejectsWrongOpcode(t *testing.T) {
	_, err := DecodeClaimName([]byte{0xb6, 0x00})
	require.Error(t, err)
}

func TestDecodeClaimNameRejectsTruncated(t *testing.T) {
	_, err := DecodeClaimName([]byte{0xb5, 0x05, 'h', 'i'})
	require.Error(t, err)
}

func TestEncodeDecodeSupport(t *testing.T) {
	s := Support{ClaimID: "claim-xyz"}
	script := EncodeSupport(s)

	decoded, err := DecodeSupport(script)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
}

func TestEncodeDecodeUpdateClaim(t *testing.T) {
	u := UpdateClaim{ClaimID: "claim-1", Name: "renamed"}
	script := EncodeUpdateClaim(u)

	decoded, err := DecodeUpdateClaim(script)
	require.NoError(t, err)
	assert.Equal(t, u, decoded)
}

func TestAppendFieldTruncatesOversizedStrings(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	claim := ClaimName{Name: string(long), ClaimID: "c"}
	script := EncodeClaimName(claim)

	decoded, err := DecodeClaimName(script)
	require.NoError(t, err)
	assert.Len(t, decoded.Name, 255)
}
