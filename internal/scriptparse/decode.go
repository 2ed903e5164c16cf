// Package scriptparse decodes LBRY claim/support output scripts into
// typed payloads. Adapted from the teacher's internal/handler/events.go:
// instead of decoding Ethereum ABI-encoded event logs keyed by a topic
// signature, this decodes a leading opcode byte in a UTXO output
// script and reads the length-prefixed fields that follow it.
package scriptparse

import (
	"fmt"
)

// Opcode identifies which claim-system operation an output script encodes.
type Opcode byte

const (
	OpClaimName    Opcode = 0xb5
	OpSupportClaim Opcode = 0xb6
	OpUpdateClaim  Opcode = 0xb7
)

// ClaimName is the decoded payload of an OP_CLAIM_NAME script.
type ClaimName struct {
	Name           string
	ClaimID        string
	ChannelClaimID string
	IsChannel      bool
}

// Support is the decoded payload of an OP_SUPPORT_CLAIM script.
type Support struct {
	ClaimID string
}

// UpdateClaim is the decoded payload of an OP_UPDATE_CLAIM script.
type UpdateClaim struct {
	ClaimID string
	Name    string
}

// Detect returns the opcode at the head of script, or false if the
// script does not start with a recognized claim-system opcode.
func Detect(script []byte) (Opcode, bool) {
	if len(script) == 0 {
		return 0, false
	}
	switch Opcode(script[0]) {
	case OpClaimName, OpSupportClaim, OpUpdateClaim:
		return Opcode(script[0]), true
	default:
		return 0, false
	}
}

// readField reads a one-byte length prefix followed by that many bytes,
// returning the field and the remaining buffer.
func readField(buf []byte) (string, []byte, error) {
	if len(buf) < 1 {
		return "", nil, fmt.Errorf("script: truncated length prefix")
	}
	n := int(buf[0])
	buf = buf[1:]
	if len(buf) < n {
		return "", nil, fmt.Errorf("script: truncated field, want %d bytes have %d", n, len(buf))
	}
	return string(buf[:n]), buf[n:], nil
}

// DecodeClaimName parses an OP_CLAIM_NAME script:
// [opcode][name][claimID][channelClaimID][isChannel].
func DecodeClaimName(script []byte) (ClaimName, error) {
	if len(script) == 0 || Opcode(script[0]) != OpClaimName {
		return ClaimName{}, fmt.Errorf("script: not an OP_CLAIM_NAME output")
	}
	buf := script[1:]
	name, buf, err := readField(buf)
	if err != nil {
		return ClaimName{}, err
	}
	claimID, buf, err := readField(buf)
	if err != nil {
		return ClaimName{}, err
	}
	channelClaimID, buf, err := readField(buf)
	if err != nil {
		return ClaimName{}, err
	}
	if len(buf) < 1 {
		return ClaimName{}, fmt.Errorf("script: missing is-channel flag")
	}
	return ClaimName{
		Name:           name,
		ClaimID:        claimID,
		ChannelClaimID: channelClaimID,
		IsChannel:      buf[0] != 0,
	}, nil
}

// DecodeSupport parses an OP_SUPPORT_CLAIM script: [opcode][claimID].
func DecodeSupport(script []byte) (Support, error) {
	if len(script) == 0 || Opcode(script[0]) != OpSupportClaim {
		return Support{}, fmt.Errorf("script: not an OP_SUPPORT_CLAIM output")
	}
	claimID, _, err := readField(script[1:])
	if err != nil {
		return Support{}, err
	}
	return Support{ClaimID: claimID}, nil
}

// DecodeUpdateClaim parses an OP_UPDATE_CLAIM script: [opcode][claimID][name].
func DecodeUpdateClaim(script []byte) (UpdateClaim, error) {
	if len(script) == 0 || Opcode(script[0]) != OpUpdateClaim {
		return UpdateClaim{}, fmt.Errorf("script: not an OP_UPDATE_CLAIM output")
	}
	buf := script[1:]
	claimID, buf, err := readField(buf)
	if err != nil {
		return UpdateClaim{}, err
	}
	name, _, err := readField(buf)
	if err != nil {
		return UpdateClaim{}, err
	}
	return UpdateClaim{ClaimID: claimID, Name: name}, nil
}

// EncodeClaimName is the inverse of DecodeClaimName, used by tests to
// build synthetic output scripts.
func EncodeClaimName(c ClaimName) []byte {
	out := []byte{byte(OpClaimName)}
	out = appendField(out, c.Name)
	out = appendField(out, c.ClaimID)
	out = appendField(out, c.ChannelClaimID)
	isChannel := byte(0)
	if c.IsChannel {
		isChannel = 1
	}
	return append(out, isChannel)
}

// EncodeSupport is the inverse of DecodeSupport.
func EncodeSupport(s Support) []byte {
	out := []byte{byte(OpSupportClaim)}
	return appendField(out, s.ClaimID)
}

// EncodeUpdateClaim is the inverse of DecodeUpdateClaim.
func EncodeUpdateClaim(u UpdateClaim) []byte {
	out := []byte{byte(OpUpdateClaim)}
	out = appendField(out, u.ClaimID)
	return appendField(out, u.Name)
}

func appendField(buf []byte, s string) []byte {
	if len(s) > 255 {
		s = s[:255]
	}
	buf = append(buf, byte(len(s)))
	return append(buf, s...)
}
