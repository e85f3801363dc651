// Package wire implements the subset of RFC 6455 framing needed to drive
// one outbound client connection: masked frame encoding, frame decoding over
// an accumulation buffer, and fragmented-message reassembly.
//
// Framing layout per https://datatracker.ietf.org/doc/html/rfc6455#section-5.2
package wire

import "encoding/binary"

const (
	// Mandatory first two header bytes:
	// byte 1: |fin(1)|rsv1(1)|rsv2(1)|rsv3(1)|opcode(4)|
	// byte 2: |masked(1)|payload length(7)|
	headerLen = 2

	bitFIN        = byte(1 << 7)
	bitMasked     = byte(1 << 7)
	bitmaskOpcode = byte(1<<4 - 1)
	bitmaskLen    = byte(1<<7 - 1)

	// 7-bit length values 126 and 127 select the 16-bit and 64-bit
	// big-endian extended length forms.
	len16Code = 126
	len64Code = 127

	maskLen = 4

	// MaxControlPayloadLen bounds control frame payloads per section 5.5.
	MaxControlPayloadLen = 125

	// MaxFramePayloadLen bounds the declared payload length of a single
	// inbound frame. The 64-bit length form allows absurd declarations; the
	// service never sends frames remotely close to this, so anything above
	// it is treated as a framing error rather than an allocation request.
	MaxFramePayloadLen = 1 << 26
)

// Opcode identifies the type of a frame.
type Opcode byte

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

func (c Opcode) IsContinuation() bool { return c == OpcodeContinuation }
func (c Opcode) IsText() bool         { return c == OpcodeText }
func (c Opcode) IsBinary() bool       { return c == OpcodeBinary }
func (c Opcode) IsClose() bool        { return c == OpcodeClose }
func (c Opcode) IsPing() bool         { return c == OpcodePing }
func (c Opcode) IsPong() bool         { return c == OpcodePong }

func (c Opcode) IsControl() bool {
	return c.IsClose() || c.IsPing() || c.IsPong()
}

func (c Opcode) IsData() bool {
	return c.IsText() || c.IsBinary()
}

func (c Opcode) String() string {
	switch c {
	case OpcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return "unknown"
	}
}

// GUID is the fixed value appended to Sec-WebSocket-Key when computing the
// expected Sec-WebSocket-Accept, per section 4.2.2.
const GUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// CloseCode is the 2-byte status carried at the start of a close payload.
type CloseCode uint16

const (
	CloseNormal        CloseCode = 1000
	CloseGoingAway     CloseCode = 1001
	CloseProtocolError CloseCode = 1002
	CloseInternalError CloseCode = 1011

	// CloseNoStatus is reserved for close frames with an empty payload and
	// never appears on the wire.
	CloseNoStatus CloseCode = 1005
)

// EncodeClosePayload prepends the big-endian close code to the reason.
func EncodeClosePayload(cc CloseCode, reason string) []byte {
	b := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(b, uint16(cc))
	return append(b, reason...)
}

// DecodeClosePayload splits a close payload into code and reason. An empty
// payload maps to CloseNoStatus.
func DecodeClosePayload(b []byte) (cc CloseCode, reason string) {
	if len(b) < 2 {
		return CloseNoStatus, ""
	}
	return CloseCode(binary.BigEndian.Uint16(b[:2])), string(b[2:])
}
