package wire

import (
	"encoding/binary"
	"errors"

	"github.com/valyala/bytebufferpool"
)

// FrameCodec encodes outbound frames and decodes inbound ones.
//
// Decoding runs over a Buffer fed by the transport: each Decode call
// extracts at most one complete frame and consumes exactly its bytes, or
// returns ErrNeedMore without consuming anything, at which point the caller
// waits for the next transport delivery.
type FrameCodec struct{}

// Encode appends one complete wire frame for f to dst.
//
// Every encoded frame is masked with a fresh random key; f.Payload is
// copied, not mutated, so the caller's bytes stay intact.
func (FrameCodec) Encode(f *Frame, dst *bytebufferpool.ByteBuffer) {
	b0 := byte(f.Opcode)
	if f.Fin {
		b0 |= bitFIN
	}
	dst.B = append(dst.B, b0)

	n := len(f.Payload)
	switch {
	case n < len16Code:
		dst.B = append(dst.B, bitMasked|byte(n))
	case n <= 65535:
		dst.B = append(dst.B, bitMasked|len16Code, byte(n>>8), byte(n))
	default:
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		dst.B = append(dst.B, bitMasked|len64Code)
		dst.B = append(dst.B, ext[:]...)
	}

	var key [4]byte
	GenMaskKey(key[:])
	dst.B = append(dst.B, key[:]...)

	// Mask into the output copy so f.Payload is left alone.
	off := len(dst.B)
	dst.B = append(dst.B, f.Payload...)
	Mask(key[:], dst.B[off:])
}

// Decode extracts the next frame from src.
//
// Mask presence is read from the wire: the service sends unmasked frames,
// but a masked frame is unmasked with the key that follows the length
// field. The returned frame's payload is a copy owned by the frame; release
// it with ReleaseFrame once dispatched.
func (FrameCodec) Decode(src *Buffer) (*Frame, error) {
	if err := src.PrepareRead(headerLen); err != nil {
		return nil, err
	}
	d := src.Data()

	fin := d[0]&bitFIN != 0
	op := Opcode(d[0] & bitmaskOpcode)
	masked := d[1]&bitMasked != 0

	extra := 0
	switch d[1] & bitmaskLen {
	case len16Code:
		extra = 2
	case len64Code:
		extra = 8
	}
	if err := src.PrepareRead(headerLen + extra); err != nil {
		return nil, err
	}
	d = src.Data()

	length := uint64(d[1] & bitmaskLen)
	switch extra {
	case 2:
		length = uint64(binary.BigEndian.Uint16(d[headerLen:]))
	case 8:
		length = binary.BigEndian.Uint64(d[headerLen:])
	}
	if length > MaxFramePayloadLen {
		return nil, ErrFrameTooBig
	}

	total := headerLen + extra + int(length)
	if masked {
		total += maskLen
	}
	if err := src.PrepareRead(total); err != nil {
		if errors.Is(err, ErrNeedMore) {
			src.Reserve(total - src.ReadLen())
		}
		return nil, err
	}
	d = src.Data()

	f := AcquireFrame()
	f.Fin = fin
	f.Opcode = op
	f.Masked = masked

	off := headerLen + extra
	if masked {
		copy(f.MaskKey[:], d[off:off+maskLen])
		off += maskLen
	}
	f.Payload = append(f.Payload[:0], d[off:total]...)
	if masked {
		Mask(f.MaskKey[:], f.Payload)
	}

	src.Consume(total)
	return f, nil
}
