package wire

import "github.com/valyala/bytebufferpool"

// MessageAssembler reassembles one fragmented message at a time: a leading
// text or binary frame with FIN clear, zero or more continuations, and a
// final continuation with FIN set. Control frames arriving between
// fragments never touch the assembler.
//
// Fragment payloads accumulate in a pooled buffer; Complete hands back a
// freshly allocated contiguous payload and returns the buffer to the pool.
type MessageAssembler struct {
	opcode  Opcode
	active  bool
	scratch *bytebufferpool.ByteBuffer
}

// InProgress reports whether a fragmented message is being assembled.
func (a *MessageAssembler) InProgress() bool {
	return a.active
}

// Opcode returns the opcode recorded from the leading frame.
func (a *MessageAssembler) Opcode() Opcode {
	return a.opcode
}

// Len is the number of payload bytes buffered so far.
func (a *MessageAssembler) Len() int {
	if a.scratch == nil {
		return 0
	}
	return a.scratch.Len()
}

// Begin starts a fragmented message with the leading frame's opcode and
// payload.
func (a *MessageAssembler) Begin(op Opcode, first []byte) {
	a.opcode = op
	a.active = true
	a.scratch = bytebufferpool.Get()
	a.scratch.B = append(a.scratch.B, first...)
}

// Append buffers one continuation fragment in arrival order.
func (a *MessageAssembler) Append(fragment []byte) {
	a.scratch.B = append(a.scratch.B, fragment...)
}

// Complete appends the final fragment and returns the recorded opcode with
// the full payload. The assembler is reset and ready for the next message.
func (a *MessageAssembler) Complete(last []byte) (Opcode, []byte) {
	a.scratch.B = append(a.scratch.B, last...)

	op := a.opcode
	out := make([]byte, len(a.scratch.B))
	copy(out, a.scratch.B)

	a.Reset()
	return op, out
}

// Reset drops any partially assembled message.
func (a *MessageAssembler) Reset() {
	if a.scratch != nil {
		bytebufferpool.Put(a.scratch)
		a.scratch = nil
	}
	a.active = false
	a.opcode = 0
}
