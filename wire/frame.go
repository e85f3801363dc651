package wire

import "sync"

// Frame is one decoded protocol unit. Frames are transient: the decoder
// fills one per call and the caller releases it back to the pool once the
// payload has been dispatched or copied.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Masked  bool
	MaskKey [4]byte
	Payload []byte
}

func NewFrame() *Frame {
	return &Frame{Payload: make([]byte, 0, 1024)}
}

func (f *Frame) IsControl() bool { return f.Opcode.IsControl() }

// Reset clears the frame for reuse, keeping the payload capacity.
func (f *Frame) Reset() {
	f.Fin = false
	f.Opcode = 0
	f.Masked = false
	f.MaskKey = [4]byte{}
	f.Payload = f.Payload[:0]
}

var framePool = sync.Pool{
	New: func() interface{} {
		return NewFrame()
	},
}

func AcquireFrame() *Frame {
	return framePool.Get().(*Frame)
}

func ReleaseFrame(f *Frame) {
	f.Reset()
	framePool.Put(f)
}
