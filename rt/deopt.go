package rt

import (
	"encoding/binary"
	"fmt"
)

// FrameInfo describes one interpreter frame to reconstruct on deopt.
type FrameInfo struct {
	CodeUID   uint32
	PCOffset  uint32
	StackSize uint32
	InPromise bool
}

// DeoptMetadata is the payload handed to the deopt builtin: the frames are in
// stack order, top of stack first.
type DeoptMetadata struct {
	Frames []FrameInfo
}

// Serialize encodes the metadata: the frame count followed by each frame's
// code UID, pc offset, stack size and in-promise flag, each as a 4-byte
// integer in host byte order.
func (m *DeoptMetadata) Serialize() []byte {
	buf := make([]byte, 0, 4+16*len(m.Frames))
	buf = binary.NativeEndian.AppendUint32(buf, uint32(len(m.Frames)))

	for _, f := range m.Frames {
		buf = binary.NativeEndian.AppendUint32(buf, f.CodeUID)
		buf = binary.NativeEndian.AppendUint32(buf, f.PCOffset)
		buf = binary.NativeEndian.AppendUint32(buf, f.StackSize)

		var inProm uint32
		if f.InPromise {
			inProm = 1
		}
		buf = binary.NativeEndian.AppendUint32(buf, inProm)
	}

	return buf
}

// ParseDeoptMetadata decodes a serialized metadata blob.
func ParseDeoptMetadata(buf []byte) (*DeoptMetadata, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("deopt metadata too short: %d bytes", len(buf))
	}

	n := binary.NativeEndian.Uint32(buf)
	if len(buf) != int(4+16*n) {
		return nil, fmt.Errorf("deopt metadata size mismatch: %d frames in %d bytes", n, len(buf))
	}

	m := &DeoptMetadata{Frames: make([]FrameInfo, n)}
	for i := range m.Frames {
		off := 4 + 16*i
		m.Frames[i] = FrameInfo{
			CodeUID:   binary.NativeEndian.Uint32(buf[off:]),
			PCOffset:  binary.NativeEndian.Uint32(buf[off+4:]),
			StackSize: binary.NativeEndian.Uint32(buf[off+8:]),
			InPromise: binary.NativeEndian.Uint32(buf[off+12:]) != 0,
		}
	}

	return m, nil
}
