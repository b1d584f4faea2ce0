package security

import (
	"encoding/binary"
	"fmt"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/auth"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/bufpool"
)

const frameHeaderLen = 4

// frameBuffer reassembles length-prefixed SASL frames from arbitrary
// transport reads. A read may end inside a header, inside a payload, or
// carry several frames; state survives between feed calls.
type frameBuffer struct {
	maxFrame int

	header    [frameHeaderLen]byte
	headerLen int

	// payload is the frame being filled; needed counts its missing bytes.
	payload []byte
	filled  int
	needed  int

	// ready holds complete frames in arrival order. Each is a bufpool
	// slice owned by the caller once popped.
	ready [][]byte
}

func newFrameBuffer(maxFrame int) *frameBuffer {
	return &frameBuffer{maxFrame: maxFrame}
}

// feed consumes data, completing as many frames as it holds. A zero or
// oversized length is a framing error and leaves the buffer unusable.
func (f *frameBuffer) feed(data []byte) error {
	for len(data) > 0 {
		if f.headerLen < frameHeaderLen {
			n := copy(f.header[f.headerLen:], data)
			f.headerLen += n
			data = data[n:]
			if f.headerLen < frameHeaderLen {
				return nil
			}

			size := binary.BigEndian.Uint32(f.header[:])
			if size == 0 || uint64(size) > uint64(f.maxFrame) {
				return fmt.Errorf("%w: frame length %d outside 1..%d", auth.ErrFraming, size, f.maxFrame)
			}
			f.payload = bufpool.Get(int(size))
			f.filled = 0
			f.needed = int(size)
		}

		n := copy(f.payload[f.filled:], data[:min(f.needed, len(data))])
		f.filled += n
		f.needed -= n
		data = data[n:]

		if f.needed == 0 {
			f.ready = append(f.ready, f.payload)
			f.payload = nil
			f.filled = 0
			f.headerLen = 0
		}
	}
	return nil
}

// next pops the oldest complete frame, or returns nil.
func (f *frameBuffer) next() []byte {
	if len(f.ready) == 0 {
		return nil
	}
	frame := f.ready[0]
	f.ready[0] = nil
	f.ready = f.ready[1:]
	return frame
}

// neededBytes is the number of bytes still missing from the current header
// or payload. It is zero between frames.
func (f *frameBuffer) neededBytes() int {
	if f.headerLen == 0 {
		return 0
	}
	if f.headerLen < frameHeaderLen {
		return frameHeaderLen - f.headerLen
	}
	return f.needed
}

// release returns every buffered frame to the pool.
func (f *frameBuffer) release() {
	for _, fr := range f.ready {
		bufpool.Put(fr)
	}
	f.ready = nil
	if f.payload != nil {
		bufpool.Put(f.payload)
		f.payload = nil
	}
	f.headerLen = 0
	f.filled = 0
	f.needed = 0
}

// appendFrame appends the length prefix and payload to dst.
func appendFrame(dst, payload []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}
