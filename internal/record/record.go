// Package record packs and unpacks the one-record-per-page layout:
//
//	+0 nameLen | +1 payloadLen hi | +2 payloadLen lo | +3 marker (0xA5)
//	+4 name, space padded to a multiple of 4
//	+4+pad4(nameLen) payload, written in 16 byte windows
//
// nameLen is the unpadded length. Bytes between the payload end and the window end are
// padding and never read back, the header length is authoritative.
package record

import (
	"errors"
	"iter"

	c "flashstr/internal"

	"github.com/negrel/assert"
)

var (
	ErrTooBig 		= errors.New("record: too big for one page")
	ErrInvalidName 	= errors.New("record: invalid name")
)

type Header struct {
	NameLen		uint8
	PayloadLen	uint16
	Marker		byte
}

func NewHeader(nameLen int, payloadLen int) Header {
	assert.Less(nameLen, c.NAME_MAX+1, "name length overflows header")
	assert.Less(payloadLen, c.PAYLOAD_MAX+1, "payload length overflows header")
	return Header{
		NameLen:	uint8(nameLen),
		PayloadLen:	uint16(payloadLen),
		Marker:		c.MARKER,
	}
}

func (h Header) Pack() [c.HEADER_SIZE]byte {
	var raw [c.HEADER_SIZE]byte
	raw[c.OFF_NAMELEN] = h.NameLen
	c.Bin.PutUint16(raw[c.OFF_PAYLOADLEN:], h.PayloadLen)
	raw[c.OFF_MARKER] = h.Marker
	return raw
}

// Unpack reads the first four bytes of raw. Anything shorter is an erased (free) header.
func Unpack(raw []byte) Header {
	if len(raw) < c.HEADER_SIZE {
		return Header{Marker: c.ERASED}
	}
	return Header{
		NameLen:	raw[c.OFF_NAMELEN],
		PayloadLen:	c.Bin.Uint16(raw[c.OFF_PAYLOADLEN:]),
		Marker:		raw[c.OFF_MARKER],
	}
}

func (h Header) Occupied() bool {
	return h.Marker == c.MARKER
}

// Offset of the name / payload from the start of the page.
func (h Header) NameOffset() uint32 		{ return c.HEADER_SIZE }
func (h Header) PayloadOffset() uint32 	{ return c.HEADER_SIZE + uint32(PaddedLen(int(h.NameLen))) }

// Size is the exact number of meaningful bytes the record uses in its page.
func (h Header) Size() uint32 {
	return h.PayloadOffset() + uint32(h.PayloadLen)
}

func PaddedLen(n int) int {
	return (n + c.NAME_ALIGN - 1) &^ (c.NAME_ALIGN - 1)
}

// Pad4 returns name as bytes padded with spaces to a multiple of 4.
func Pad4(name string) []byte {
	out := make([]byte, PaddedLen(len(name)))
	copy(out, name)
	for i := len(name); i < len(out); i++ {
		out[i] = c.PAD
	}
	return out
}

// Check validates a record before anything is erased. A record never spans more than one page.
func Check(name string, payloadLen int, pageSize uint32) error {
	if len(name) == 0 || len(name) > c.NAME_MAX {
		return ErrInvalidName
	}
	if payloadLen > c.PAYLOAD_MAX {
		return ErrTooBig
	}
	if c.HEADER_SIZE + PaddedLen(len(name)) + payloadLen > int(pageSize) {
		return ErrTooBig
	}
	return nil
}

// Capacity is the largest payload that fits next to name in a page.
func Capacity(name string, pageSize uint32) int {
	n := int(pageSize) - c.HEADER_SIZE - PaddedLen(len(name))
	return max(0, min(n, c.PAYLOAD_MAX))
}

// Chunks yields (offset, window) for payload in 16 byte windows. The last window is space
// padded to 16 bytes, but never past limit bytes from the start of the payload so a record
// that fills its page exactly doesn't spill into the next one.
func Chunks(payload []byte, limit int) iter.Seq2[int, []byte] {
	return func(yield func(int, []byte) bool) {
		var window [c.CHUNK_SIZE]byte
		for off := 0; off < len(payload); off += c.CHUNK_SIZE {
			n := copy(window[:], payload[off:])
			w := min(c.CHUNK_SIZE, limit - off)
			assert.GreaterOrEqual(w, n, "payload runs past the page")
			for i := n; i < w; i++ {
				window[i] = c.PAD
			}
			if !yield(off, window[:w]) {
				return
			}
		}
	}
}
