package record

import (
	"bytes"
	"strings"
	"testing"

	c "flashstr/internal"

	"github.com/stretchr/testify/assert"
)

func Test_Header_Layout(t *testing.T) {
	h := NewHeader(5, 0x1234)
	raw := h.Pack()
	assert.Equal(t, [4]byte{5, 0x12, 0x34, 0xa5}, raw)

	back := Unpack(raw[:])
	assert.Equal(t, h, back)
	assert.True(t, back.Occupied())
}

func Test_Header_Free(t *testing.T) {
	assert.False(t, Unpack([]byte{0xff, 0xff, 0xff, 0xff}).Occupied())
	assert.False(t, Unpack([]byte{3, 0, 1, 0xa4}).Occupied())
	assert.False(t, Unpack([]byte{3, 0}).Occupied())
}

func Test_Header_Offsets(t *testing.T) {
	h := NewHeader(5, 10)
	assert.Equal(t, uint32(4), h.NameOffset())
	assert.Equal(t, uint32(12), h.PayloadOffset())
	assert.Equal(t, uint32(22), h.Size())

	h = NewHeader(8, 0)
	assert.Equal(t, uint32(12), h.PayloadOffset())
}

func Test_Pad4(t *testing.T) {
	assert.Equal(t, []byte("a   "), Pad4("a"))
	assert.Equal(t, []byte("abcd"), Pad4("abcd"))
	assert.Equal(t, []byte("abcde   "), Pad4("abcde"))
	assert.Equal(t, []byte{}, Pad4(""))
	assert.Equal(t, 0, PaddedLen(0))
	assert.Equal(t, 252, PaddedLen(250))
}

func Test_Check(t *testing.T) {
	const ps = c.PAGE_SIZE

	assert.NoError(t, Check("a", ps-8, ps))
	assert.ErrorIs(t, Check("a", ps-7, ps), ErrTooBig)
	assert.NoError(t, Check("abcd", ps-8, ps))
	assert.ErrorIs(t, Check("abcde", ps-8, ps), ErrTooBig)

	assert.ErrorIs(t, Check("", 1, ps), ErrInvalidName)
	assert.ErrorIs(t, Check(strings.Repeat("n", 253), 1, ps), ErrInvalidName)
	assert.NoError(t, Check(strings.Repeat("n", 252), 1, ps))

	// header can't describe more than 16 bits of payload, whatever the page size
	assert.ErrorIs(t, Check("a", c.PAYLOAD_MAX+1, 0x20000), ErrTooBig)
}

func Test_Capacity(t *testing.T) {
	assert.Equal(t, c.PAGE_SIZE-8, Capacity("abc", c.PAGE_SIZE))
	assert.Equal(t, 0, Capacity("abcdefgh", 8))
	assert.Equal(t, c.PAYLOAD_MAX, Capacity("a", 0x20000))
}

func Test_Chunks_Padding(t *testing.T) {
	payload := []byte("0123456789abcdefXYZ")

	var out bytes.Buffer
	offs := []int{}
	for off, w := range Chunks(payload, 1000) {
		offs = append(offs, off)
		assert.Len(t, w, c.CHUNK_SIZE)
		out.Write(w)
	}
	assert.Equal(t, []int{0, 16}, offs)
	assert.Equal(t, "0123456789abcdefXYZ             ", out.String())
}

func Test_Chunks_Clipped_At_Limit(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 20)

	var lens []int
	for _, w := range Chunks(payload, 20) {
		lens = append(lens, len(w))
	}
	assert.Equal(t, []int{16, 4}, lens)

	lens = nil
	for _, w := range Chunks(payload, 22) {
		lens = append(lens, len(w))
	}
	assert.Equal(t, []int{16, 6}, lens)
}

func Test_Chunks_Empty_And_Break(t *testing.T) {
	for range Chunks(nil, 100) {
		t.Fatal("no windows expected for an empty payload")
	}

	n := 0
	for range Chunks(make([]byte, 64), 64) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}
