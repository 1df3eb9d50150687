package flash

import (
	"bytes"
	"fmt"
	"log/slog"
)

// Mem is flash emulated in RAM. It follows the same rules as the real thing: erase is per page
// and sets 0xFF, writes only clear bits. MapToReadable hands out slices of the backing array.
type Mem struct {
	log		*slog.Logger
	layout	Layout
	raw		[]byte

	Erases	int // per-device counters, tests look at these
	Writes	int
}

func CreateMem(layout Layout) *Mem {
	raw := bytes.Repeat([]byte{0xff}, int(layout.Size()))
	return &Mem{
		log:	slog.With("src", "Mem"),
		layout:	layout,
		raw:	raw,
	}
}

func (m *Mem) Layout() Layout {
	return m.layout
}

func (m *Mem) ListFreeAreas() []Area {
	areas := make([]Area, len(m.layout.Areas))
	copy(areas, m.layout.Areas)
	return areas
}

func (m *Mem) ErasePage(addr Addr) error {
	if !m.layout.Aligned(addr) {
		return fmt.Errorf("%w: %v", ErrUnaligned, addr)
	}
	page, err := m.span(addr, int(m.layout.PageSize))
	if err != nil { return err }

	for i := range page {
		page[i] = 0xff
	}
	m.Erases++
	m.log.Debug("ErasePage", "addr", addr)
	return nil
}

func (m *Mem) Write(b []byte, addr Addr) error {
	dst, err := m.span(addr, len(b))
	if err != nil { return err }

	for i := range b {
		dst[i] &= b[i]
	}
	m.Writes++
	return nil
}

func (m *Mem) Read(n int, addr Addr) ([]byte, error) {
	src, err := m.span(addr, n)
	if err != nil { return nil, err }

	out := make([]byte, n)
	copy(out, src)
	return out, nil
}

func (m *Mem) MapToReadable(addr Addr, n int) ([]byte, error) {
	view, err := m.span(addr, n)
	if err != nil { return nil, err }
	// full slice expression so an append on the view can't scribble over the next page
	return view[:n:n], nil
}

func (m *Mem) span(addr Addr, n int) ([]byte, error) {
	if n < 0 || int(addr)+n > len(m.raw) {
		return nil, fmt.Errorf("%w: %v+%d", ErrOutOfRange, addr, n)
	}
	return m.raw[int(addr) : int(addr)+n], nil
}
