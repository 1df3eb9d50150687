// Platform abstracted flash ops
package flash

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfRange 	= errors.New("flash: address out of range")
	ErrUnaligned 	= errors.New("flash: erase address not page aligned")
	ErrClosed 		= errors.New("flash: device closed")
	ErrNoPageSize 	= errors.New("flash: layout has no page size")
)

// Addr is a physical flash address, not a pointer into the readable window.
type Addr uint32

func (a Addr) String() string {
	return fmt.Sprintf("0x%06x", uint32(a))
}

// Area is a free chunk of flash as reported by the platform.
type Area struct {
	Addr	Addr
	Length	uint32
}

func (a Area) End() Addr {
	return a.Addr + Addr(a.Length)
}

// Driver is what the platform gives us. Erased bytes read back as 0xFF and Write may only
// clear bits, so a byte that was never erased keeps whatever it had AND the new value.
type Driver interface {
	ListFreeAreas() []Area
	ErasePage(addr Addr) error
	Write(b []byte, addr Addr) error
	Read(n int, addr Addr) ([]byte, error)
	// MapToReadable returns a view directly over flash. It is not a copy: erasing or
	// writing the range changes what the view shows.
	MapToReadable(addr Addr, n int) ([]byte, error)
}
