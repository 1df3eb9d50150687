//go:build linux

package flash

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"flashstr/internal/iomgr"
)

// Image is flash backed by a file. Reads come straight out of a shared mapping of the file,
// writes and erases go through io_uring with an fsync behind them. Because both share the
// page cache, a view from MapToReadable tracks the file the way a memory mapped flash window
// tracks the chip.
type Image struct {
	log		*slog.Logger
	layout	Layout
	file	*os.File
	io		*iomgr.IoMgr
	raw		[]byte
}

// Layout is stored next to the image so it can be reopened without flags.
func layoutPath(path string) string {
	return path + ".layout"
}

// CreateImage creates (or truncates) an image file for layout with every byte erased.
func CreateImage(path string, layout Layout) (*Image, error) {
	if layout.PageSize == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPageSize, path)
	}

	f, err := os.OpenFile(path, iomgr.F_OPEN_MODE|os.O_TRUNC, iomgr.F_OPEN_PERM)
	if err != nil { return nil, err }

	if _, err := f.Write(bytes.Repeat([]byte{0xff}, int(layout.Size()))); err != nil {
		f.Close()
		return nil, fmt.Errorf("flash: format image: %w", err)
	}

	meta, err := json.Marshal(layout)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := os.WriteFile(layoutPath(path), meta, iomgr.F_OPEN_PERM); err != nil {
		f.Close()
		return nil, err
	}

	return openImage(f, layout)
}

// OpenImage opens an image made by CreateImage.
func OpenImage(path string) (*Image, error) {
	meta, err := os.ReadFile(layoutPath(path))
	if err != nil { return nil, err }

	var layout Layout
	if err := json.Unmarshal(meta, &layout); err != nil {
		return nil, fmt.Errorf("flash: layout for %s: %w", path, err)
	}
	if layout.PageSize == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPageSize, path)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil { return nil, err }

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() < int64(layout.Size()) {
		f.Close()
		return nil, fmt.Errorf("flash: image %s is %d bytes, layout needs %d", path, st.Size(), layout.Size())
	}

	return openImage(f, layout)
}

func openImage(f *os.File, layout Layout) (*Image, error) {
	raw, err := iomgr.MapFile(int(f.Fd()), int(layout.Size()))
	if err != nil {
		f.Close()
		return nil, err
	}

	io, err := iomgr.CreateIoMgr(int(f.Fd()))
	if err != nil {
		iomgr.Unmap(raw)
		f.Close()
		return nil, err
	}

	img := &Image{
		log:	slog.With("src", "Image", "path", f.Name()),
		layout:	layout,
		file:	f,
		io:		io,
		raw:	raw,
	}
	img.log.Debug("opened", "size", layout.Size(), "pagesize", layout.PageSize)
	return img, nil
}

// Close invalidates every view handed out by MapToReadable.
func (img *Image) Close() error {
	if img.raw == nil {
		return ErrClosed
	}
	img.io.Close()
	err := iomgr.Unmap(img.raw)
	img.raw = nil
	return errors.Join(err, img.file.Close())
}

func (img *Image) Layout() Layout {
	return img.layout
}

func (img *Image) ListFreeAreas() []Area {
	areas := make([]Area, len(img.layout.Areas))
	copy(areas, img.layout.Areas)
	return areas
}

func (img *Image) ErasePage(addr Addr) error {
	if !img.layout.Aligned(addr) {
		return fmt.Errorf("%w: %v", ErrUnaligned, addr)
	}
	if _, err := img.span(addr, int(img.layout.PageSize)); err != nil {
		return err
	}
	img.log.Debug("ErasePage", "addr", addr)
	return img.io.Write(bytes.Repeat([]byte{0xff}, int(img.layout.PageSize)), uint64(addr), true)
}

func (img *Image) Write(b []byte, addr Addr) error {
	cur, err := img.span(addr, len(b))
	if err != nil { return err }

	// bits only go 1 -> 0 without an erase
	out := make([]byte, len(b))
	for i := range b {
		out[i] = cur[i] & b[i]
	}
	return img.io.Write(out, uint64(addr), true)
}

func (img *Image) Read(n int, addr Addr) ([]byte, error) {
	src, err := img.span(addr, n)
	if err != nil { return nil, err }

	out := make([]byte, n)
	copy(out, src)
	return out, nil
}

func (img *Image) MapToReadable(addr Addr, n int) ([]byte, error) {
	view, err := img.span(addr, n)
	if err != nil { return nil, err }
	return view[:n:n], nil
}

func (img *Image) span(addr Addr, n int) ([]byte, error) {
	if img.raw == nil {
		return nil, ErrClosed
	}
	if n < 0 || int(addr)+n > len(img.raw) {
		return nil, fmt.Errorf("%w: %v+%d", ErrOutOfRange, addr, n)
	}
	return img.raw[int(addr) : int(addr)+n], nil
}
