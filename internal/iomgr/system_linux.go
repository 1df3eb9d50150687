//go:build linux

package iomgr

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"github.com/aethne0/giouring"
	"golang.org/x/sys/unix"
)

// Flash ops are tiny (a header, a name, 16 byte windows) and strictly ordered, so unlike a
// database pager we never have more than a write+fsync pair in flight.
const RING_ENTRIES 	= 0x08
const F_OPEN_MODE 	= unix.O_RDWR | unix.O_CREAT
const F_OPEN_PERM 	= 0b_000_110_100_100
const MMAP_PROT   	= unix.PROT_READ
const MMAP_MODE   	= unix.MAP_SHARED

var ErrRingFull = errors.New("iomgr: no free submission entry")

// MapFile maps size bytes of fd read-only and shared, so writes submitted through the ring
// show up in the mapping once they complete (same page cache).
func MapFile(fd int, size int) ([]byte, error) {
	raw, err := unix.Mmap(fd, 0, size, MMAP_PROT, MMAP_MODE)
	if err != nil {
		slog.Error("MapFile", "err", err)
	}
	return raw, err
}

func Unmap(raw []byte) error {
	err := unix.Munmap(raw)
	if err != nil {
		slog.Error("Unmap", "err", err)
	}
	return err
}

type IoMgr struct {
	log			*slog.Logger
	ring 		*giouring.Ring
	fd			int
	mu			sync.Mutex
}

// The fd is not owned by IoMgr, closing the manager leaves it open.
func CreateIoMgr(fd int) (*IoMgr, error) {
	ring, err := giouring.CreateRing(RING_ENTRIES)
	if err != nil { return nil, err }

	return &IoMgr{
		log: 	slog.With("src", "IoMgr"),
		ring: 	ring,
		fd: 	fd,
	}, nil
}

func (m *IoMgr) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ring.QueueExit()
}

type OpCode uint16
const (
	OpNop 	OpCode = iota
	OpWrite
	OpSync
)

type Op struct {
	Opcode	OpCode
	Buf		[]byte
	Off		uint64
	Sync	bool // link an fsync behind the write

	Res		int32
	seen	uint16
	count	uint16
}

func (m *IoMgr) Write(buf []byte, off uint64, sync bool) error {
	op := Op{ Opcode: OpWrite, Buf: buf, Off: off, Sync: sync }
	return m.Submit(&op)
}

func (m *IoMgr) Fsync() error {
	op := Op{ Opcode: OpSync }
	return m.Submit(&op)
}

// Submit blocks until every SQE of op has completed. The first failing CQE decides Res.
func (m *IoMgr) Submit(op *Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.prepSQEs(op); err != nil {
		return err
	}
	if op.count == 0 {
		return nil
	}
	m.log.Debug("Submit", "op", op)

	if _, err := m.ring.SubmitAndWait(1); err != nil && !transient(err) {
		return fmt.Errorf("iomgr: submit: %w", err)
	}

	for op.seen < op.count {
		cqe, err := m.ring.PeekCQE()
		if errors.Is(err, unix.EAGAIN) || transient(err) || (err == nil && cqe == nil) {
			if _, err := m.ring.SubmitAndWait(1); err != nil && !transient(err) {
				return fmt.Errorf("iomgr: wait: %w", err)
			}
			continue
		} else if err != nil {
			m.log.Error("Peek cqe fatal error", "err", err)
			return fmt.Errorf("iomgr: peek: %w", err)
		}

		// linked: the write completes before its fsync
		if op.seen == 0 || (cqe.Res < 0 && op.Res >= 0) {
			op.Res = cqe.Res
		}
		op.seen++
		m.ring.CQESeen(cqe)
	}
	// buf has to outlive the kernel's use of it
	runtime.KeepAlive(op.Buf)

	if op.Res < 0 {
		return fmt.Errorf("iomgr: %v: %w", op.Opcode, unix.Errno(-op.Res))
	}
	if op.Opcode == OpWrite && int(op.Res) != len(op.Buf) {
		return fmt.Errorf("iomgr: wrote %d of %d bytes: %w", op.Res, len(op.Buf), io.ErrShortWrite)
	}
	return nil
}

func (m *IoMgr) prepSQEs(op *Op) error {
	op.seen = 0
	op.count = 0
	op.Res = 0

	switch op.Opcode {
	case OpNop:
		sqe := m.ring.GetSQE()
		if sqe == nil { return ErrRingFull }
		sqe.PrepareNop()
		op.count = 1

	case OpWrite:
		if len(op.Buf) == 0 { return nil }
		// a write must never be queued without the fsync linked behind it
		if m.ring.SQSpaceLeft() < sqesFor(op) { return ErrRingFull }
		sqe := m.ring.GetSQE()
		sqe.PrepareWrite(m.fd, uintptr(unsafe.Pointer(&op.Buf[0])), uint32(len(op.Buf)), op.Off)
		op.count = 1
		if op.Sync {
			sqe.Flags |= giouring.SqeIOLink
			m.ring.GetSQE().PrepareFsync(m.fd, 0)
			op.count++
		}

	case OpSync:
		sqe := m.ring.GetSQE()
		if sqe == nil { return ErrRingFull }
		sqe.PrepareFsync(m.fd, 0)
		op.count = 1

	default:
		m.log.Warn("Invalid opcode", "opcode", op.Opcode)
		return fmt.Errorf("iomgr: opcode %d: %w", op.Opcode, unix.EINVAL)
	}
	return nil
}

func sqesFor(op *Op) uint32 {
	if op.Opcode == OpWrite && op.Sync {
		return 2
	}
	return 1
}

func transient(err error) bool {
	return errors.Is(err, unix.ETIME) || errors.Is(err, unix.EINTR)
}
