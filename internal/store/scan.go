package store

import (
	"bytes"
	"fmt"
	"iter"

	c "flashstr/internal"
	"flashstr/internal/flash"
	"flashstr/internal/record"
)

// PageStatus is what one page looks like right now. Name is only set for occupied pages,
// and only by Scan; Locate never reads a name it doesn't have to.
type PageStatus struct {
	Index	int
	Addr	flash.Addr
	Header	record.Header
	Name	string
}

func (ps PageStatus) Free() bool {
	return !ps.Header.Occupied()
}

// PayloadAddr is the flash address of the first payload byte.
func (ps PageStatus) PayloadAddr() flash.Addr {
	return ps.Addr + flash.Addr(ps.Header.PayloadOffset())
}

// Location is the result of Locate. Found means addr holds a record with the name, otherwise
// addr is a free page picked by the store's policy.
type Location struct {
	PageStatus
	Found	bool
}

// headers yields each page with its header in catalog order. Nothing is cached between
// calls; every walk reads flash again.
func (s *Store) headers() iter.Seq2[PageStatus, error] {
	return func(yield func(PageStatus, error) bool) {
		for i, addr := range s.cat.All() {
			raw, err := s.drv.Read(c.HEADER_SIZE, addr)
			if err != nil {
				yield(PageStatus{Index: i, Addr: addr}, fmt.Errorf("store: read header @%v: %w", addr, err))
				return
			}
			if !yield(PageStatus{Index: i, Addr: addr, Header: record.Unpack(raw)}, nil) {
				return
			}
		}
	}
}

// Scan walks all pages once and reports each one, reading the name of every occupied page.
// It can be ranged over again at any time to get a fresh view of flash.
func (s *Store) Scan() iter.Seq2[PageStatus, error] {
	return func(yield func(PageStatus, error) bool) {
		for ps, err := range s.headers() {
			if err == nil && !ps.Free() {
				var name []byte
				name, err = s.drv.Read(int(ps.Header.NameLen), ps.Addr + flash.Addr(ps.Header.NameOffset()))
				if err != nil {
					err = fmt.Errorf("store: read name @%v: %w", ps.Addr, err)
				}
				ps.Name = string(name)
			}
			if !yield(ps, err) || err != nil {
				return
			}
		}
	}
}

// Locate finds the page holding name. The scan always runs to the end: a record for name on a
// later page wins over any free page seen before it, so Save never makes a duplicate.
//
// If nothing matches, allowAllocate picks a free page with the store's policy (ErrNoSpace if
// there is none), otherwise the result is ErrNotFound.
func (s *Store) Locate(name string, allowAllocate bool) (Location, error) {
	want := []byte(name)
	var free []PageStatus

	for ps, err := range s.headers() {
		if err != nil {
			return Location{}, err
		}
		if ps.Free() {
			free = append(free, ps)
			continue
		}
		// cheap reject on length before touching the name
		if int(ps.Header.NameLen) != len(want) {
			continue
		}
		got, err := s.drv.Read(len(want), ps.Addr + flash.Addr(ps.Header.NameOffset()))
		if err != nil {
			return Location{}, fmt.Errorf("store: read name @%v: %w", ps.Addr, err)
		}
		if bytes.Equal(got, want) {
			s.log.Debug("Locate hit", "name", name, "page", ps.Index, "addr", ps.Addr)
			return Location{PageStatus: ps, Found: true}, nil
		}
	}

	if !allowAllocate {
		return Location{}, ErrNotFound
	}
	if len(free) == 0 {
		return Location{}, ErrNoSpace
	}

	addrs := make([]flash.Addr, len(free))
	for i, ps := range free {
		addrs[i] = ps.Addr
	}
	pick := s.policy(addrs)
	for _, ps := range free {
		if ps.Addr == pick {
			s.log.Debug("Locate alloc", "name", name, "page", ps.Index, "addr", ps.Addr, "free", len(free))
			return Location{PageStatus: ps}, nil
		}
	}
	return Location{}, fmt.Errorf("store: policy picked %v which is not a free page", pick)
}
