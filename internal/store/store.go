// Package store keeps named blobs in flash, one blob per erase page.
//
// There is no directory. Every call scans the catalog's pages and classifies each by its
// 4 byte header, so nothing in RAM can disagree with flash. The store holds no locks either:
// it is meant for a single owner, callers with more than one writer serialise outside.
package store

import (
	"errors"
	"fmt"
	"log/slog"

	c "flashstr/internal"
	"flashstr/internal/catalog"
	"flashstr/internal/flash"
	"flashstr/internal/record"

	"github.com/cespare/xxhash"
)

var (
	ErrTooBig 		= record.ErrTooBig
	ErrInvalidName 	= record.ErrInvalidName
	ErrNoSpace 		= errors.New("store: no space")
	// Only Locate returns this. Load, Erase and friends report absence as a plain result.
	ErrNotFound 	= errors.New("store: not found")
)

type Store struct {
	log			*slog.Logger
	drv			flash.Driver
	cat			*catalog.Catalog
	policy		Policy
	scope		Scope
	markerLast	bool
}

func New(drv flash.Driver, cat *catalog.Catalog, opts ...Option) *Store {
	s := &Store{
		log:	slog.With("src", "Store"),
		drv:	drv,
		cat:	cat,
		policy:	FirstFit,
		scope:	ScopeRegion,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Catalog() *catalog.Catalog {
	return s.cat
}

// Save stores payload under name, replacing any earlier record with that name. An existing
// record is rewritten in its own page; a new name gets a free page.
//
// Order on flash: erase page, header, padded name, payload windows.
func (s *Store) Save(name string, payload []byte) error {
	if err := record.Check(name, len(payload), s.cat.PageSize()); err != nil {
		return err
	}

	loc, err := s.Locate(name, true)
	if errors.Is(err, ErrNoSpace) {
		s.log.Warn("Save: no free page", "name", name, "pages", s.cat.PageCount())
		return err
	} else if err != nil {
		return err
	}

	if err := s.write(loc.Addr, name, payload); err != nil {
		return fmt.Errorf("store: save %q: %w", name, err)
	}
	s.log.Info("Save", "name", name, "len", len(payload), "page", loc.Index, "replaced", loc.Found)
	return nil
}

func (s *Store) write(addr flash.Addr, name string, payload []byte) error {
	if err := s.drv.ErasePage(addr); err != nil {
		return err
	}

	hdr := record.NewHeader(len(name), len(payload))
	raw := hdr.Pack()
	if s.markerLast {
		// leave the marker erased for now, bits stay 1 until the final write
		raw[c.OFF_MARKER] = c.ERASED
	}
	if err := s.drv.Write(raw[:], addr); err != nil {
		return err
	}

	if err := s.drv.Write(record.Pad4(name), addr + flash.Addr(hdr.NameOffset())); err != nil {
		return err
	}

	base := addr + flash.Addr(hdr.PayloadOffset())
	limit := int(s.cat.PageSize() - hdr.PayloadOffset())
	for off, window := range record.Chunks(payload, limit) {
		if err := s.drv.Write(window, base + flash.Addr(off)); err != nil {
			return err
		}
	}

	if s.markerLast {
		return s.drv.Write([]byte{c.MARKER}, addr + c.OFF_MARKER)
	}
	return nil
}

// Load returns the payload stored under name as a view straight into flash. The view is only
// good until the next Save, Erase or EraseAll: those change the bytes under it.
func (s *Store) Load(name string) ([]byte, bool, error) {
	loc, err := s.Locate(name, false)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}

	view, err := s.drv.MapToReadable(loc.PayloadAddr(), int(loc.Header.PayloadLen))
	if err != nil {
		return nil, false, fmt.Errorf("store: map %q: %w", name, err)
	}
	return view, true, nil
}

// LoadCopy is Load with the payload copied out of flash, so it stays valid.
func (s *Store) LoadCopy(name string) ([]byte, bool, error) {
	loc, err := s.Locate(name, false)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}

	b, err := s.drv.Read(int(loc.Header.PayloadLen), loc.PayloadAddr())
	if err != nil {
		return nil, false, fmt.Errorf("store: read %q: %w", name, err)
	}
	return b, true, nil
}

// Digest is the xxhash64 of the payload stored under name.
func (s *Store) Digest(name string) (uint64, bool, error) {
	view, ok, err := s.Load(name)
	if !ok || err != nil {
		return 0, ok, err
	}
	return xxhash.Sum64(view), true, nil
}

// Erase erases the page holding name. Erasing a name that isn't there does nothing.
func (s *Store) Erase(name string) error {
	loc, err := s.Locate(name, false)
	if errors.Is(err, ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}

	if err := s.drv.ErasePage(loc.Addr); err != nil {
		return fmt.Errorf("store: erase %q: %w", name, err)
	}
	s.log.Info("Erase", "name", name, "page", loc.Index)
	return nil
}

// EraseAll erases every page in the store's erase-all scope, occupied or not.
func (s *Store) EraseAll() error {
	pages := s.cat.Region()
	if s.scope == ScopeNamespace {
		pages = make([]flash.Addr, 0, s.cat.PageCount())
		for _, addr := range s.cat.All() {
			pages = append(pages, addr)
		}
	}

	for _, addr := range pages {
		if err := s.drv.ErasePage(addr); err != nil {
			return fmt.Errorf("store: erase all @%v: %w", addr, err)
		}
	}
	s.log.Info("EraseAll", "scope", s.scope, "pages", len(pages))
	return nil
}

type Entry struct {
	Name	string		`json:"name"`
	Size	int			`json:"size"`
	Address	flash.Addr	`json:"address"`
	Page	int			`json:"page"`
}

type Listing struct {
	Entries	[]Entry	`json:"entries"`
	Free	int		`json:"free"`
}

// List scans every page once and reports the records found, in page order, plus how many
// pages are free.
func (s *Store) List() (Listing, error) {
	var out Listing
	for ps, err := range s.Scan() {
		if err != nil {
			return Listing{}, err
		}
		if ps.Free() {
			out.Free++
			continue
		}
		out.Entries = append(out.Entries, Entry{
			Name:		ps.Name,
			Size:		int(ps.Header.PayloadLen),
			Address:	ps.PayloadAddr(),
			Page:		ps.Index,
		})
	}
	s.log.Debug("List", "entries", len(out.Entries), "free", out.Free)
	return out, nil
}
