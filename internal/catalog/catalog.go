// Package catalog decides which flash pages the store may use. It is built once from the
// platform's free-area report and never changes afterwards.
//
// The first two free areas are leftovers that only give us one page each. The third is the
// big contiguous save area which is cut into pageSize slices. Pages are numbered in that
// order, and that order is the scan order.
package catalog

import (
	"fmt"
	"iter"
	"log/slog"

	"flashstr/internal/flash"
)

// How many leading free areas contribute a single page.
const ODD_AREAS = 2

type Catalog struct {
	pageSize	uint32
	pages		[]flash.Addr
	regionStart	int // index of the first contiguous page
}

func New(areas []flash.Area, pageSize uint32) *Catalog {
	log := slog.With("src", "Catalog")
	cat := &Catalog{pageSize: pageSize}
	if pageSize == 0 {
		log.Warn("zero page size, catalog is empty")
		return cat
	}

	for i, a := range areas {
		if i >= ODD_AREAS {
			break
		}
		if a.Length < pageSize {
			log.Warn("free area smaller than a page, skipped", "addr", a.Addr, "len", a.Length)
			continue
		}
		cat.pages = append(cat.pages, a.Addr)
	}
	cat.regionStart = len(cat.pages)

	if len(areas) > ODD_AREAS {
		region := areas[ODD_AREAS]
		for i := range region.Length / pageSize {
			cat.pages = append(cat.pages, region.Addr + flash.Addr(i * pageSize))
		}
	}
	if len(areas) > ODD_AREAS + 1 {
		log.Debug("ignoring extra free areas", "cnt", len(areas) - ODD_AREAS - 1)
	}

	log.Debug("built", "pages", len(cat.pages), "region", len(cat.pages) - cat.regionStart)
	return cat
}

// FromDriver builds the catalog from the driver's free-area report.
func FromDriver(drv flash.Driver, pageSize uint32) *Catalog {
	return New(drv.ListFreeAreas(), pageSize)
}

func (cat *Catalog) PageSize() uint32 	{ return cat.pageSize }
func (cat *Catalog) PageCount() int 	{ return len(cat.pages) }

func (cat *Catalog) PageAddress(i int) flash.Addr {
	if i < 0 || i >= len(cat.pages) {
		panic(fmt.Sprintf("catalog: page %d out of range [0,%d)", i, len(cat.pages)))
	}
	return cat.pages[i]
}

// IsRegion reports whether page i belongs to the contiguous save area.
func (cat *Catalog) IsRegion(i int) bool {
	return i >= cat.regionStart && i < len(cat.pages)
}

func (cat *Catalog) Region() []flash.Addr {
	return cat.pages[cat.regionStart:len(cat.pages):len(cat.pages)]
}

// All yields (index, address) in scan order.
func (cat *Catalog) All() iter.Seq2[int, flash.Addr] {
	return func(yield func(int, flash.Addr) bool) {
		for i, addr := range cat.pages {
			if !yield(i, addr) {
				return
			}
		}
	}
}
