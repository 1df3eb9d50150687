package flash

import (
	c "flashstr/internal"
)

// Layout describes a flash device: how big its erase pages are and which areas are
// free for us to use. Addresses start at 0, so Size is simply the end of the last area.
type Layout struct {
	PageSize	uint32
	Areas		[]Area
}

func (l Layout) Size() uint32 {
	var end Addr
	for _, a := range l.Areas {
		end = max(end, a.End())
	}
	// round up to whole pages so every page in range can be erased
	ps := Addr(l.PageSize)
	if ps == 0 {
		return uint32(end)
	}
	return uint32((end + ps - 1) / ps * ps)
}

// Aligned reports whether a starts an erase page. Nothing is aligned without a page size.
func (l Layout) Aligned(a Addr) bool {
	return l.PageSize != 0 && uint32(a) % l.PageSize == 0
}

// 1MB esp8266 leaves two odd pages below the save area
const (
	espOddPage0 	= Addr(0x7c000)
	espOddPage1 	= Addr(0x7d000)
	espSaveArea 	= Addr(0xf7000)
	espSaveAreaEnd 	= Addr(0xfb000) // sdk params live above this
)

// ESP8266Layout is the free-area map the esp8266 port reports for a 1MB module: two
// single pages followed by the contiguous save area.
func ESP8266Layout() Layout {
	return Layout{
		PageSize: c.PAGE_SIZE,
		Areas: []Area{
			{Addr: espOddPage0, Length: c.PAGE_SIZE},
			{Addr: espOddPage1, Length: c.PAGE_SIZE},
			{Addr: espSaveArea, Length: uint32(espSaveAreaEnd - espSaveArea)},
		},
	}
}

// CompactLayout packs two single pages and a region of regionPages pages back to back from
// address 0. Good for image files where we don't care about the real device map.
func CompactLayout(pageSize uint32, regionPages int) Layout {
	return Layout{
		PageSize: pageSize,
		Areas: []Area{
			{Addr: 0, Length: pageSize},
			{Addr: Addr(pageSize), Length: pageSize},
			{Addr: Addr(2 * pageSize), Length: pageSize * uint32(regionPages)},
		},
	}
}
