package util

import (
	"fmt"
	"strings"

	c "flashstr/internal"
	"flashstr/internal/flash"
)

// PrettyPrintPage renders up to limit bytes of a flash page as a hex table, one row per
// 32 bytes, with the record header row marked. ASCII is shown on the right since names and
// most payloads are text.
func PrettyPrintPage(data []byte, base flash.Addr, limit int) string {
	if limit > len(data) || limit < 0 {
		limit = len(data)
	}

	const bytesPerRow = 32
	var s strings.Builder
	s.WriteString("┏━━━━━━━━━━┳━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┳━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┓\n")
	fmt.Fprintf(&s, "┃ Address  ┃ %-93s ┃ %-32s ┃\n",
		fmt.Sprintf("Page @%v - %d bytes shown (0x%04x)", base, limit, limit), "ASCII")
	s.WriteString("┣━━━━━━━━━━╋━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━╋━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┫\n")

	for i := 0; i < limit; i += bytesPerRow {
		// first row carries the header
		if i < c.HEADER_SIZE {
			fmt.Fprintf(&s, "┃ %08x ┣ ", uint32(base) + uint32(i))
		} else {
			fmt.Fprintf(&s, "┃ %08x ┃ ", uint32(base) + uint32(i))
		}

		var ascii strings.Builder
		for j := 0; j < bytesPerRow; j++ {
			if i+j < limit {
				b := data[i+j]
				fmt.Fprintf(&s, "%02x", b)
				if b >= 0x20 && b < 0x7f {
					ascii.WriteByte(b)
				} else {
					ascii.WriteByte('.')
				}
			} else {
				s.WriteString("  ")
			}
			// Space every 4 bytes to keep your eyes from crossing
			if (j+1)%4 == 0 {
				s.WriteString(" ")
			}
		}
		fmt.Fprintf(&s, "┃ %-32s ┃\n", ascii.String())
	}
	s.WriteString("┗━━━━━━━━━━┻━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┻━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━┛\n")

	return s.String()
}

// TrimErased cuts the run of erased (0xFF) bytes off the end of a page so dumps stop where
// the data does. At least minLen bytes are kept.
func TrimErased(data []byte, minLen int) []byte {
	end := len(data)
	for end > minLen && data[end-1] == c.ERASED {
		end--
	}
	return data[:end]
}
