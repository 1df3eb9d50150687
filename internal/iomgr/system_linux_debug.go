//go:build linux

package iomgr

import (
	"fmt"
	"strings"
)

func (o OpCode) String() string {
	switch o {
	case OpNop:
		return "NOP"
	case OpWrite:
		return "WRITE"
	case OpSync:
		return "FSYNC"
	}
	return fmt.Sprintf("OpCode(%d)", uint16(o))
}

func (o *Op) String() string {
	if o == nil {
		return "<nil>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Op | Opcode: %v, Count: %d, Seen: %d, Res: 0x%x", o.Opcode, o.count, o.seen, o.Res)

	switch o.Opcode {
	case OpWrite:
		fmt.Fprintf(&b, " | WRITE [ Len: 0x%08x | Off: 0x%08x ]", len(o.Buf), o.Off)
		if o.Sync {
			fmt.Fprintf(&b, " -> FSYNC")
		}
	case OpSync:
		fmt.Fprintf(&b, " | FSYNC")
	}

	return b.String()
}
