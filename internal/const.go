// Constants
package internal

import (
	"encoding/binary"
)

const LEN_U32 	= 0x04

// esp8266 erase page. Stores take their page size from the catalog, this is only the default.
const PAGE_SIZE 	= 0x1000

// Record layout
const HEADER_SIZE 	= LEN_U32
const MARKER		= byte(0xA5)
const ERASED		= byte(0xFF)
const PAD			= byte(' ')
const NAME_ALIGN	= 0x04
const CHUNK_SIZE	= 0x10
const NAME_MAX		= 0xFC // 252, padded name still fits the one byte length
const PAYLOAD_MAX	= 0xFFFF

// Header field offsets
const (
	OFF_NAMELEN 	= 0x00
	OFF_PAYLOADLEN 	= 0x01 // 2B, high byte first
	OFF_MARKER 		= 0x03
)

// The payload length is stored high byte first, so this must stay BigEndian.
var Bin = binary.BigEndian
