// Package packstream implements the PackStream v2 binary serialization used
// as the Bolt wire payload format: a tagged union of null, boolean, integer,
// float, string, bytes, list, map and struct values, each selected by a
// single marker byte with a minimum-size length encoding.
package packstream

// Marker bytes, as defined by the PackStream v2 grammar.
const (
	markerNull    byte = 0xC0
	markerFalse   byte = 0xC2
	markerTrue    byte = 0xC3
	markerFloat64 byte = 0xC1

	markerInt8  byte = 0xC8
	markerInt16 byte = 0xC9
	markerInt32 byte = 0xCA
	markerInt64 byte = 0xCB

	markerBytes8  byte = 0xCC
	markerBytes16 byte = 0xCD
	markerBytes32 byte = 0xCE

	markerTinyStringMin byte = 0x80
	markerTinyStringMax byte = 0x8F
	markerString8       byte = 0xD0
	markerString16      byte = 0xD1
	markerString32      byte = 0xD2

	markerTinyListMin byte = 0x90
	markerTinyListMax byte = 0x9F
	markerList8       byte = 0xD4
	markerList16      byte = 0xD5
	markerList32      byte = 0xD6

	markerTinyMapMin byte = 0xA0
	markerTinyMapMax byte = 0xAF
	markerMap8       byte = 0xD8
	markerMap16      byte = 0xD9
	markerMap32      byte = 0xDA

	markerTinyStructMin byte = 0xB0
	markerTinyStructMax byte = 0xBF
	markerStruct8       byte = 0xDC
	markerStruct16      byte = 0xDD

	// tinyIntPositiveMax is the largest value encoded as a positive tiny-int.
	tinyIntPositiveMax int64 = 127
	// tinyIntNegativeMin is the smallest value encoded as a negative tiny-int.
	tinyIntNegativeMin int64 = -16
)

// Kind classifies a decoded value without requiring the caller to inspect
// the raw marker byte.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindStruct:
		return "struct"
	default:
		return "unknown"
	}
}
