package qpack

import (
	"errors"
	"fmt"
)

// Wire tags.
const (
	tagFixedIntMax byte = 63
	tagFixedNegMax byte = 124
	tagDoubleN1    byte = 125
	tagDouble0     byte = 126
	tagDouble1     byte = 127
	tagRawFixed    byte = 128
	tagRawFixedMax byte = 227
	tagRaw8        byte = 228
	tagRaw16       byte = 229
	tagRaw32       byte = 230
	tagRaw64       byte = 231
	tagInt8        byte = 232
	tagInt16       byte = 233
	tagInt32       byte = 234
	tagInt64       byte = 235
	tagDouble      byte = 236
	tagArray0      byte = 237
	tagMap0        byte = 243
	tagTrue        byte = 249
	tagFalse       byte = 250
	tagNull        byte = 251
	tagArrayOpen   byte = 252
	tagArrayClose  byte = 253
	tagMapOpen     byte = 254
	tagMapClose    byte = 255
)

const (
	maxFixedContainer = 5
	maxFixedRawLen    = 99
	minFixedNeg       = -61
)

const (
	// SuggestedSize is a reasonable allocation size for large payloads.
	SuggestedSize = 65536
	// MaxFmtSize bounds AddFmt output; longer results are cut off.
	MaxFmtSize = 1024
	// MaxDepth bounds container nesting for Skip, Value and Sprint.
	MaxDepth = 1024
)

var (
	ErrTruncated   = errors.New("qpack: truncated data")
	ErrFixedSize   = errors.New("qpack: fixed container size must be 0..5")
	ErrOverflow    = errors.New("qpack: integer overflow")
	ErrUnsupported = errors.New("qpack: unsupported value type")
	ErrUnexpected  = errors.New("qpack: unexpected object")
	ErrTooDeep     = errors.New("qpack: nesting too deep")
)

// Kind is the type of one decoded object. Narrow integer and literal
// double tags never surface as their own kind.
type Kind int

const (
	KindErr Kind = iota - 1
	KindEnd
	KindRaw
	KindInt64
	KindDouble
	KindArray0
	KindArray1
	KindArray2
	KindArray3
	KindArray4
	KindArray5
	KindMap0
	KindMap1
	KindMap2
	KindMap3
	KindMap4
	KindMap5
	KindTrue
	KindFalse
	KindNull
	KindArrayOpen
	KindArrayClose
	KindMapOpen
	KindMapClose
)

var kindNames = map[Kind]string{
	KindErr:        "error",
	KindEnd:        "end",
	KindRaw:        "raw",
	KindInt64:      "int64",
	KindDouble:     "double",
	KindArray0:     "array0",
	KindArray1:     "array1",
	KindArray2:     "array2",
	KindArray3:     "array3",
	KindArray4:     "array4",
	KindArray5:     "array5",
	KindMap0:       "map0",
	KindMap1:       "map1",
	KindMap2:       "map2",
	KindMap3:       "map3",
	KindMap4:       "map4",
	KindMap5:       "map5",
	KindTrue:       "true",
	KindFalse:      "false",
	KindNull:       "null",
	KindArrayOpen:  "array_open",
	KindArrayClose: "array_close",
	KindMapOpen:    "map_open",
	KindMapClose:   "map_close",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsArray reports whether k starts an array, fixed or open.
func IsArray(k Kind) bool {
	return (k >= KindArray0 && k <= KindArray5) || k == KindArrayOpen
}

// IsMap reports whether k starts a map, fixed or open.
func IsMap(k Kind) bool {
	return (k >= KindMap0 && k <= KindMap5) || k == KindMapOpen
}

// FixedSize returns the item count of a fixed array or the entry count of
// a fixed map. ok is false for every other kind.
func (k Kind) FixedSize() (n int, ok bool) {
	switch {
	case k >= KindArray0 && k <= KindArray5:
		return int(k - KindArray0), true
	case k >= KindMap0 && k <= KindMap5:
		return int(k - KindMap0), true
	}
	return 0, false
}
