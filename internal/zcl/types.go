package zcl

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ZCL data type IDs
const (
	TypeNoData     uint8 = 0x00
	TypeBool       uint8 = 0x10
	TypeBitmap8    uint8 = 0x18
	TypeBitmap16   uint8 = 0x19
	TypeBitmap24   uint8 = 0x1A
	TypeBitmap32   uint8 = 0x1B
	TypeUint8      uint8 = 0x20
	TypeUint16     uint8 = 0x21
	TypeUint24     uint8 = 0x22
	TypeUint32     uint8 = 0x23
	TypeUint40     uint8 = 0x24
	TypeUint48     uint8 = 0x25
	TypeInt8       uint8 = 0x28
	TypeInt16      uint8 = 0x29
	TypeInt24      uint8 = 0x2A
	TypeInt32      uint8 = 0x2B
	TypeEnum8      uint8 = 0x30
	TypeEnum16     uint8 = 0x31
	TypeFloat16    uint8 = 0x38
	TypeFloat32    uint8 = 0x39
	TypeFloat64    uint8 = 0x3A
	TypeOctetStr   uint8 = 0x41
	TypeCharStr    uint8 = 0x42
	TypeOctetStr16 uint8 = 0x43
	TypeCharStr16  uint8 = 0x44
	TypeArray      uint8 = 0x48
	TypeStruct     uint8 = 0x4C
	TypeToD        uint8 = 0xE0 // Time of Day
	TypeDate       uint8 = 0xE1
	TypeUTC        uint8 = 0xE2
	TypeClusterID  uint8 = 0xE8
	TypeAttrID     uint8 = 0xE9
	TypeEUI64      uint8 = 0xF0
)

type typeInfo struct {
	name string
	size int // bytes, -1 for variable length
}

var typeTable = map[uint8]typeInfo{
	TypeNoData:     {"nodata", 0},
	TypeBool:       {"bool", 1},
	TypeBitmap8:    {"map8", 1},
	TypeBitmap16:   {"map16", 2},
	TypeBitmap24:   {"map24", 3},
	TypeBitmap32:   {"map32", 4},
	TypeUint8:      {"uint8", 1},
	TypeUint16:     {"uint16", 2},
	TypeUint24:     {"uint24", 3},
	TypeUint32:     {"uint32", 4},
	TypeUint40:     {"uint40", 5},
	TypeUint48:     {"uint48", 6},
	TypeInt8:       {"int8", 1},
	TypeInt16:      {"int16", 2},
	TypeInt24:      {"int24", 3},
	TypeInt32:      {"int32", 4},
	TypeEnum8:      {"enum8", 1},
	TypeEnum16:     {"enum16", 2},
	TypeFloat16:    {"float16", 2},
	TypeFloat32:    {"float32", 4},
	TypeFloat64:    {"float64", 8},
	TypeOctetStr:   {"octstr", -1},
	TypeCharStr:    {"string", -1},
	TypeOctetStr16: {"octstr16", -1},
	TypeCharStr16:  {"string16", -1},
	TypeArray:      {"array", -1},
	TypeStruct:     {"struct", -1},
	TypeToD:        {"ToD", 4},
	TypeDate:       {"date", 4},
	TypeUTC:        {"UTC", 4},
	TypeClusterID:  {"clusterId", 2},
	TypeAttrID:     {"attribId", 2},
	TypeEUI64:      {"EUI64", 8},
}

// typeAliases maps the names used by other Zigbee tooling onto type IDs.
var typeAliases = map[string]uint8{
	"boolean": TypeBool,
	"bitmap8": TypeBitmap8, "bitmap16": TypeBitmap16, "bitmap24": TypeBitmap24, "bitmap32": TypeBitmap32,
	"int16s": TypeInt16, "int8s": TypeInt8, "int24s": TypeInt24, "int32s": TypeInt32,
	"int8u": TypeUint8, "int16u": TypeUint16, "int24u": TypeUint24, "int32u": TypeUint32,
	"single": TypeFloat32, "double": TypeFloat64, "semi": TypeFloat16,
	"charstr": TypeCharStr,
}

// TypeSize returns the fixed size in bytes of a ZCL type, or -1 for variable-length
// and unknown types.
func TypeSize(typeID uint8) int {
	if ti, ok := typeTable[typeID]; ok {
		return ti.size
	}
	return -1
}

// TypeName returns a human-readable name for a ZCL type.
func TypeName(typeID uint8) string {
	if ti, ok := typeTable[typeID]; ok {
		return ti.name
	}
	return fmt.Sprintf("0x%02X", typeID)
}

// ParseType accepts a type name ("int16", "INT16S", "single") or a numeric
// type ID ("0x29", "41").
func ParseType(s string) (uint8, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("zcl: empty type")
	}
	if n, err := strconv.ParseUint(s, 0, 8); err == nil {
		return uint8(n), nil
	}
	lower := strings.ToLower(s)
	for id, ti := range typeTable {
		if strings.ToLower(ti.name) == lower {
			return id, nil
		}
	}
	if id, ok := typeAliases[lower]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("zcl: unknown type %q", s)
}

// IsPrimitive reports whether typeID is a fixed-size scalar encoding that a
// numeric or boolean property can be mapped onto. Strings, arrays, structs,
// addresses and time types are not.
func IsPrimitive(typeID uint8) bool {
	switch typeID {
	case TypeBool,
		TypeBitmap8, TypeBitmap16, TypeBitmap24, TypeBitmap32,
		TypeUint8, TypeUint16, TypeUint24, TypeUint32, TypeUint40, TypeUint48,
		TypeInt8, TypeInt16, TypeInt24, TypeInt32,
		TypeEnum8, TypeEnum16,
		TypeFloat16, TypeFloat32, TypeFloat64:
		return true
	}
	return false
}

// TypeRange returns the representable numeric range of a primitive type.
// ok is false for non-primitive types.
func TypeRange(typeID uint8) (min, max float64, ok bool) {
	switch typeID {
	case TypeBool:
		return 0, 1, true
	case TypeUint8, TypeEnum8, TypeBitmap8:
		return 0, math.MaxUint8, true
	case TypeUint16, TypeEnum16, TypeBitmap16:
		return 0, math.MaxUint16, true
	case TypeUint24, TypeBitmap24:
		return 0, 0xFFFFFF, true
	case TypeUint32, TypeBitmap32:
		return 0, math.MaxUint32, true
	case TypeUint40:
		return 0, 0xFFFFFFFFFF, true
	case TypeUint48:
		return 0, 0xFFFFFFFFFFFF, true
	case TypeInt8:
		return math.MinInt8, math.MaxInt8, true
	case TypeInt16:
		return math.MinInt16, math.MaxInt16, true
	case TypeInt24:
		return -8388608, 8388607, true
	case TypeInt32:
		return math.MinInt32, math.MaxInt32, true
	case TypeFloat16:
		return -65504, 65504, true
	case TypeFloat32:
		return -math.MaxFloat32, math.MaxFloat32, true
	case TypeFloat64:
		return -math.MaxFloat64, math.MaxFloat64, true
	}
	return 0, 0, false
}
