package ca

import (
	"fmt"
	"strings"

	"github.com/marmos91/dittoca/pkg/gdd"
)

// DBR base types.
const (
	DBRString uint16 = 0
	DBRShort  uint16 = 1
	DBRFloat  uint16 = 2
	DBREnum   uint16 = 3
	DBRChar   uint16 = 4
	DBRLong   uint16 = 5
	DBRDouble uint16 = 6
)

// DBR families. A DBR type is family offset + base type.
const (
	familyPlain = 0
	familySts   = 7
	familyTime  = 14
	familyGr    = 21
	familyCtrl  = 28
)

// Special DBR types outside the families.
const (
	DBRPutAckT        uint16 = 35
	DBRPutAckS        uint16 = 36
	DBRStsAckString   uint16 = 37
	DBRClassName      uint16 = 38
	lastDBR                  = DBRClassName
	numBaseTypes             = 7
	maxEnumStrings           = 16
	maxEnumStringSize        = 26
	maxUnitsSize             = 8
)

// Family identifies the structure family of a DBR type.
type Family int

const (
	FamilyPlain Family = iota
	FamilySts
	FamilyTime
	FamilyGr
	FamilyCtrl
	FamilySpecial
)

var baseNames = [numBaseTypes]string{"STRING", "SHORT", "FLOAT", "ENUM", "CHAR", "LONG", "DOUBLE"}

var familyNames = [...]string{"DBR_", "DBR_STS_", "DBR_TIME_", "DBR_GR_", "DBR_CTRL_"}

// ValidDBR reports whether t is a defined DBR type.
func ValidDBR(t uint16) bool {
	return t <= lastDBR
}

// DBRFamily returns the family and base type of t.
func DBRFamily(t uint16) (Family, uint16) {
	switch {
	case t < familyCtrl+numBaseTypes:
		return Family(t / numBaseTypes), t % numBaseTypes
	case t == DBRStsAckString || t == DBRClassName:
		return FamilySpecial, DBRString
	default:
		return FamilySpecial, DBREnum
	}
}

// DBRName returns the symbolic name of t, e.g. "DBR_CTRL_DOUBLE".
func DBRName(t uint16) string {
	switch t {
	case DBRPutAckT:
		return "DBR_PUT_ACKT"
	case DBRPutAckS:
		return "DBR_PUT_ACKS"
	case DBRStsAckString:
		return "DBR_STSACK_STRING"
	case DBRClassName:
		return "DBR_CLASS_NAME"
	}
	if !ValidDBR(t) {
		return fmt.Sprintf("DBR_%d", t)
	}
	f, base := DBRFamily(t)
	return familyNames[f] + baseNames[base]
}

// ParseDBRName maps a name such as "DBR_TIME_DOUBLE" or "double" (a
// plain base type) back to a DBR type.
func ParseDBRName(name string) (uint16, bool) {
	for t := uint16(0); t <= lastDBR; t++ {
		if DBRName(t) == name {
			return t, true
		}
	}
	for i, n := range baseNames {
		if strings.EqualFold(n, name) {
			return uint16(i), true
		}
	}
	return 0, false
}

// PromoteDBR returns base type promoted to family f.
func PromoteDBR(base uint16, f Family) uint16 {
	return uint16(f)*numBaseTypes + base
}

// BaseGDDType maps a DBR base type to the GDD storage type used on the wire.
func BaseGDDType(base uint16) gdd.Type {
	switch base {
	case DBRString:
		return gdd.TypeFixedString
	case DBRShort:
		return gdd.TypeInt16
	case DBRFloat:
		return gdd.TypeFloat32
	case DBREnum:
		return gdd.TypeEnum16
	case DBRChar:
		return gdd.TypeUint8
	case DBRLong:
		return gdd.TypeInt32
	default:
		return gdd.TypeFloat64
	}
}

// NativeDBR maps a GDD primitive type to the closest plain DBR type.
func NativeDBR(t gdd.Type) uint16 {
	switch t {
	case gdd.TypeInt8, gdd.TypeUint8:
		return DBRChar
	case gdd.TypeInt16:
		return DBRShort
	case gdd.TypeUint16, gdd.TypeInt32:
		return DBRLong
	case gdd.TypeEnum16:
		return DBREnum
	case gdd.TypeFloat32:
		return DBRFloat
	case gdd.TypeFixedString, gdd.TypeString:
		return DBRString
	default:
		return DBRDouble
	}
}

// valueSize is the size of one value element of each base type.
var valueSize = [numBaseTypes]int{40, 2, 4, 2, 1, 4, 8}

// layout describes the bytes preceding the value in a DBR structure.
type layout struct {
	status      bool
	stamp       bool
	precision   bool // precision plus a pad word
	enumStrings bool
	units       bool
	limits      int
	pad         int // RISC alignment bytes before the value
	ackFields   bool
}

func layoutFor(t uint16) (layout, uint16) {
	f, base := DBRFamily(t)
	var l layout
	switch f {
	case FamilyPlain:
	case FamilySts:
		l.status = true
		switch base {
		case DBRChar:
			l.pad = 1
		case DBRDouble:
			l.pad = 4
		}
	case FamilyTime:
		l.status, l.stamp = true, true
		switch base {
		case DBRShort, DBREnum:
			l.pad = 2
		case DBRChar:
			l.pad = 3
		case DBRDouble:
			l.pad = 4
		}
	case FamilyGr, FamilyCtrl:
		l.status = true
		switch base {
		case DBRString:
			// same layout as DBR_STS_STRING
		case DBREnum:
			l.enumStrings = true
		default:
			l.units = true
			l.limits = 6
			if f == FamilyCtrl {
				l.limits = 8
			}
			l.precision = base == DBRFloat || base == DBRDouble
			if base == DBRChar {
				l.pad = 1
			}
		}
	case FamilySpecial:
		if t == DBRStsAckString {
			l.status, l.ackFields = true, true
		}
	}
	return l, base
}

func (l layout) headerSize(base uint16) int {
	n := 0
	if l.status {
		n += 4
	}
	if l.stamp {
		n += 8
	}
	if l.ackFields {
		n += 4
	}
	if l.precision {
		n += 4
	}
	if l.enumStrings {
		n += 2 + maxEnumStrings*maxEnumStringSize
	}
	if l.units {
		n += maxUnitsSize
	}
	n += l.limits * valueSize[base]
	return n + l.pad
}

// DBRSize returns the payload size, before padding, of count elements
// of type t.
func DBRSize(t uint16, count uint32) int {
	if !ValidDBR(t) {
		return 0
	}
	if count == 0 {
		count = 1
	}
	l, base := layoutFor(t)
	return l.headerSize(base) + int(count)*valueSize[base]
}

// DBRValueSize returns the size of one element of t's value.
func DBRValueSize(t uint16) int {
	if !ValidDBR(t) {
		return 0
	}
	_, base := DBRFamily(t)
	return valueSize[base]
}
