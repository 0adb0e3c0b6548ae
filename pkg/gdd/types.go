package gdd

import "fmt"

// Type identifies the primitive type of a GDD's storage.
type Type uint8

const (
	TypeInvalid Type = iota
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeEnum16
	TypeInt32
	TypeUint32
	TypeFloat32
	TypeFloat64
	TypeFixedString
	TypeString
	TypeContainer
)

// MaxStringSize is the on-wire size of a fixed string, including the
// terminating NUL.
const MaxStringSize = 40

var typeNames = [...]string{
	TypeInvalid:     "invalid",
	TypeInt8:        "int8",
	TypeUint8:       "uint8",
	TypeInt16:       "int16",
	TypeUint16:      "uint16",
	TypeEnum16:      "enum16",
	TypeInt32:       "int32",
	TypeUint32:      "uint32",
	TypeFloat32:     "float32",
	TypeFloat64:     "float64",
	TypeFixedString: "fixed_string",
	TypeString:      "string",
	TypeContainer:   "container",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseType maps a type name (as produced by String) back to a Type.
func ParseType(name string) (Type, error) {
	for i, n := range typeNames {
		if n == name && Type(i) != TypeInvalid {
			return Type(i), nil
		}
	}
	return TypeInvalid, fmt.Errorf("%w: unknown type %q", ErrBadType, name)
}

// Size returns the element size in bytes, 0 for variable or non-primitive types.
func (t Type) Size() int {
	switch t {
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16, TypeEnum16:
		return 2
	case TypeInt32, TypeUint32, TypeFloat32:
		return 4
	case TypeFloat64:
		return 8
	case TypeFixedString:
		return MaxStringSize
	default:
		return 0
	}
}

// IsNumeric reports whether t holds numbers (enums included).
func (t Type) IsNumeric() bool {
	return t >= TypeInt8 && t <= TypeFloat64
}

// IsString reports whether t holds text.
func (t Type) IsString() bool {
	return t == TypeFixedString || t == TypeString
}

// IsFloat reports whether t is a floating point type.
func (t Type) IsFloat() bool {
	return t == TypeFloat32 || t == TypeFloat64
}

// IsPrimitive reports whether t is one of the twelve primitive storage types.
func (t Type) IsPrimitive() bool {
	return t > TypeInvalid && t < TypeContainer
}

// makeSlice allocates zeroed storage for n elements of t.
func makeSlice(t Type, n int) any {
	switch t {
	case TypeInt8:
		return make([]int8, n)
	case TypeUint8:
		return make([]uint8, n)
	case TypeInt16:
		return make([]int16, n)
	case TypeUint16, TypeEnum16:
		return make([]uint16, n)
	case TypeInt32:
		return make([]int32, n)
	case TypeUint32:
		return make([]uint32, n)
	case TypeFloat32:
		return make([]float32, n)
	case TypeFloat64:
		return make([]float64, n)
	case TypeFixedString, TypeString:
		return make([]string, n)
	default:
		return nil
	}
}

// sliceLen returns the length of a storage slice produced by makeSlice.
func sliceLen(data any) int {
	switch d := data.(type) {
	case []int8:
		return len(d)
	case []uint8:
		return len(d)
	case []int16:
		return len(d)
	case []uint16:
		return len(d)
	case []int32:
		return len(d)
	case []uint32:
		return len(d)
	case []float32:
		return len(d)
	case []float64:
		return len(d)
	case []string:
		return len(d)
	default:
		return 0
	}
}

// storageMatches reports whether data is the storage slice type used for t.
func storageMatches(t Type, data any) bool {
	switch data.(type) {
	case []int8:
		return t == TypeInt8
	case []uint8:
		return t == TypeUint8
	case []int16:
		return t == TypeInt16
	case []uint16:
		return t == TypeUint16 || t == TypeEnum16
	case []int32:
		return t == TypeInt32
	case []uint32:
		return t == TypeUint32
	case []float32:
		return t == TypeFloat32
	case []float64:
		return t == TypeFloat64
	case []string:
		return t.IsString()
	default:
		return false
	}
}
