package gdd

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Conversion rules between the primitive types:
//
//   - numeric to numeric is exact when representable. Narrowing conversions
//     that overflow saturate at the target's minimum or maximum, float to
//     integer truncates toward zero, and NaN to any integer type fails
//     with ErrNoConvert.
//   - numeric to text uses the shortest representation that round-trips.
//     Enum indices use the attached EnumStringTable when there is one.
//   - text to numeric parses the string. Text to enum first looks the
//     string up in the destination's table.
//   - any value landing in an enum with a table must index an entry,
//     otherwise ErrEnumIndexRange. The same holds for an enum source with
//     a non-empty table, whatever the target type.
//   - fixed strings hold at most MaxStringSize-1 bytes; longer text is cut.
//   - containers do not convert to or from leaves.

// ConvertTo returns a new GDD (reference count 1) holding g's data as type
// t. Shape, tag, alarm fields, timestamp and enum table are preserved.
func (g *GDD) ConvertTo(t Type) (*GDD, error) {
	if g.typ == TypeContainer || !t.IsPrimitive() {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoConvert, g.typ, t)
	}
	data, err := convertSlice(t, g.enums, g.typ, g.enums, g.data, sliceLen(g.data))
	if err != nil {
		return nil, err
	}
	out := &GDD{
		tag:      g.tag,
		typ:      t,
		bounds:   append([]Bounds(nil), g.bounds...),
		data:     data,
		status:   g.status,
		severity: g.severity,
		stamp:    g.stamp,
		enums:    g.enums,
	}
	out.refs.Store(1)
	return out, nil
}

// ConvertInto converts src's data into dst, keeping dst's type. A scalar
// only takes a scalar and an array only takes an array of no more elements
// than dst holds; dst is shortened to src's length. Alarm fields and
// timestamp are not copied, see SmartCopy for that.
func ConvertInto(dst, src *GDD) error {
	if dst.typ == TypeContainer || src.typ == TypeContainer {
		return fmt.Errorf("%w: container value", ErrNoConvert)
	}
	if dst.IsScalar() != src.IsScalar() {
		return fmt.Errorf("%w: scalar/array", ErrShape)
	}
	n := sliceLen(src.data)
	if !dst.IsScalar() && n > sliceLen(dst.data) {
		return fmt.Errorf("%w: %d elements into %d", ErrShape, n, sliceLen(dst.data))
	}
	data, err := convertSlice(dst.typ, dst.enums, src.typ, src.enums, src.data, n)
	if err != nil {
		return err
	}
	dst.data = data
	if !dst.IsScalar() {
		dst.bounds = []Bounds{{First: dst.bounds[0].First, Count: uint32(n)}}
	}
	return nil
}

// convertSlice converts the first n elements of src (type st, table stab)
// into fresh storage of type dt validated against dtab.
func convertSlice(dt Type, dtab *EnumStringTable, st Type, stab *EnumStringTable, src any, n int) (any, error) {
	if !dt.IsPrimitive() || !st.IsPrimitive() {
		return nil, fmt.Errorf("%w: %s to %s", ErrNoConvert, st, dt)
	}
	out := makeSlice(dt, n)
	if dt == st && dt != TypeEnum16 {
		copyPrefix(out, src, n)
		if dt == TypeFixedString {
			truncateFixed(out.([]string))
		}
		return out, nil
	}
	for i := 0; i < n; i++ {
		if err := convertElem(out, dt, dtab, src, st, stab, i); err != nil {
			if n > 1 {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			return nil, err
		}
	}
	return out, nil
}

func convertElem(out any, dt Type, dtab *EnumStringTable, src any, st Type, stab *EnumStringTable, i int) error {
	if st.IsString() {
		s := src.([]string)[i]
		if dt.IsString() {
			setString(out, dt, i, s)
			return nil
		}
		if dt == TypeEnum16 {
			if idx, ok := dtab.Index(s); ok {
				out.([]uint16)[i] = uint16(idx)
				return nil
			}
		}
		n, err := parseNumber(s)
		if err != nil {
			return err
		}
		return storeNumber(out, dt, dtab, i, n)
	}

	n := loadNumber(src, i)
	if st == TypeEnum16 && stab.Len() > 0 && n.i >= int64(stab.Len()) {
		return fmt.Errorf("%w: index %d of %d", ErrEnumIndexRange, n.i, stab.Len())
	}
	if dt.IsString() {
		if st == TypeEnum16 && stab != nil {
			s, err := stab.String(int(n.i))
			if err != nil {
				return err
			}
			setString(out, dt, i, s)
			return nil
		}
		setString(out, dt, i, formatNumber(n, st))
		return nil
	}
	return storeNumber(out, dt, dtab, i, n)
}

// number is the intermediate form of a numeric element. Every integer
// type fits in int64 and every float type in float64.
type number struct {
	i       int64
	f       float64
	isFloat bool
}

func loadNumber(src any, i int) number {
	switch d := src.(type) {
	case []int8:
		return number{i: int64(d[i])}
	case []uint8:
		return number{i: int64(d[i])}
	case []int16:
		return number{i: int64(d[i])}
	case []uint16:
		return number{i: int64(d[i])}
	case []int32:
		return number{i: int64(d[i])}
	case []uint32:
		return number{i: int64(d[i])}
	case []float32:
		return number{f: float64(d[i]), isFloat: true}
	case []float64:
		return number{f: d[i], isFloat: true}
	}
	return number{}
}

func parseNumber(s string) (number, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return number{}, fmt.Errorf("%w: empty string", ErrNoConvert)
	}
	base := 10
	if digits := strings.TrimLeft(s, "+-"); strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		base = 0
	}
	if i, err := strconv.ParseInt(s, base, 64); err == nil {
		return number{i: i}, nil
	}
	if u, err := strconv.ParseUint(s, base, 64); err == nil {
		return number{f: float64(u), isFloat: true}, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return number{}, fmt.Errorf("%w: %q is not a number", ErrNoConvert, s)
	}
	return number{f: f, isFloat: true}, nil
}

func formatNumber(n number, st Type) string {
	if !n.isFloat {
		return strconv.FormatInt(n.i, 10)
	}
	if st == TypeFloat32 {
		return strconv.FormatFloat(n.f, 'g', -1, 32)
	}
	return strconv.FormatFloat(n.f, 'g', -1, 64)
}

func intRange(t Type) (int64, int64) {
	switch t {
	case TypeInt8:
		return math.MinInt8, math.MaxInt8
	case TypeUint8:
		return 0, math.MaxUint8
	case TypeInt16:
		return math.MinInt16, math.MaxInt16
	case TypeUint16, TypeEnum16:
		return 0, math.MaxUint16
	case TypeInt32:
		return math.MinInt32, math.MaxInt32
	default:
		return 0, math.MaxUint32
	}
}

// toInt saturates n into [min, max].
func toInt(n number, min, max int64) (int64, error) {
	if !n.isFloat {
		switch {
		case n.i < min:
			return min, nil
		case n.i > max:
			return max, nil
		}
		return n.i, nil
	}
	switch {
	case math.IsNaN(n.f):
		return 0, fmt.Errorf("%w: NaN to integer", ErrNoConvert)
	case n.f <= float64(min):
		return min, nil
	case n.f >= float64(max):
		return max, nil
	}
	return int64(n.f), nil
}

func storeNumber(out any, dt Type, dtab *EnumStringTable, i int, n number) error {
	switch d := out.(type) {
	case []float64:
		if n.isFloat {
			d[i] = n.f
		} else {
			d[i] = float64(n.i)
		}
		return nil
	case []float32:
		f := n.f
		if !n.isFloat {
			f = float64(n.i)
		}
		switch {
		case f > math.MaxFloat32 && !math.IsInf(f, 1):
			f = math.MaxFloat32
		case f < -math.MaxFloat32 && !math.IsInf(f, -1):
			f = -math.MaxFloat32
		}
		d[i] = float32(f)
		return nil
	}

	min, max := intRange(dt)
	v, err := toInt(n, min, max)
	if err != nil {
		return err
	}
	switch d := out.(type) {
	case []int8:
		d[i] = int8(v)
	case []uint8:
		d[i] = uint8(v)
	case []int16:
		d[i] = int16(v)
	case []uint16:
		if dt == TypeEnum16 && dtab != nil && int(v) >= dtab.Len() {
			return fmt.Errorf("%w: index %d of %d", ErrEnumIndexRange, v, dtab.Len())
		}
		d[i] = uint16(v)
	case []int32:
		d[i] = int32(v)
	case []uint32:
		d[i] = uint32(v)
	default:
		return fmt.Errorf("%w: to %s", ErrNoConvert, dt)
	}
	return nil
}

func setString(out any, dt Type, i int, s string) {
	if dt == TypeFixedString && len(s) > MaxStringSize-1 {
		s = s[:MaxStringSize-1]
	}
	out.([]string)[i] = s
}

func copyPrefix(dst, src any, n int) {
	switch d := dst.(type) {
	case []int8:
		copy(d, src.([]int8)[:n])
	case []uint8:
		copy(d, src.([]uint8)[:n])
	case []int16:
		copy(d, src.([]int16)[:n])
	case []uint16:
		copy(d, src.([]uint16)[:n])
	case []int32:
		copy(d, src.([]int32)[:n])
	case []uint32:
		copy(d, src.([]uint32)[:n])
	case []float32:
		copy(d, src.([]float32)[:n])
	case []float64:
		copy(d, src.([]float64)[:n])
	case []string:
		copy(d, src.([]string)[:n])
	}
}
