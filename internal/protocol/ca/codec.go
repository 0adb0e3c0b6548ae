package ca

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/marmos91/dittoca/pkg/gdd"
)

var (
	// ErrBadDBRType is returned for undefined or unsupported DBR types.
	ErrBadDBRType = errors.New("ca: bad DBR type")
	// ErrBadCount is returned for element counts the value cannot satisfy.
	ErrBadCount = errors.New("ca: bad element count")
)

// EncodeDBR serializes count elements of src as DBR type t. src is either
// a value leaf or a container holding a value and attribute children
// (units, precision, limits, ...) as produced by NewPrototype. Missing
// attributes encode as zero and missing elements are zero filled.
func EncodeDBR(t uint16, count uint32, src *gdd.GDD) ([]byte, error) {
	if !ValidDBR(t) {
		return nil, fmt.Errorf("%w: %d", ErrBadDBRType, t)
	}
	if t == DBRPutAckT || t == DBRPutAckS {
		return nil, fmt.Errorf("%w: %s is write only", ErrBadDBRType, DBRName(t))
	}
	if count == 0 {
		count = 1
	}

	l, base := layoutFor(t)
	buf := make([]byte, DBRSize(t, count))

	value := src
	if src.IsContainer() {
		value = src.Find(gdd.TagValue)
	}
	if t == DBRClassName {
		value = src.Find(gdd.TagClassName)
	}
	alarm := src
	if value != nil {
		alarm = value
	}

	off := 0
	if l.status {
		binary.BigEndian.PutUint16(buf[off:], alarm.Status())
		binary.BigEndian.PutUint16(buf[off+2:], alarm.Severity())
		off += 4
	}
	if l.stamp {
		ts := alarm.TimeStamp()
		binary.BigEndian.PutUint32(buf[off:], ts.Sec)
		binary.BigEndian.PutUint32(buf[off+4:], ts.Nsec)
		off += 8
	}
	if l.ackFields {
		binary.BigEndian.PutUint16(buf[off:], uint16(attrInt(src, gdd.TagAckTransient)))
		binary.BigEndian.PutUint16(buf[off+2:], uint16(attrInt(src, gdd.TagAckSeverity)))
		off += 4
	}
	if l.precision {
		binary.BigEndian.PutUint16(buf[off:], uint16(int16(attrInt(src, gdd.TagPrecision))))
		off += 4
	}
	if l.enumStrings {
		strs := enumStrings(src, value)
		binary.BigEndian.PutUint16(buf[off:], uint16(len(strs)))
		off += 2
		for i, s := range strs {
			start := off + i*maxEnumStringSize
			putFixedString(buf[start:start+maxEnumStringSize], s)
		}
		off += maxEnumStrings * maxEnumStringSize
	}
	if l.units {
		putFixedString(buf[off:off+maxUnitsSize], attrString(src, gdd.TagUnits))
		off += maxUnitsSize
	}
	for _, tag := range gdd.LimitTags[:l.limits] {
		if lim := attr(src, tag); lim != nil {
			if conv, err := lim.ConvertTo(BaseGDDType(base)); err == nil {
				putValues(buf[off:], conv.Data(), 1)
			}
		}
		off += valueSize[base]
	}
	off += l.pad

	if value == nil || value.IsContainer() {
		return buf, nil
	}
	conv, err := value.ConvertTo(BaseGDDType(base))
	if err != nil {
		return nil, err
	}
	n := conv.ElementCount()
	if n > int(count) {
		n = int(count)
	}
	putValues(buf[off:], conv.Data(), n)
	return buf, nil
}

// DecodeDBR parses count elements of DBR type t. Plain types and the
// acknowledge types decode to a leaf; structured types decode to a
// container holding the value and its attributes.
func DecodeDBR(t uint16, count uint32, payload []byte) (*gdd.GDD, error) {
	if !ValidDBR(t) {
		return nil, fmt.Errorf("%w: %d", ErrBadDBRType, t)
	}
	if count == 0 {
		count = 1
	}
	need := DBRSize(t, count)
	if len(payload) < need {
		return nil, fmt.Errorf("%w: %s x%d needs %d bytes, have %d", ErrShortPayload, DBRName(t), count, need, len(payload))
	}

	l, base := layoutFor(t)
	f, _ := DBRFamily(t)

	var (
		off          int
		status, sevr uint16
		stamp        gdd.TimeStamp
		children     []*gdd.GDD
	)
	if l.status {
		status = binary.BigEndian.Uint16(payload[off:])
		sevr = binary.BigEndian.Uint16(payload[off+2:])
		off += 4
	}
	if l.stamp {
		stamp.Sec = binary.BigEndian.Uint32(payload[off:])
		stamp.Nsec = binary.BigEndian.Uint32(payload[off+4:])
		off += 8
	}
	if l.ackFields {
		children = append(children,
			scalarLeaf(gdd.TagAckTransient, binary.BigEndian.Uint16(payload[off:])),
			scalarLeaf(gdd.TagAckSeverity, binary.BigEndian.Uint16(payload[off+2:])))
		off += 4
	}
	if l.precision {
		children = append(children, scalarLeaf(gdd.TagPrecision, int16(binary.BigEndian.Uint16(payload[off:]))))
		off += 4
	}
	var table *gdd.EnumStringTable
	if l.enumStrings {
		n := int(binary.BigEndian.Uint16(payload[off:]))
		if n > maxEnumStrings {
			n = maxEnumStrings
		}
		off += 2
		strs := make([]string, n)
		for i := range strs {
			start := off + i*maxEnumStringSize
			strs[i] = CString(payload[start : start+maxEnumStringSize])
		}
		off += maxEnumStrings * maxEnumStringSize
		table, _ = gdd.NewEnumStringTable(strs...)
	}
	if l.units {
		children = append(children, scalarLeaf(gdd.TagUnits, CString(payload[off:off+maxUnitsSize])))
		off += maxUnitsSize
	}
	for _, tag := range gdd.LimitTags[:l.limits] {
		lim := gdd.NewScalar(tag, BaseGDDType(base))
		setData(lim, getValues(payload[off:], base, 1))
		children = append(children, lim)
		off += valueSize[base]
	}
	off += l.pad

	valueTag := gdd.TagValue
	switch t {
	case DBRPutAckT:
		valueTag = gdd.TagAckTransient
	case DBRPutAckS:
		valueTag = gdd.TagAckSeverity
	case DBRClassName:
		valueTag = gdd.TagClassName
	}

	var value *gdd.GDD
	if count == 1 {
		value = gdd.NewScalar(valueTag, BaseGDDType(base))
	} else {
		value = gdd.NewArray(valueTag, BaseGDDType(base), count)
	}
	setData(value, getValues(payload[off:], base, int(count)))
	value.SetStatSevr(status, sevr)
	value.SetTimeStamp(stamp)
	value.SetEnumTable(table)

	if f == FamilyPlain || t == DBRPutAckT || t == DBRPutAckS || t == DBRClassName {
		return value, nil
	}
	c := gdd.NewContainer(gdd.TagAll, append([]*gdd.GDD{value}, children...)...)
	c.SetStatSevr(status, sevr)
	c.SetTimeStamp(stamp)
	return c, nil
}

// PrototypeName returns the application table name of t's prototype.
func PrototypeName(t uint16) string {
	return strings.ToLower(DBRName(t))
}

// RegisterPrototypes registers a container prototype for every readable
// DBR type in table. Each holds a scalar value of the base type plus the
// attribute children the structure carries.
func RegisterPrototypes(table *gdd.AppTable) {
	for t := uint16(0); t <= lastDBR; t++ {
		if t == DBRPutAckT || t == DBRPutAckS {
			continue
		}
		l, base := layoutFor(t)
		proto := gdd.NewContainer(gdd.TagInvalid)
		if t == DBRClassName {
			_ = proto.Add(gdd.NewScalar(gdd.TagClassName, gdd.TypeFixedString))
			table.RegisterPrototype(PrototypeName(t), proto)
			continue
		}
		_ = proto.Add(gdd.NewScalar(gdd.TagValue, BaseGDDType(base)))
		if l.ackFields {
			_ = proto.Add(gdd.NewScalar(gdd.TagAckTransient, gdd.TypeUint16))
			_ = proto.Add(gdd.NewScalar(gdd.TagAckSeverity, gdd.TypeUint16))
		}
		if l.precision {
			_ = proto.Add(gdd.NewScalar(gdd.TagPrecision, gdd.TypeInt16))
		}
		if l.enumStrings {
			_ = proto.Add(gdd.NewArray(gdd.TagEnums, gdd.TypeFixedString, 0))
		}
		if l.units {
			_ = proto.Add(gdd.NewScalar(gdd.TagUnits, gdd.TypeFixedString))
		}
		for _, tag := range gdd.LimitTags[:l.limits] {
			_ = proto.Add(gdd.NewScalar(tag, gdd.TypeFloat64))
		}
		table.RegisterPrototype(PrototypeName(t), proto)
	}
}

// NewPrototype returns a fresh container for reading count elements as DBR
// type t, copied from the prototype RegisterPrototypes stored in table.
func NewPrototype(table *gdd.AppTable, t uint16, count uint32) (*gdd.GDD, error) {
	if !ValidDBR(t) {
		return nil, fmt.Errorf("%w: %d", ErrBadDBRType, t)
	}
	tag, ok := table.Tag(PrototypeName(t))
	if !ok {
		return nil, fmt.Errorf("%w: %s", gdd.ErrUnknownTag, PrototypeName(t))
	}
	proto, err := table.CreateDD(tag)
	if err != nil {
		return nil, err
	}
	if count > 1 {
		if v := proto.Find(gdd.TagValue); v != nil {
			if err := v.Resize(v.Type(), count); err != nil {
				return nil, err
			}
		}
	}
	return proto, nil
}

func attr(src *gdd.GDD, tag gdd.AppTag) *gdd.GDD {
	if !src.IsContainer() {
		return nil
	}
	a := src.Find(tag)
	if a == nil || a.IsContainer() || a.ElementCount() == 0 {
		return nil
	}
	return a
}

func attrInt(src *gdd.GDD, tag gdd.AppTag) int32 {
	if a := attr(src, tag); a != nil {
		if v, err := a.Int32(); err == nil {
			return v
		}
	}
	return 0
}

func attrString(src *gdd.GDD, tag gdd.AppTag) string {
	if a := attr(src, tag); a != nil {
		if v, err := a.StringValue(); err == nil {
			return v
		}
	}
	return ""
}

func enumStrings(src, value *gdd.GDD) []string {
	var strs []string
	if value != nil && value.EnumTable() != nil {
		strs = value.EnumTable().Strings()
	} else if a := attr(src, gdd.TagEnums); a != nil {
		strs, _ = a.Strings()
	}
	if len(strs) > maxEnumStrings {
		strs = strs[:maxEnumStrings]
	}
	return strs
}

func scalarLeaf(tag gdd.AppTag, v any) *gdd.GDD {
	g, _ := gdd.FromValue(tag, v)
	return g
}

// setData replaces g's storage with data of the matching type.
func setData(g *gdd.GDD, data any) {
	if g.IsScalar() {
		_ = g.Put(firstElement(data))
		return
	}
	_ = g.Put(data)
}

func firstElement(data any) any {
	switch d := data.(type) {
	case []string:
		return d[0]
	case []int16:
		return d[0]
	case []float32:
		return d[0]
	case []uint16:
		return d[0]
	case []uint8:
		return d[0]
	case []int32:
		return d[0]
	case []float64:
		return d[0]
	}
	return nil
}

func putValues(dst []byte, data any, n int) {
	switch d := data.(type) {
	case []string:
		for i := 0; i < n; i++ {
			putFixedString(dst[i*gdd.MaxStringSize:(i+1)*gdd.MaxStringSize], d[i])
		}
	case []int16:
		for i := 0; i < n; i++ {
			binary.BigEndian.PutUint16(dst[i*2:], uint16(d[i]))
		}
	case []uint16:
		for i := 0; i < n; i++ {
			binary.BigEndian.PutUint16(dst[i*2:], d[i])
		}
	case []float32:
		for i := 0; i < n; i++ {
			binary.BigEndian.PutUint32(dst[i*4:], math.Float32bits(d[i]))
		}
	case []uint8:
		copy(dst[:n], d[:n])
	case []int32:
		for i := 0; i < n; i++ {
			binary.BigEndian.PutUint32(dst[i*4:], uint32(d[i]))
		}
	case []float64:
		for i := 0; i < n; i++ {
			binary.BigEndian.PutUint64(dst[i*8:], math.Float64bits(d[i]))
		}
	}
}

func getValues(src []byte, base uint16, n int) any {
	switch base {
	case DBRString:
		out := make([]string, n)
		for i := range out {
			out[i] = CString(src[i*gdd.MaxStringSize : (i+1)*gdd.MaxStringSize])
		}
		return out
	case DBRShort:
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(binary.BigEndian.Uint16(src[i*2:]))
		}
		return out
	case DBRFloat:
		out := make([]float32, n)
		for i := range out {
			out[i] = float32FromBits(binary.BigEndian.Uint32(src[i*4:]))
		}
		return out
	case DBREnum:
		out := make([]uint16, n)
		for i := range out {
			out[i] = binary.BigEndian.Uint16(src[i*2:])
		}
		return out
	case DBRChar:
		out := make([]uint8, n)
		copy(out, src[:n])
		return out
	case DBRLong:
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(binary.BigEndian.Uint32(src[i*4:]))
		}
		return out
	default:
		out := make([]float64, n)
		for i := range out {
			out[i] = math.Float64frombits(binary.BigEndian.Uint64(src[i*8:]))
		}
		return out
	}
}

func float32FromBits(b uint32) float32 {
	return math.Float32frombits(b)
}
