// Package gdd implements the Generic Data Descriptor: a self-describing,
// reference-counted value container used to move PV data between the CA
// server engine and the hosting application.
//
// A GDD is a scalar, a one dimensional array, or a container of child GDDs.
// Each carries an application tag naming what it holds (value, units,
// alarm limits, ...), an alarm status and severity, and a timestamp.
//
// Reference counting:
//
//	g := gdd.NewScalar(gdd.TagValue, gdd.TypeFloat64) // count is 1
//	_ = g.Reference()                                  // count is 2
//	_ = g.Unreference()                                // count is 1
//	_ = g.Unreference()                                // storage released
//
// Storage is released exactly once, when the count reaches zero. Releasing
// a container releases its children. A further Unreference returns
// ErrNotAllocated instead of corrupting state.
//
// Data access is not synchronized: a GDD handed to another goroutine must
// not be mutated by its producer afterwards.
package gdd

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Destructor is invoked once when a GDD's storage is released.
type Destructor func(g *GDD)

// Bounds describes one array dimension.
type Bounds struct {
	First uint32
	Count uint32
}

// GDD is a reference-counted value descriptor.
type GDD struct {
	tag      AppTag
	typ      Type
	bounds   []Bounds
	data     any
	children []*GDD

	status   uint16
	severity uint16
	stamp    TimeStamp
	enums    *EnumStringTable

	refs       atomic.Int32
	released   atomic.Bool
	destructor Destructor
}

// New creates a GDD of type t with the given dimensions. No dims means a
// scalar, one dim an array of that many elements. Storage is zeroed and
// the reference count starts at 1.
func New(tag AppTag, t Type, dims ...uint32) *GDD {
	g := &GDD{tag: tag, typ: t}
	g.refs.Store(1)
	if t == TypeContainer {
		return g
	}
	n := 1
	if len(dims) > 0 {
		g.bounds = make([]Bounds, len(dims))
		n = 1
		for i, d := range dims {
			g.bounds[i] = Bounds{Count: d}
			n *= int(d)
		}
	}
	g.data = makeSlice(t, n)
	return g
}

// NewScalar creates a scalar GDD.
func NewScalar(tag AppTag, t Type) *GDD {
	return New(tag, t)
}

// NewArray creates a one dimensional array GDD of count elements.
func NewArray(tag AppTag, t Type, count uint32) *GDD {
	return New(tag, t, count)
}

// NewContainer creates a container holding children. The container takes
// over the callers' references to the children.
func NewContainer(tag AppTag, children ...*GDD) *GDD {
	g := New(tag, TypeContainer)
	g.children = append(g.children, children...)
	return g
}

// FromSlice creates an array GDD that adopts data, which must be the
// storage slice for t ([]float64 for TypeFloat64, []uint16 for
// TypeEnum16, []string for either string type, ...).
func FromSlice(tag AppTag, t Type, data any) (*GDD, error) {
	if !storageMatches(t, data) {
		return nil, fmt.Errorf("%w: %T is not storage for %s", ErrBadType, data, t)
	}
	n := sliceLen(data)
	g := &GDD{tag: tag, typ: t, data: data, bounds: []Bounds{{Count: uint32(n)}}}
	g.refs.Store(1)
	if t == TypeFixedString {
		truncateFixed(g.data.([]string))
	}
	return g, nil
}

// FromValue creates a GDD from a Go value. Scalars (int*, uint*, float*,
// string) produce scalar GDDs, slices of them produce arrays.
func FromValue(tag AppTag, v any) (*GDD, error) {
	var (
		t      Type
		data   any
		scalar = true
	)
	switch x := v.(type) {
	case int8:
		t, data = TypeInt8, []int8{x}
	case uint8:
		t, data = TypeUint8, []uint8{x}
	case int16:
		t, data = TypeInt16, []int16{x}
	case uint16:
		t, data = TypeUint16, []uint16{x}
	case int32:
		t, data = TypeInt32, []int32{x}
	case uint32:
		t, data = TypeUint32, []uint32{x}
	case int:
		t, data = TypeFloat64, []float64{float64(x)}
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			t, data = TypeInt32, []int32{int32(x)}
		}
	case int64:
		t, data = TypeFloat64, []float64{float64(x)}
		if x >= math.MinInt32 && x <= math.MaxInt32 {
			t, data = TypeInt32, []int32{int32(x)}
		}
	case float32:
		t, data = TypeFloat32, []float32{x}
	case float64:
		t, data = TypeFloat64, []float64{x}
	case string:
		t, data = TypeString, []string{x}
	case []int8:
		t, data, scalar = TypeInt8, append([]int8(nil), x...), false
	case []uint8:
		t, data, scalar = TypeUint8, append([]uint8(nil), x...), false
	case []int16:
		t, data, scalar = TypeInt16, append([]int16(nil), x...), false
	case []uint16:
		t, data, scalar = TypeUint16, append([]uint16(nil), x...), false
	case []int32:
		t, data, scalar = TypeInt32, append([]int32(nil), x...), false
	case []uint32:
		t, data, scalar = TypeUint32, append([]uint32(nil), x...), false
	case []float32:
		t, data, scalar = TypeFloat32, append([]float32(nil), x...), false
	case []float64:
		t, data, scalar = TypeFloat64, append([]float64(nil), x...), false
	case []string:
		t, data, scalar = TypeString, append([]string(nil), x...), false
	default:
		return nil, fmt.Errorf("%w: unsupported Go type %T", ErrBadType, v)
	}
	if !scalar {
		return FromSlice(tag, t, data)
	}
	g := &GDD{tag: tag, typ: t, data: data}
	g.refs.Store(1)
	return g, nil
}

// Tag returns the application tag.
func (g *GDD) Tag() AppTag { return g.tag }

// SetTag changes the application tag.
func (g *GDD) SetTag(tag AppTag) { g.tag = tag }

// Type returns the primitive type.
func (g *GDD) Type() Type { return g.typ }

// IsContainer reports whether g holds children rather than data.
func (g *GDD) IsContainer() bool { return g.typ == TypeContainer }

// IsScalar reports whether g is a scalar leaf.
func (g *GDD) IsScalar() bool { return g.typ != TypeContainer && len(g.bounds) == 0 }

// Dimension returns the number of array dimensions (0 for scalars).
func (g *GDD) Dimension() int { return len(g.bounds) }

// Bounds returns a copy of the array bounds.
func (g *GDD) Bounds() []Bounds {
	return append([]Bounds(nil), g.bounds...)
}

// ElementCount returns the number of stored elements (1 for scalars,
// the child count for containers).
func (g *GDD) ElementCount() int {
	if g.typ == TypeContainer {
		return len(g.children)
	}
	return sliceLen(g.data)
}

// Data returns the storage slice without copying. Callers must not retain
// it past the GDD's lifetime.
func (g *GDD) Data() any { return g.data }

// Status returns the alarm status.
func (g *GDD) Status() uint16 { return g.status }

// Severity returns the alarm severity.
func (g *GDD) Severity() uint16 { return g.severity }

// SetStatSevr sets alarm status and severity.
func (g *GDD) SetStatSevr(status, severity uint16) {
	g.status = status
	g.severity = severity
}

// TimeStamp returns the value timestamp.
func (g *GDD) TimeStamp() TimeStamp { return g.stamp }

// SetTimeStamp sets the value timestamp.
func (g *GDD) SetTimeStamp(ts TimeStamp) { g.stamp = ts }

// EnumTable returns the attached enum string table, if any.
func (g *GDD) EnumTable() *EnumStringTable { return g.enums }

// SetEnumTable attaches an enum string table used by conversions to and
// from text.
func (g *GDD) SetEnumTable(t *EnumStringTable) { g.enums = t }

// SetDestructor installs fn to run when storage is released.
func (g *GDD) SetDestructor(fn Destructor) { g.destructor = fn }

// RefCount returns the current reference count.
func (g *GDD) RefCount() int32 { return g.refs.Load() }

// Released reports whether storage has been freed.
func (g *GDD) Released() bool { return g.released.Load() }

// Reference adds a reference. Referencing released storage is an error.
func (g *GDD) Reference() error {
	for {
		n := g.refs.Load()
		if n <= 0 {
			return ErrNotAllocated
		}
		if g.refs.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// Unreference drops a reference and releases storage when the count
// reaches zero. Dropping a reference that does not exist returns
// ErrNotAllocated.
func (g *GDD) Unreference() error {
	for {
		n := g.refs.Load()
		if n <= 0 {
			return ErrNotAllocated
		}
		if g.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				g.release()
			}
			return nil
		}
	}
}

func (g *GDD) release() {
	if !g.released.CompareAndSwap(false, true) {
		return
	}
	for _, c := range g.children {
		_ = c.Unreference()
	}
	if g.destructor != nil {
		g.destructor(g)
	}
	g.children = nil
	g.data = nil
	g.bounds = nil
}

// Children returns the container's children.
func (g *GDD) Children() []*GDD { return g.children }

// Add appends child to a container, taking over the caller's reference.
func (g *GDD) Add(child *GDD) error {
	if g.typ != TypeContainer {
		return ErrNotContainer
	}
	g.children = append(g.children, child)
	return nil
}

// Find returns the first descendant (depth first, g included) with tag.
func (g *GDD) Find(tag AppTag) *GDD {
	if g.tag == tag {
		return g
	}
	for _, c := range g.children {
		if f := c.Find(tag); f != nil {
			return f
		}
	}
	return nil
}

// Clone returns a deep copy with a reference count of 1 and no destructor.
func (g *GDD) Clone() *GDD {
	c := &GDD{
		tag:      g.tag,
		typ:      g.typ,
		bounds:   append([]Bounds(nil), g.bounds...),
		status:   g.status,
		severity: g.severity,
		stamp:    g.stamp,
		enums:    g.enums,
	}
	c.refs.Store(1)
	if g.data != nil {
		c.data = cloneSlice(g.data)
	}
	for _, ch := range g.children {
		c.children = append(c.children, ch.Clone())
	}
	return c
}

// Resize reallocates a leaf as type t with count elements (0 means scalar).
// Existing data is discarded.
func (g *GDD) Resize(t Type, count uint32) error {
	if g.typ == TypeContainer || t == TypeContainer || !t.IsPrimitive() {
		return fmt.Errorf("%w: cannot resize %s to %s", ErrBadType, g.typ, t)
	}
	g.typ = t
	if count == 0 {
		g.bounds = nil
		g.data = makeSlice(t, 1)
		return nil
	}
	g.bounds = []Bounds{{Count: count}}
	g.data = makeSlice(t, int(count))
	return nil
}

// Put stores a Go value into g, converting to g's type. Shapes must match:
// scalars take scalars, arrays take slices of at most ElementCount elements.
func (g *GDD) Put(v any) error {
	src, err := FromValue(g.tag, v)
	if err != nil {
		return err
	}
	return ConvertInto(g, src)
}

// Float64 returns element 0 converted to float64.
func (g *GDD) Float64() (float64, error) {
	v, err := g.elementAs(TypeFloat64)
	if err != nil {
		return 0, err
	}
	return v.([]float64)[0], nil
}

// Int32 returns element 0 converted to int32.
func (g *GDD) Int32() (int32, error) {
	v, err := g.elementAs(TypeInt32)
	if err != nil {
		return 0, err
	}
	return v.([]int32)[0], nil
}

// Enum returns element 0 converted to an enum index.
func (g *GDD) Enum() (uint16, error) {
	v, err := g.elementAs(TypeEnum16)
	if err != nil {
		return 0, err
	}
	return v.([]uint16)[0], nil
}

// StringValue returns element 0 converted to text.
func (g *GDD) StringValue() (string, error) {
	v, err := g.elementAs(TypeString)
	if err != nil {
		return "", err
	}
	return v.([]string)[0], nil
}

// Float64s returns all elements converted to float64.
func (g *GDD) Float64s() ([]float64, error) {
	if g.typ == TypeContainer {
		return nil, ErrNoConvert
	}
	out, err := convertSlice(TypeFloat64, nil, g.typ, g.enums, g.data, sliceLen(g.data))
	if err != nil {
		return nil, err
	}
	return out.([]float64), nil
}

// Strings returns all elements converted to text.
func (g *GDD) Strings() ([]string, error) {
	if g.typ == TypeContainer {
		return nil, ErrNoConvert
	}
	out, err := convertSlice(TypeString, nil, g.typ, g.enums, g.data, sliceLen(g.data))
	if err != nil {
		return nil, err
	}
	return out.([]string), nil
}

// Value returns element 0 for scalars or a copy of the storage slice for arrays.
func (g *GDD) Value() any {
	if g.data == nil {
		return nil
	}
	if g.IsScalar() {
		return elementAt(g.data, 0)
	}
	return cloneSlice(g.data)
}

func (g *GDD) elementAs(t Type) (any, error) {
	if g.typ == TypeContainer {
		return nil, fmt.Errorf("%w: container has no value", ErrNoConvert)
	}
	if sliceLen(g.data) == 0 {
		return nil, fmt.Errorf("%w: no elements", ErrShape)
	}
	return convertSlice(t, g.enums, g.typ, g.enums, g.data, 1)
}

func (g *GDD) String() string {
	if g.typ == TypeContainer {
		return fmt.Sprintf("gdd(tag=%d container children=%d)", g.tag, len(g.children))
	}
	return fmt.Sprintf("gdd(tag=%d %s %v)", g.tag, g.typ, g.Value())
}

func elementAt(data any, i int) any {
	switch d := data.(type) {
	case []int8:
		return d[i]
	case []uint8:
		return d[i]
	case []int16:
		return d[i]
	case []uint16:
		return d[i]
	case []int32:
		return d[i]
	case []uint32:
		return d[i]
	case []float32:
		return d[i]
	case []float64:
		return d[i]
	case []string:
		return d[i]
	default:
		return nil
	}
}

func cloneSlice(data any) any {
	switch d := data.(type) {
	case []int8:
		return append([]int8(nil), d...)
	case []uint8:
		return append([]uint8(nil), d...)
	case []int16:
		return append([]int16(nil), d...)
	case []uint16:
		return append([]uint16(nil), d...)
	case []int32:
		return append([]int32(nil), d...)
	case []uint32:
		return append([]uint32(nil), d...)
	case []float32:
		return append([]float32(nil), d...)
	case []float64:
		return append([]float64(nil), d...)
	case []string:
		return append([]string(nil), d...)
	default:
		return nil
	}
}

func truncateFixed(s []string) {
	for i, v := range s {
		if len(v) > MaxStringSize-1 {
			s[i] = v[:MaxStringSize-1]
		}
	}
}
