package gdd

import (
	"fmt"
	"sync"
)

// AppTag names what a GDD holds. Tags below firstUserTag are reserved for
// the standard attributes registered by NewAppTable.
type AppTag uint32

const (
	TagInvalid AppTag = iota
	TagValue
	TagUnits
	TagPrecision
	TagGraphicHigh
	TagGraphicLow
	TagControlHigh
	TagControlLow
	TagAlarmHigh
	TagAlarmHighWarning
	TagAlarmLowWarning
	TagAlarmLow
	TagEnums
	TagTimeStamp
	TagStatus
	TagSeverity
	TagAckTransient
	TagAckSeverity
	TagClassName
	TagAll

	firstUserTag
)

var standardTagNames = [...]string{
	TagInvalid:          "invalid",
	TagValue:            "value",
	TagUnits:            "units",
	TagPrecision:        "precision",
	TagGraphicHigh:      "graphicHigh",
	TagGraphicLow:       "graphicLow",
	TagControlHigh:      "controlHigh",
	TagControlLow:       "controlLow",
	TagAlarmHigh:        "alarmHigh",
	TagAlarmHighWarning: "alarmHighWarning",
	TagAlarmLowWarning:  "alarmLowWarning",
	TagAlarmLow:         "alarmLow",
	TagEnums:            "enums",
	TagTimeStamp:        "timeStamp",
	TagStatus:           "status",
	TagSeverity:         "severity",
	TagAckTransient:     "ackt",
	TagAckSeverity:      "acks",
	TagClassName:        "class",
	TagAll:              "all",
}

// LimitTags lists the limit attributes in DBR wire order.
var LimitTags = []AppTag{
	TagGraphicHigh, TagGraphicLow,
	TagAlarmHigh, TagAlarmHighWarning, TagAlarmLowWarning, TagAlarmLow,
	TagControlHigh, TagControlLow,
}

// AppTable maps application tag names to tags and holds container
// prototypes. Each server owns its own table.
type AppTable struct {
	mu     sync.RWMutex
	names  []string
	byName map[string]AppTag
	protos map[AppTag]*GDD
}

// NewAppTable returns a table with the standard tags registered and an
// "all" prototype holding every standard attribute.
func NewAppTable() *AppTable {
	t := &AppTable{
		byName: make(map[string]AppTag, len(standardTagNames)),
		protos: make(map[AppTag]*GDD),
	}
	for i, n := range standardTagNames {
		t.names = append(t.names, n)
		t.byName[n] = AppTag(i)
	}

	all := NewContainer(TagAll,
		NewScalar(TagValue, TypeFloat64),
		NewScalar(TagUnits, TypeFixedString),
		NewScalar(TagPrecision, TypeInt16),
	)
	for _, tag := range LimitTags {
		_ = all.Add(NewScalar(tag, TypeFloat64))
	}
	_ = all.Add(NewArray(TagEnums, TypeFixedString, 0))
	_ = all.Add(NewScalar(TagAckTransient, TypeUint16))
	_ = all.Add(NewScalar(TagAckSeverity, TypeUint16))
	_ = all.Add(NewScalar(TagClassName, TypeFixedString))
	t.protos[TagAll] = all
	return t
}

// Register returns the tag for name, allocating one if needed.
func (t *AppTable) Register(name string) AppTag {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tag, ok := t.byName[name]; ok {
		return tag
	}
	tag := AppTag(len(t.names))
	t.names = append(t.names, name)
	t.byName[name] = tag
	return tag
}

// Tag looks up a registered name.
func (t *AppTable) Tag(name string) (AppTag, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tag, ok := t.byName[name]
	return tag, ok
}

// Name returns the name registered for tag, or "" when unknown.
func (t *AppTable) Name(tag AppTag) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(tag) < len(t.names) {
		return t.names[tag]
	}
	return ""
}

// Len returns the number of registered tags.
func (t *AppTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.names)
}

// RegisterPrototype registers name and stores proto as the template
// CreateDD copies. The table takes over the caller's reference.
func (t *AppTable) RegisterPrototype(name string, proto *GDD) AppTag {
	tag := t.Register(name)
	proto.SetTag(tag)
	t.mu.Lock()
	if old, ok := t.protos[tag]; ok {
		_ = old.Unreference()
	}
	t.protos[tag] = proto
	t.mu.Unlock()
	return tag
}

// CreateDD returns a fresh copy of the prototype registered for tag.
func (t *AppTable) CreateDD(tag AppTag) (*GDD, error) {
	t.mu.RLock()
	proto, ok := t.protos[tag]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, tag)
	}
	return proto.Clone(), nil
}

// SmartCopy copies every leaf of src whose tag appears in dst, converting
// to dst's types. Unlike ConvertInto it copies what fits: arrays are cut
// to dst's length and a scalar takes an array's first element. Alarm
// status, severity, timestamp and a missing enum table follow the data.
// Containers in dst inherit the alarm fields of src's value.
func SmartCopy(dst, src *GDD) error {
	if !dst.IsContainer() {
		s := src
		if src.IsContainer() {
			if s = src.Find(dst.tag); s == nil || s.IsContainer() {
				return nil
			}
		}
		return copyLeaf(dst, s)
	}

	for _, c := range dst.children {
		if c.IsContainer() {
			if err := SmartCopy(c, src); err != nil {
				return err
			}
			continue
		}
		s := src.Find(c.tag)
		if s == nil || s.IsContainer() {
			continue
		}
		if err := copyLeaf(c, s); err != nil {
			return fmt.Errorf("tag %d: %w", c.tag, err)
		}
	}

	if v := src.Find(TagValue); v != nil {
		dst.status, dst.severity, dst.stamp = v.status, v.severity, v.stamp
	} else {
		dst.status, dst.severity, dst.stamp = src.status, src.severity, src.stamp
	}
	return nil
}

func copyLeaf(dst, src *GDD) error {
	n := sliceLen(src.data)
	if dst.IsScalar() {
		if n == 0 {
			return fmt.Errorf("%w: empty source", ErrShape)
		}
		n = 1
	} else if dst.bounds[0].Count > 0 && n > int(dst.bounds[0].Count) {
		n = int(dst.bounds[0].Count)
	}

	data, err := convertSlice(dst.typ, dst.enums, src.typ, src.enums, src.data, n)
	if err != nil {
		return err
	}
	dst.data = data
	if !dst.IsScalar() {
		dst.bounds = []Bounds{{First: dst.bounds[0].First, Count: uint32(n)}}
	}
	dst.status, dst.severity, dst.stamp = src.status, src.severity, src.stamp
	if dst.enums == nil {
		dst.enums = src.enums
	}
	return nil
}
