package autosave

import (
	"encoding/json"
	"fmt"

	"github.com/marmos91/dittoca/pkg/gdd"
)

// Key namespace:
//
//	"v:" v:<pv name>    record (JSON)
const prefixValue = "v:"

func keyValue(name string) []byte {
	return []byte(prefixValue + name)
}

// record is the persisted form of a PV value. Text types keep Strings,
// every other type keeps Numbers, which hold any supported integer
// exactly.
type record struct {
	Type     string    `json:"type"`
	Scalar   bool      `json:"scalar,omitempty"`
	Numbers  []float64 `json:"numbers,omitempty"`
	Strings  []string  `json:"strings,omitempty"`
	Status   uint16    `json:"status,omitempty"`
	Severity uint16    `json:"severity,omitempty"`
	Sec      uint32    `json:"sec,omitempty"`
	Nsec     uint32    `json:"nsec,omitempty"`
}

func encodeValue(v *gdd.GDD) ([]byte, error) {
	if v.IsContainer() {
		if v = v.Find(gdd.TagValue); v == nil {
			return nil, fmt.Errorf("%w: container has no value", ErrBadValue)
		}
	}
	r := record{
		Type:     v.Type().String(),
		Scalar:   v.IsScalar(),
		Status:   v.Status(),
		Severity: v.Severity(),
		Sec:      v.TimeStamp().Sec,
		Nsec:     v.TimeStamp().Nsec,
	}
	var err error
	if v.Type().IsString() {
		r.Strings, err = v.Strings()
	} else {
		r.Numbers, err = v.Float64s()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadValue, err)
	}
	return json.Marshal(r)
}

func decodeValue(data []byte) (*gdd.GDD, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadValue, err)
	}
	t, err := gdd.ParseType(r.Type)
	if err != nil || !t.IsPrimitive() {
		return nil, fmt.Errorf("%w: type %q", ErrBadValue, r.Type)
	}

	n := len(r.Numbers)
	if t.IsString() {
		n = len(r.Strings)
	}
	var v *gdd.GDD
	if r.Scalar {
		if n != 1 {
			return nil, fmt.Errorf("%w: scalar with %d elements", ErrBadValue, n)
		}
		v = gdd.NewScalar(gdd.TagValue, t)
	} else {
		v = gdd.NewArray(gdd.TagValue, t, uint32(n))
	}

	switch {
	case n == 0:
	case t.IsString() && r.Scalar:
		err = v.Put(r.Strings[0])
	case t.IsString():
		err = v.Put(r.Strings)
	case r.Scalar:
		err = v.Put(r.Numbers[0])
	default:
		err = v.Put(r.Numbers)
	}
	if err != nil {
		_ = v.Unreference()
		return nil, fmt.Errorf("%w: %v", ErrBadValue, err)
	}
	v.SetStatSevr(r.Status, r.Severity)
	v.SetTimeStamp(gdd.TimeStamp{Sec: r.Sec, Nsec: r.Nsec})
	return v, nil
}
