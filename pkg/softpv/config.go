package softpv

import (
	"fmt"
	"time"

	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/cas"
	"github.com/marmos91/dittoca/pkg/gdd"
)

// Config describes the PVs a Host serves.
type Config struct {
	// PVs are the soft PV definitions.
	PVs []PVConfig `mapstructure:"pvs" validate:"unique=Name,dive" yaml:"pvs"`

	// AccessFile optionally overrides per-PV access rights. It is watched
	// and reloaded while the host runs.
	AccessFile string `mapstructure:"access_file" yaml:"access_file,omitempty"`
}

// PVConfig defines one soft PV.
type PVConfig struct {
	// Name is the PV name clients search for.
	Name string `mapstructure:"name" validate:"required" yaml:"name"`

	// Type is the native DBR type: string, short, float, enum, char, long
	// or double.
	Type string `mapstructure:"type" validate:"required,oneof=string short float enum char long double" yaml:"type"`

	// Count is the element count; 0 or 1 is a scalar.
	Count uint32 `mapstructure:"count" yaml:"count,omitempty"`

	// Value is the initial value: a scalar, or a list for arrays. Enum
	// PVs accept a state string.
	Value any `mapstructure:"value" yaml:"value,omitempty"`

	Units     string `mapstructure:"units" yaml:"units,omitempty"`
	Precision int16  `mapstructure:"precision" yaml:"precision,omitempty"`

	// Limits carry the display, alarm and control ranges.
	Limits Limits `mapstructure:"limits" yaml:"limits,omitempty"`

	// EnumStrings are the state strings of an enum PV.
	EnumStrings []string `mapstructure:"enum_strings" validate:"max=16" yaml:"enum_strings,omitempty"`

	// Access is rw (default), ro or none.
	Access string `mapstructure:"access" validate:"omitempty,oneof=rw ro none" yaml:"access,omitempty"`

	// AsyncDelay completes reads and writes asynchronously after this
	// delay. Zero completes them in the callback.
	AsyncDelay time.Duration `mapstructure:"async_delay" yaml:"async_delay,omitempty"`

	// Autosave persists written values when the host has a store.
	Autosave bool `mapstructure:"autosave" yaml:"autosave,omitempty"`
}

// Limits are the PV's ranges. Unset limits are not reported. HiHi/LoLo
// raise a major alarm and High/Low a minor one. Writes are clamped to the
// control range when both control limits are set.
type Limits struct {
	DisplayHigh *float64 `mapstructure:"display_high" yaml:"display_high,omitempty"`
	DisplayLow  *float64 `mapstructure:"display_low" yaml:"display_low,omitempty"`
	HiHi        *float64 `mapstructure:"hihi" yaml:"hihi,omitempty"`
	High        *float64 `mapstructure:"high" yaml:"high,omitempty"`
	Low         *float64 `mapstructure:"low" yaml:"low,omitempty"`
	LoLo        *float64 `mapstructure:"lolo" yaml:"lolo,omitempty"`
	ControlHigh *float64 `mapstructure:"control_high" yaml:"control_high,omitempty"`
	ControlLow  *float64 `mapstructure:"control_low" yaml:"control_low,omitempty"`
}

var nativeTypes = map[string]gdd.Type{
	"string": gdd.TypeFixedString,
	"short":  gdd.TypeInt16,
	"float":  gdd.TypeFloat32,
	"enum":   gdd.TypeEnum16,
	"char":   gdd.TypeUint8,
	"long":   gdd.TypeInt32,
	"double": gdd.TypeFloat64,
}

// ParseType maps a config type name to its storage type.
func ParseType(name string) (gdd.Type, error) {
	t, ok := nativeTypes[name]
	if !ok {
		return gdd.TypeInvalid, fmt.Errorf("unknown PV type %q", name)
	}
	return t, nil
}

// ParseAccess maps rw, ro and none to access rights. Empty means rw.
func ParseAccess(s string) (cas.AccessRights, error) {
	switch s {
	case "", "rw":
		return cas.AccessReadWrite, nil
	case "ro":
		return cas.AccessRead, nil
	case "none":
		return cas.AccessNone, nil
	default:
		return cas.AccessNone, fmt.Errorf("unknown access %q", s)
	}
}

func (c *PVConfig) check() error {
	if c.Name == "" || len(c.Name) > ca.MaxPVNameLength {
		return fmt.Errorf("invalid PV name %q", c.Name)
	}
	if _, err := ParseType(c.Type); err != nil {
		return fmt.Errorf("pv %s: %w", c.Name, err)
	}
	if _, err := ParseAccess(c.Access); err != nil {
		return fmt.Errorf("pv %s: %w", c.Name, err)
	}
	if c.Type == "enum" && len(c.EnumStrings) > 16 {
		return fmt.Errorf("pv %s: at most 16 enum strings", c.Name)
	}
	if c.AsyncDelay < 0 {
		return fmt.Errorf("pv %s: negative async_delay", c.Name)
	}
	return nil
}

// alarm evaluates the alarm limits against v.
func (l *Limits) alarm(v float64) (status, severity uint16) {
	switch {
	case l.HiHi != nil && v >= *l.HiHi:
		return ca.AlarmHiHi, ca.SeverityMajor
	case l.LoLo != nil && v <= *l.LoLo:
		return ca.AlarmLoLo, ca.SeverityMajor
	case l.High != nil && v >= *l.High:
		return ca.AlarmHigh, ca.SeverityMinor
	case l.Low != nil && v <= *l.Low:
		return ca.AlarmLow, ca.SeverityMinor
	}
	return ca.AlarmNone, ca.SeverityNone
}

func (l *Limits) hasAlarms() bool {
	return l.HiHi != nil || l.High != nil || l.Low != nil || l.LoLo != nil
}

func (l *Limits) clamp(v float64) float64 {
	if l.ControlHigh == nil || l.ControlLow == nil || *l.ControlHigh <= *l.ControlLow {
		return v
	}
	return min(max(v, *l.ControlLow), *l.ControlHigh)
}

// tagged lists the set limits with the tags they are reported under.
func (l *Limits) tagged() map[gdd.AppTag]float64 {
	out := make(map[gdd.AppTag]float64)
	for tag, p := range map[gdd.AppTag]*float64{
		gdd.TagGraphicHigh:      l.DisplayHigh,
		gdd.TagGraphicLow:       l.DisplayLow,
		gdd.TagAlarmHigh:        l.HiHi,
		gdd.TagAlarmHighWarning: l.High,
		gdd.TagAlarmLowWarning:  l.Low,
		gdd.TagAlarmLow:         l.LoLo,
		gdd.TagControlHigh:      l.ControlHigh,
		gdd.TagControlLow:       l.ControlLow,
	} {
		if p != nil {
			out[tag] = *p
		}
	}
	return out
}
