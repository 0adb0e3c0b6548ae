package softpv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dittoca/internal/logger"
	"github.com/marmos91/dittoca/pkg/cas"
	"github.com/marmos91/dittoca/pkg/gdd"
)

// PV is an in-memory process variable defined by a PVConfig.
type PV struct {
	host  *Host
	cfg   PVConfig
	typ   gdd.Type
	count uint32
	enums *gdd.EnumStringTable

	mu       sync.Mutex
	value    *gdd.GDD
	access   cas.AccessRights
	interest bool
}

var (
	_ cas.PV                 = (*PV)(nil)
	_ cas.ChannelCreator     = (*PV)(nil)
	_ cas.AccessRightsReader = (*PV)(nil)
	_ cas.EnumTabler         = (*PV)(nil)
)

func newPV(h *Host, cfg PVConfig) (*PV, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	typ, _ := ParseType(cfg.Type)
	access, _ := ParseAccess(cfg.Access)
	p := &PV{host: h, cfg: cfg, typ: typ, count: max(cfg.Count, 1), access: access}

	if typ == gdd.TypeEnum16 && len(cfg.EnumStrings) > 0 {
		t, err := gdd.NewEnumStringTable(cfg.EnumStrings...)
		if err != nil {
			return nil, err
		}
		p.enums = t
	}

	p.value = p.newValue()
	if cfg.Value != nil {
		if err := p.value.Put(normalize(cfg.Value)); err != nil {
			_ = p.value.Unreference()
			return nil, fmt.Errorf("pv %s: bad initial value: %w", cfg.Name, err)
		}
	}
	p.stamp(p.value)
	return p, nil
}

// normalize turns decoded config lists into slices gdd.FromValue accepts.
func normalize(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	strs := make([]string, 0, len(list))
	nums := make([]float64, 0, len(list))
	for _, e := range list {
		switch x := e.(type) {
		case string:
			strs = append(strs, x)
		case int:
			nums = append(nums, float64(x))
		case int64:
			nums = append(nums, float64(x))
		case float64:
			nums = append(nums, x)
		}
	}
	if len(strs) > 0 {
		return strs
	}
	return nums
}

func (p *PV) newValue() *gdd.GDD {
	var v *gdd.GDD
	if p.count > 1 {
		v = gdd.NewArray(gdd.TagValue, p.typ, p.count)
	} else {
		v = gdd.NewScalar(gdd.TagValue, p.typ)
	}
	v.SetEnumTable(p.enums)
	return v
}

// stamp sets the time stamp and evaluates alarms on a fresh value.
func (p *PV) stamp(v *gdd.GDD) {
	v.SetTimeStamp(gdd.Now())
	if !v.IsScalar() || !p.typ.IsNumeric() || p.typ == gdd.TypeEnum16 {
		return
	}
	if f, err := v.Float64(); err == nil && p.cfg.Limits.hasAlarms() {
		v.SetStatSevr(p.cfg.Limits.alarm(f))
	}
}

func (p *PV) Name() string                      { return p.cfg.Name }
func (p *PV) BestExternalType() gdd.Type        { return p.typ }
func (p *PV) MaxElements() uint32               { return p.count }
func (p *PV) EnumStrings() *gdd.EnumStringTable { return p.enums }

// Snapshot returns the current value with its attributes in a container
// (reference count 1, owned by the caller).
func (p *PV) Snapshot() *gdd.GDD {
	p.mu.Lock()
	v := p.value.Clone()
	p.mu.Unlock()
	return p.attach(v)
}

// Value returns a copy of the current value leaf.
func (p *PV) Value() *gdd.GDD {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value.Clone()
}

func (p *PV) attach(v *gdd.GDD) *gdd.GDD {
	c := gdd.NewContainer(gdd.TagAll, v)
	if p.cfg.Units != "" {
		u := gdd.NewScalar(gdd.TagUnits, gdd.TypeString)
		_ = u.Put(p.cfg.Units)
		_ = c.Add(u)
	}
	if p.typ.IsFloat() {
		prec := gdd.NewScalar(gdd.TagPrecision, gdd.TypeInt16)
		_ = prec.Put(p.cfg.Precision)
		_ = c.Add(prec)
	}
	for tag, f := range p.cfg.Limits.tagged() {
		l := gdd.NewScalar(tag, gdd.TypeFloat64)
		_ = l.Put(f)
		_ = c.Add(l)
	}
	return c
}

func (p *PV) Read(ctx *cas.Context, proto *gdd.GDD) error {
	if p.cfg.AsyncDelay > 0 {
		op, err := ctx.AsyncRead()
		if err == nil {
			time.AfterFunc(p.cfg.AsyncDelay, func() {
				snap := p.Snapshot()
				defer snap.Unreference()
				if err := op.Complete(snap, nil); err != nil {
					logger.Debug("Delayed read not delivered", logger.KeyChannel, p.Name(), logger.KeyError, err)
				}
			})
			return cas.ErrAsyncCompletion
		}
	}
	snap := p.Snapshot()
	defer snap.Unreference()
	return gdd.SmartCopy(proto, snap)
}

func (p *PV) Write(ctx *cas.Context, value *gdd.GDD) error {
	if p.cfg.AsyncDelay > 0 {
		op, err := ctx.AsyncWrite()
		if err == nil {
			if err := value.Reference(); err != nil {
				return err
			}
			base := context.WithoutCancel(ctx.Context())
			time.AfterFunc(p.cfg.AsyncDelay, func() {
				defer value.Unreference()
				werr := p.put(base, value)
				if err := op.Complete(nil, werr); err != nil {
					logger.Debug("Delayed write not delivered", logger.KeyChannel, p.Name(), logger.KeyError, err)
				}
			})
			return cas.ErrAsyncCompletion
		}
	}
	return p.put(ctx.Context(), value)
}

// put stores in (a leaf or a container with a value child) and posts the
// result to monitors.
func (p *PV) put(ctx context.Context, in *gdd.GDD) error {
	next := p.newValue()
	if err := gdd.SmartCopy(next, in); err != nil {
		_ = next.Unreference()
		return err
	}
	if next.IsScalar() && p.typ.IsNumeric() && p.typ != gdd.TypeEnum16 {
		if f, err := next.Float64(); err == nil {
			if c := p.cfg.Limits.clamp(f); c != f {
				_ = next.Put(c)
			}
		}
	}
	next.SetStatSevr(0, 0)
	p.stamp(next)
	p.replace(ctx, next)
	return nil
}

// replace installs next as the current value, taking over its reference.
func (p *PV) replace(ctx context.Context, next *gdd.GDD) {
	logged := next.Value()
	p.mu.Lock()
	old := p.value
	p.value = next
	p.mu.Unlock()

	mask := cas.EventValue | cas.EventLog
	if old.Status() != next.Status() || old.Severity() != next.Severity() {
		mask |= cas.EventAlarm
	}
	_ = old.Unreference()

	p.host.post(p, mask)
	if p.cfg.Autosave {
		p.host.markDirty(p)
	}
	logger.DebugCtx(ctx, "PV written", logger.KeyChannel, p.Name(), "value", logged)
}

func (p *PV) Interest(on bool) error {
	p.mu.Lock()
	p.interest = on
	p.mu.Unlock()
	logger.Debug("PV interest changed", logger.KeyChannel, p.Name(), "interest", on)
	return nil
}

// HasInterest reports whether any client monitors the PV.
func (p *PV) HasInterest() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interest
}

func (p *PV) CreateChannel(ctx *cas.Context, info cas.ChannelInfo) (cas.AccessRights, error) {
	return p.AccessRights(info), nil
}

func (p *PV) AccessRights(info cas.ChannelInfo) cas.AccessRights {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.access
}

// setAccess reports whether the rights changed.
func (p *PV) setAccess(a cas.AccessRights) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.access == a {
		return false
	}
	p.access = a
	return true
}
