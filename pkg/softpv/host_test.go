package softpv

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoca/internal/protocol/ca"
	"github.com/marmos91/dittoca/pkg/cas"
	"github.com/marmos91/dittoca/pkg/gdd"
	"github.com/marmos91/dittoca/pkg/softpv/autosave"
)

type postedEvent struct {
	pv    string
	mask  cas.EventMask
	value any
}

type recorder struct {
	mu     sync.Mutex
	events []postedEvent
	rights []string
}

func (r *recorder) PostEvent(pv cas.PV, mask cas.EventMask, value *gdd.GDD) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, postedEvent{pv: pv.Name(), mask: mask, value: value.Find(gdd.TagValue).Value()})
	return nil
}

func (r *recorder) PostAccessRightsEvent(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rights = append(r.rights, name)
	return nil
}

func (r *recorder) last(t *testing.T) postedEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.events)
	return r.events[len(r.events)-1]
}

func ptr(f float64) *float64 { return &f }

func newTestHost(t *testing.T, cfg Config, store *autosave.Store) (*Host, *recorder) {
	t.Helper()
	h, err := New(context.Background(), cfg, store)
	require.NoError(t, err)
	rec := &recorder{}
	h.Bind(rec)
	return h, rec
}

func TestNewBuildsPVs(t *testing.T) {
	h, _ := newTestHost(t, Config{PVs: []PVConfig{
		{Name: "TEMP1", Type: "double", Value: 72.5, Units: "degF", Precision: 2},
		{Name: "MODE", Type: "enum", EnumStrings: []string{"OFF", "ON"}, Value: "ON"},
		{Name: "WAVE", Type: "long", Count: 4, Value: []any{1, 2, 3}},
		{Name: "LABEL", Type: "string", Value: "hello", Access: "ro"},
	}}, nil)

	assert.Equal(t, []string{"LABEL", "MODE", "TEMP1", "WAVE"}, h.Names())

	temp, ok := h.PV("TEMP1")
	require.True(t, ok)
	assert.Equal(t, gdd.TypeFloat64, temp.BestExternalType())
	assert.Equal(t, uint32(1), temp.MaxElements())
	v := temp.Value()
	f, err := v.Float64()
	require.NoError(t, err)
	assert.Equal(t, 72.5, f)

	mode, _ := h.PV("MODE")
	e, err := mode.Value().Enum()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), e)
	require.NotNil(t, mode.EnumStrings())
	assert.Equal(t, []string{"OFF", "ON"}, mode.EnumStrings().Strings())

	wave, _ := h.PV("WAVE")
	assert.Equal(t, uint32(4), wave.MaxElements())
	assert.Equal(t, []int32{1, 2, 3}, wave.Value().Value())

	label, _ := h.PV("LABEL")
	assert.Equal(t, cas.AccessRead, label.AccessRights(cas.ChannelInfo{}))
	assert.Equal(t, cas.AccessReadWrite, temp.AccessRights(cas.ChannelInfo{}))
}

func TestNewRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		pvs  []PVConfig
	}{
		{"unknown type", []PVConfig{{Name: "A", Type: "quad"}}},
		{"empty name", []PVConfig{{Type: "double"}}},
		{"duplicate", []PVConfig{{Name: "A", Type: "double"}, {Name: "A", Type: "long"}}},
		{"bad access", []PVConfig{{Name: "A", Type: "double", Access: "admin"}}},
		{"bad value", []PVConfig{{Name: "A", Type: "double", Value: "warm"}}},
		{"unknown state", []PVConfig{{Name: "A", Type: "enum", EnumStrings: []string{"OFF"}, Value: "ON"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(context.Background(), Config{PVs: tt.pvs}, nil)
			assert.Error(t, err)
		})
	}
}

func TestExistAndAttach(t *testing.T) {
	h, _ := newTestHost(t, Config{PVs: []PVConfig{{Name: "TEMP1", Type: "double"}}}, nil)

	ret, err := h.ExistTest(nil, "TEMP1")
	require.NoError(t, err)
	assert.Equal(t, cas.ExistHere, ret)

	ret, err = h.ExistTest(nil, "TEMP2")
	require.NoError(t, err)
	assert.Equal(t, cas.ExistNotHere, ret)

	pv, err := h.Attach(nil, "TEMP1")
	require.NoError(t, err)
	assert.Equal(t, "TEMP1", pv.Name())

	_, err = h.Attach(nil, "TEMP2")
	assert.ErrorIs(t, err, cas.ErrNotFound)
}

func TestPutPostsEvents(t *testing.T) {
	h, rec := newTestHost(t, Config{PVs: []PVConfig{{Name: "TEMP1", Type: "double", Value: 1.0}}}, nil)
	ctx := context.Background()

	require.NoError(t, h.Put(ctx, "TEMP1", 80.0))
	ev := rec.last(t)
	assert.Equal(t, "TEMP1", ev.pv)
	assert.Equal(t, cas.EventValue|cas.EventLog, ev.mask)
	assert.Equal(t, 80.0, ev.value)

	assert.ErrorIs(t, h.Put(ctx, "NOPE", 1.0), cas.ErrNotFound)
	assert.Error(t, h.Put(ctx, "TEMP1", "warm"))
}

func TestAlarmLimits(t *testing.T) {
	limits := Limits{HiHi: ptr(100), High: ptr(80), Low: ptr(10), LoLo: ptr(0)}
	h, rec := newTestHost(t, Config{PVs: []PVConfig{
		{Name: "TEMP1", Type: "double", Value: 50.0, Limits: limits},
	}}, nil)
	ctx := context.Background()
	pv, _ := h.PV("TEMP1")

	assert.Equal(t, ca.SeverityNone, pv.Value().Severity())

	require.NoError(t, h.Put(ctx, "TEMP1", 85.0))
	v := pv.Value()
	assert.Equal(t, ca.AlarmHigh, v.Status())
	assert.Equal(t, ca.SeverityMinor, v.Severity())
	assert.Equal(t, cas.EventValue|cas.EventLog|cas.EventAlarm, rec.last(t).mask)

	require.NoError(t, h.Put(ctx, "TEMP1", 86.0))
	assert.Equal(t, cas.EventValue|cas.EventLog, rec.last(t).mask, "same alarm state")

	require.NoError(t, h.Put(ctx, "TEMP1", 120.0))
	v = pv.Value()
	assert.Equal(t, ca.AlarmHiHi, v.Status())
	assert.Equal(t, ca.SeverityMajor, v.Severity())

	require.NoError(t, h.Put(ctx, "TEMP1", -5.0))
	assert.Equal(t, ca.AlarmLoLo, pv.Value().Status())

	require.NoError(t, h.Put(ctx, "TEMP1", 5.0))
	assert.Equal(t, ca.AlarmLow, pv.Value().Status())

	require.NoError(t, h.Put(ctx, "TEMP1", 50.0))
	assert.Equal(t, ca.AlarmNone, pv.Value().Status())
	assert.Equal(t, cas.EventValue|cas.EventLog|cas.EventAlarm, rec.last(t).mask)
}

func TestControlLimitsClamp(t *testing.T) {
	h, _ := newTestHost(t, Config{PVs: []PVConfig{
		{Name: "SP", Type: "double", Limits: Limits{ControlLow: ptr(0), ControlHigh: ptr(50)}},
	}}, nil)
	ctx := context.Background()
	pv, _ := h.PV("SP")

	require.NoError(t, h.Put(ctx, "SP", 70.0))
	f, _ := pv.Value().Float64()
	assert.Equal(t, 50.0, f)

	require.NoError(t, h.Put(ctx, "SP", -3.0))
	f, _ = pv.Value().Float64()
	assert.Equal(t, 0.0, f)

	require.NoError(t, h.Put(ctx, "SP", 12.5))
	f, _ = pv.Value().Float64()
	assert.Equal(t, 12.5, f)
}

func TestEnumAndArrayWrites(t *testing.T) {
	h, _ := newTestHost(t, Config{PVs: []PVConfig{
		{Name: "MODE", Type: "enum", EnumStrings: []string{"OFF", "ON"}},
		{Name: "WAVE", Type: "double", Count: 4},
	}}, nil)
	ctx := context.Background()

	require.NoError(t, h.Put(ctx, "MODE", "ON"))
	mode, _ := h.PV("MODE")
	e, err := mode.Value().Enum()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), e)
	assert.Error(t, h.Put(ctx, "MODE", "STANDBY"))

	require.NoError(t, h.Put(ctx, "WAVE", []float64{1, 2, 3, 4, 5}))
	wave, _ := h.PV("WAVE")
	assert.Equal(t, []float64{1, 2, 3, 4}, wave.Value().Value())

	require.NoError(t, h.Put(ctx, "WAVE", []float64{9, 8}))
	assert.Equal(t, []float64{9, 8}, wave.Value().Value())

	require.NoError(t, h.Put(ctx, "WAVE", []float64{1, 2, 3, 4}))
	assert.Equal(t, []float64{1, 2, 3, 4}, wave.Value().Value(), "a short write does not shrink the PV")
}

func TestReadFillsControlPrototype(t *testing.T) {
	h, _ := newTestHost(t, Config{PVs: []PVConfig{{
		Name: "TEMP1", Type: "double", Value: 72.5, Units: "degF", Precision: 3,
		Limits: Limits{DisplayHigh: ptr(200), DisplayLow: ptr(-20), HiHi: ptr(150)},
	}}}, nil)
	pv, _ := h.PV("TEMP1")

	table := gdd.NewAppTable()
	ca.RegisterPrototypes(table)
	proto, err := ca.NewPrototype(table, ca.PromoteDBR(ca.DBRDouble, ca.FamilyCtrl), 1)
	require.NoError(t, err)
	defer proto.Unreference()

	require.NoError(t, pv.Read(nil, proto))

	f, err := proto.Find(gdd.TagValue).Float64()
	require.NoError(t, err)
	assert.Equal(t, 72.5, f)
	units, err := proto.Find(gdd.TagUnits).StringValue()
	require.NoError(t, err)
	assert.Equal(t, "degF", units)
	prec, err := proto.Find(gdd.TagPrecision).Int32()
	require.NoError(t, err)
	assert.Equal(t, int32(3), prec)
	hi, err := proto.Find(gdd.TagGraphicHigh).Float64()
	require.NoError(t, err)
	assert.Equal(t, 200.0, hi)
	hihi, err := proto.Find(gdd.TagAlarmHigh).Float64()
	require.NoError(t, err)
	assert.Equal(t, 150.0, hihi)

	_, err = ca.EncodeDBR(ca.PromoteDBR(ca.DBRDouble, ca.FamilyCtrl), 1, proto)
	require.NoError(t, err)
}

func TestInterest(t *testing.T) {
	h, _ := newTestHost(t, Config{PVs: []PVConfig{{Name: "TEMP1", Type: "double"}}}, nil)
	pv, _ := h.PV("TEMP1")

	assert.False(t, pv.HasInterest())
	require.NoError(t, pv.Interest(true))
	assert.True(t, pv.HasInterest())
	require.NoError(t, pv.Interest(false))
	assert.False(t, pv.HasInterest())
}

func TestAutosaveRestore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	cfg := Config{PVs: []PVConfig{
		{Name: "SP", Type: "double", Value: 1.0, Autosave: true},
		{Name: "RAW", Type: "double", Value: 1.0},
	}}

	store, err := autosave.Open(autosave.Config{Path: dir}, nil)
	require.NoError(t, err)
	h, _ := newTestHost(t, cfg, store)
	require.NoError(t, h.Put(ctx, "SP", 42.0))
	require.NoError(t, h.Put(ctx, "RAW", 42.0))
	require.NoError(t, h.Flush(ctx))

	_, found, err := store.Load(ctx, "RAW")
	require.NoError(t, err)
	assert.False(t, found, "PVs without autosave are not stored")
	require.NoError(t, store.Close())

	store, err = autosave.Open(autosave.Config{Path: dir}, nil)
	require.NoError(t, err)
	defer store.Close()
	h, _ = newTestHost(t, cfg, store)

	sp, _ := h.PV("SP")
	f, _ := sp.Value().Float64()
	assert.Equal(t, 42.0, f)
	raw, _ := h.PV("RAW")
	f, _ = raw.Value().Float64()
	assert.Equal(t, 1.0, f)
}

func TestRunFlushesInBackground(t *testing.T) {
	store, err := autosave.Open(autosave.Config{Path: t.TempDir()}, nil)
	require.NoError(t, err)
	defer store.Close()

	h, _ := newTestHost(t, Config{PVs: []PVConfig{{Name: "SP", Type: "double", Autosave: true}}}, store)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.NoError(t, h.Put(context.Background(), "SP", 7.0))
	require.Eventually(t, func() bool {
		_, found, err := store.Load(context.Background(), "SP")
		return err == nil && found
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func writeAccessFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestAccessFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.yaml")
	writeAccessFile(t, path, "pvs:\n  SP: ro\n")

	h, rec := newTestHost(t, Config{
		PVs: []PVConfig{
			{Name: "SP", Type: "double"},
			{Name: "TEMP1", Type: "double", Access: "ro"},
		},
		AccessFile: path,
	}, nil)
	sp, _ := h.PV("SP")
	temp, _ := h.PV("TEMP1")
	assert.Equal(t, cas.AccessRead, sp.AccessRights(cas.ChannelInfo{}))
	assert.Equal(t, cas.AccessRead, temp.AccessRights(cas.ChannelInfo{}))

	writeAccessFile(t, path, "default: none\npvs:\n  SP: rw\n")
	changed, err := h.ReloadAccess()
	require.NoError(t, err)
	assert.Equal(t, []string{"SP", "TEMP1"}, changed)
	assert.Equal(t, cas.AccessReadWrite, sp.AccessRights(cas.ChannelInfo{}))
	assert.Equal(t, cas.AccessNone, temp.AccessRights(cas.ChannelInfo{}))
	assert.Equal(t, []string{"SP", "TEMP1"}, rec.rights)

	writeAccessFile(t, path, "pvs: [broken")
	_, err = h.ReloadAccess()
	assert.Error(t, err)
	assert.Equal(t, cas.AccessReadWrite, sp.AccessRights(cas.ChannelInfo{}), "bad file keeps current rights")

	require.NoError(t, os.Remove(path))
	changed, err = h.ReloadAccess()
	require.NoError(t, err)
	assert.Equal(t, []string{"TEMP1"}, changed, "missing file restores configured rights")
	assert.Equal(t, cas.AccessRead, temp.AccessRights(cas.ChannelInfo{}))
}

func TestAccessFileWatched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.yaml")
	writeAccessFile(t, path, "pvs:\n  SP: rw\n")

	h, rec := newTestHost(t, Config{
		PVs:        []PVConfig{{Name: "SP", Type: "double"}},
		AccessFile: path,
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	sp, _ := h.PV("SP")
	require.Eventually(t, func() bool {
		writeAccessFile(t, path, "pvs:\n  SP: ro\n")
		return sp.AccessRights(cas.ChannelInfo{}) == cas.AccessRead
	}, 5*time.Second, 50*time.Millisecond)

	rec.mu.Lock()
	assert.Contains(t, rec.rights, "SP")
	rec.mu.Unlock()

	cancel()
	require.NoError(t, <-done)
}
