package ca

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoca/pkg/gdd"
)

func TestDBRSizes(t *testing.T) {
	tests := []struct {
		t    uint16
		want int
	}{
		{DBRString, 40}, {DBRShort, 2}, {DBRFloat, 4}, {DBREnum, 2}, {DBRChar, 1}, {DBRLong, 4}, {DBRDouble, 8},
		{PromoteDBR(DBRString, FamilySts), 44}, {PromoteDBR(DBRShort, FamilySts), 6},
		{PromoteDBR(DBRFloat, FamilySts), 8}, {PromoteDBR(DBREnum, FamilySts), 6},
		{PromoteDBR(DBRChar, FamilySts), 6}, {PromoteDBR(DBRLong, FamilySts), 8},
		{PromoteDBR(DBRDouble, FamilySts), 16},
		{PromoteDBR(DBRString, FamilyTime), 52}, {PromoteDBR(DBRShort, FamilyTime), 16},
		{PromoteDBR(DBRFloat, FamilyTime), 16}, {PromoteDBR(DBREnum, FamilyTime), 16},
		{PromoteDBR(DBRChar, FamilyTime), 16}, {PromoteDBR(DBRLong, FamilyTime), 16},
		{PromoteDBR(DBRDouble, FamilyTime), 24},
		{PromoteDBR(DBRString, FamilyGr), 44}, {PromoteDBR(DBRShort, FamilyGr), 26},
		{PromoteDBR(DBRFloat, FamilyGr), 44}, {PromoteDBR(DBREnum, FamilyGr), 424},
		{PromoteDBR(DBRChar, FamilyGr), 20}, {PromoteDBR(DBRLong, FamilyGr), 40},
		{PromoteDBR(DBRDouble, FamilyGr), 72},
		{PromoteDBR(DBRShort, FamilyCtrl), 30}, {PromoteDBR(DBRFloat, FamilyCtrl), 52},
		{PromoteDBR(DBREnum, FamilyCtrl), 424}, {PromoteDBR(DBRChar, FamilyCtrl), 22},
		{PromoteDBR(DBRLong, FamilyCtrl), 48}, {PromoteDBR(DBRDouble, FamilyCtrl), 88},
		{DBRPutAckT, 2}, {DBRPutAckS, 2}, {DBRStsAckString, 48}, {DBRClassName, 40},
	}
	for _, tt := range tests {
		t.Run(DBRName(tt.t), func(t *testing.T) {
			assert.Equal(t, tt.want, DBRSize(tt.t, 1))
		})
	}
	assert.Equal(t, 16+9*8, DBRSize(PromoteDBR(DBRDouble, FamilySts), 10))
	assert.Equal(t, 0, DBRSize(99, 1))
}

func TestDBRNames(t *testing.T) {
	assert.Equal(t, "DBR_CTRL_DOUBLE", DBRName(34))
	assert.Equal(t, "DBR_TIME_ENUM", DBRName(17))
	assert.Equal(t, "DBR_STSACK_STRING", DBRName(DBRStsAckString))

	for ty := uint16(0); ty <= lastDBR; ty++ {
		parsed, ok := ParseDBRName(DBRName(ty))
		require.True(t, ok)
		assert.Equal(t, ty, parsed)
	}
	parsed, ok := ParseDBRName("double")
	assert.True(t, ok)
	assert.Equal(t, DBRDouble, parsed)
	_, ok = ParseDBRName("DBR_QUAD")
	assert.False(t, ok)
}

func TestNativeDBR(t *testing.T) {
	assert.Equal(t, DBRDouble, NativeDBR(gdd.TypeFloat64))
	assert.Equal(t, DBRLong, NativeDBR(gdd.TypeUint16))
	assert.Equal(t, DBREnum, NativeDBR(gdd.TypeEnum16))
	assert.Equal(t, DBRString, NativeDBR(gdd.TypeString))
	assert.Equal(t, DBRChar, NativeDBR(gdd.TypeInt8))
}

func ctrlDoubleSource(t *testing.T) *gdd.GDD {
	t.Helper()
	value := gdd.NewScalar(gdd.TagValue, gdd.TypeFloat64)
	require.NoError(t, value.Put(72.5))
	value.SetStatSevr(AlarmHigh, SeverityMinor)
	value.SetTimeStamp(gdd.TimeStamp{Sec: 1000, Nsec: 250})

	c := gdd.NewContainer(gdd.TagAll, value)
	add := func(tag gdd.AppTag, v any) {
		g, err := gdd.FromValue(tag, v)
		require.NoError(t, err)
		require.NoError(t, c.Add(g))
	}
	add(gdd.TagUnits, "degF")
	add(gdd.TagPrecision, int16(2))
	add(gdd.TagGraphicHigh, 200.0)
	add(gdd.TagGraphicLow, -50.0)
	add(gdd.TagAlarmHigh, 100.0)
	add(gdd.TagAlarmHighWarning, 90.0)
	add(gdd.TagAlarmLowWarning, 10.0)
	add(gdd.TagAlarmLow, 0.0)
	add(gdd.TagControlHigh, 150.0)
	add(gdd.TagControlLow, -20.0)
	return c
}

func TestEncodeCtrlDouble(t *testing.T) {
	wire, err := EncodeDBR(PromoteDBR(DBRDouble, FamilyCtrl), 1, ctrlDoubleSource(t))
	require.NoError(t, err)
	require.Len(t, wire, 88)

	assert.Equal(t, AlarmHigh, binary.BigEndian.Uint16(wire[0:]))
	assert.Equal(t, SeverityMinor, binary.BigEndian.Uint16(wire[2:]))
	assert.Equal(t, uint16(2), binary.BigEndian.Uint16(wire[4:]))
	assert.Equal(t, "degF", CString(wire[8:16]))

	limits := make([]float64, 8)
	for i := range limits {
		limits[i] = math.Float64frombits(binary.BigEndian.Uint64(wire[16+i*8:]))
	}
	assert.Equal(t, []float64{200, -50, 100, 90, 10, 0, 150, -20}, limits)
	assert.Equal(t, 72.5, math.Float64frombits(binary.BigEndian.Uint64(wire[80:])))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := ctrlDoubleSource(t)
	for ty := uint16(0); ty <= lastDBR; ty++ {
		if ty == DBRPutAckT || ty == DBRPutAckS || ty == DBRClassName || ty == DBRStsAckString {
			continue
		}
		if _, base := DBRFamily(ty); base == DBREnum {
			continue
		}
		t.Run(DBRName(ty), func(t *testing.T) {
			wire, err := EncodeDBR(ty, 1, src)
			require.NoError(t, err)
			require.Len(t, wire, DBRSize(ty, 1))

			back, err := DecodeDBR(ty, 1, wire)
			require.NoError(t, err)
			value := back.Find(gdd.TagValue)
			require.NotNil(t, value)

			s, err := value.StringValue()
			require.NoError(t, err)
			_, base := DBRFamily(ty)
			switch base {
			case DBRShort, DBRLong, DBRChar:
				assert.Equal(t, "72", s)
			default:
				assert.Equal(t, "72.5", s)
			}

			if f, _ := DBRFamily(ty); f != FamilyPlain {
				assert.Equal(t, AlarmHigh, back.Status())
				assert.Equal(t, SeverityMinor, back.Severity())
			}
			if f, _ := DBRFamily(ty); f == FamilyTime {
				assert.Equal(t, gdd.TimeStamp{Sec: 1000, Nsec: 250}, back.TimeStamp())
			}
		})
	}
}

func TestEncodeEnumWithStrings(t *testing.T) {
	table, err := gdd.NewEnumStringTable("Off", "On", "Fault")
	require.NoError(t, err)
	value := gdd.NewScalar(gdd.TagValue, gdd.TypeEnum16)
	value.SetEnumTable(table)
	require.NoError(t, value.Put("On"))

	wire, err := EncodeDBR(PromoteDBR(DBREnum, FamilyGr), 1, value)
	require.NoError(t, err)
	require.Len(t, wire, 424)
	assert.Equal(t, uint16(3), binary.BigEndian.Uint16(wire[4:]))
	assert.Equal(t, "Off", CString(wire[6:32]))
	assert.Equal(t, "Fault", CString(wire[6+2*26:6+3*26]))
	assert.Equal(t, uint16(1), binary.BigEndian.Uint16(wire[422:]))

	back, err := DecodeDBR(PromoteDBR(DBREnum, FamilyGr), 1, wire)
	require.NoError(t, err)
	s, err := back.Find(gdd.TagValue).StringValue()
	require.NoError(t, err)
	assert.Equal(t, "On", s)

	str, err := EncodeDBR(DBRString, 1, value)
	require.NoError(t, err)
	assert.Equal(t, "On", CString(str))
}

func TestEncodeArrayZeroFillsAndTruncates(t *testing.T) {
	value, err := gdd.FromValue(gdd.TagValue, []float64{1, 2, 3})
	require.NoError(t, err)

	wire, err := EncodeDBR(DBRShort, 5, value)
	require.NoError(t, err)
	require.Len(t, wire, 10)
	assert.Equal(t, []byte{0, 1, 0, 2, 0, 3, 0, 0, 0, 0}, wire)

	wire, err = EncodeDBR(DBRLong, 2, value)
	require.NoError(t, err)
	require.Len(t, wire, 8)
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(wire[4:]))
}

func TestStsCharPadding(t *testing.T) {
	value, err := gdd.FromValue(gdd.TagValue, []uint8{7, 8})
	require.NoError(t, err)
	value.SetStatSevr(AlarmLow, SeverityMajor)

	wire, err := EncodeDBR(PromoteDBR(DBRChar, FamilySts), 2, value)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, byte(AlarmLow), 0, byte(SeverityMajor), 0, 7, 8}, wire)
}

func TestEncodeErrors(t *testing.T) {
	value, err := gdd.FromValue(gdd.TagValue, math.NaN())
	require.NoError(t, err)

	_, err = EncodeDBR(DBRLong, 1, value)
	assert.ErrorIs(t, err, gdd.ErrNoConvert)

	_, err = EncodeDBR(99, 1, value)
	assert.ErrorIs(t, err, ErrBadDBRType)

	_, err = EncodeDBR(DBRPutAckT, 1, value)
	assert.ErrorIs(t, err, ErrBadDBRType)

	_, err = DecodeDBR(DBRDouble, 2, make([]byte, 8))
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestDecodePutAck(t *testing.T) {
	g, err := DecodeDBR(DBRPutAckS, 1, []byte{0, 2})
	require.NoError(t, err)
	assert.Equal(t, gdd.TagAckSeverity, g.Tag())
	v, err := g.Int32()
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestPrototypes(t *testing.T) {
	table := gdd.NewAppTable()
	_, err := NewPrototype(table, DBRDouble, 1)
	assert.ErrorIs(t, err, gdd.ErrUnknownTag)

	RegisterPrototypes(table)

	proto, err := NewPrototype(table, PromoteDBR(DBRDouble, FamilyCtrl), 1)
	require.NoError(t, err)
	require.NotNil(t, proto.Find(gdd.TagControlLow))
	require.NotNil(t, proto.Find(gdd.TagPrecision))
	assert.Nil(t, proto.Find(gdd.TagEnums))

	require.NoError(t, gdd.SmartCopy(proto, ctrlDoubleSource(t)))
	wire, err := EncodeDBR(PromoteDBR(DBRDouble, FamilyCtrl), 1, proto)
	require.NoError(t, err)
	assert.Equal(t, "degF", CString(wire[8:16]))
	assert.Equal(t, 72.5, math.Float64frombits(binary.BigEndian.Uint64(wire[80:])))

	arr, err := NewPrototype(table, PromoteDBR(DBRLong, FamilyTime), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, arr.Find(gdd.TagValue).ElementCount())

	_, err = NewPrototype(table, 120, 1)
	assert.ErrorIs(t, err, ErrBadDBRType)

	cls, err := NewPrototype(table, DBRClassName, 1)
	require.NoError(t, err)
	assert.Nil(t, cls.Find(gdd.TagValue))
	assert.NotNil(t, cls.Find(gdd.TagClassName))
}
