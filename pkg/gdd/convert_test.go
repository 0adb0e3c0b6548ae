package gdd

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalarOf(t *testing.T, v any) *GDD {
	t.Helper()
	g, err := FromValue(TagValue, v)
	require.NoError(t, err)
	return g
}

func TestConversionMatrix(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		target Type
		want   any
	}{
		{"Float64ToInt16Truncates", 12.9, TypeInt16, int16(12)},
		{"NegativeFloatTruncatesTowardZero", -12.9, TypeInt32, int32(-12)},
		{"Float64ToInt8SaturatesHigh", 1000.0, TypeInt8, int8(127)},
		{"Float64ToInt8SaturatesLow", -1000.0, TypeInt8, int8(-128)},
		{"NegativeToUint8SaturatesAtZero", int32(-5), TypeUint8, uint8(0)},
		{"Uint32ToInt16Saturates", uint32(70000), TypeInt16, int16(32767)},
		{"InfToInt32Saturates", math.Inf(1), TypeInt32, int32(math.MaxInt32)},
		{"Float64ToFloat32Saturates", 1e300, TypeFloat32, float32(math.MaxFloat32)},
		{"Int32ToFloat64", int32(-7), TypeFloat64, -7.0},
		{"Float64ToString", 72.5, TypeString, "72.5"},
		{"Float32ToString", float32(0.1), TypeString, "0.1"},
		{"IntToFixedString", int32(42), TypeFixedString, "42"},
		{"StringToFloat64", "3.25", TypeFloat64, 3.25},
		{"StringToInt32", " 17 ", TypeInt32, int32(17)},
		{"HexStringToUint16", "0x10", TypeUint16, uint16(16)},
		{"LeadingZeroIsDecimal", "010", TypeInt32, int32(10)},
		{"FloatStringToInt", "2.75", TypeInt32, int32(2)},
		{"StringToEnumByNumber", "2", TypeEnum16, uint16(2)},
		{"NumberToEnumSaturates", 70000.0, TypeEnum16, uint16(65535)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := scalarOf(t, tt.in).ConvertTo(tt.target)
			require.NoError(t, err)
			assert.Equal(t, tt.target, out.Type())
			assert.Equal(t, tt.want, out.Value())
		})
	}
}

func TestConversionErrors(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		target Type
		err    error
	}{
		{"NaNToInteger", math.NaN(), TypeInt16, ErrNoConvert},
		{"GarbageString", "hot", TypeFloat64, ErrNoConvert},
		{"EmptyString", "", TypeInt32, ErrNoConvert},
		{"NaNStringToInteger", "NaN", TypeUint8, ErrNoConvert},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scalarOf(t, tt.in).ConvertTo(tt.target)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := NewContainer(TagAll).ConvertTo(TypeFloat64)
	assert.ErrorIs(t, err, ErrNoConvert)
	_, err = scalarOf(t, 1.0).ConvertTo(TypeContainer)
	assert.ErrorIs(t, err, ErrNoConvert)
}

func TestConversionIsDeterministic(t *testing.T) {
	inputs := []any{72.5, -0.0, math.Inf(-1), 1e-310, float32(3.4e38), int32(math.MinInt32), uint32(math.MaxUint32), "12.5e3", "0x7f"}
	targets := []Type{TypeInt8, TypeUint8, TypeInt16, TypeUint16, TypeEnum16, TypeInt32, TypeUint32, TypeFloat32, TypeFloat64, TypeFixedString, TypeString}

	for _, in := range inputs {
		for _, target := range targets {
			a, errA := scalarOf(t, in).ConvertTo(target)
			b, errB := scalarOf(t, in).ConvertTo(target)
			if errA != nil {
				assert.Equal(t, errA.Error(), errB.Error())
				continue
			}
			require.NoError(t, errB)
			switch av := a.Value().(type) {
			case float64:
				assert.Equal(t, math.Float64bits(av), math.Float64bits(b.Value().(float64)), "%v -> %s", in, target)
			case float32:
				assert.Equal(t, math.Float32bits(av), math.Float32bits(b.Value().(float32)), "%v -> %s", in, target)
			default:
				assert.Equal(t, av, b.Value(), "%v -> %s", in, target)
			}
		}
	}
}

func TestFloatRoundTripThroughString(t *testing.T) {
	for _, f := range []float64{0.1, 1.0 / 3, 6.02214076e23, -273.15} {
		s, err := scalarOf(t, f).ConvertTo(TypeString)
		require.NoError(t, err)
		back, err := s.ConvertTo(TypeFloat64)
		require.NoError(t, err)
		assert.Equal(t, f, back.Value())
	}
}

func TestFixedStringTruncation(t *testing.T) {
	long := strings.Repeat("x", 60)
	out, err := scalarOf(t, long).ConvertTo(TypeFixedString)
	require.NoError(t, err)
	assert.Len(t, out.Value().(string), MaxStringSize-1)
}

func TestEnumConversions(t *testing.T) {
	table, err := NewEnumStringTable("Off", "On", "Fault")
	require.NoError(t, err)

	t.Run("EnumToStringUsesTable", func(t *testing.T) {
		g := NewScalar(TagValue, TypeEnum16)
		g.SetEnumTable(table)
		require.NoError(t, g.Put(uint16(1)))
		s, err := g.StringValue()
		require.NoError(t, err)
		assert.Equal(t, "On", s)
	})

	t.Run("StringToEnumUsesTable", func(t *testing.T) {
		g := NewScalar(TagValue, TypeEnum16)
		g.SetEnumTable(table)
		require.NoError(t, g.Put("Fault"))
		assert.Equal(t, uint16(2), g.Value())
	})

	t.Run("IndexBeyondTableIsRangeError", func(t *testing.T) {
		g := NewScalar(TagValue, TypeEnum16)
		g.SetEnumTable(table)
		err := g.Put(uint16(5))
		assert.ErrorIs(t, err, ErrEnumIndexRange)

		src := NewScalar(TagValue, TypeEnum16)
		src.SetEnumTable(table)
		src.data = []uint16{5}
		_, err = src.ConvertTo(TypeString)
		assert.ErrorIs(t, err, ErrEnumIndexRange)

		for _, dt := range []Type{TypeFloat64, TypeFloat32, TypeInt32, TypeInt16, TypeUint8, TypeEnum16} {
			_, err = src.ConvertTo(dt)
			assert.ErrorIs(t, err, ErrEnumIndexRange, dt.String())
		}
	})

	t.Run("IndexInsideTableConvertsToNumbers", func(t *testing.T) {
		src := NewScalar(TagValue, TypeEnum16)
		src.SetEnumTable(table)
		require.NoError(t, src.Put(uint16(2)))
		out, err := src.ConvertTo(TypeFloat64)
		require.NoError(t, err)
		defer out.Unreference()
		f, err := out.Float64()
		require.NoError(t, err)
		assert.Equal(t, 2.0, f)
	})

	t.Run("UnknownStringFallsBackToNumber", func(t *testing.T) {
		g := NewScalar(TagValue, TypeEnum16)
		g.SetEnumTable(table)
		require.NoError(t, g.Put("1"))
		assert.Equal(t, uint16(1), g.Value())
		assert.ErrorIs(t, g.Put("Standby"), ErrNoConvert)
	})

	t.Run("EnumWithoutTableFormatsNumber", func(t *testing.T) {
		g := NewScalar(TagValue, TypeEnum16)
		require.NoError(t, g.Put(uint16(7)))
		s, err := g.StringValue()
		require.NoError(t, err)
		assert.Equal(t, "7", s)
	})
}

func TestConvertIntoShape(t *testing.T) {
	scalar := NewScalar(TagValue, TypeFloat64)
	array := NewArray(TagValue, TypeFloat64, 3)

	assert.ErrorIs(t, ConvertInto(scalar, array), ErrShape)
	assert.ErrorIs(t, ConvertInto(array, scalar), ErrShape)

	short := scalarOf(t, []int16{4, 5})
	require.NoError(t, ConvertInto(array, short))
	assert.Equal(t, []float64{4, 5}, array.Value())
	assert.Equal(t, 2, array.ElementCount())

	long := scalarOf(t, []int16{1, 2, 3, 4})
	assert.ErrorIs(t, ConvertInto(array, long), ErrShape)
}

func TestArrayConversionReportsElement(t *testing.T) {
	g := scalarOf(t, []string{"1", "two", "3"})
	_, err := g.ConvertTo(TypeInt32)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoConvert)
	assert.Contains(t, err.Error(), "element 1")
}
