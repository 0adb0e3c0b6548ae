package gdd

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceCounting(t *testing.T) {
	t.Run("StorageReleasedExactlyAtZero", func(t *testing.T) {
		g := NewScalar(TagValue, TypeFloat64)
		released := 0
		g.SetDestructor(func(*GDD) { released++ })

		require.NoError(t, g.Reference())
		require.NoError(t, g.Reference())
		assert.EqualValues(t, 3, g.RefCount())

		require.NoError(t, g.Unreference())
		require.NoError(t, g.Unreference())
		assert.Equal(t, 0, released)
		assert.False(t, g.Released())

		require.NoError(t, g.Unreference())
		assert.Equal(t, 1, released)
		assert.True(t, g.Released())
		assert.Nil(t, g.Data())
	})

	t.Run("UnreferenceAfterReleaseIsError", func(t *testing.T) {
		g := NewScalar(TagValue, TypeInt32)
		released := 0
		g.SetDestructor(func(*GDD) { released++ })

		require.NoError(t, g.Unreference())
		assert.ErrorIs(t, g.Unreference(), ErrNotAllocated)
		assert.ErrorIs(t, g.Reference(), ErrNotAllocated)
		assert.Equal(t, 1, released)
		assert.EqualValues(t, 0, g.RefCount())
	})

	t.Run("ContainerReleasesChildren", func(t *testing.T) {
		v := NewScalar(TagValue, TypeFloat64)
		u := NewScalar(TagUnits, TypeFixedString)
		c := NewContainer(TagAll, v, u)

		require.NoError(t, v.Reference())
		require.NoError(t, c.Unreference())

		assert.True(t, c.Released())
		assert.True(t, u.Released())
		assert.False(t, v.Released(), "extra reference keeps child alive")
		require.NoError(t, v.Unreference())
		assert.True(t, v.Released())
	})

	t.Run("ConcurrentReferences", func(t *testing.T) {
		g := NewScalar(TagValue, TypeFloat64)
		released := 0
		g.SetDestructor(func(*GDD) { released++ })

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			require.NoError(t, g.Reference())
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = g.Unreference()
			}()
		}
		wg.Wait()

		assert.Equal(t, 0, released)
		require.NoError(t, g.Unreference())
		assert.Equal(t, 1, released)
	})
}

func TestShapes(t *testing.T) {
	s := NewScalar(TagValue, TypeFloat64)
	assert.True(t, s.IsScalar())
	assert.Equal(t, 0, s.Dimension())
	assert.Equal(t, 1, s.ElementCount())

	a := NewArray(TagValue, TypeInt16, 8)
	assert.False(t, a.IsScalar())
	assert.Equal(t, 1, a.Dimension())
	assert.Equal(t, 8, a.ElementCount())
	assert.Equal(t, []Bounds{{Count: 8}}, a.Bounds())

	c := NewContainer(TagAll, s, a)
	assert.True(t, c.IsContainer())
	assert.False(t, c.IsScalar())
	assert.Equal(t, 2, c.ElementCount())
	assert.Same(t, a, c.Find(TagValue).Find(TagValue))
	assert.Nil(t, c.Find(TagUnits))
	assert.ErrorIs(t, s.Add(a), ErrNotContainer)
}

func TestPutAndGet(t *testing.T) {
	g := NewScalar(TagValue, TypeFloat64)
	require.NoError(t, g.Put(72.5))

	f, err := g.Float64()
	require.NoError(t, err)
	assert.Equal(t, 72.5, f)

	i, err := g.Int32()
	require.NoError(t, err)
	assert.EqualValues(t, 72, i)

	s, err := g.StringValue()
	require.NoError(t, err)
	assert.Equal(t, "72.5", s)

	assert.ErrorIs(t, g.Put([]float64{1, 2}), ErrShape)

	arr := NewArray(TagValue, TypeInt32, 4)
	require.NoError(t, arr.Put([]float64{1.9, -2.9, 3}))
	assert.Equal(t, []int32{1, -2, 3}, arr.Value())
	assert.ErrorIs(t, arr.Put([]int32{1, 2, 3, 4, 5}), ErrShape)
}

func TestFromSliceRejectsWrongStorage(t *testing.T) {
	_, err := FromSlice(TagValue, TypeFloat64, []int32{1})
	assert.ErrorIs(t, err, ErrBadType)

	g, err := FromSlice(TagValue, TypeEnum16, []uint16{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 2, g.ElementCount())
}

func TestCloneIsIndependent(t *testing.T) {
	g := NewArray(TagValue, TypeFloat64, 2)
	require.NoError(t, g.Put([]float64{1, 2}))
	g.SetStatSevr(3, 2)
	g.SetTimeStamp(TimeStamp{Sec: 10, Nsec: 20})

	c := g.Clone()
	require.NoError(t, c.Put([]float64{5, 6}))

	assert.Equal(t, []float64{1, 2}, g.Value())
	assert.Equal(t, []float64{5, 6}, c.Value())
	assert.EqualValues(t, 3, c.Status())
	assert.EqualValues(t, 2, c.Severity())
	assert.Equal(t, TimeStamp{Sec: 10, Nsec: 20}, c.TimeStamp())
	assert.EqualValues(t, 1, c.RefCount())
}

func TestResize(t *testing.T) {
	g := NewScalar(TagValue, TypeFloat64)
	require.NoError(t, g.Resize(TypeInt16, 5))
	assert.Equal(t, TypeInt16, g.Type())
	assert.Equal(t, 5, g.ElementCount())

	require.NoError(t, g.Resize(TypeString, 0))
	assert.True(t, g.IsScalar())

	assert.ErrorIs(t, NewContainer(TagAll).Resize(TypeInt8, 1), ErrBadType)
}

func TestTimeStamp(t *testing.T) {
	ts := TimeStamp{Sec: 1, Nsec: 500}
	tm := ts.Time()
	assert.EqualValues(t, EpicsEpochOffset+1, tm.Unix())
	assert.Equal(t, ts, FromTime(tm))
	assert.True(t, TimeStamp{Sec: 1}.Before(TimeStamp{Sec: 1, Nsec: 1}))
	assert.True(t, TimeStamp{}.IsZero())
	assert.False(t, Now().IsZero())
}

func TestTypeNames(t *testing.T) {
	for ty := TypeInt8; ty <= TypeContainer; ty++ {
		parsed, err := ParseType(ty.String())
		require.NoError(t, err)
		assert.Equal(t, ty, parsed)
	}
	_, err := ParseType("complex128")
	assert.ErrorIs(t, err, ErrBadType)
	assert.Equal(t, 8, TypeFloat64.Size())
	assert.Equal(t, MaxStringSize, TypeFixedString.Size())
}
