package gdd

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumStringTable(t *testing.T) {
	table, err := NewEnumStringTable("Low", "Mid", "High")
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	s, err := table.String(2)
	require.NoError(t, err)
	assert.Equal(t, "High", s)

	_, err = table.String(5)
	assert.ErrorIs(t, err, ErrEnumIndexRange)
	_, err = table.String(-1)
	assert.ErrorIs(t, err, ErrEnumIndexRange)

	idx, ok := table.Index("Mid")
	assert.True(t, ok)
	assert.Equal(t, 1, idx)
	_, ok = table.Index("Max")
	assert.False(t, ok)

	require.NoError(t, table.SetString(5, "Trip"))
	assert.Equal(t, 6, table.Len())
	assert.Equal(t, []string{"Low", "Mid", "High", "", "", "Trip"}, table.Strings())

	table.Clear()
	assert.Equal(t, 0, table.Len())
}

func TestEnumStringTableBound(t *testing.T) {
	states := make([]string, MaxEnumStrings+1)
	for i := range states {
		states[i] = fmt.Sprintf("s%d", i)
	}
	_, err := NewEnumStringTable(states...)
	assert.ErrorIs(t, err, ErrEnumTableFull)

	table, err := NewEnumStringTable(states[:MaxEnumStrings]...)
	require.NoError(t, err)
	assert.ErrorIs(t, table.SetString(MaxEnumStrings, "overflow"), ErrEnumTableFull)
}

func TestNilEnumTable(t *testing.T) {
	var table *EnumStringTable
	assert.Equal(t, 0, table.Len())
	_, ok := table.Index("x")
	assert.False(t, ok)
	_, err := table.String(0)
	assert.ErrorIs(t, err, ErrEnumIndexRange)
	assert.Nil(t, table.Strings())
}
