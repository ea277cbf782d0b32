package checkers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialLayout(t *testing.T) {
	b := Initial()
	for i := 0; i < 12; i++ {
		assert.Equal(t, BlackMan, b[i], "index %d", i)
	}
	for i := 12; i < 20; i++ {
		assert.Equal(t, Empty, b[i], "index %d", i)
	}
	for i := 20; i < 32; i++ {
		assert.Equal(t, WhiteMan, b[i], "index %d", i)
	}
}

func TestParseRoundTrip(t *testing.T) {
	b := Initial()
	parsed, err := Parse(b.String())
	require.NoError(t, err)
	assert.Equal(t, b, parsed)
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse("w,b")
	assert.Error(t, err)

	cells := strings.Split(Initial().String(), ",")
	cells[3] = "x"
	_, err = Parse(strings.Join(cells, ","))
	assert.Error(t, err)

	cells[3] = "ww"
	_, err = Parse(strings.Join(cells, ","))
	assert.Error(t, err)
}

func TestGeometry(t *testing.T) {
	// Even rows carry dark squares on odd columns, odd rows on even columns.
	assert.Equal(t, 0, indexAt(0, 1))
	assert.Equal(t, 3, indexAt(0, 7))
	assert.Equal(t, 4, indexAt(1, 0))
	assert.Equal(t, 20, indexAt(5, 0))
	assert.Equal(t, 31, indexAt(7, 6))
	assert.Equal(t, -1, indexAt(0, 0), "light square")
	assert.Equal(t, -1, indexAt(-1, 1), "off board")
	assert.Equal(t, -1, indexAt(8, 0), "off board")

	for i := 0; i < Cells; i++ {
		assert.Equal(t, i, indexAt(rowOf(i), colOf(i)), "index %d", i)
	}
}

func TestColorOf(t *testing.T) {
	for _, c := range []Cell{WhiteMan, WhiteKing} {
		col, ok := ColorOf(c)
		require.True(t, ok)
		assert.Equal(t, White, col)
	}
	for _, c := range []Cell{BlackMan, BlackKing} {
		col, ok := ColorOf(c)
		require.True(t, ok)
		assert.Equal(t, Black, col)
	}
	_, ok := ColorOf(Empty)
	assert.False(t, ok)
}
