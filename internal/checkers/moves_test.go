package checkers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// place builds an otherwise empty board from index/cell pairs.
func place(pieces map[int]Cell) Board {
	var b Board
	for i := range b {
		b[i] = Empty
	}
	for i, c := range pieces {
		b[i] = c
	}
	return b
}

func moveSet(moves []Move) map[[2]int]Move {
	out := make(map[[2]int]Move, len(moves))
	for _, m := range moves {
		out[[2]int{m.From, m.To}] = m
	}
	return out
}

func TestInitialPositionSimpleMoves(t *testing.T) {
	b := Initial()

	white := LegalMoves(b, White)
	require.Len(t, white, 7)
	got := moveSet(white)
	for _, want := range [][2]int{{20, 16}, {21, 16}, {21, 17}, {22, 17}, {22, 18}, {23, 18}, {23, 19}} {
		m, ok := got[want]
		require.True(t, ok, "missing move %v", want)
		assert.False(t, m.IsCapture)
	}

	black := LegalMoves(b, Black)
	assert.Len(t, black, 7)
}

func TestForcedCaptureExcludesSimpleMoves(t *testing.T) {
	// White man at 25 can step to 21 or 22, but the jump over 21 is mandatory.
	b := place(map[int]Cell{25: WhiteMan, 21: BlackMan})

	moves := LegalMoves(b, White)
	require.NotEmpty(t, moves)
	for _, m := range moves {
		assert.True(t, m.IsCapture, "simple move %v offered while a capture exists", m)
	}
	m, ok := Find(moves, 25, 16)
	require.True(t, ok)
	assert.Equal(t, []int{21}, m.Captured)
	assert.Equal(t, []int{16}, m.Path)
}

func TestLongestChainWins(t *testing.T) {
	// From 25 white can jump 22 (one capture) or 21 then 13 (two captures).
	// Only the two-capture chain is legal.
	b := place(map[int]Cell{
		25: WhiteMan,
		21: BlackMan,
		13: BlackMan,
		22: BlackMan,
	})

	moves := LegalMoves(b, White)
	require.Len(t, moves, 1)
	m := moves[0]
	assert.Equal(t, 25, m.From)
	assert.Equal(t, 9, m.To)
	assert.Equal(t, []int{21, 13}, m.Captured)
	assert.Equal(t, []int{16, 9}, m.Path)
}

func TestManCapturesForwardOnly(t *testing.T) {
	// An enemy behind a white man is not capturable.
	b := place(map[int]Cell{17: WhiteMan, 21: BlackMan})

	moves := LegalMoves(b, White)
	for _, m := range moves {
		assert.False(t, m.IsCapture)
	}
}

func TestKingMovesAllDiagonals(t *testing.T) {
	b := place(map[int]Cell{13: WhiteKing})

	moves := LegalMoves(b, White)
	require.Len(t, moves, 4)
	got := moveSet(moves)
	for _, want := range [][2]int{{13, 8}, {13, 9}, {13, 16}, {13, 17}} {
		_, ok := got[want]
		assert.True(t, ok, "missing king move %v", want)
	}
}

func TestKingCapturesBackward(t *testing.T) {
	b := place(map[int]Cell{13: WhiteKing, 17: BlackMan})

	moves := LegalMoves(b, White)
	require.Len(t, moves, 1)
	assert.Equal(t, []int{17}, moves[0].Captured)
	assert.Equal(t, 22, moves[0].To)
}

func TestApplySimpleMove(t *testing.T) {
	b := Initial()
	moves := LegalMoves(b, White)
	m, ok := Find(moves, 21, 17)
	require.True(t, ok)

	next := Apply(b, m, White)
	assert.Equal(t, Empty, next[21])
	assert.Equal(t, WhiteMan, next[17])
	// Original board untouched: boards are values.
	assert.Equal(t, WhiteMan, b[21])
}

func TestApplyRemovesCapturedChain(t *testing.T) {
	b := place(map[int]Cell{25: WhiteMan, 21: BlackMan, 13: BlackMan})
	moves := LegalMoves(b, White)
	m, ok := Find(moves, 25, 9)
	require.True(t, ok)

	next := Apply(b, m, White)
	assert.Equal(t, Empty, next[25])
	assert.Equal(t, Empty, next[21])
	assert.Equal(t, Empty, next[13])
	assert.Equal(t, WhiteMan, next[9], "promotion row not reached, still a man")
}

func TestPromotionOnTerminalLandingOnly(t *testing.T) {
	// Simple step onto the back rank promotes.
	b := place(map[int]Cell{4: WhiteMan})
	moves := LegalMoves(b, White)
	m, ok := Find(moves, 4, 0)
	require.True(t, ok)
	next := Apply(b, m, White)
	assert.Equal(t, WhiteKing, next[0])

	// Capture whose terminal landing square is the back rank promotes too.
	b = place(map[int]Cell{9: WhiteMan, 5: BlackMan})
	moves = LegalMoves(b, White)
	m, ok = Find(moves, 9, 0)
	require.True(t, ok)
	next = Apply(b, m, White)
	assert.Equal(t, WhiteKing, next[0])

	// A capture ending elsewhere never promotes mid-board.
	b = place(map[int]Cell{25: WhiteMan, 21: BlackMan})
	moves = LegalMoves(b, White)
	m, ok = Find(moves, 25, 16)
	require.True(t, ok)
	next = Apply(b, m, White)
	assert.Equal(t, WhiteMan, next[16])
}

func TestBlackPromotesOnRowSeven(t *testing.T) {
	b := place(map[int]Cell{24: BlackMan})
	moves := LegalMoves(b, Black)
	m, ok := Find(moves, 24, 28)
	require.True(t, ok)
	next := Apply(b, m, Black)
	assert.Equal(t, BlackKing, next[28])
}

func TestKingIsNeverDemoted(t *testing.T) {
	b := place(map[int]Cell{4: WhiteKing})
	moves := LegalMoves(b, White)
	m, ok := Find(moves, 4, 0)
	require.True(t, ok)
	next := Apply(b, m, White)
	assert.Equal(t, WhiteKing, next[0])
}

func TestWinnerNoPiecesLeft(t *testing.T) {
	b := place(map[int]Cell{16: WhiteMan})
	w, over := Winner(b, White)
	require.True(t, over)
	assert.Equal(t, White, w)
}

func TestWinnerBlockedOpponent(t *testing.T) {
	// Black's only man sits on its own promotion row with nowhere to go.
	b := place(map[int]Cell{31: BlackMan, 16: WhiteMan})
	w, over := Winner(b, White)
	require.True(t, over)
	assert.Equal(t, White, w)
}

func TestNoWinnerWhileOpponentCanMove(t *testing.T) {
	_, over := Winner(Initial(), White)
	assert.False(t, over)
}
