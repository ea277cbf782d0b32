// Package checkers implements the board representation and the legal-move
// generator for Brazilian-style draughts on a 32-cell board. It is pure
// logic: no I/O, no store access, boards are values.
package checkers

import (
	"fmt"
	"strings"
)

// Cell is the content of one dark square.
type Cell byte

const (
	Empty     Cell = ' '
	WhiteMan  Cell = 'w'
	WhiteKing Cell = 'W'
	BlackMan  Cell = 'b'
	BlackKing Cell = 'B'
)

// Color identifies a side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Cells is the number of playable (dark) squares.
const Cells = 32

// Board holds the 32 dark squares in row-major order: index i lives on
// row i/4; even rows carry dark squares on odd columns, odd rows on even
// columns. Black starts on rows 0-2 (indices 0-11), white on rows 5-7
// (indices 20-31) and advances toward row 0.
type Board [Cells]Cell

// Initial returns the standard starting position.
func Initial() Board {
	var b Board
	for i := 0; i < Cells; i++ {
		switch {
		case i < 12:
			b[i] = BlackMan
		case i >= 20:
			b[i] = WhiteMan
		default:
			b[i] = Empty
		}
	}
	return b
}

// Parse decodes the comma-joined wire form ("b,b, ,w,...").
func Parse(s string) (Board, error) {
	var b Board
	parts := strings.Split(s, ",")
	if len(parts) != Cells {
		return b, fmt.Errorf("checkers: board has %d cells, want %d", len(parts), Cells)
	}
	for i, p := range parts {
		if len(p) != 1 {
			return b, fmt.Errorf("checkers: bad cell %q at index %d", p, i)
		}
		c := Cell(p[0])
		switch c {
		case Empty, WhiteMan, WhiteKing, BlackMan, BlackKing:
			b[i] = c
		default:
			return b, fmt.Errorf("checkers: bad cell %q at index %d", p, i)
		}
	}
	return b, nil
}

// String encodes the board as a fixed-length comma-joined cell list.
func (b Board) String() string {
	var sb strings.Builder
	sb.Grow(2*Cells - 1)
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte(byte(c))
	}
	return sb.String()
}

// ColorOf reports the owning side of a cell, false for an empty one.
func ColorOf(c Cell) (Color, bool) {
	switch c {
	case WhiteMan, WhiteKing:
		return White, true
	case BlackMan, BlackKing:
		return Black, true
	}
	return "", false
}

// IsKing reports whether the cell holds a promoted piece.
func IsKing(c Cell) bool { return c == WhiteKing || c == BlackKing }

// Opponent returns the other side.
func Opponent(c Color) Color {
	if c == White {
		return Black
	}
	return White
}

func rowOf(i int) int { return i / 4 }

func colOf(i int) int {
	r, p := i/4, i%4
	if r%2 == 0 {
		return 2*p + 1
	}
	return 2 * p
}

// indexAt maps a (row, column) pair back to a board index, or -1 when the
// square is off-board or light.
func indexAt(r, c int) int {
	if r < 0 || r > 7 || c < 0 || c > 7 {
		return -1
	}
	if r%2 == c%2 {
		return -1
	}
	return r*4 + c/2
}

// promotionRow is the opponent's back rank for the given side.
func promotionRow(color Color) int {
	if color == White {
		return 0
	}
	return 7
}
