package checkers

// Move is one complete turn for a single piece. A capture move carries the
// whole mandatory jump chain: Captured lists the jumped cells in order and
// Path the landing squares after each jump (the last equals To).
type Move struct {
	From      int   `json:"from"`
	To        int   `json:"to"`
	IsCapture bool  `json:"isCapture"`
	Captured  []int `json:"captured,omitempty"`
	Path      []int `json:"path,omitempty"`
}

type direction struct{ dr, dc int }

var kingDirs = []direction{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}

// moveDirs returns the capture/step directions for a piece: a king moves on
// all four diagonals, a man only toward the opponent's back rank.
func moveDirs(piece Cell) []direction {
	if IsKing(piece) {
		return kingDirs
	}
	if piece == WhiteMan {
		return []direction{{-1, -1}, {-1, 1}}
	}
	return []direction{{1, -1}, {1, 1}}
}

// LegalMoves generates the legal move set for color under forced-capture
// rules: if any capture chain exists only capture chains of maximal length
// are legal; otherwise simple one-step moves.
func LegalMoves(b Board, color Color) []Move {
	var captures []Move
	for i := 0; i < Cells; i++ {
		if c, ok := ColorOf(b[i]); ok && c == color {
			captureChains(b, i, i, nil, nil, &captures)
		}
	}
	if len(captures) > 0 {
		maxLen := 0
		for _, m := range captures {
			if len(m.Captured) > maxLen {
				maxLen = len(m.Captured)
			}
		}
		longest := captures[:0]
		for _, m := range captures {
			if len(m.Captured) == maxLen {
				longest = append(longest, m)
			}
		}
		return longest
	}

	var simple []Move
	for i := 0; i < Cells; i++ {
		if c, ok := ColorOf(b[i]); ok && c == color {
			simpleMoves(b, i, &simple)
		}
	}
	return simple
}

// captureChains walks every jump sequence for the piece at origin by
// depth-first search. The board is a value, so each branch removes its
// jumped pieces from its own copy; the moving piece stays anchored at
// origin, which also keeps a chain from landing back on its start square.
func captureChains(b Board, origin, cur int, captured, path []int, out *[]Move) {
	piece := b[origin]
	color, _ := ColorOf(piece)
	opponent := Opponent(color)

	extended := false
	r, c := rowOf(cur), colOf(cur)
	for _, d := range moveDirs(piece) {
		jumped := indexAt(r+d.dr, c+d.dc)
		land := indexAt(r+2*d.dr, c+2*d.dc)
		if jumped < 0 || land < 0 || b[land] != Empty {
			continue
		}
		if jc, ok := ColorOf(b[jumped]); !ok || jc != opponent {
			continue
		}
		extended = true
		next := b
		next[jumped] = Empty
		nextCaptured := append(append([]int(nil), captured...), jumped)
		nextPath := append(append([]int(nil), path...), land)
		captureChains(next, origin, land, nextCaptured, nextPath, out)
	}
	if !extended && len(captured) > 0 {
		*out = append(*out, Move{From: origin, To: cur, IsCapture: true, Captured: captured, Path: path})
	}
}

func simpleMoves(b Board, from int, out *[]Move) {
	piece := b[from]
	r, c := rowOf(from), colOf(from)
	for _, d := range moveDirs(piece) {
		to := indexAt(r+d.dr, c+d.dc)
		if to < 0 || b[to] != Empty {
			continue
		}
		*out = append(*out, Move{From: from, To: to})
	}
}

// Apply plays a move for color and returns the resulting board. Captured
// pieces are removed and a man whose terminal landing square is the
// opponent's back rank is promoted; a chain passing through the back rank
// without ending there does not promote.
func Apply(b Board, m Move, color Color) Board {
	piece := b[m.From]
	b[m.From] = Empty
	for _, idx := range m.Captured {
		b[idx] = Empty
	}
	if !IsKing(piece) && rowOf(m.To) == promotionRow(color) {
		if piece == WhiteMan {
			piece = WhiteKing
		} else {
			piece = BlackKing
		}
	}
	b[m.To] = piece
	return b
}

// Find locates the legal move matching a from/to request. Multiple maximal
// chains can share endpoints; the first match is authoritative, mirroring
// how the client submits only the endpoints.
func Find(moves []Move, from, to int) (Move, bool) {
	for _, m := range moves {
		if m.From == from && m.To == to {
			return m, true
		}
	}
	return Move{}, false
}

// Winner evaluates the sole terminal condition after justMoved played: the
// opponent loses when it has no legal move left (no pieces or all blocked).
func Winner(b Board, justMoved Color) (Color, bool) {
	if len(LegalMoves(b, Opponent(justMoved))) == 0 {
		return justMoved, true
	}
	return "", false
}
