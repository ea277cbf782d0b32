package match

import (
	"time"

	"github.com/ocastro/damas-arena/internal/checkers"
)

// Status represents a match lifecycle state. completed and abandoned are
// terminal and mutually exclusive; a terminal match accepts no further moves.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusAbandoned }

// Reason tags how a match reached its terminal state.
type Reason string

const (
	ReasonCompleted Reason = "completed"
	ReasonAbandoned Reason = "abandoned"
)

// MoveRecord is one append-only move-log entry.
type MoveRecord struct {
	Actor string        `json:"actor"`
	Move  checkers.Move `json:"move"`
	Board string        `json:"board"`
	At    time.Time     `json:"at"`
}

// Match is the persisted state of one wagered game. Colors are assigned at
// creation and fixed; Pot is the sum of both stakes. TimeLimit is carried
// from the offer but not enforced server-side.
type Match struct {
	ID          string         `json:"id"`
	WhiteID     string         `json:"white_id"`
	WhiteName   string         `json:"white_name"`
	BlackID     string         `json:"black_id"`
	BlackName   string         `json:"black_name"`
	Board       string         `json:"board"`
	Turn        checkers.Color `json:"turn"`
	Status      Status         `json:"status"`
	Pot         float64        `json:"pot"`
	Demo        bool           `json:"demo"`
	TimeLimit   int            `json:"time_limit,omitempty"`
	Moves       []MoveRecord   `json:"moves"`
	Winner      string         `json:"winner,omitempty"`
	Loser       string         `json:"loser,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// HasPlayer reports whether userID is one of the two participants.
func (m *Match) HasPlayer(userID string) bool {
	return userID != "" && (m.WhiteID == userID || m.BlackID == userID)
}

// ColorOf returns the color userID plays, false for non-participants.
func (m *Match) ColorOf(userID string) (checkers.Color, bool) {
	switch userID {
	case "":
		return "", false
	case m.WhiteID:
		return checkers.White, true
	case m.BlackID:
		return checkers.Black, true
	}
	return "", false
}

// Opponent returns the other participant's id.
func (m *Match) Opponent(userID string) string {
	if m.WhiteID == userID {
		return m.BlackID
	}
	if m.BlackID == userID {
		return m.WhiteID
	}
	return ""
}

// ToMove returns the id of the player holding the turn.
func (m *Match) ToMove() string {
	if m.Turn == checkers.White {
		return m.WhiteID
	}
	return m.BlackID
}

// NameOf returns the display name for a participant id.
func (m *Match) NameOf(userID string) string {
	if m.WhiteID == userID {
		return m.WhiteName
	}
	if m.BlackID == userID {
		return m.BlackName
	}
	return ""
}
