package match

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ocastro/damas-arena/internal/checkers"
	"github.com/ocastro/damas-arena/internal/obslog"
)

var (
	ErrNotFound       = errors.New("match not found")
	ErrNotActive      = errors.New("match is not in progress")
	ErrNotParticipant = errors.New("user is not a participant")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrIllegalMove    = errors.New("illegal move")
	// ErrConflict signals a concurrent operation raced on the same match;
	// nothing was applied and the caller may retry.
	ErrConflict = errors.New("concurrent match update")
	// ErrNoSettler means the manager was used before AttachSettler; the
	// match is left untouched.
	ErrNoSettler = errors.New("no settler attached")
)

// Settler performs the one-time terminal transition and payout for a match.
// Implementations must be idempotent: settling an already-terminal match is
// a no-op that returns the stored state.
type Settler interface {
	Settle(ctx context.Context, matchID, winnerID, loserID string, reason Reason) (*Match, error)
}

// Manager owns move validation and application for live matches. All
// mutations of one match run inside a Redis WATCH transaction on its key,
// so no two move/forfeit/settlement operations interleave.
type Manager struct {
	rdb     *redis.Client
	store   *Store
	settler Settler
}

func NewManager(rdb *redis.Client) *Manager {
	return &Manager{rdb: rdb, store: NewStore(rdb)}
}

// AttachSettler wires the escrow engine that finalizes terminal matches.
func (m *Manager) AttachSettler(s Settler) { m.settler = s }

// Store exposes the underlying match store for read paths.
func (m *Manager) Store() *Store { return m.store }

// Get returns a match by id or ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*Match, error) {
	g, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, ErrNotFound
	}
	return g, nil
}

// ApplyMove validates and applies one move for actorID. The move must match
// a member of the legal move set for the actor's color (forced capture and
// longest-chain rules included). On success the board, turn, and move log
// are committed atomically; if the opponent is then left without a legal
// move the match is settled with the actor as winner.
func (m *Manager) ApplyMove(ctx context.Context, matchID, actorID string, from, to int) (*Match, error) {
	key := Key(matchID)

	var (
		updated  *Match
		winnerID string
		loserID  string
	)
	err := m.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur Match
		if err := json.Unmarshal(raw, &cur); err != nil {
			return err
		}
		if cur.Status != StatusInProgress {
			return ErrNotActive
		}
		color, ok := cur.ColorOf(actorID)
		if !ok {
			return ErrNotParticipant
		}
		if cur.Turn != color {
			return ErrNotYourTurn
		}

		board, err := checkers.Parse(cur.Board)
		if err != nil {
			return err
		}
		legal := checkers.LegalMoves(board, color)
		chosen, ok := checkers.Find(legal, from, to)
		if !ok {
			return ErrIllegalMove
		}

		next := checkers.Apply(board, chosen, color)
		now := time.Now().UTC()
		cur.Board = next.String()
		cur.Turn = checkers.Opponent(color)
		cur.Moves = append(cur.Moves, MoveRecord{Actor: actorID, Move: chosen, Board: cur.Board, At: now})
		cur.UpdatedAt = now

		if _, over := checkers.Winner(next, color); over {
			winnerID = actorID
			loserID = cur.Opponent(actorID)
		}

		pipe := tx.TxPipeline()
		newRaw, _ := json.Marshal(&cur)
		pipe.Set(ctx, key, newRaw, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		updated = &cur
		return nil
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrConflict
		}
		return nil, err
	}

	obslog.L().Info("match_move",
		zap.String("match_id", matchID),
		zap.String("actor", actorID),
		zap.Int("from", from),
		zap.Int("to", to),
		zap.Int("ply", len(updated.Moves)),
		zap.Bool("terminal", winnerID != ""),
	)

	if winnerID != "" && m.settler != nil {
		return m.settler.Settle(ctx, matchID, winnerID, loserID, ReasonCompleted)
	}
	return updated, nil
}

// Forfeit ends the match with actorID as loser. It backs both explicit
// resignation and the disconnect-grace timeout; the settler's status guard
// makes racing callers safe.
func (m *Manager) Forfeit(ctx context.Context, matchID, actorID string) (*Match, error) {
	cur, err := m.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusInProgress {
		return nil, ErrNotActive
	}
	if !cur.HasPlayer(actorID) {
		return nil, ErrNotParticipant
	}
	if m.settler == nil {
		return nil, ErrNoSettler
	}

	obslog.L().Info("match_forfeit",
		zap.String("match_id", matchID),
		zap.String("loser", actorID),
		zap.String("winner", cur.Opponent(actorID)),
	)
	return m.settler.Settle(ctx, matchID, cur.Opponent(actorID), actorID, ReasonAbandoned)
}
