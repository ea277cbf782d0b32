package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/ocastro/damas-arena/internal/match"
)

// Repository is the Postgres audit mirror for settled matches and ledger
// entries. Redis stays authoritative; everything here is write-once and
// safe to replay.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveMatch upserts a terminal match row.
func (r *Repository) SaveMatch(ctx context.Context, m *match.Match) error {
	if r == nil || r.db == nil || m == nil {
		return nil
	}

	movesRaw, _ := json.Marshal(m.Moves)
	var endedAt time.Time
	if m.CompletedAt != nil {
		endedAt = *m.CompletedAt
	} else {
		endedAt = m.UpdatedAt
	}
	duration := endedAt.Sub(m.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO matches (
	    match_id, white_id, white_name, black_id, black_name,
	    pot, demo, time_limit, status, winner_id, loser_id,
	    final_board, moves, started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
	  ) ON CONFLICT (match_id) DO UPDATE SET
	    status=EXCLUDED.status,
	    winner_id=EXCLUDED.winner_id,
	    loser_id=EXCLUDED.loser_id,
	    final_board=EXCLUDED.final_board,
	    moves=EXCLUDED.moves,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		m.ID,
		m.WhiteID, m.WhiteName,
		m.BlackID, m.BlackName,
		m.Pot, m.Demo, m.TimeLimit,
		string(m.Status), m.Winner, m.Loser,
		m.Board, string(movesRaw),
		m.CreatedAt, endedAt, duration,
	)
	return err
}

// SaveEntries inserts ledger entries; entry IDs dedupe replays.
func (r *Repository) SaveEntries(ctx context.Context, entries []Entry) error {
	if r == nil || r.db == nil || len(entries) == 0 {
		return nil
	}
	q := `INSERT INTO ledger_entries (
	    entry_id, user_id, entry_type, amount, demo, match_id, created_at
	  ) VALUES ($1,$2,$3,$4,$5,$6,$7)
	  ON CONFLICT (entry_id) DO NOTHING`
	for _, en := range entries {
		if _, err := r.db.ExecContext(ctx, q,
			en.ID, en.UserID, string(en.Type), en.Amount, en.Demo, en.MatchID, en.CreatedAt,
		); err != nil {
			return err
		}
	}
	return nil
}
