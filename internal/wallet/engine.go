package wallet

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ocastro/damas-arena/internal/checkers"
	"github.com/ocastro/damas-arena/internal/lobby"
	"github.com/ocastro/damas-arena/internal/match"
	"github.com/ocastro/damas-arena/internal/obslog"
)

// Engine reserves stakes when a match forms and disburses the pot on the
// terminal transition. Every balance-affecting group commits as one Redis
// WATCH transaction over the involved account, offer, and match keys, so
// partial application (one debit without the other, a credit without its
// ledger entry) is never observable.
type Engine struct {
	rdb        *redis.Client
	matches    *match.Store
	commission float64
	demoStart  float64
	archive    *Repository
}

func NewEngine(rdb *redis.Client, matches *match.Store, commission float64) *Engine {
	return &Engine{rdb: rdb, matches: matches, commission: commission, demoStart: 500}
}

// SetDemoStart overrides the demo balance granted on first sight.
func (e *Engine) SetDemoStart(v float64) { e.demoStart = v }

// AttachArchive wires the Postgres audit archive; settlement keeps working
// without one, it just stops mirroring entries off-process.
func (e *Engine) AttachArchive(r *Repository) { e.archive = r }

// Store exposes the match store the engine writes through.
func (e *Engine) Store() *match.Store { return e.matches }

// CommissionRate reports the fraction of the pot retained on settlement.
func (e *Engine) CommissionRate() float64 { return e.commission }

func accountKey(userID string) string { return "user:" + strings.TrimSpace(userID) }

func ledgerKey(userID string) string { return "ledger:user:" + strings.TrimSpace(userID) }

// Account loads a user's balance document or ErrAccountNotFound.
func (e *Engine) Account(ctx context.Context, userID string) (*Account, error) {
	raw, err := e.rdb.Get(ctx, accountKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	var a Account
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// SaveAccount writes an account document. Account provisioning belongs to
// the registration flow outside the core; this is its narrow boundary.
func (e *Engine) SaveAccount(ctx context.Context, a *Account) error {
	a.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return e.rdb.Set(ctx, accountKey(a.ID), raw, 0).Err()
}

// EnsureAccount provisions an account with the demo starting balance the
// first time a user shows up, and keeps the stored username current.
func (e *Engine) EnsureAccount(ctx context.Context, userID, username string) (*Account, error) {
	a, err := e.Account(ctx, userID)
	if err == nil {
		if username != "" && a.Username != username {
			a.Username = username
			if err := e.SaveAccount(ctx, a); err != nil {
				return nil, err
			}
		}
		return a, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}
	a = &Account{
		ID:          strings.TrimSpace(userID),
		Username:    username,
		DemoBalance: e.demoStart,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.SaveAccount(ctx, a); err != nil {
		return nil, err
	}
	obslog.L().Info("account_provisioned",
		zap.String("user_id", a.ID),
		zap.Float64("demo_balance", a.DemoBalance),
	)
	return a, nil
}

// Balance implements lobby.BalanceReader for the offer pre-check.
func (e *Engine) Balance(ctx context.Context, userID string, demo bool) (float64, error) {
	a, err := e.Account(ctx, userID)
	if err != nil {
		return 0, err
	}
	if demo {
		return a.DemoBalance, nil
	}
	return a.Balance, nil
}

// Ledger returns a user's ledger entries, oldest first.
func (e *Engine) Ledger(ctx context.Context, userID string) ([]Entry, error) {
	raws, err := e.rdb.LRange(ctx, ledgerKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raws))
	for _, raw := range raws {
		var en Entry
		if err := json.Unmarshal([]byte(raw), &en); err != nil {
			return nil, err
		}
		out = append(out, en)
	}
	return out, nil
}

// CreateMatch consumes an offer: both stakes are debited, the in_progress
// match is written, and the offer deleted, in a single atomic commit.
// Colors and first mover are assigned randomly; white always opens.
func (e *Engine) CreateMatch(ctx context.Context, offerID, joinerID string) (*match.Match, error) {
	if strings.TrimSpace(offerID) == "" || strings.TrimSpace(joinerID) == "" {
		return nil, fmt.Errorf("wallet: missing offer or joiner id")
	}

	// Pre-read to learn the creator so the WATCH key set is complete; the
	// closure re-reads everything it trusts.
	offer, err := e.getOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, ErrOfferNotFound
	}
	if offer.CreatedBy == joinerID {
		return nil, ErrSelfJoin
	}

	keys := []string{lobby.Key(offerID), accountKey(offer.CreatedBy), accountKey(joinerID)}
	var created *match.Match
	err = e.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := e.getOfferTx(ctx, tx, offerID)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrOfferNotFound
		}
		creator, err := e.getAccountTx(ctx, tx, cur.CreatedBy)
		if err != nil {
			return err
		}
		joiner, err := e.getAccountTx(ctx, tx, joinerID)
		if err != nil {
			return err
		}

		stake := cur.Stake
		if balanceOf(creator, cur.Demo) < stake || balanceOf(joiner, cur.Demo) < stake {
			return ErrInsufficientFunds
		}
		debit(creator, cur.Demo, stake)
		debit(joiner, cur.Demo, stake)

		whiteID, whiteName := creator.ID, creator.Username
		blackID, blackName := joiner.ID, joiner.Username
		if n, _ := rand.Int(rand.Reader, big.NewInt(2)); n != nil && n.Int64() == 0 {
			whiteID, whiteName, blackID, blackName = blackID, blackName, whiteID, whiteName
		}

		now := time.Now().UTC()
		created = &match.Match{
			ID:        fmt.Sprintf("gm-%d-%s", now.UnixNano(), randSuffix(3)),
			WhiteID:   whiteID,
			WhiteName: whiteName,
			BlackID:   blackID,
			BlackName: blackName,
			Board:     checkers.Initial().String(),
			Turn:      checkers.White,
			Status:    match.StatusInProgress,
			Pot:       stake * 2,
			Demo:      cur.Demo,
			TimeLimit: cur.TimeLimit,
			CreatedAt: now,
			UpdatedAt: now,
		}
		matchRaw, err := json.Marshal(created)
		if err != nil {
			return err
		}

		pipe := tx.TxPipeline()
		writeAccount(ctx, pipe, creator)
		writeAccount(ctx, pipe, joiner)
		pipe.Set(ctx, match.Key(created.ID), matchRaw, 0)
		lobby.CleanupPipe(ctx, pipe, cur)
		_, err = pipe.Exec(ctx)
		return err
	}, keys...)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return nil, ErrConflict
		}
		return nil, err
	}

	if err := e.matches.IndexParticipants(ctx, created.ID, created.WhiteID, created.BlackID); err != nil {
		return nil, err
	}
	obslog.L().Info("escrow_create",
		zap.String("match_id", created.ID),
		zap.String("offer_id", offerID),
		zap.String("white_id", created.WhiteID),
		zap.String("black_id", created.BlackID),
		zap.Float64("pot", created.Pot),
		zap.Bool("demo", created.Demo),
	)
	return created, nil
}

// Settle runs the one-time terminal transition: status, winner/loser,
// completion timestamp, prize credit, win/loss counters, and the ledger
// entries for prize and commission all commit together. A match already
// terminal is returned unchanged, which is what makes racing win-detected,
// forfeit, and timeout paths single-payment.
func (e *Engine) Settle(ctx context.Context, matchID, winnerID, loserID string, reason match.Reason) (*match.Match, error) {
	keys := []string{match.Key(matchID), accountKey(winnerID), accountKey(loserID)}

	var (
		settled *match.Match
		entries []Entry
		noop    bool
	)
	err := e.rdb.Watch(ctx, func(tx *redis.Tx) error {
		entries = nil
		noop = false
		raw, err := tx.Get(ctx, match.Key(matchID)).Bytes()
		if err == redis.Nil {
			return match.ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur match.Match
		if err := json.Unmarshal(raw, &cur); err != nil {
			return err
		}
		if cur.Status.Terminal() {
			settled = &cur
			noop = true
			return nil
		}

		winner, err := e.getAccountTx(ctx, tx, winnerID)
		if err != nil {
			return err
		}
		loser, err := e.getAccountTx(ctx, tx, loserID)
		if err != nil {
			return err
		}
		winner.Wins++
		loser.Losses++

		now := time.Now().UTC()
		if cur.Pot > 0 {
			commission := cur.Pot * e.commission
			prize := cur.Pot - commission
			credit(winner, cur.Demo, prize)
			entries = []Entry{
				{ID: uuid.NewString(), UserID: winnerID, Type: EntryGameWin, Amount: prize, Demo: cur.Demo, MatchID: cur.ID, CreatedAt: now},
				{ID: uuid.NewString(), UserID: winnerID, Type: EntryGameFee, Amount: commission, Demo: cur.Demo, MatchID: cur.ID, CreatedAt: now},
			}
		}

		if reason == match.ReasonAbandoned {
			cur.Status = match.StatusAbandoned
		} else {
			cur.Status = match.StatusCompleted
		}
		cur.Winner = winnerID
		cur.Loser = loserID
		cur.UpdatedAt = now
		cur.CompletedAt = &now

		matchRaw, err := json.Marshal(&cur)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, match.Key(cur.ID), matchRaw, 0)
		writeAccount(ctx, pipe, winner)
		writeAccount(ctx, pipe, loser)
		for _, en := range entries {
			enRaw, _ := json.Marshal(en)
			pipe.RPush(ctx, ledgerKey(en.UserID), enRaw)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
		settled = &cur
		return nil
	}, keys...)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			// Lost the race: if the other path finished the match the
			// idempotent answer is its result.
			cur, gerr := e.matches.Get(ctx, matchID)
			if gerr == nil && cur != nil && cur.Status.Terminal() {
				return cur, nil
			}
			return nil, ErrConflict
		}
		return nil, err
	}
	if noop {
		return settled, nil
	}

	obslog.L().Info("settle",
		zap.String("match_id", matchID),
		zap.String("winner", winnerID),
		zap.String("loser", loserID),
		zap.String("reason", string(reason)),
		zap.Float64("pot", settled.Pot),
		zap.Bool("demo", settled.Demo),
	)
	e.archiveSettlement(ctx, settled, entries)
	return settled, nil
}

// archiveSettlement mirrors the terminal match and its ledger entries to
// Postgres, best-effort: the Redis commit is authoritative.
func (e *Engine) archiveSettlement(ctx context.Context, m *match.Match, entries []Entry) {
	if e.archive == nil {
		return
	}
	if err := e.archive.SaveMatch(ctx, m); err != nil {
		obslog.L().Error("settle_archive_match_error", zap.String("match_id", m.ID), zap.Error(err))
	}
	if err := e.archive.SaveEntries(ctx, entries); err != nil {
		obslog.L().Error("settle_archive_ledger_error", zap.String("match_id", m.ID), zap.Error(err))
	}
}

func (e *Engine) getOffer(ctx context.Context, id string) (*lobby.Offer, error) {
	raw, err := e.rdb.Get(ctx, lobby.Key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var o lobby.Offer
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (e *Engine) getOfferTx(ctx context.Context, tx *redis.Tx, id string) (*lobby.Offer, error) {
	raw, err := tx.Get(ctx, lobby.Key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var o lobby.Offer
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (e *Engine) getAccountTx(ctx context.Context, tx *redis.Tx, userID string) (*Account, error) {
	raw, err := tx.Get(ctx, accountKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	var a Account
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func writeAccount(ctx context.Context, pipe redis.Pipeliner, a *Account) {
	a.UpdatedAt = time.Now().UTC()
	raw, _ := json.Marshal(a)
	pipe.Set(ctx, accountKey(a.ID), raw, 0)
}

func balanceOf(a *Account, demo bool) float64 {
	if demo {
		return a.DemoBalance
	}
	return a.Balance
}

func debit(a *Account, demo bool, amount float64) {
	if demo {
		a.DemoBalance -= amount
	} else {
		a.Balance -= amount
	}
}

func credit(a *Account, demo bool, amount float64) {
	if demo {
		a.DemoBalance += amount
	} else {
		a.Balance += amount
	}
}

func randSuffix(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano()%1_000_000)
	}
	return hex.EncodeToString(b)
}
