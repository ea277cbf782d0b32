package wallet

import (
	"errors"
	"time"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrOfferNotFound     = errors.New("offer not found or expired")
	ErrSelfJoin          = errors.New("cannot join your own offer")
	ErrInsufficientFunds = errors.New("insufficient balance")
	// ErrConflict means another transaction raced on the same keys and
	// nothing was applied.
	ErrConflict = errors.New("concurrent balance update")
)

// Account is the per-user balance document (user:<id>). Real and demo
// balances are independent tracks; both stay non-negative because every
// debit runs behind a sufficiency check in the same transaction.
type Account struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Balance     float64   `json:"balance"`
	DemoBalance float64   `json:"demo_balance"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EntryType enumerates ledger entry kinds. Game settlement emits game_win
// and game_fee; the remaining kinds belong to the deposit/withdrawal
// workflows outside the core and exist so the archive schema matches.
type EntryType string

const (
	EntryGameWin      EntryType = "game_win"
	EntryGameFee      EntryType = "game_fee"
	EntryDeposit      EntryType = "deposit"
	EntryWithdrawal   EntryType = "withdrawal"
	EntryRefund       EntryType = "refund"
	EntryManualCredit EntryType = "manual_credit"
	EntryManualDebit  EntryType = "manual_debit"
)

// Entry is an immutable ledger record of a balance-affecting event.
type Entry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      EntryType `json:"type"`
	Amount    float64   `json:"amount"`
	Demo      bool      `json:"demo"`
	MatchID   string    `json:"match_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
