package lobby

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidStake       = errors.New("invalid stake amount")
	ErrDescriptionTooLong = errors.New("description too long")
	ErrOfferExists        = errors.New("creator already has an active offer")
	ErrOfferNotFound      = errors.New("offer not found or expired")
	ErrInsufficientFunds  = errors.New("insufficient balance to create offer")
)

// Offer is a lobby entry waiting for a joiner. It exists only before a
// match is formed: consumed atomically by the escrow engine or expired by
// the store's TTL.
type Offer struct {
	ID          string    `json:"id"`
	CreatedBy   string    `json:"created_by"`
	CreatorName string    `json:"creator_name"`
	Stake       float64   `json:"stake"`
	Demo        bool      `json:"demo"`
	Description string    `json:"description,omitempty"`
	TimeLimit   int       `json:"time_limit,omitempty"`
	Private     bool      `json:"private"`
	Code        string    `json:"code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CreateParams are the caller-supplied fields for a new offer.
type CreateParams struct {
	Stake       float64
	Demo        bool
	Description string
	TimeLimit   int
	Private     bool
}

// BalanceReader reports a user's applicable balance so offer creation can
// pre-check sufficiency without owning account documents.
type BalanceReader interface {
	Balance(ctx context.Context, userID string, demo bool) (float64, error)
}
