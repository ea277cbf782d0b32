package lobby

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ocastro/damas-arena/internal/obslog"
)

const maxDescriptionLen = 100

// Manager validates and creates lobby offers. A sufficiency pre-check runs
// at creation time so obviously unfundable offers never reach the lobby;
// the authoritative balance check happens again inside escrow when the
// offer is consumed.
type Manager struct {
	store    *Store
	balances BalanceReader
}

func NewManager(store *Store, balances BalanceReader) *Manager {
	return &Manager{store: store, balances: balances}
}

// Store exposes the offer store for read paths and the escrow engine.
func (m *Manager) Store() *Store { return m.store }

// Create validates params and publishes a new offer for userID.
func (m *Manager) Create(ctx context.Context, userID, userName string, p CreateParams) (*Offer, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("lobby: missing creator id")
	}
	if p.Stake < 0 {
		return nil, ErrInvalidStake
	}
	if len(p.Description) > maxDescriptionLen {
		return nil, ErrDescriptionTooLong
	}

	bal, err := m.balances.Balance(ctx, userID, p.Demo)
	if err != nil {
		return nil, err
	}
	if bal < p.Stake {
		return nil, ErrInsufficientFunds
	}

	o := &Offer{
		ID:          fmt.Sprintf("of-%d-%s", time.Now().UnixNano(), randSuffix(3)),
		CreatedBy:   userID,
		CreatorName: strings.TrimSpace(userName),
		Stake:       p.Stake,
		Demo:        p.Demo,
		Description: strings.TrimSpace(p.Description),
		TimeLimit:   p.TimeLimit,
		Private:     p.Private,
		CreatedAt:   time.Now().UTC(),
	}
	if p.Private {
		code, cerr := codeGen()
		if cerr != nil {
			return nil, cerr
		}
		o.Code = code
	}

	if err := m.store.Create(ctx, o); err != nil {
		return nil, err
	}
	obslog.L().Info("lobby_offer_create",
		zap.String("offer_id", o.ID),
		zap.String("creator", userID),
		zap.Float64("stake", o.Stake),
		zap.Bool("demo", o.Demo),
		zap.Bool("private", o.Private),
	)
	return o, nil
}

// FindByCode resolves a private join code, ErrOfferNotFound when gone.
func (m *Manager) FindByCode(ctx context.Context, code string) (*Offer, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrOfferNotFound
	}
	o, err := m.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOfferNotFound
	}
	return o, nil
}

// ListPublic returns joinable public offers for a browsing user.
func (m *Manager) ListPublic(ctx context.Context, excludeUserID string) ([]*Offer, error) {
	return m.store.ListPublic(ctx, excludeUserID)
}

func randSuffix(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano()%1_000_000)
	}
	return hex.EncodeToString(b)
}
