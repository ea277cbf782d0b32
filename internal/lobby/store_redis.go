package lobby

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps offers as JSON documents with a TTL so abandoned entries
// evaporate on their own. The creator guard key enforces the at-most-one-
// offer-per-creator invariant via SetNX.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Key returns the Redis key for an offer document; exported so the escrow
// engine can WATCH and delete it in its own transaction.
func Key(id string) string { return "offer:" + strings.TrimSpace(id) }

// CreatorKey is the SetNX guard held by a creator while an offer is live.
func CreatorKey(userID string) string { return "offer:creator:" + strings.TrimSpace(userID) }

func codeKey(code string) string { return "offer:code:" + strings.ToUpper(strings.TrimSpace(code)) }

func lobbyKey() string { return "offer:lobby" }

// Create reserves the creator guard and writes the offer. ErrOfferExists
// when the creator already has a live offer.
func (s *Store) Create(ctx context.Context, o *Offer) error {
	ok, err := s.rdb.SetNX(ctx, CreatorKey(o.CreatedBy), o.ID, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrOfferExists
	}
	raw, err := json.Marshal(o)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, Key(o.ID), raw, s.ttl)
	pipe.SAdd(ctx, lobbyKey(), o.ID)
	if o.Code != "" {
		pipe.Set(ctx, codeKey(o.Code), o.ID, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Get returns an offer by id, nil when expired or unknown.
func (s *Store) Get(ctx context.Context, id string) (*Offer, error) {
	raw, err := s.rdb.Get(ctx, Key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var o Offer
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// GetByCode resolves a private join code to its offer.
func (s *Store) GetByCode(ctx context.Context, code string) (*Offer, error) {
	id, err := s.rdb.Get(ctx, codeKey(code)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes the offer and all companion keys. Used on explicit
// cancellation; consumption by escrow deletes the same keys inside its
// transaction pipeline.
func (s *Store) Delete(ctx context.Context, o *Offer) error {
	pipe := s.rdb.TxPipeline()
	CleanupPipe(ctx, pipe, o)
	_, err := pipe.Exec(ctx)
	return err
}

// CleanupPipe queues the deletion of an offer's keys onto an existing
// pipeline so callers can fold it into a larger atomic commit.
func CleanupPipe(ctx context.Context, pipe redis.Pipeliner, o *Offer) {
	pipe.Del(ctx, Key(o.ID))
	pipe.Del(ctx, CreatorKey(o.CreatedBy))
	pipe.SRem(ctx, lobbyKey(), o.ID)
	if o.Code != "" {
		pipe.Del(ctx, codeKey(o.Code))
	}
}

// ListPublic returns live public offers, newest first, excluding those
// created by excludeUserID. Expired ids still present in the lobby set are
// skipped.
func (s *Store) ListPublic(ctx context.Context, excludeUserID string) ([]*Offer, error) {
	ids, err := s.rdb.SMembers(ctx, lobbyKey()).Result()
	if err != nil {
		return nil, err
	}
	var out []*Offer
	for _, id := range ids {
		o, _ := s.Get(ctx, id)
		if o == nil || o.Private {
			continue
		}
		if o.CreatedBy == excludeUserID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// codeGen returns a 6-char upper alnum private join code.
func codeGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}
