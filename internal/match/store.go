package match

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Store persists match documents as JSON in Redis and keeps a per-user
// index set so active-game and history lookups stay cheap.
type Store struct{ rdb *redis.Client }

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Key returns the Redis key for a match document; exported so the escrow
// engine can WATCH it inside its own transactions.
func Key(id string) string { return "match:" + strings.TrimSpace(id) }

func idxUserKey(userID string) string { return "match:index:user:" + strings.TrimSpace(userID) }

func (s *Store) Save(ctx context.Context, m *Match) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, Key(m.ID), raw, 0).Err()
}

// Get returns the match by id, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Match, error) {
	raw, err := s.rdb.Get(ctx, Key(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// IndexParticipants adds the match to both players' index sets.
func (s *Store) IndexParticipants(ctx context.Context, id, whiteID, blackID string) error {
	for _, uid := range []string{whiteID, blackID} {
		if strings.TrimSpace(uid) == "" {
			continue
		}
		if err := s.rdb.SAdd(ctx, idxUserKey(uid), id).Err(); err != nil {
			return err
		}
	}
	return nil
}

// ActiveByUser returns the user's in_progress match, most recently updated
// first when several exist, or nil.
func (s *Store) ActiveByUser(ctx context.Context, userID string) (*Match, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	ids, err := s.rdb.SMembers(ctx, idxUserKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	var list []*Match
	for _, id := range ids {
		m, merr := s.Get(ctx, id)
		if merr == nil && m != nil && m.Status == StatusInProgress {
			list = append(list, m)
		}
	}
	if len(list) == 0 {
		return nil, nil
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list[0], nil
}

// HistoryByUser returns the user's terminal matches, newest completion
// first, capped at limit when limit > 0.
func (s *Store) HistoryByUser(ctx context.Context, userID string, limit int) ([]*Match, error) {
	ids, err := s.rdb.SMembers(ctx, idxUserKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	var list []*Match
	for _, id := range ids {
		m, merr := s.Get(ctx, id)
		if merr == nil && m != nil && m.Status.Terminal() {
			list = append(list, m)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		ti, tj := list[i].UpdatedAt, list[j].UpdatedAt
		if list[i].CompletedAt != nil {
			ti = *list[i].CompletedAt
		}
		if list[j].CompletedAt != nil {
			tj = *list[j].CompletedAt
		}
		return ti.After(tj)
	})
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}
