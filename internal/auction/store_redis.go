package auction

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const ttlSnapshot = 24 * time.Hour

// SnapshotPlayer is one player's row inside a game snapshot.
type SnapshotPlayer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Money   int    `json:"money"`
	Loan    bool   `json:"loan"`
	ArtsCnt int    `json:"arts_created"`
}

// Snapshot is the observational state of a running game, stored as JSON under
// auction:game:<id>. It is best-effort only and never read back to resume a
// round.
type Snapshot struct {
	GameID    string           `json:"game_id"`
	Room      string           `json:"room"`
	Phase     Phase            `json:"phase"`
	LotID     int              `json:"lot_id,omitempty"`
	Price     int              `json:"price,omitempty"`
	LeaderID  string           `json:"leader_id,omitempty"`
	Players   []SnapshotPlayer `json:"players,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Store keeps live game snapshots in Redis plus an index of running games.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// NewStoreFromURL dials Redis from a redis:// URL and pings it.
func NewStoreFromURL(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) keyGame(id string) string { return "auction:game:" + strings.TrimSpace(id) }
func (s *Store) keyIndex() string         { return "auction:games" }

// SaveSnapshot upserts the snapshot and keeps the running-games index fresh.
func (s *Store) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if s == nil || s.rdb == nil || snap == nil {
		return nil
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.keyGame(snap.GameID), raw, ttlSnapshot).Err(); err != nil {
		return err
	}
	if err := s.rdb.SAdd(ctx, s.keyIndex(), snap.GameID).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, s.keyIndex(), ttlSnapshot).Err()
}

// LoadSnapshot returns the snapshot for a game, nil when absent or expired.
func (s *Store) LoadSnapshot(ctx context.Context, gameID string) (*Snapshot, error) {
	if s == nil || s.rdb == nil {
		return nil, nil
	}
	raw, err := s.rdb.Get(ctx, s.keyGame(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// RunningGames lists the snapshots still in the index, dropping entries whose
// snapshot key already expired.
func (s *Store) RunningGames(ctx context.Context) ([]*Snapshot, error) {
	if s == nil || s.rdb == nil {
		return nil, nil
	}
	ids, err := s.rdb.SMembers(ctx, s.keyIndex()).Result()
	if err != nil {
		return nil, err
	}
	var out []*Snapshot
	for _, id := range ids {
		snap, err := s.LoadSnapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			_ = s.rdb.SRem(ctx, s.keyIndex(), id).Err()
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// Remove drops a finished game from the store.
func (s *Store) Remove(ctx context.Context, gameID string) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	if err := s.rdb.Del(ctx, s.keyGame(gameID)).Err(); err != nil {
		return err
	}
	return s.rdb.SRem(ctx, s.keyIndex(), gameID).Err()
}
