package auction

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Repository archives finished games in Postgres. It is optional: a nil
// repository is a no-op, matching the bot running without DATABASE_URL.
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
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
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

// SaveResult upserts the final report of a finished auction.
func (r *Repository) SaveResult(ctx context.Context, report *FinalReport) error {
	if r == nil || r.db == nil || report == nil {
		return nil
	}

	standingsRaw, err := json.Marshal(report.Standings)
	if err != nil {
		return fmt.Errorf("marshal standings: %w", err)
	}
	lotsRaw, err := json.Marshal(report.Lots)
	if err != nil {
		return fmt.Errorf("marshal lots: %w", err)
	}

	winner := ""
	if len(report.Standings) > 0 {
		winner = report.Standings[0].PlayerID
	}
	duration := report.EndedAt.Sub(report.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO auction_games (
	    game_id, room, winner_id, players, lots,
	    standings, reveal, started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
	  ) ON CONFLICT (game_id) DO UPDATE SET
	    room=EXCLUDED.room,
	    winner_id=EXCLUDED.winner_id,
	    players=EXCLUDED.players,
	    lots=EXCLUDED.lots,
	    standings=EXCLUDED.standings,
	    reveal=EXCLUDED.reveal,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		report.GameID,
		report.Room,
		winner,
		len(report.Standings),
		len(report.Lots),
		string(standingsRaw),
		string(lotsRaw),
		report.StartedAt,
		report.EndedAt,
		duration,
	)
	return err
}
