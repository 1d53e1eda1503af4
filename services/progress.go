package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"coinrush/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const xpPerLevel = 500

// LevelFor maps accumulated experience to a level, starting at 1.
func LevelFor(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return 1 + xp/xpPerLevel
}

// ProgressStore keeps best score, experience and level in a local SQLite file.
// Nothing here is shared with other participants.
type ProgressStore struct {
	db *sql.DB
}

func OpenProgressStore(path string) (*ProgressStore, error) {
	if path == "" {
		return nil, errors.New("progress database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure progress directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS progress (
		uid TEXT PRIMARY KEY,
		best_score INTEGER NOT NULL DEFAULT 0,
		xp INTEGER NOT NULL DEFAULT 0,
		level INTEGER NOT NULL DEFAULT 1,
		games_played INTEGER NOT NULL DEFAULT 0
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS profile (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		profile_id TEXT NOT NULL
	);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &ProgressStore{db: db}, nil
}

// ProfileID returns the id progress is kept under on this machine. It is drawn
// once and stored in the database, so it outlives session and guest ids.
func (p *ProgressStore) ProfileID(ctx context.Context) (string, error) {
	if _, err := p.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO profile (id, profile_id) VALUES (1, ?)`, "local-"+uuid.NewString(),
	); err != nil {
		return "", fmt.Errorf("create local profile: %w", err)
	}
	var id string
	if err := p.db.QueryRowContext(ctx, `SELECT profile_id FROM profile WHERE id = 1`).Scan(&id); err != nil {
		return "", fmt.Errorf("load local profile: %w", err)
	}
	return id, nil
}

// Load returns the stored progress, or a level 1 blank record for unknown players.
func (p *ProgressStore) Load(ctx context.Context, uid string) (models.Progress, error) {
	return loadProgress(ctx, p.db, uid)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadProgress(ctx context.Context, q queryer, uid string) (models.Progress, error) {
	prog := models.Progress{UID: uid, Level: 1}
	err := q.QueryRowContext(ctx,
		`SELECT best_score, xp, level, games_played FROM progress WHERE uid = ?`, uid,
	).Scan(&prog.BestScore, &prog.XP, &prog.Level, &prog.GamesPlayed)
	if errors.Is(err, sql.ErrNoRows) {
		return prog, nil
	}
	if err != nil {
		return prog, fmt.Errorf("load progress for %s: %w", uid, err)
	}
	return prog, nil
}

// RecordGame folds one finished round into the player's progress. The score is
// added to experience.
func (p *ProgressStore) RecordGame(ctx context.Context, uid string, score int) (models.Progress, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Progress{}, fmt.Errorf("record game: %w", err)
	}
	defer tx.Rollback()

	prog, err := loadProgress(ctx, tx, uid)
	if err != nil {
		return prog, err
	}
	if score > prog.BestScore {
		prog.BestScore = score
	}
	if score > 0 {
		prog.XP += score
	}
	prog.Level = LevelFor(prog.XP)
	prog.GamesPlayed++

	if _, err := tx.ExecContext(ctx, `INSERT INTO progress (uid, best_score, xp, level, games_played)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uid) DO UPDATE SET
			best_score = excluded.best_score,
			xp = excluded.xp,
			level = excluded.level,
			games_played = excluded.games_played`,
		uid, prog.BestScore, prog.XP, prog.Level, prog.GamesPlayed,
	); err != nil {
		return prog, fmt.Errorf("save progress for %s: %w", uid, err)
	}
	if err := tx.Commit(); err != nil {
		return prog, fmt.Errorf("save progress for %s: %w", uid, err)
	}
	return prog, nil
}

func (p *ProgressStore) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
