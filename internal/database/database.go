package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"rz-top100-srv/internal/models"
)

//go:embed schema.sql
var schema string

// timeLayout is how instants are stored. RFC3339Nano in UTC keeps values
// comparable as text and re-aggregation deterministic.
const timeLayout = time.RFC3339Nano

// Open creates the data directory if needed and opens the SQLite database
// with the schema applied.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := Init(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Init runs the embedded schema and sets performance PRAGMAs.
func Init(db *sql.DB) error {
	// WAL so the daily aggregation read does not block concurrent submissions
	_, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA cache_size=-2000;")
	if err != nil {
		return err
	}
	_, err = db.Exec(schema)
	return err
}

// InsertVoteIfUnderQuota appends a vote only while the (user_key, day_key)
// pair holds fewer than limit votes. The count check and the insert are one
// statement, so SQLite's writer lock makes the whole reserve-and-append
// atomic: a concurrent burst from one user can never exceed the limit. The
// reported used count is read inside the same transaction, so it reflects
// exactly this attempt's outcome even under a concurrent burst.
func InsertVoteIfUnderQuota(ctx context.Context, db *sql.DB, v models.Vote, limit int) (used int, accepted bool, err error) {
	const query = `
	INSERT INTO votes (vote_id, channel, channel_user_id, user_key, catalog_id, artist, title, raw_query, day_key, submitted_at)
	SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
	WHERE (SELECT COUNT(*) FROM votes WHERE user_key = ? AND day_key = ?) < ?;`

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin vote tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query,
		v.ID, v.Channel, v.ChannelUserID, v.UserKey(),
		v.Song.CatalogID, v.Song.Artist, v.Song.Title, v.Song.RawQuery,
		v.DayKey, v.SubmittedAt.UTC().Format(timeLayout),
		v.UserKey(), v.DayKey, limit,
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert vote: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM votes WHERE user_key = ? AND day_key = ?",
		v.UserKey(), v.DayKey).Scan(&used); err != nil {
		return 0, false, fmt.Errorf("count votes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit vote: %w", err)
	}
	return used, rows > 0, nil
}

// CountVotes answers "how many votes has this user cast on this day". The
// ledger is the single source of truth for quota; no in-memory count is
// authoritative.
func CountVotes(ctx context.Context, db *sql.DB, userKey, dayKey string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM votes WHERE user_key = ? AND day_key = ?",
		userKey, dayKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return n, nil
}

// TotalVotes returns the ledger row count, used by tests and the health check.
func TotalVotes(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM votes").Scan(&n)
	return n, err
}

// VotesForDay reads one day's ledger slice across all channels, ordered by
// submission time so tallying is reproducible.
func VotesForDay(ctx context.Context, db *sql.DB, dayKey string) ([]models.Vote, error) {
	return queryVotes(ctx, db,
		`SELECT vote_id, channel, channel_user_id, catalog_id, artist, title, raw_query, day_key, submitted_at
		 FROM votes WHERE day_key = ? ORDER BY submitted_at, vote_id`, dayKey)
}

// VotesForRange reads the ledger between two day keys inclusive.
func VotesForRange(ctx context.Context, db *sql.DB, fromDay, toDay string) ([]models.Vote, error) {
	return queryVotes(ctx, db,
		`SELECT vote_id, channel, channel_user_id, catalog_id, artist, title, raw_query, day_key, submitted_at
		 FROM votes WHERE day_key >= ? AND day_key <= ? ORDER BY submitted_at, vote_id`, fromDay, toDay)
}

func queryVotes(ctx context.Context, db *sql.DB, query string, args ...any) ([]models.Vote, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		var submitted string
		if err := rows.Scan(&v.ID, &v.Channel, &v.ChannelUserID,
			&v.Song.CatalogID, &v.Song.Artist, &v.Song.Title, &v.Song.RawQuery,
			&v.DayKey, &submitted); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		v.SubmittedAt, err = time.Parse(timeLayout, submitted)
		if err != nil {
			return nil, fmt.Errorf("parse submitted_at %q: %w", submitted, err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// ReplaceSnapshot persists a day's chart, replacing any prior snapshot for
// that day in one transaction. A failure before commit leaves the previous
// snapshot untouched.
func ReplaceSnapshot(ctx context.Context, db *sql.DB, snap *models.ChartSnapshot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chart_entries WHERE day_key = ?", snap.DayKey); err != nil {
		return fmt.Errorf("clear chart entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM chart_meta WHERE day_key = ?", snap.DayKey); err != nil {
		return fmt.Errorf("clear chart meta: %w", err)
	}

	for _, e := range snap.Entries {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO chart_entries (day_key, rank, catalog_id, artist, title, vote_count) VALUES (?, ?, ?, ?, ?, ?)",
			snap.DayKey, e.Rank, e.CatalogID, e.Artist, e.Title, e.VoteCount); err != nil {
			return fmt.Errorf("insert chart entry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO chart_meta (day_key, computed_at) VALUES (?, ?)",
		snap.DayKey, snap.ComputedAt.UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("insert chart meta: %w", err)
	}

	return tx.Commit()
}

// GetSnapshot returns the snapshot for a day, or nil when none has been
// computed yet. Absence is not an error.
func GetSnapshot(ctx context.Context, db *sql.DB, dayKey string) (*models.ChartSnapshot, error) {
	var computed string
	err := db.QueryRowContext(ctx,
		"SELECT computed_at FROM chart_meta WHERE day_key = ?", dayKey).Scan(&computed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read chart meta: %w", err)
	}

	snap := &models.ChartSnapshot{DayKey: dayKey, Entries: []models.ChartEntry{}}
	snap.ComputedAt, err = time.Parse(timeLayout, computed)
	if err != nil {
		return nil, fmt.Errorf("parse computed_at %q: %w", computed, err)
	}

	rows, err := db.QueryContext(ctx,
		"SELECT rank, catalog_id, artist, title, vote_count FROM chart_entries WHERE day_key = ? ORDER BY rank",
		dayKey)
	if err != nil {
		return nil, fmt.Errorf("read chart entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.ChartEntry
		if err := rows.Scan(&e.Rank, &e.CatalogID, &e.Artist, &e.Title, &e.VoteCount); err != nil {
			return nil, fmt.Errorf("scan chart entry: %w", err)
		}
		snap.Entries = append(snap.Entries, e)
	}
	return snap, rows.Err()
}
