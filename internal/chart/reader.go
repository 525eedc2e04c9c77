package chart

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"rz-top100-srv/internal/database"
	"rz-top100-srv/internal/models"
)

// Reader serves previously computed snapshots. It never falls back to a
// stale day: before the aggregator has run for the requested day the answer
// is an explicit nil ("not yet computed"), not an error.
type Reader struct {
	db  *sql.DB
	loc *time.Location

	now func() time.Time
}

func NewReader(db *sql.DB, loc *time.Location) *Reader {
	return &Reader{db: db, loc: loc, now: time.Now}
}

// TodayKey is the current local calendar date.
func (r *Reader) TodayKey() string {
	return r.now().In(r.loc).Format(models.DayKeyFormat)
}

// Today returns today's snapshot, or nil when the aggregator has not run yet.
func (r *Reader) Today(ctx context.Context) (*models.ChartSnapshot, error) {
	return database.GetSnapshot(ctx, r.db, r.TodayKey())
}

// Day returns the snapshot for an explicit day key, or nil when absent.
func (r *Reader) Day(ctx context.Context, dayKey string) (*models.ChartSnapshot, error) {
	if _, err := time.Parse(models.DayKeyFormat, dayKey); err != nil {
		return nil, fmt.Errorf("invalid day key %q: %w", dayKey, err)
	}
	return database.GetSnapshot(ctx, r.db, dayKey)
}
