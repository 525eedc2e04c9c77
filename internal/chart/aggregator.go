// Package chart computes and serves the daily Top-100.
package chart

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"rz-top100-srv/internal/database"
	"rz-top100-srv/internal/models"
)

// Aggregator tallies one day's ledger slice into a ranked snapshot.
// Recomputation replaces the prior snapshot; with an unchanged ledger the
// entries come out identical, so re-runs are idempotent.
type Aggregator struct {
	db     *sql.DB
	size   int
	group  singleflight.Group
	logger zerolog.Logger

	now func() time.Time
}

func NewAggregator(db *sql.DB, chartSize int, logger zerolog.Logger) *Aggregator {
	return &Aggregator{db: db, size: chartSize, logger: logger, now: time.Now}
}

type tallyEntry struct {
	catalogID string
	artist    string
	title     string
	count     int
	// reachedAt is when the song arrived at its final count, i.e. the
	// submission time of its last counted vote. Ties order by it: songs
	// reaching a given count earlier rank higher.
	reachedAt time.Time
}

// Compute tallies the day's votes across all channels and persists the
// ranking, replacing any prior snapshot for that day. Runs for the same day
// are collapsed by a single-flight guard so a manual trigger cannot overlap
// the scheduled one. A ledger read failure aborts before anything is
// written, leaving the prior snapshot intact. A day with zero votes yields a
// valid empty snapshot.
func (a *Aggregator) Compute(ctx context.Context, dayKey string) (*models.ChartSnapshot, error) {
	if _, err := time.Parse(models.DayKeyFormat, dayKey); err != nil {
		return nil, fmt.Errorf("invalid day key %q: %w", dayKey, err)
	}

	v, err, _ := a.group.Do(dayKey, func() (any, error) {
		return a.compute(ctx, dayKey)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ChartSnapshot), nil
}

func (a *Aggregator) compute(ctx context.Context, dayKey string) (*models.ChartSnapshot, error) {
	started := a.now()
	a.logger.Info().Str("day", dayKey).Msg("computing daily chart")

	votes, err := database.VotesForDay(ctx, a.db, dayKey)
	if err != nil {
		return nil, fmt.Errorf("read day %s: %w", dayKey, err)
	}

	snap := &models.ChartSnapshot{
		DayKey:     dayKey,
		Entries:    rank(votes, a.size),
		ComputedAt: a.now().UTC(),
	}

	if err := database.ReplaceSnapshot(ctx, a.db, snap); err != nil {
		return nil, fmt.Errorf("persist snapshot %s: %w", dayKey, err)
	}

	a.logger.Info().
		Str("day", dayKey).
		Int("votes", len(votes)).
		Int("entries", len(snap.Entries)).
		Dur("took", a.now().Sub(started)).
		Msg("daily chart computed")
	return snap, nil
}

// rank tallies votes per catalog identity and orders them deterministically:
// count descending, then the instant the song reached that count ascending,
// then catalog id. Ranks are dense 1..N with no gaps.
func rank(votes []models.Vote, size int) []models.ChartEntry {
	tally := make(map[string]*tallyEntry)
	var order []*tallyEntry

	for _, v := range votes {
		e, ok := tally[v.Song.CatalogID]
		if !ok {
			e = &tallyEntry{
				catalogID: v.Song.CatalogID,
				artist:    v.Song.Artist,
				title:     v.Song.Title,
			}
			tally[v.Song.CatalogID] = e
			order = append(order, e)
		}
		e.count++
		// votes arrive sorted by submission time, so the last one seen is
		// the vote that reached the final count
		e.reachedAt = v.SubmittedAt
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		if !order[i].reachedAt.Equal(order[j].reachedAt) {
			return order[i].reachedAt.Before(order[j].reachedAt)
		}
		return order[i].catalogID < order[j].catalogID
	})

	if len(order) > size {
		order = order[:size]
	}

	entries := make([]models.ChartEntry, len(order))
	for i, e := range order {
		entries[i] = models.ChartEntry{
			Rank:      i + 1,
			CatalogID: e.catalogID,
			Artist:    e.artist,
			Title:     e.title,
			VoteCount: e.count,
		}
	}
	return entries
}

// WeeklyChart is a rolling 7-day aggregate. Unlike daily snapshots it is
// reported, not persisted.
type WeeklyChart struct {
	FromDay    string              `json:"from_day"`
	ToDay      string              `json:"to_day"`
	Entries    []models.ChartEntry `json:"entries"`
	ComputedAt time.Time           `json:"computed_at"`
}

// ComputeWeekly tallies the 7 days ending at endDay inclusive.
func (a *Aggregator) ComputeWeekly(ctx context.Context, endDay string) (*WeeklyChart, error) {
	end, err := time.Parse(models.DayKeyFormat, endDay)
	if err != nil {
		return nil, fmt.Errorf("invalid day key %q: %w", endDay, err)
	}
	fromDay := end.AddDate(0, 0, -6).Format(models.DayKeyFormat)

	votes, err := database.VotesForRange(ctx, a.db, fromDay, endDay)
	if err != nil {
		return nil, fmt.Errorf("read range %s..%s: %w", fromDay, endDay, err)
	}

	return &WeeklyChart{
		FromDay:    fromDay,
		ToDay:      endDay,
		Entries:    rank(votes, a.size),
		ComputedAt: a.now().UTC(),
	}, nil
}
