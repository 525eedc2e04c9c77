package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rz-top100-srv/internal/artists"
	"rz-top100-srv/internal/database"
	"rz-top100-srv/internal/models"
	"rz-top100-srv/internal/resolver"
)

// catalogFake resolves every query to a catalog id derived from the
// normalized query, so case variants collapse to one identity.
type catalogFake struct {
	err     error
	noMatch bool
	calls   int
}

func (f *catalogFake) SearchTopMatch(_ context.Context, artist, title string) (*models.SongIdentity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.noMatch {
		return nil, nil
	}
	return &models.SongIdentity{
		CatalogID: "cat:" + models.MatchKey(artist, title),
		Artist:    artist,
		Title:     title,
	}, nil
}

func newTestService(t *testing.T, catalog resolver.CatalogSearcher) (*Service, *sql.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "votes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	res := resolver.New(catalog, artists.NewList(nil), 15*time.Minute, zerolog.Nop())
	return New(db, res, time.UTC, 5, zerolog.Nop()), db
}

func TestSubmit_FiveVotesThenQuotaExceeded(t *testing.T) {
	svc, _ := newTestService(t, &catalogFake{})
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		// distinct songs so the resolution cache stays out of the way
		text := fmt.Sprintf("Winky D - Song %d", i)
		res, err := svc.Submit(ctx, models.ChannelTelegram, "u1", text, at.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.True(t, res.Accepted, "vote %d", i)
		assert.Equal(t, i+1, res.VotesUsed)
		assert.Equal(t, 4-i, res.VotesRemaining)
	}

	res, err := svc.Submit(ctx, models.ChannelTelegram, "u1", "Winky D - Kasong Kejecha", at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, models.RejectQuota, res.Reason)
	assert.Contains(t, res.Message, "all 5 votes")
}

func TestSubmit_RepeatedIdenticalVotesEachCount(t *testing.T) {
	svc, db := newTestService(t, &catalogFake{})
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	// no edits, no dedupe: the same song twice uses two quota slots
	for i := 0; i < 2; i++ {
		res, err := svc.Submit(ctx, models.ChannelTelegram, "u1", "Winky D - Ijipita", at.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.True(t, res.Accepted)
	}

	n, err := database.CountVotes(ctx, db, "telegram:u1", "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSubmit_ResolutionFailureCreatesNoVote(t *testing.T) {
	svc, db := newTestService(t, &catalogFake{noMatch: true})
	ctx := context.Background()

	res, err := svc.Submit(ctx, models.ChannelTelegram, "u1", "Winky D - Ijipita", time.Now())
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, models.RejectResolution, res.Reason)

	n, err := database.TotalVotes(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, n, "rejected submission must not create a vote record")
}

func TestSubmit_UnparsableInputCreatesNoVote(t *testing.T) {
	svc, db := newTestService(t, &catalogFake{})
	ctx := context.Background()

	res, err := svc.Submit(ctx, models.ChannelTelegram, "u1", "what is this", time.Now())
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, models.RejectResolution, res.Reason)

	n, err := database.TotalVotes(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubmit_ProviderFaultBubblesAsError(t *testing.T) {
	svc, db := newTestService(t, &catalogFake{err: errors.New("timeout")})
	ctx := context.Background()

	_, err := svc.Submit(ctx, models.ChannelTelegram, "u1", "Winky D - Ijipita", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, resolver.ErrProvider)

	n, err := database.TotalVotes(ctx, db)
	require.NoError(t, err)
	assert.Zero(t, n, "a timed-out submission must leave no partial vote")
}

func TestSubmit_InvalidContentRejectedBeforeResolution(t *testing.T) {
	catalog := &catalogFake{}
	svc, _ := newTestService(t, catalog)

	res, err := svc.Submit(context.Background(), models.ChannelTelegram, "u1",
		"check out https://spam.example.com", time.Now())
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, models.RejectInvalid, res.Reason)
	assert.Zero(t, catalog.calls, "invalid content must not reach the provider")
}

func TestSubmit_SpamWindow(t *testing.T) {
	svc, _ := newTestService(t, &catalogFake{noMatch: true})
	ctx := context.Background()

	// same unresolvable text over and over; after 3 tries the window closes
	for i := 0; i < 3; i++ {
		res, err := svc.Submit(ctx, models.ChannelTelegram, "u1", "Winky D - Ijipita", time.Now())
		require.NoError(t, err)
		assert.Equal(t, models.RejectResolution, res.Reason)
	}

	res, err := svc.Submit(ctx, models.ChannelTelegram, "u1", "Winky D - Ijipita", time.Now())
	require.NoError(t, err)
	assert.Equal(t, models.RejectSpam, res.Reason)
}

func TestSubmit_ChannelsHaveIndependentQuotas(t *testing.T) {
	svc, _ := newTestService(t, &catalogFake{})
	ctx := context.Background()
	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		res, err := svc.Submit(ctx, models.ChannelTelegram, "12345",
			fmt.Sprintf("Winky D - Song %d", i), at.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.True(t, res.Accepted)
	}

	// same channel user id on WhatsApp is a different identity
	res, err := svc.Submit(ctx, models.ChannelWhatsApp, "12345", "Winky D - Extra", at.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
}

func TestSubmit_DayKeyUsesConfiguredTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Africa/Harare") // UTC+2, no DST
	require.NoError(t, err)

	db, err := database.Open(filepath.Join(t.TempDir(), "votes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	res := resolver.New(&catalogFake{}, artists.NewList(nil), time.Minute, zerolog.Nop())
	svc := New(db, res, loc, 5, zerolog.Nop())

	// 23:30 UTC on Jan 15 is already Jan 16 in Harare
	at := time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-01-16", svc.DayKey(at))

	out, err := svc.Submit(context.Background(), models.ChannelTelegram, "u1", "Winky D - Ijipita", at)
	require.NoError(t, err)
	require.True(t, out.Accepted)

	n, err := database.CountVotes(context.Background(), db, "telegram:u1", "2024-01-16")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubmit_UnknownChannel(t *testing.T) {
	svc, _ := newTestService(t, &catalogFake{})
	_, err := svc.Submit(context.Background(), models.Channel("sms"), "u1", "Winky D - Ijipita", time.Now())
	assert.Error(t, err)
}
