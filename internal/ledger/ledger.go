// Package ledger orchestrates vote submission: content validation, spam
// window, song resolution, day-key derivation and the atomic quota-checked
// append. Nothing touches storage before the final append, so a crashed or
// timed-out submission leaves no partial vote and a retry is safe.
package ledger

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"rz-top100-srv/internal/database"
	"rz-top100-srv/internal/models"
	"rz-top100-srv/internal/resolver"
)

const (
	spamWindowSeconds = 60
	spamMaxIdentical  = 3
	spamCacheBytes    = 1024 * 1024
)

type Service struct {
	db       *sql.DB
	resolver *resolver.Resolver
	spam     *freecache.Cache
	loc      *time.Location
	limit    int
	logger   zerolog.Logger
}

func New(db *sql.DB, res *resolver.Resolver, loc *time.Location, voteLimit int, logger zerolog.Logger) *Service {
	return &Service{
		db:       db,
		resolver: res,
		spam:     freecache.NewCache(spamCacheBytes),
		loc:      loc,
		limit:    voteLimit,
		logger:   logger,
	}
}

// DayKey derives the local calendar day a submission counts under. It is
// computed once at acceptance time and never recomputed.
func (s *Service) DayKey(submittedAt time.Time) string {
	return submittedAt.In(s.loc).Format(models.DayKeyFormat)
}

// Submit runs the full ingestion pipeline for one inbound message. The
// returned error is non-nil only for transient infrastructure faults ("try
// again"); every expected rejection comes back as a SubmitResult value.
func (s *Service) Submit(ctx context.Context, channel models.Channel, channelUserID, rawText string, submittedAt time.Time) (*models.SubmitResult, error) {
	if !channel.Valid() {
		return nil, fmt.Errorf("unknown channel %q", channel)
	}
	userKey := models.UserKey(channel, channelUserID)

	if ok, msg := resolver.ValidateContent(rawText); !ok {
		return reject(models.RejectInvalid, msg), nil
	}

	if s.isSpam(userKey, rawText) {
		return reject(models.RejectSpam,
			"You've sent this message too many times.\n\nPlease wait a moment before trying again."), nil
	}

	song, err := s.resolver.Resolve(ctx, rawText)
	if err != nil {
		switch {
		case errors.Is(err, resolver.ErrUnparsable):
			return reject(models.RejectResolution,
				"Invalid format.\n\nPlease use: Artist - Title\nExample: Winky D - Ijipita"), nil
		case errors.Is(err, resolver.ErrNoMatch):
			return reject(models.RejectResolution,
				"Couldn't find that song in the catalog.\n\nCheck the spelling and try: Artist - Title"), nil
		default:
			// transient provider fault, bubbles to the channel adapter
			return nil, err
		}
	}

	vote := models.Vote{
		ID:            newVoteID(submittedAt),
		Channel:       channel,
		ChannelUserID: channelUserID,
		Song:          *song,
		DayKey:        s.DayKey(submittedAt),
		SubmittedAt:   submittedAt,
	}

	used, accepted, err := database.InsertVoteIfUnderQuota(ctx, s.db, vote, s.limit)
	if err != nil {
		return nil, fmt.Errorf("append vote: %w", err)
	}
	if !accepted {
		return reject(models.RejectQuota, fmt.Sprintf(
			"You have used all %d votes for today. Votes cannot be edited.\n\nCome back tomorrow to vote again!",
			s.limit)), nil
	}

	s.logger.Info().
		Str("user", userKey).
		Str("catalog_id", song.CatalogID).
		Str("day", vote.DayKey).
		Int("used", used).
		Msg("vote accepted")

	remaining := s.limit - used
	msg := fmt.Sprintf("Vote recorded!\n\n%s\n\nYou have %d vote%s remaining today.",
		models.DisplayName(song.Artist, song.Title), remaining, plural(remaining))
	if remaining == 0 {
		msg = fmt.Sprintf("Vote recorded!\n\n%s\n\nYou've used all your votes for today. Thanks for voting!",
			models.DisplayName(song.Artist, song.Title))
	}

	return &models.SubmitResult{
		Accepted:       true,
		Song:           song,
		VotesUsed:      used,
		VotesRemaining: remaining,
		Message:        msg,
	}, nil
}

// isSpam counts identical normalized messages from one user inside a short
// window. A cache fault never blocks the user.
func (s *Service) isSpam(userKey, text string) bool {
	sum := md5.Sum([]byte(models.Normalize(text)))
	key := []byte(fmt.Sprintf("spam:%s:%x", userKey, sum[:8]))

	n, err := s.spam.Get(key)
	count := 0
	if err == nil && len(n) == 1 {
		count = int(n[0])
	}
	if count >= spamMaxIdentical {
		return true
	}
	if err := s.spam.Set(key, []byte{byte(count + 1)}, spamWindowSeconds); err != nil {
		s.logger.Warn().Err(err).Msg("spam check cache error")
	}
	return false
}

func newVoteID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.Monotonic(rand.Reader, 0)).String()
}

func reject(reason models.RejectReason, msg string) *models.SubmitResult {
	return &models.SubmitResult{Reason: reason, Message: msg}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
