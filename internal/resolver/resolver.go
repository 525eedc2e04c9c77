// Package resolver maps free-text "Artist - Title" votes to canonical
// catalog song identities via the external search provider's top match,
// caching resolutions so repeated votes for the same song do not hit the
// provider again within the cache horizon.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/rs/zerolog"

	"rz-top100-srv/internal/artists"
	"rz-top100-srv/internal/models"
)

var (
	// ErrUnparsable: the input has no separable artist/title pair.
	ErrUnparsable = errors.New("input is not in Artist - Title form")
	// ErrNoMatch: the catalog returned no result for the query.
	ErrNoMatch = errors.New("no catalog match")
	// ErrProvider wraps transient provider faults (network, timeout). The
	// caller surfaces these as "try again", distinct from user rejections.
	ErrProvider = errors.New("catalog provider unavailable")
)

// CatalogSearcher is the external search collaborator. A nil identity with a
// nil error means the catalog has no match for the query.
type CatalogSearcher interface {
	SearchTopMatch(ctx context.Context, artist, title string) (*models.SongIdentity, error)
}

const cacheSizeBytes = 8 * 1024 * 1024

type Resolver struct {
	searcher CatalogSearcher
	verified *artists.List
	cache    *freecache.Cache
	ttl      int // seconds
	timeout  time.Duration
	logger   zerolog.Logger
}

func New(searcher CatalogSearcher, verified *artists.List, ttl time.Duration, logger zerolog.Logger) *Resolver {
	// freecache treats 0 as never-expire, so a sub-second TTL must round up
	// rather than truncate to permanent.
	ttlSec := int(ttl.Seconds())
	if ttlSec < 1 {
		ttlSec = 1
	}
	return &Resolver{
		searcher: searcher,
		verified: verified,
		cache:    freecache.NewCache(cacheSizeBytes),
		ttl:      ttlSec,
		timeout:  10 * time.Second,
		logger:   logger,
	}
}

// Resolve maps raw vote text to a catalog identity. Failure taxonomy:
// ErrUnparsable and ErrNoMatch are user-facing rejections; errors wrapping
// ErrProvider are transient faults. The original user text is preserved in
// RawQuery for audit.
func (r *Resolver) Resolve(ctx context.Context, rawText string) (*models.SongIdentity, error) {
	artist, title, ok := ParseVote(rawText)
	if !ok {
		return nil, ErrUnparsable
	}

	// Fix common artist misspellings against the verified list so variants
	// like "winkyd" and "Winky D" resolve through the same query.
	artist = r.verified.Correct(artist)

	key := models.MatchKey(artist, title)
	if song, ok := r.cacheGet(key); ok {
		song.RawQuery = rawText
		return song, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	song, err := r.searcher.SearchTopMatch(ctx, artist, title)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if song == nil {
		return nil, ErrNoMatch
	}

	r.cacheSet(key, song)
	r.logger.Debug().
		Str("query", key).
		Str("catalog_id", song.CatalogID).
		Msg("resolved song")

	song.RawQuery = rawText
	return song, nil
}

func (r *Resolver) cacheGet(key string) (*models.SongIdentity, bool) {
	raw, err := r.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	var song models.SongIdentity
	if err := json.Unmarshal(raw, &song); err != nil {
		return nil, false
	}
	return &song, true
}

func (r *Resolver) cacheSet(key string, song *models.SongIdentity) {
	// Cached value carries no RawQuery; each hit re-attaches its own raw text.
	stored := models.SongIdentity{CatalogID: song.CatalogID, Artist: song.Artist, Title: song.Title}
	raw, err := json.Marshal(stored)
	if err != nil {
		return
	}
	if err := r.cache.Set([]byte(key), raw, r.ttl); err != nil {
		r.logger.Warn().Err(err).Str("query", key).Msg("resolution cache set failed")
	}
}
