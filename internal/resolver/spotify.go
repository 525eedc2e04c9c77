package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/time/rate"

	"rz-top100-srv/internal/models"
)

// SpotifySearcher resolves votes against the Spotify catalog with top-match
// semantics: the first result is accepted unconditionally, no score
// thresholding and no disambiguation. Homonym misresolution is an accepted
// trade-off.
type SpotifySearcher struct {
	client  *spotify.Client
	limiter *rate.Limiter
	market  string
}

func NewSpotifySearcher(client *spotify.Client, market string) *SpotifySearcher {
	return &SpotifySearcher{
		client: client,
		// Spotify's client-credentials tier tolerates a few requests per
		// second; stay well under it
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		market:  market,
	}
}

func (s *SpotifySearcher) SearchTopMatch(ctx context.Context, artist, title string) (*models.SongIdentity, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := artist + " " + title
	opts := []spotify.RequestOption{spotify.Limit(1)}
	if s.market != "" {
		opts = append(opts, spotify.Market(s.market))
	}

	res, err := s.client.Search(ctx, query, spotify.SearchTypeTrack, opts...)
	if err != nil {
		return nil, fmt.Errorf("spotify search: %w", err)
	}
	if res.Tracks == nil || len(res.Tracks.Tracks) == 0 {
		return nil, nil
	}

	return transform(res.Tracks.Tracks[0]), nil
}

func transform(st spotify.FullTrack) *models.SongIdentity {
	names := make([]string, len(st.Artists))
	for i, a := range st.Artists {
		names[i] = a.Name
	}

	return &models.SongIdentity{
		CatalogID: string(st.ID),
		Artist:    strings.Join(names, ", "),
		Title:     st.Name,
	}
}
