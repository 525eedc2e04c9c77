package models

import (
	"strings"
	"time"
)

// DayKeyFormat is the layout of a local calendar day key.
const DayKeyFormat = "2006-01-02"

type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
)

func (c Channel) Valid() bool {
	return c == ChannelTelegram || c == ChannelWhatsApp
}

// SongIdentity is the canonical catalog representation of a voted track.
type SongIdentity struct {
	CatalogID string `json:"catalog_id"`
	Artist    string `json:"artist"`
	Title     string `json:"title"`
	RawQuery  string `json:"raw_query,omitempty"`
}

// Vote is one accepted choice. Votes are append-only: once stored they are
// never edited or deleted, and DayKey is fixed at acceptance time.
type Vote struct {
	ID            string       `json:"vote_id"`
	Channel       Channel      `json:"channel"`
	ChannelUserID string       `json:"channel_user_id"`
	Song          SongIdentity `json:"song"`
	DayKey        string       `json:"day_key"`
	SubmittedAt   time.Time    `json:"submitted_at"`
}

// UserKey scopes identity per channel. Telegram and WhatsApp identities are
// independent spaces and are never unified.
func (v Vote) UserKey() string {
	return UserKey(v.Channel, v.ChannelUserID)
}

func UserKey(channel Channel, channelUserID string) string {
	return string(channel) + ":" + channelUserID
}

type ChartEntry struct {
	Rank      int    `json:"rank"`
	CatalogID string `json:"catalog_id"`
	Artist    string `json:"artist"`
	Title     string `json:"title"`
	VoteCount int    `json:"vote_count"`
}

// ChartSnapshot is the Top-N ranking for one day. At most one exists per
// day key; recomputation replaces it wholesale.
type ChartSnapshot struct {
	DayKey     string       `json:"day_key"`
	Entries    []ChartEntry `json:"entries"`
	ComputedAt time.Time    `json:"computed_at"`
}

type RejectReason string

const (
	RejectInvalid    RejectReason = "invalid_content"
	RejectResolution RejectReason = "resolution_failed"
	RejectQuota      RejectReason = "quota_exceeded"
	RejectSpam       RejectReason = "spam"
)

// SubmitResult is the outcome of one submission. Rejections are expected
// outcomes carried as values, not errors; Message is the user-facing reply
// text the channel adapter delivers back to the user.
type SubmitResult struct {
	Accepted       bool          `json:"accepted"`
	Song           *SongIdentity `json:"song,omitempty"`
	VotesUsed      int           `json:"votes_used,omitempty"`
	VotesRemaining int           `json:"votes_remaining,omitempty"`
	Reason         RejectReason  `json:"reason,omitempty"`
	Message        string        `json:"message"`
}

// Normalize prepares text for matching: trim, collapse runs of whitespace,
// lowercase. Used for cache keys and grouping only; display strings keep the
// original casing.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// MatchKey groups repeat lookups of the same song ahead of catalog resolution.
func MatchKey(artist, title string) string {
	return Normalize(artist) + "::" + Normalize(title)
}

// DisplayName builds the clean "Artist - Title" form shown back to users.
func DisplayName(artist, title string) string {
	return strings.Join(strings.Fields(artist), " ") + " - " + strings.Join(strings.Fields(title), " ")
}
