package resolver

import (
	"regexp"
	"strings"
)

// Pattern to match the vote separator with flexible spacing:
// "artist - song", "artist- song", "artist -song", "artist-song"
var separatorPattern = regexp.MustCompile(`\s*-\s*`)

// Pattern to detect URLs/links
var urlPattern = regexp.MustCompile(`(?i)https?://|www\.|\b[a-zA-Z0-9-]+\.(com|org|net|io|co|me|buzz|info|biz|xyz|online|site|link|click)\b`)

// Pattern to detect emojis (common ranges)
var emojiPattern = regexp.MustCompile(`[\x{1F600}-\x{1F64F}]` + // emoticons
	`|[\x{1F300}-\x{1F5FF}]` + // misc symbols
	`|[\x{1F680}-\x{1F6FF}]` + // transport
	`|[\x{1F1E0}-\x{1F1FF}]` + // flags
	`|[\x{2702}-\x{27B0}]` + // dingbats
	`|[\x{1F900}-\x{1F9FF}]` + // supplemental
	`|[\x{1FA00}-\x{1FAFF}]` + // chess etc
	`|[\x{2600}-\x{26FF}]`) // misc symbols

const (
	maxEmojis      = 2
	maxMessageLen  = 100
	formatReminder = "Please send only your vote:\nArtist - Title\n\nExample: Winky D - Ijipita"
)

// ValidateContent rejects messages that cannot possibly be a vote before any
// parsing or catalog lookup: links, emoji floods, paragraphs. The returned
// message is user-facing reply text.
func ValidateContent(text string) (ok bool, userMsg string) {
	if urlPattern.MatchString(text) {
		return false, "Links are not allowed.\n\n" + formatReminder
	}
	if len(emojiPattern.FindAllString(text, -1)) > maxEmojis {
		return false, "Too many emojis.\n\n" + formatReminder
	}
	if len(text) > maxMessageLen {
		return false, "Message too long.\n\n" + formatReminder
	}
	if strings.Count(text, "\n") > 1 {
		return false, "Please send a single line vote.\n\n" + formatReminder
	}
	if strings.Count(text, ".")+strings.Count(text, "?")+strings.Count(text, "!") > 2 {
		return false, "Please send just the song vote.\n\n" + formatReminder
	}
	return true, ""
}

// ParseVote splits user input into artist and title halves on the first dash,
// tolerating any spacing around it. Both halves must carry at least two
// characters after trimming.
func ParseVote(text string) (artist, title string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, "-") {
		return "", "", false
	}

	parts := separatorPattern.Split(text, 2)
	if len(parts) != 2 {
		return "", "", false
	}

	artist = strings.TrimSpace(parts[0])
	title = strings.TrimSpace(parts[1])
	if len([]rune(artist)) < 2 || len([]rune(title)) < 2 {
		return "", "", false
	}
	return artist, title, true
}
