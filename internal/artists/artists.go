// Package artists holds the verified-artist list used to correct common
// typos and spelling variations in the artist half of a vote before the
// catalog lookup.
package artists

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"rz-top100-srv/internal/models"
)

// correctionThreshold is deliberately strict: prefer leaving an unknown
// artist untouched over mis-correcting it to the wrong one.
const correctionThreshold = 0.88

type Artist struct {
	Name    string
	Aliases []string
}

// List resolves raw artist text to a canonical verified name.
type List struct {
	// canonical maps every normalized name and alias to the display name
	canonical map[string]string
	names     []string
}

func NewList(artists []Artist) *List {
	l := &List{canonical: make(map[string]string)}
	for _, a := range artists {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		l.add(models.Normalize(name), name)
		for _, alias := range a.Aliases {
			if alias = strings.TrimSpace(alias); alias != "" {
				l.add(models.Normalize(alias), name)
			}
		}
	}
	return l
}

func (l *List) add(norm, display string) {
	if _, ok := l.canonical[norm]; !ok {
		l.canonical[norm] = display
		l.names = append(l.names, norm)
	}
}

func (l *List) Len() int { return len(l.names) }

// Correct returns the canonical verified name when the input matches a known
// artist exactly or within the similarity threshold, else the input as typed.
func (l *List) Correct(raw string) string {
	if l == nil || len(l.names) == 0 {
		return raw
	}
	norm := models.Normalize(raw)
	if norm == "" {
		return raw
	}
	if display, ok := l.canonical[norm]; ok {
		return display
	}

	jw := metrics.NewJaroWinkler()
	var best string
	var highestScore float64
	for _, cand := range l.names {
		score := strutil.Similarity(norm, cand, jw)
		if score > highestScore && score >= correctionThreshold {
			highestScore = score
			best = cand
		}
	}
	if best != "" {
		return l.canonical[best]
	}
	return raw
}

// canonical header mapping
var headerAliases = map[string]string{
	"name":        "name",
	"artist":      "name",
	"artist_name": "name",

	"aliases":     "aliases",
	"alias":       "aliases",
	"other_names": "aliases",

	"genre": "genre",
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// LoadCSV reads a verified-artist seed file. Aliases are separated by
// semicolons or pipes within the cell. Genre is accepted but unused here.
func LoadCSV(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artists csv: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}

func ParseCSV(r io.Reader) (*List, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rawHeaders, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	columnMap := make(map[int]string)
	for i, h := range rawHeaders {
		if canonical, ok := headerAliases[normalizeHeader(h)]; ok {
			columnMap[i] = canonical
		}
	}
	if len(columnMap) == 0 {
		return nil, errors.New("artists CSV has no recognizable columns")
	}

	var all []Artist
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		var a Artist
		for i, field := range record {
			switch columnMap[i] {
			case "name":
				a.Name = strings.TrimSpace(field)
			case "aliases":
				a.Aliases = splitAliases(field)
			}
		}
		if a.Name != "" {
			all = append(all, a)
		}
	}
	return NewList(all), nil
}

func splitAliases(field string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(field, func(r rune) bool {
		return r == ';' || r == '|'
	}) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
