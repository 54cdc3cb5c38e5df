package radarr

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Tag is a Radarr tag.
type Tag struct {
	ID    int    `json:"id,omitempty"`
	Label string `json:"label"`
}

// Movie is a Radarr movie. Only the fields reconciliation reads are modeled;
// everything else is kept verbatim so a PUT round-trips the full resource.
type Movie struct {
	ID     int
	Title  string
	Year   int
	TmdbID int64
	Tags   []int

	raw map[string]json.RawMessage
}

type movieFields struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Year   int    `json:"year"`
	TmdbID int64  `json:"tmdbId"`
	Tags   []int  `json:"tags"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Movie) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("radarr: decoding movie: %w", err)
	}

	var f movieFields
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("radarr: decoding movie: %w", err)
	}

	*m = Movie{
		ID:     f.ID,
		Title:  f.Title,
		Year:   f.Year,
		TmdbID: f.TmdbID,
		Tags:   f.Tags,
		raw:    raw,
	}

	return nil
}

// MarshalJSON implements json.Marshaler. Modeled fields override the raw
// copy, so tag edits are what gets saved.
func (m Movie) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.raw)+4)
	for k, v := range m.raw {
		out[k] = v
	}

	tags := m.Tags
	if tags == nil {
		tags = []int{}
	}

	out["id"] = m.ID
	out["title"] = m.Title
	out["tmdbId"] = m.TmdbID
	out["tags"] = tags

	if m.Year != 0 {
		out["year"] = m.Year
	}

	return json.Marshal(out)
}
