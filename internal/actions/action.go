package actions

import (
	"encoding/json"
	"maps"
	"strconv"
	"strings"

	"github.com/roach88/contentsync/internal/resource"
)

// Action is a homescreen shortcut.
//
// Fields the store does not know about are kept in Extra and written back
// unchanged. The icon is stored as a separate variant and never appears in
// the JSON content.
type Action struct {
	ID       string
	Title    string
	URL      string
	App      string // manifest url of the app, if any
	Position string // "x,y" grid cell

	// Icon is the binary icon, when loaded or set for writing.
	Icon *resource.Blob
	// IconURL is the readable URL of the stored icon variant.
	IconURL string

	Extra map[string]json.RawMessage
}

var knownFields = []string{"id", "title", "url", "app", "position", "icon"}

// MarshalJSON implements json.Marshaler.
func (a Action) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+5)
	for k, v := range a.Extra {
		out[k] = v
	}
	out["id"] = a.ID
	out["position"] = a.Position
	if a.Title != "" {
		out["title"] = a.Title
	}
	if a.URL != "" {
		out["url"] = a.URL
	}
	if a.App != "" {
		out["app"] = a.App
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. An "icon" member is ignored.
func (a *Action) UnmarshalJSON(data []byte) error {
	var known struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		URL      string `json:"url"`
		App      string `json:"app"`
		Position string `json:"position"`
	}
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, k := range knownFields {
		delete(raw, k)
	}
	if len(raw) == 0 {
		raw = nil
	}

	*a = Action{
		ID:       known.ID,
		Title:    known.Title,
		URL:      known.URL,
		App:      known.App,
		Position: known.Position,
		Extra:    raw,
	}
	return nil
}

// Clone returns a copy that shares no mutable state with a.
func (a Action) Clone() Action {
	a.Extra = maps.Clone(a.Extra)
	if a.Icon != nil {
		icon := *a.Icon
		a.Icon = &icon
	}
	return a
}

// Cell parses Position. Malformed coordinates read as 0.
func (a Action) Cell() (x, y int) {
	xs, ys, _ := strings.Cut(a.Position, ",")
	x, _ = strconv.Atoi(strings.TrimSpace(xs))
	y, _ = strconv.Atoi(strings.TrimSpace(ys))
	return x, y
}
