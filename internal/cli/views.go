package cli

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/roach88/contentsync/internal/actions"
	"github.com/roach88/contentsync/internal/content"
	"github.com/roach88/contentsync/internal/listing"
	"github.com/roach88/contentsync/internal/resource"
)

// table renders rows as aligned columns under header.
func table(header []string, rows [][]string) string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 1, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
	return b.String()
}

type actionView struct {
	ID       string `json:"id"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	App      string `json:"app,omitempty"`
	Position string `json:"position"`
	Icon     string `json:"icon,omitempty"`
}

func newActionView(a actions.Action) actionView {
	return actionView{
		ID:       a.ID,
		Title:    a.Title,
		URL:      a.URL,
		App:      a.App,
		Position: a.Position,
		Icon:     a.IconURL,
	}
}

func (v actionView) String() string {
	return actionList{v}.String()
}

type actionList []actionView

func (l actionList) String() string {
	if len(l) == 0 {
		return "No actions.\n"
	}
	rows := make([][]string, 0, len(l))
	for _, a := range l {
		rows = append(rows, []string{a.ID, a.Position, a.Title, a.URL})
	}
	return table([]string{"ID", "POSITION", "TITLE", "URL"}, rows)
}

type slotList struct {
	Width int      `json:"width"`
	Slots []string `json:"slots"`
}

func (l slotList) String() string {
	return fmt.Sprintf("%d free cells in a %d wide grid:\n%s\n", len(l.Slots), l.Width, strings.Join(l.Slots, " "))
}

// entryView is a content-resolved leaf.
type entryView struct {
	ID       resource.ID       `json:"id"`
	Name     string            `json:"name"`
	Tags     []string          `json:"tags,omitempty"`
	Content  json.RawMessage   `json:"content"`
	Variants map[string]string `json:"variants,omitempty"`
}

func newEntryView(e *listing.Entry) entryView {
	return entryView{
		ID:       e.Meta.ID,
		Name:     e.Meta.Name,
		Tags:     e.Meta.Tags,
		Content:  e.Content,
		Variants: e.Variants,
	}
}

type entryList []entryView

func (l entryList) String() string {
	if len(l) == 0 {
		return "No entries.\n"
	}
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		var c struct {
			Title string `json:"title"`
		}
		_ = json.Unmarshal(e.Content, &c)
		rows = append(rows, []string{string(e.ID), e.Name, c.Title})
	}
	return table([]string{"ID", "NAME", "TITLE"}, rows)
}

// collect gathers entries from a listing callback.
func collect(list func(fn func(*listing.Entry) bool) error) (entryList, error) {
	out := entryList{}
	err := list(func(e *listing.Entry) bool {
		if e == nil {
			return false
		}
		out = append(out, newEntryView(e))
		return true
	})
	return out, err
}

type resourceView struct {
	ID       resource.ID       `json:"id"`
	Name     string            `json:"name"`
	Kind     resource.Kind     `json:"kind"`
	Tags     []string          `json:"tags,omitempty"`
	Variants map[string]string `json:"variants,omitempty"`
}

func newResourceView(r *content.Resource) resourceView {
	meta := r.Meta()
	v := resourceView{
		ID:   meta.ID,
		Name: meta.Name,
		Kind: meta.Kind,
		Tags: meta.Tags,
	}
	for _, desc := range meta.Variants {
		if v.Variants == nil {
			v.Variants = make(map[string]string)
		}
		v.Variants[desc.Name] = fmt.Sprintf("%s (%s)", desc.MimeType, resource.FormatSize(desc.Size))
	}
	return v
}

func (v resourceView) String() string {
	return resourceList{v}.String()
}

type resourceList []resourceView

func (l resourceList) String() string {
	if len(l) == 0 {
		return "No resources.\n"
	}
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		names := make([]string, 0, len(r.Variants))
		for name := range r.Variants {
			names = append(names, name)
		}
		slices.Sort(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+"="+r.Variants[name])
		}
		rows = append(rows, []string{string(r.ID), r.Name, strings.Join(parts, ", ")})
	}
	return table([]string{"ID", "NAME", "VARIANTS"}, rows)
}

// message is a plain confirmation.
type message struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func (m message) String() string {
	return m.Message
}
