// Package export writes a grouping preview as JSON or markdown.
package export

import (
	"encoding/json"
	"time"

	"github.com/lotas/tabgenius/internal/domain"
	"github.com/lotas/tabgenius/internal/plan"
	"github.com/lotas/tabgenius/internal/types"
)

type jsonExport struct {
	Profile    string       `json:"profile"`
	Mode       string       `json:"mode"`
	ExportedAt time.Time    `json:"exported_at"`
	Windows    []jsonWindow `json:"windows"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
}

type jsonWindow struct {
	ID        int         `json:"id"`
	Type      string      `json:"type"`
	Groups    []jsonGroup `json:"groups"`
	Ungrouped []jsonTab   `json:"ungrouped,omitempty"`
}

type jsonGroup struct {
	Title string    `json:"title"`
	Color string    `json:"color"`
	Tabs  []jsonTab `json:"tabs"`
}

type jsonTab struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Key   string `json:"key"`
}

// JSON formats a preview as an indented JSON document.
func JSON(r *plan.Result) (string, error) {
	out := jsonExport{
		Profile:    r.Profile,
		Mode:       r.Mode,
		ExportedAt: time.Now(),
		Windows:    make([]jsonWindow, 0, len(r.Windows)),
	}
	if r.Bulk != nil {
		out.Failed = r.Bulk.Failed
		out.Skipped = r.Bulk.Filtered
	}

	for _, w := range r.Windows {
		jw := jsonWindow{ID: w.ID, Type: w.Type, Groups: []jsonGroup{}}
		layout := plan.LayoutOf(w)
		for _, gid := range layout.Order {
			g := r.Groups[gid]
			jg := jsonGroup{Title: g.Title, Color: string(g.Color)}
			for _, t := range layout.Members[gid] {
				jg.Tabs = append(jg.Tabs, tabOf(t))
			}
			jw.Groups = append(jw.Groups, jg)
		}
		for _, t := range layout.Loose {
			jw.Ungrouped = append(jw.Ungrouped, tabOf(t))
		}
		out.Windows = append(out.Windows, jw)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

func tabOf(t types.Tab) jsonTab {
	return jsonTab{ID: t.ID, Title: t.Title, URL: t.URL, Key: domain.ExtractKey(t.URL)}
}
