package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/lotas/tabgenius/internal/plan"
)

// Markdown formats a preview as a markdown document.
func Markdown(r *plan.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Tab groups: %s (%s)\n", r.Profile, r.Mode)
	fmt.Fprintf(&b, "> Planned %s\n", time.Now().Format("2006-01-02 15:04"))

	for _, w := range r.Windows {
		if !w.Normal() {
			continue
		}
		fmt.Fprintf(&b, "\n## Window %d\n", w.ID)
		layout := plan.LayoutOf(w)
		for _, gid := range layout.Order {
			g := r.Groups[gid]
			tabs := layout.Members[gid]
			fmt.Fprintf(&b, "\n### %s (%s, %s)\n\n", g.Title, g.Color, plural(len(tabs)))
			for _, t := range tabs {
				fmt.Fprintf(&b, "- [%s](%s)\n", linkText(t.Title, t.URL), t.URL)
			}
		}
		if len(layout.Loose) > 0 {
			fmt.Fprintf(&b, "\n### Ungrouped (%s)\n\n", plural(len(layout.Loose)))
			for _, t := range layout.Loose {
				fmt.Fprintf(&b, "- [%s](%s)\n", linkText(t.Title, t.URL), t.URL)
			}
		}
	}
	return b.String()
}

func plural(n int) string {
	if n == 1 {
		return "1 tab"
	}
	return fmt.Sprintf("%d tabs", n)
}

func linkText(title, url string) string {
	if title == "" {
		title = url
	}
	return strings.NewReplacer("[", "\\[", "]", "\\]").Replace(title)
}
