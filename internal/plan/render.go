package plan

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/tabgenius/internal/types"
)

// GroupColor maps a tab group colour to a terminal colour.
func GroupColor(c types.Color) lipgloss.Color {
	switch c {
	case types.Grey:
		return lipgloss.Color("245")
	case types.Blue:
		return lipgloss.Color("33")
	case types.Red:
		return lipgloss.Color("196")
	case types.Yellow:
		return lipgloss.Color("220")
	case types.Green:
		return lipgloss.Color("34")
	case types.Pink:
		return lipgloss.Color("205")
	case types.Purple:
		return lipgloss.Color("135")
	case types.Cyan:
		return lipgloss.Color("51")
	default:
		return lipgloss.Color("250")
	}
}

const maxTitleWidth = 60

// Render formats the simulated layout, one block per window.
func Render(r *Result) string {
	headerStyle := lipgloss.NewStyle().Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	var b strings.Builder
	for _, w := range r.Windows {
		label := fmt.Sprintf("Window %d", w.ID)
		if !w.Normal() {
			label += " (" + w.Type + ", skipped)"
		}
		b.WriteString(headerStyle.Render(label))
		b.WriteByte('\n')

		l := LayoutOf(w)
		for _, gid := range l.Order {
			g := r.Groups[gid]
			style := lipgloss.NewStyle().Bold(true).Foreground(GroupColor(g.Color))
			b.WriteString("  " + style.Render(fmt.Sprintf("● %s", g.Title)))
			b.WriteString(dimStyle.Render(fmt.Sprintf(" [%s, %d]", g.Color, len(l.Members[gid]))))
			b.WriteByte('\n')
			for _, t := range l.Members[gid] {
				b.WriteString("      " + truncate(t.Title, maxTitleWidth) + "\n")
			}
		}
		for _, t := range l.Loose {
			b.WriteString("  " + dimStyle.Render("○ "+truncate(t.Title, maxTitleWidth)) + "\n")
		}
		b.WriteByte('\n')
	}

	if r.Bulk != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("%d groups planned, %d failed, %d tabs skipped",
			len(r.Bulk.Groups), r.Bulk.Failed, r.Bulk.Filtered)))
		b.WriteByte('\n')
	}
	return b.String()
}

func truncate(s string, n int) string {
	if s == "" {
		return "(untitled)"
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Layout is a window's tabs split by group, in tab order.
type Layout struct {
	Order   []int // group ids in order of first appearance
	Members map[int][]types.Tab
	Loose   []types.Tab
}

// LayoutOf splits w's tabs by group.
func LayoutOf(w types.Window) Layout {
	l := Layout{Members: make(map[int][]types.Tab)}
	for _, t := range w.Tabs {
		if !t.Grouped() {
			l.Loose = append(l.Loose, t)
			continue
		}
		if _, ok := l.Members[t.GroupID]; !ok {
			l.Order = append(l.Order, t.GroupID)
		}
		l.Members[t.GroupID] = append(l.Members[t.GroupID], t)
	}
	return l
}
