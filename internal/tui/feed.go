package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/lotas/tabgenius/internal/engine"
)

// DefaultFeedSize is the number of outcomes kept.
const DefaultFeedSize = 200

type feedEntry struct {
	at      time.Time
	outcome engine.Outcome
}

// Feed is a bounded, newest-first list of placement outcomes with running
// totals per outcome kind.
type Feed struct {
	ShowSkipped bool

	size    int
	entries []feedEntry
	counts  map[engine.OutcomeKind]int
}

func NewFeed(size int) Feed {
	if size <= 0 {
		size = DefaultFeedSize
	}
	return Feed{size: size, counts: make(map[engine.OutcomeKind]int)}
}

// Add records o. The oldest entry is dropped when the feed is full.
func (f *Feed) Add(o engine.Outcome, at time.Time) {
	f.counts[o.Kind]++
	f.entries = append([]feedEntry{{at: at, outcome: o}}, f.entries...)
	if len(f.entries) > f.size {
		f.entries = f.entries[:f.size]
	}
}

// Clear drops entries and totals.
func (f *Feed) Clear() {
	f.entries = nil
	f.counts = make(map[engine.OutcomeKind]int)
}

// Len returns the number of entries kept, skipped ones included.
func (f *Feed) Len() int { return len(f.entries) }

func (f *Feed) Summary() string {
	return fmt.Sprintf("%d joined · %d created · %d skipped · %d failed",
		f.counts[engine.OutcomeJoined], f.counts[engine.OutcomeCreated],
		f.counts[engine.OutcomeSkipped], f.counts[engine.OutcomeFailed])
}

var kindColors = map[engine.OutcomeKind]lipgloss.Color{
	engine.OutcomeJoined:  lipgloss.Color("34"),
	engine.OutcomeCreated: lipgloss.Color("33"),
	engine.OutcomeSkipped: lipgloss.Color("240"),
	engine.OutcomeFailed:  lipgloss.Color("196"),
}

// View renders at most height lines.
func (f *Feed) View(height int) string {
	timeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	var lines []string
	for _, e := range f.entries {
		if len(lines) >= height {
			break
		}
		o := e.outcome
		if o.Kind == engine.OutcomeSkipped && !f.ShowSkipped {
			continue
		}
		kind := lipgloss.NewStyle().Foreground(kindColors[o.Kind]).Width(8).Render(string(o.Kind))
		lines = append(lines, fmt.Sprintf(" %s %s tab %d %s",
			timeStyle.Render(e.at.Format("15:04:05")), kind, o.TabID, describe(o)))
	}
	if len(lines) == 0 {
		return dimStyle.Render(" No placements yet.")
	}
	return strings.Join(lines, "\n")
}

func describe(o engine.Outcome) string {
	switch o.Kind {
	case engine.OutcomeJoined:
		return fmt.Sprintf("→ %q (%s)", o.Title, o.Mode)
	case engine.OutcomeCreated:
		return fmt.Sprintf("+ %q (%s)", o.Title, o.Mode)
	case engine.OutcomeFailed:
		if o.Err != nil {
			return o.Err.Error()
		}
		return "failed"
	default:
		return o.Reason
	}
}
