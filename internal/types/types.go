package types

import (
	"math/rand/v2"
	"sync"
	"time"
)

// GroupNone is the host's group id for a tab that is not in any group.
const GroupNone = -1

// Tab load states reported by the host.
const (
	StatusLoading  = "loading"
	StatusComplete = "complete"
)

// Window types. Only normal windows take part in grouping.
const (
	WindowNormal   = "normal"
	WindowPopup    = "popup"
	WindowDevtools = "devtools"
)

// Tab represents a single browser tab as observed at query time.
type Tab struct {
	ID        int // host tab id; 0 if unknown
	Title     string
	URL       string
	WindowID  int // 0 if unknown
	GroupID   int // GroupNone (or 0) if ungrouped
	Status    string
	Incognito bool
}

// Grouped reports whether the tab currently belongs to a tab group.
func (t Tab) Grouped() bool {
	return t.GroupID > 0
}

// Window represents a browser window, optionally populated with its tabs.
type Window struct {
	ID        int
	Type      string
	Incognito bool
	Tabs      []Tab
}

// Normal reports whether the window is a regular browsing window.
func (w Window) Normal() bool {
	return w.Type == WindowNormal
}

// TabGroup represents a host tab group.
type TabGroup struct {
	ID       int
	Title    string
	Color    Color
	WindowID int
}

// Profile represents a Firefox profile.
type Profile struct {
	Name       string
	Path       string // absolute path to profile directory
	IsDefault  bool
	IsRelative bool
}

// SessionData holds the windows read from a Firefox session file.
type SessionData struct {
	Windows  []Window
	Groups   []TabGroup
	Profile  Profile
	ParsedAt time.Time
}

// Color is a tab group colour.
type Color string

const (
	Grey   Color = "grey"
	Blue   Color = "blue"
	Red    Color = "red"
	Yellow Color = "yellow"
	Green  Color = "green"
	Pink   Color = "pink"
	Purple Color = "purple"
	Cyan   Color = "cyan"
)

// Colors is the fixed group palette, in cycling order.
var Colors = []Color{Grey, Blue, Red, Yellow, Green, Pink, Purple, Cyan}

// Valid reports whether c is one of the palette colours.
func (c Color) Valid() bool {
	for _, p := range Colors {
		if p == c {
			return true
		}
	}
	return false
}

// Palette picks group colours. The zero value is not usable; use NewPalette.
type Palette struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPalette returns a palette seeded with seed. A zero seed uses a
// time-derived seed.
func NewPalette(seed uint64) *Palette {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Palette{rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Cycle returns the i-th palette colour, wrapping around.
func (p *Palette) Cycle(i int) Color {
	if i < 0 {
		i = -i
	}
	return Colors[i%len(Colors)]
}

// Random returns a uniformly random palette colour.
func (p *Palette) Random() Color {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Colors[p.rnd.IntN(len(Colors))]
}

// Preferences are the user's grouping options as stored by the settings UI.
type Preferences struct {
	Grouping  string // "ai", "domain" or "cancel"
	AutoGroup string // "always" or "disable"
	SortOrder string // "desc", "asc" or "disable"; stored, not consumed
}

// Preference values.
const (
	GroupingAI     = "ai"
	GroupingDomain = "domain"
	GroupingCancel = "cancel"

	AutoGroupAlways  = "always"
	AutoGroupDisable = "disable"

	SortDesc    = "desc"
	SortAsc     = "asc"
	SortDisable = "disable"
)

// GroupOptions selects the target of a group call. A zero GroupID creates a
// new group; a zero WindowID lets the host choose the tab's own window.
type GroupOptions struct {
	GroupID  int
	WindowID int
}

// GroupUpdate changes a group's title and/or colour. Empty fields are left
// unchanged.
type GroupUpdate struct {
	Title string
	Color Color
}
