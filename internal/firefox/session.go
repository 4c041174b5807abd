package firefox

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lotas/tabgenius/internal/types"
	"github.com/pierrec/lz4/v4"
)

var mozLz4Magic = []byte("mozLz40\x00")

// DecompressMozLz4 decodes a mozlz4 file: the magic, a little-endian uint32
// holding the decoded size, then one raw lz4 block.
func DecompressMozLz4(data []byte) ([]byte, error) {
	const headerSize = len("mozLz40\x00") + 4

	if len(data) < headerSize {
		return nil, fmt.Errorf("mozlz4: data too short (%d bytes)", len(data))
	}
	if !bytes.HasPrefix(data, mozLz4Magic) {
		return nil, fmt.Errorf("mozlz4: invalid header magic")
	}

	dst := make([]byte, binary.LittleEndian.Uint32(data[len(mozLz4Magic):headerSize]))
	n, err := lz4.UncompressBlock(data[headerSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: decompress failed: %w", err)
	}
	return dst[:n], nil
}

type rawEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawTab struct {
	Entries []rawEntry `json:"entries"`
	Index   int        `json:"index"`
	Group   string     `json:"groupId"`
}

type rawGroup struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type rawWindow struct {
	Tabs         []rawTab   `json:"tabs"`
	Groups       []rawGroup `json:"groups"`
	IsPopup      bool       `json:"isPopup"`
	IsTaskbarTab bool       `json:"isTaskbarTab"`
}

type rawSession struct {
	Windows []rawWindow `json:"windows"`
}

// ParseSession parses session JSON into windows, tabs and groups.
//
// The session file carries no runtime ids, so windows, tabs and groups are
// numbered from 1 in file order. Tabs without history entries are skipped;
// tabs referencing an undeclared group are treated as ungrouped.
func ParseSession(data []byte) (*types.SessionData, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session JSON: %w", err)
	}

	sd := &types.SessionData{
		ParsedAt: time.Now(),
	}

	nextTab, nextGroup := 1, 1
	for winIdx, rw := range raw.Windows {
		win := types.Window{ID: winIdx + 1, Type: types.WindowNormal}
		if rw.IsPopup || rw.IsTaskbarTab {
			win.Type = types.WindowPopup
		}

		groupIDs := make(map[string]int)
		for _, rg := range rw.Groups {
			if _, dup := groupIDs[rg.ID]; dup {
				continue
			}
			groupIDs[rg.ID] = nextGroup
			sd.Groups = append(sd.Groups, types.TabGroup{
				ID:       nextGroup,
				Title:    rg.Name,
				Color:    types.Color(rg.Color),
				WindowID: win.ID,
			})
			nextGroup++
		}

		for _, rt := range rw.Tabs {
			if len(rt.Entries) == 0 {
				continue
			}

			// index is 1-based; current page is entries[index-1].
			entryIdx := rt.Index - 1
			if entryIdx < 0 || entryIdx >= len(rt.Entries) {
				entryIdx = len(rt.Entries) - 1
			}
			entry := rt.Entries[entryIdx]

			tab := types.Tab{
				ID:       nextTab,
				URL:      entry.URL,
				Title:    entry.Title,
				WindowID: win.ID,
				GroupID:  types.GroupNone,
				Status:   types.StatusComplete,
			}
			if gid, ok := groupIDs[rt.Group]; ok && rt.Group != "" {
				tab.GroupID = gid
			}
			nextTab++
			win.Tabs = append(win.Tabs, tab)
		}

		sd.Windows = append(sd.Windows, win)
	}

	return sd, nil
}

// Tabs returns every tab of sd in window order.
func Tabs(sd *types.SessionData) []types.Tab {
	var out []types.Tab
	for _, w := range sd.Windows {
		out = append(out, w.Tabs...)
	}
	return out
}

// ReadSessionFile reads the session of the profile at profileDir, preferring
// the live recovery.jsonlz4 over previous.jsonlz4.
func ReadSessionFile(profileDir string) (*types.SessionData, error) {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	var data []byte
	var err error
	for _, name := range sessionFiles {
		data, err = os.ReadFile(filepath.Join(backupDir, name))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("no session file found in %s", backupDir)
	}

	decompressed, err := DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress session file: %w", err)
	}

	sd, err := ParseSession(decompressed)
	if err != nil {
		return nil, err
	}
	sd.Profile = types.Profile{Path: profileDir}
	return sd, nil
}
