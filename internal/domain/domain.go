// Package domain maps tab URLs to the keys used for domain grouping.
package domain

import (
	"net/url"
	"strings"

	"github.com/gobwas/glob"
)

// Fixed keys for URLs that have no meaningful hostname.
const (
	KeyOther        = "Other"
	KeyLocalFiles   = "Local Files"
	KeyBrowserPages = "Browser Pages"
)

var browserSchemes = map[string]bool{
	"chrome":           true,
	"chrome-extension": true,
	"edge":             true,
	"opera":            true,
	"about":            true,
	"moz-extension":    true,
}

// ExtractKey returns the grouping key for rawURL. It never fails: URLs that
// cannot be parsed, or that carry no host, map to KeyOther.
func ExtractKey(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" {
		return KeyOther
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "file" {
		return KeyLocalFiles
	}
	if browserSchemes[scheme] {
		return KeyBrowserPages
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return KeyOther
	}
	return strings.TrimPrefix(host, "www.")
}

// Hostname returns the bare hostname of rawURL, or "" if there is none.
// Only the hostname is ever sent to a decision backend.
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// blankPages are new-tab and blank pages that are never auto-grouped.
var blankPages = []string{
	"about:blank",
	"chrome://newtab/",
	"edge://newtab/",
	"about:newtab",
	"opera://startpage/",
}

// BlankMatcher recognises blank and new-tab pages, plus any extra
// user-configured URL globs.
type BlankMatcher struct {
	patterns []glob.Glob
}

// NewBlankMatcher compiles the built-in blank page set and the extra globs.
func NewBlankMatcher(extra ...string) (*BlankMatcher, error) {
	m := &BlankMatcher{}
	for _, p := range blankPages {
		m.patterns = append(m.patterns, glob.MustCompile(glob.QuoteMeta(p)))
	}
	// Parameterized blank page, e.g. about:blank?foo=bar.
	m.patterns = append(m.patterns, glob.MustCompile(glob.QuoteMeta("about:blank?")+"*"))
	for _, p := range extra {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, g)
	}
	return m, nil
}

// Match reports whether rawURL should be left alone by auto-grouping.
// An empty URL always matches.
func (m *BlankMatcher) Match(rawURL string) bool {
	if rawURL == "" {
		return true
	}
	for _, g := range m.patterns {
		if g.Match(rawURL) {
			return true
		}
	}
	return false
}
