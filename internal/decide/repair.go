package decide

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"

	"github.com/lotas/tabgenius/internal/registry"
	"github.com/lotas/tabgenius/internal/types"
)

var (
	fencePattern      = regexp.MustCompile("```[a-zA-Z]*")
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Repair strips markdown code fences from a backend reply, collapses line
// breaks and whitespace runs to single spaces, and trims the result.
func Repair(s string) string {
	s = fencePattern.ReplaceAllString(s, "")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ParseCategories parses a categorization reply for a batch of n tabs.
// Indices that are out of range, non-integer or repeated are dropped, as are
// categories whose value is not an array. A reply that is not a JSON object
// fails with ErrResponseFormat.
func ParseCategories(raw string, n int) (Categories, error) {
	dec := json.NewDecoder(strings.NewReader(Repair(raw)))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil || tok != json.Delim('{') {
		return nil, ErrResponseFormat
	}

	var cats Categories
	pos := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResponseFormat, err)
		}
		name, _ := tok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrResponseFormat, err)
		}
		arr, ok := value.([]any)
		if !ok {
			continue
		}

		cat := Category{Name: name, Indices: validIndices(arr, n)}
		// Later duplicates replace earlier ones, as with any JSON object.
		if i, dup := pos[name]; dup {
			cats[i] = cat
			continue
		}
		pos[name] = len(cats)
		cats = append(cats, cat)
	}

	if tok, err := dec.Token(); err != nil || tok != json.Delim('}') {
		return nil, ErrResponseFormat
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data", ErrResponseFormat)
	}
	return cats, nil
}

func validIndices(arr []any, n int) []int {
	seen := make(map[int]bool, len(arr))
	out := make([]int, 0, len(arr))
	for _, v := range arr {
		num, ok := v.(json.Number)
		if !ok {
			continue
		}
		f, err := num.Float64()
		if err != nil || f != math.Trunc(f) || f < 0 || f >= float64(n) {
			continue
		}
		i := int(f)
		if seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	return out
}

// Decision is the raw single-tab reply: {"action": "add"|"new", "name": ...}.
type Decision struct {
	Action string `json:"action"`
	Name   string `json:"name"`
}

// ParseDecision parses a single-tab reply. Anything that is not a JSON
// object with string fields fails with ErrDecisionParse.
func ParseDecision(raw string) (Decision, error) {
	var d Decision
	cleaned := Repair(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return Decision{}, fmt.Errorf("%w: %q", ErrDecisionParse, cleaned)
	}
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrDecisionParse, err)
	}
	return d, nil
}

// Resolve reconciles a decision against the current registry. A name that
// matches an existing group always resolves to that group, whatever the
// action; otherwise only "new" creates a group. Everything else is PlaceNone.
func Resolve(d Decision, reg *registry.Registry, pal *types.Palette) Placement {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return Placement{}
	}
	if e, ok := reg.Lookup(name); ok {
		return Placement{Kind: PlaceExisting, GroupID: e.GroupID, Title: e.Title}
	}
	if d.Action == "new" {
		if pal == nil {
			pal = types.NewPalette(0)
		}
		return Placement{Kind: PlaceNew, Title: name, Color: pal.Random()}
	}
	return Placement{}
}
