package decide

import (
	"encoding/json"
	"fmt"

	"github.com/lotas/tabgenius/internal/domain"
	"github.com/lotas/tabgenius/internal/registry"
)

const categorizeInstructions = `You are a tab categorization assistant. Given a list of browser tabs, group them into 2-10 meaningful categories. The response should be ONLY a JSON object where keys are category names and values are arrays of tab indices (0-based). Example format: {"Work": [0,3,5], "Social": [1,4], "News": [2,6]}`

const decideCriteria = `GROUPING CRITERIA:
1. Content Similarity: Check if the new tab's content aligns with any existing group's purpose
2. Topic Relationship: Look for semantic relationships between topics (e.g., 'React docs' and 'JavaScript tutorial' are related)
3. User Intent: Consider if tabs might be part of the same task or workflow
4. Domain Context: While not the only factor, related domains can indicate relationship

DECISION PROCESS:
1. First analyze the new tab's title and URL to understand its purpose
2. Review each existing group's tabs and title to understand their themes
3. Check for strong content/topic matches with existing groups
4. If no good match exists, suggest a meaningful new group name

Respond with ONLY a JSON object:
- To add to existing group: {"action": "add", "name": "Existing Group Name"}
- To create new group: {"action": "new", "name": "New Group Name"}`

const decideExamples = `Example decisions:
- New tab 'React Hooks Guide' should join a group containing 'React Components Tutorial'
- New tab 'CNN News' should join a group named 'News' containing other news sites
- New tab 'Python Job Listing' should create new 'Job Search' group if no job-related group exists`

const validateInstructions = `Test request. Respond with: {"test": [0]}`

type decisionGroup struct {
	ID   int          `json:"id"`
	Name string       `json:"name"`
	Tabs []TabSummary `json:"tabs"`
}

type decisionContext struct {
	NewTab         TabSummary      `json:"newTab"`
	ExistingGroups []decisionGroup `json:"existingGroups"`
}

// tabsJSON renders the batch the way it is shown to a backend.
func tabsJSON(tabs []TabSummary) (string, error) {
	if tabs == nil {
		tabs = []TabSummary{}
	}
	b, err := json.MarshalIndent(tabs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tabs: %w", err)
	}
	return string(b), nil
}

// contextJSON renders the new tab and the registry's groups. Member URLs are
// reduced to hostnames.
func contextJSON(tab TabSummary, reg *registry.Registry) (string, error) {
	ctx := decisionContext{NewTab: tab, ExistingGroups: []decisionGroup{}}
	for _, e := range reg.Entries() {
		g := decisionGroup{ID: e.GroupID, Name: e.Title, Tabs: []TabSummary{}}
		for _, t := range e.Tabs {
			g.Tabs = append(g.Tabs, TabSummary{Title: t.Title, Host: domain.Hostname(t.URL)})
		}
		ctx.ExistingGroups = append(ctx.ExistingGroups, g)
	}
	b, err := json.MarshalIndent(ctx, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal decision context: %w", err)
	}
	return string(b), nil
}
