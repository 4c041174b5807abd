package decide

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lotas/tabgenius/internal/registry"
	"github.com/lotas/tabgenius/internal/types"
	"github.com/openai/openai-go"
)

// Silicon is the SiliconFlow provider. Its models take a single user
// message, so instructions and data travel together.
type Silicon struct {
	cfg  SiliconConfig
	chat *chatClient
}

func newSilicon(cfg SiliconConfig, opts ...Option) *Silicon {
	chat := &chatClient{
		kind:       KindSilicon,
		httpClient: http.DefaultClient,
		url:        cfg.Endpoint + "/v1/chat/completions",
		model:      cfg.Model,
		setAuth:    func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+cfg.APIKey) },
	}
	for _, o := range opts {
		o(chat)
	}
	return &Silicon{cfg: cfg, chat: chat}
}

func (s *Silicon) Kind() Kind { return KindSilicon }

func (s *Silicon) send(ctx context.Context, op, prompt string) (string, error) {
	return s.chat.complete(ctx, chatRequest{
		op:          op,
		messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		temperature: 0.6,
		topP:        0.95,
	})
}

func (s *Silicon) Validate(ctx context.Context) error {
	if err := s.cfg.Check(); err != nil {
		return err
	}
	if _, err := s.send(ctx, "validate", "\nPlease respond with: {\"test\": [0]}"); err != nil {
		return fmt.Errorf("silicon API test failed: %w", err)
	}
	return nil
}

func (s *Silicon) CategorizeBatch(ctx context.Context, tabs []TabSummary) (Categories, error) {
	return categorize(ctx, KindSilicon, tabs, func(ctx context.Context, payload string) (string, error) {
		return s.send(ctx, "categorize", categorizeInstructions+"\n\nHere are the tabs to categorize:\n"+payload)
	})
}

func (s *Silicon) DecidePlacement(ctx context.Context, tab TabSummary, reg *registry.Registry, pal *types.Palette) Placement {
	return decidePlacement(ctx, KindSilicon, tab, reg, pal, func(ctx context.Context, payload string) (string, error) {
		prompt := "You are a tab grouping assistant that helps organize browser tabs into meaningful groups.\n" +
			"Please analyze the following tab and decide whether it should join an existing group or start a new group.\n\n" +
			decideCriteria + "\n\nHere is the tab to analyze:\n" + payload
		return s.send(ctx, "decide", prompt)
	})
}
