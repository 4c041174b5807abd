package decide

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lotas/tabgenius/internal/registry"
	"github.com/lotas/tabgenius/internal/types"
	"github.com/openai/openai-go"
)

const azureAPIVersion = "2023-05-15"

// Azure is the Azure OpenAI provider.
type Azure struct {
	cfg  AzureConfig
	chat *chatClient
}

func newAzure(cfg AzureConfig, opts ...Option) *Azure {
	chat := &chatClient{
		kind:       KindAzure,
		httpClient: http.DefaultClient,
		url: fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			cfg.Endpoint, cfg.Deployment, azureAPIVersion),
		setAuth: func(r *http.Request) { r.Header.Set("api-key", cfg.APIKey) },
	}
	for _, o := range opts {
		o(chat)
	}
	return &Azure{cfg: cfg, chat: chat}
}

func (a *Azure) Kind() Kind { return KindAzure }

func (a *Azure) Validate(ctx context.Context) error {
	if err := a.cfg.Check(); err != nil {
		return err
	}
	_, err := a.chat.complete(ctx, chatRequest{
		op: "validate",
		messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(validateInstructions),
			openai.UserMessage("test"),
		},
		temperature: 0.3,
		maxTokens:   50,
	})
	if err != nil {
		return fmt.Errorf("API test failed: %w", err)
	}
	return nil
}

func (a *Azure) CategorizeBatch(ctx context.Context, tabs []TabSummary) (Categories, error) {
	return categorize(ctx, KindAzure, tabs, func(ctx context.Context, payload string) (string, error) {
		return a.chat.complete(ctx, chatRequest{
			op: "categorize",
			messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(categorizeInstructions),
				openai.UserMessage("Categorize these tabs into groups:\n" + payload),
			},
			temperature: 0.3,
			maxTokens:   800,
		})
	})
}

func (a *Azure) DecidePlacement(ctx context.Context, tab TabSummary, reg *registry.Registry, pal *types.Palette) Placement {
	return decidePlacement(ctx, KindAzure, tab, reg, pal, func(ctx context.Context, payload string) (string, error) {
		system := "You are a tab grouping assistant that helps organize browser tabs into meaningful groups. " +
			"Your task is to decide whether a new tab should join an existing group or start a new group.\n\n" +
			decideCriteria + "\n\n" + decideExamples
		return a.chat.complete(ctx, chatRequest{
			op: "decide",
			messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(system),
				openai.UserMessage("Decide grouping for this tab:\n" + payload),
			},
			temperature: 0.3,
			maxTokens:   100,
		})
	})
}
