package decide

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lotas/tabgenius/internal/applog"
	"github.com/lotas/tabgenius/internal/metrics"
	"github.com/openai/openai-go"
)

// chatRequest holds the sampling parameters of one completion call.
type chatRequest struct {
	op          string // "validate", "categorize" or "decide"
	messages    []openai.ChatCompletionMessageParamUnion
	temperature float64
	topP        float64 // omitted when zero
	maxTokens   int     // omitted when zero
}

// chatClient posts OpenAI-style chat completion requests.
type chatClient struct {
	kind       Kind
	httpClient *http.Client
	url        string
	model      string // omitted when empty; Azure encodes it in the URL
	setAuth    func(*http.Request)
}

func (c *chatClient) complete(ctx context.Context, r chatRequest) (string, error) {
	body := map[string]any{
		"messages":    r.messages,
		"temperature": r.temperature,
	}
	if c.model != "" {
		body["model"] = c.model
	}
	if r.topP != 0 {
		body["top_p"] = r.topP
	}
	if r.maxTokens != 0 {
		body["max_tokens"] = r.maxTokens
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveBackend(string(c.kind), r.op, time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("%s request: %w", c.kind, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read %s response: %w", c.kind, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s API error: %d - %s", c.kind, resp.StatusCode, string(raw))
	}

	var completion openai.ChatCompletion
	if err := json.Unmarshal(raw, &completion); err != nil {
		return "", fmt.Errorf("decode %s response: %w", c.kind, err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%s response has no choices", c.kind)
	}
	content := completion.Choices[0].Message.Content
	applog.Info("decide.reply", "provider", c.kind, "op", r.op, "content", content)
	return content, nil
}
