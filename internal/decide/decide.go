// Package decide talks to the LLM backends that categorize tabs and place
// single tabs into groups.
//
// Both operations are provider-agnostic: a Config names its backend
// explicitly, New returns the matching Provider, and every Provider shares the
// same response repair and reconciliation rules.
package decide

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/lotas/tabgenius/internal/registry"
	"github.com/lotas/tabgenius/internal/types"
)

var (
	// ErrConfigMissing means no configuration is stored for the active provider.
	ErrConfigMissing = errors.New("no configuration found for provider")
	// ErrInvalidConfig means a configuration is incomplete or malformed.
	ErrInvalidConfig = errors.New("incomplete provider configuration")
	// ErrResponseFormat means a categorization response was not a JSON
	// object, even after repair. It is fatal to the batch.
	ErrResponseFormat = errors.New("invalid response format: not an object")
	// ErrNoCategories means a categorization response parsed but was empty.
	ErrNoCategories = errors.New("no categories received from provider")
	// ErrDecisionParse means a single-tab decision response was malformed.
	// Callers degrade it to PlaceNone.
	ErrDecisionParse = errors.New("malformed placement decision")
)

// Kind identifies a decision backend.
type Kind string

const (
	KindAzure   Kind = "azure-openai"
	KindSilicon Kind = "siliconflow"
)

// ParseKind converts a stored provider name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.TrimSpace(s)) {
	case KindAzure:
		return KindAzure, nil
	case KindSilicon:
		return KindSilicon, nil
	}
	return "", fmt.Errorf("unknown provider %q", s)
}

// Config is a provider configuration. Implementations are AzureConfig and
// SiliconConfig.
type Config interface {
	Kind() Kind
	// Check reports missing or malformed fields without any network access.
	Check() error
	// Normalized returns the config with defaults applied and endpoints
	// cleaned up.
	Normalized() Config
}

// AzureConfig configures an Azure OpenAI deployment.
type AzureConfig struct {
	APIKey     string `json:"apiKey"`
	Endpoint   string `json:"endpoint"`
	Deployment string `json:"deploymentName"`
}

func (AzureConfig) Kind() Kind { return KindAzure }

func (c AzureConfig) Check() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	case c.Endpoint == "":
		return fmt.Errorf("%w: endpoint URL is required", ErrInvalidConfig)
	case !strings.HasPrefix(c.Endpoint, "https://"):
		return fmt.Errorf("%w: endpoint URL must start with https://", ErrInvalidConfig)
	case c.Deployment == "":
		return fmt.Errorf("%w: model deployment name is required", ErrInvalidConfig)
	}
	return nil
}

func (c AzureConfig) Normalized() Config {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	c.Deployment = strings.TrimSpace(c.Deployment)
	return c
}

// Silicon defaults.
const (
	DefaultSiliconEndpoint = "https://api.siliconflow.cn"
	DefaultSiliconModel    = "deepseek-ai/DeepSeek-R1-Distill-Qwen-1.5B"
)

// SiliconConfig configures the SiliconFlow chat completions API.
type SiliconConfig struct {
	APIKey   string `json:"apiKey"`
	Endpoint string `json:"endpoint,omitempty"`
	Model    string `json:"model"`
}

func (SiliconConfig) Kind() Kind { return KindSilicon }

func (c SiliconConfig) Check() error {
	switch {
	case c.APIKey == "":
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	case c.Model == "":
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	return nil
}

func (c SiliconConfig) Normalized() Config {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	if c.Endpoint == "" {
		c.Endpoint = DefaultSiliconEndpoint
	}
	c.Model = strings.TrimSpace(c.Model)
	if c.Model == "" {
		c.Model = DefaultSiliconModel
	}
	return c
}

// MarshalConfig encodes cfg for storage.
func MarshalConfig(cfg Config) ([]byte, error) {
	return json.Marshal(cfg)
}

// UnmarshalConfig decodes a stored config for the given kind.
func UnmarshalConfig(kind Kind, data []byte) (Config, error) {
	switch kind {
	case KindAzure:
		var c AzureConfig
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", kind, err)
		}
		return c, nil
	case KindSilicon:
		var c SiliconConfig
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode %s config: %w", kind, err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown provider %q", kind)
}

// TabSummary is what a backend sees of a tab: its title and bare hostname.
type TabSummary struct {
	Title string `json:"title"`
	Host  string `json:"url"`
}

// Category is one named bucket of tab indices into the categorized batch.
type Category struct {
	Name    string
	Indices []int
}

// Categories is a categorization result in response order.
type Categories []Category

// PlacementKind tags a Placement.
type PlacementKind int

const (
	PlaceNone PlacementKind = iota
	PlaceExisting
	PlaceNew
)

func (k PlacementKind) String() string {
	switch k {
	case PlaceExisting:
		return "existing"
	case PlaceNew:
		return "new"
	}
	return "none"
}

// Placement is the resolved decision for one tab. GroupID is set for
// PlaceExisting, Color for PlaceNew.
type Placement struct {
	Kind    PlacementKind
	GroupID int
	Title   string
	Color   types.Color
}

// Provider is one decision backend.
type Provider interface {
	Kind() Kind
	// Validate checks the configuration and sends a small test request.
	Validate(ctx context.Context) error
	// CategorizeBatch groups tabs into named categories of batch indices.
	CategorizeBatch(ctx context.Context, tabs []TabSummary) (Categories, error)
	// DecidePlacement chooses a group for tab against the groups in reg.
	// It never fails: any error yields PlaceNone.
	DecidePlacement(ctx context.Context, tab TabSummary, reg *registry.Registry, pal *types.Palette) Placement
}

// Option configures a Provider.
type Option func(*chatClient)

// WithHTTPClient sets the HTTP client used for backend requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cc *chatClient) {
		cc.httpClient = c
	}
}

// New returns the provider for cfg, selected by cfg's kind.
func New(cfg Config, opts ...Option) (Provider, error) {
	if cfg == nil {
		return nil, ErrConfigMissing
	}
	cfg = cfg.Normalized()
	switch c := cfg.(type) {
	case AzureConfig:
		return newAzure(c, opts...), nil
	case SiliconConfig:
		return newSilicon(c, opts...), nil
	}
	return nil, fmt.Errorf("unsupported provider config %T", cfg)
}
