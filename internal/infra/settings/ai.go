package settings

import (
	"context"

	"github.com/cohesion-org/deepseek-go"
)

const (
	KeySystemPrompt = "system_prompt"
	KeyTemperature  = "temperature"

	KeyBochaAPIKey  = "bocha_api_key"
	KeyBochaEnabled = "bocha_enabled"
)

const (
	ProviderDeepSeek    = "deepseek"
	ProviderSiliconFlow = "siliconflow"
)

// DefaultSystemPrompt is used when system_prompt is unset.
const DefaultSystemPrompt = "You are Bezhuang AI, a helpful assistant. When the user asks for real-time " +
	"information such as the weather, the time or the news, call the matching tool to get accurate " +
	"data first, then answer naturally in the user's language."

const defaultTemperature = 0.7

// ProviderSettings is the per-provider slice of ai_config. Keys are prefixed
// with the provider name, e.g. deepseek_model or siliconflow_enabled.
type ProviderSettings struct {
	Name          string
	APIKey        string
	BaseURL       string
	Model         string
	ReasonerModel string
	MaxTokens     int
	Temperature   float64
	Enabled       bool
}

type providerDefaults struct {
	baseURL, model, reasonerModel string
	enabled                       bool
}

var knownProviders = map[string]providerDefaults{
	ProviderDeepSeek: {
		baseURL:       "https://api.deepseek.com",
		model:         deepseek.DeepSeekChat,
		reasonerModel: deepseek.DeepSeekReasoner,
		enabled:       true,
	},
	ProviderSiliconFlow: {
		baseURL:       "https://api.siliconflow.cn/v1",
		model:         "deepseek-ai/DeepSeek-V2.5",
		reasonerModel: "deepseek-ai/DeepSeek-V2.5",
		enabled:       false,
	},
}

// Providers lists the provider names in preference order.
func Providers() []string {
	return []string{ProviderDeepSeek, ProviderSiliconFlow}
}

// Provider resolves the settings of a known provider. Temperature falls back
// from <name>_temperature to the global temperature key, then 0.7.
func (s *Store) Provider(ctx context.Context, name string) ProviderSettings {
	d := knownProviders[name]
	globalTemp := s.Float(ctx, KeyTemperature, defaultTemperature)
	return ProviderSettings{
		Name:          name,
		APIKey:        s.String(ctx, name+"_api_key", ""),
		BaseURL:       s.String(ctx, name+"_base_url", d.baseURL),
		Model:         s.String(ctx, name+"_model", d.model),
		ReasonerModel: s.String(ctx, name+"_reasoner_model", d.reasonerModel),
		MaxTokens:     s.Int(ctx, name+"_max_tokens", 4096),
		Temperature:   s.Float(ctx, name+"_temperature", globalTemp),
		Enabled:       s.Bool(ctx, name+"_enabled", d.enabled),
	}
}

// APIKey returns the current credential for a provider. It satisfies the
// per-call key lookup used by the LLM client.
func (s *Store) APIKey(ctx context.Context, provider string) string {
	return s.String(ctx, provider+"_api_key", "")
}

func (s *Store) ProviderEnabled(ctx context.Context, provider string) bool {
	return s.Bool(ctx, provider+"_enabled", knownProviders[provider].enabled)
}

func (s *Store) SystemPrompt(ctx context.Context) string {
	return s.String(ctx, KeySystemPrompt, DefaultSystemPrompt)
}

// SearchSettings is the Bocha slice of ai_config.
type SearchSettings struct {
	APIKey  string
	Enabled bool
}

func (s *Store) Search(ctx context.Context) SearchSettings {
	return SearchSettings{
		APIKey:  s.String(ctx, KeyBochaAPIKey, ""),
		Enabled: s.Bool(ctx, KeyBochaEnabled, true),
	}
}
