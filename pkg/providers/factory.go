package providers

import (
	"fmt"
	"os"
	"strings"

	"github.com/calicobot/calico/pkg/config"
)

// NewProvider selects and builds the inference provider from configuration.
// An explicit provider name wins; otherwise the first configured API key is
// used, checking config first and the conventional environment variable as a
// fallback.
func NewProvider(cfg *config.Config) (LLMProvider, error) {
	defaults := cfg.Agents.Defaults
	model := defaults.Model

	checkEnv := func(cfgVal, envKey string) string {
		if cfgVal != "" {
			return cfgVal
		}
		return os.Getenv(envKey)
	}

	openAICompat := func(pc config.ProviderConfig, envKey, defaultBase string) LLMProvider {
		base := pc.APIBase
		if base == "" {
			base = defaultBase
		}
		return NewOpenAIProvider(checkEnv(pc.APIKey, envKey), base, model)
	}

	if name := strings.ToLower(defaults.Provider); name != "" {
		switch name {
		case "anthropic":
			key := checkEnv(cfg.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY")
			return NewAnthropicProvider(key, cfg.Providers.Anthropic.APIBase, model, int64(defaults.MaxTokens)), nil
		case "openai":
			return openAICompat(cfg.Providers.OpenAI, "OPENAI_API_KEY", ""), nil
		case "openrouter":
			return openAICompat(cfg.Providers.OpenRouter, "OPENROUTER_API_KEY", "https://openrouter.ai/api/v1"), nil
		case "deepseek":
			return openAICompat(cfg.Providers.DeepSeek, "DEEPSEEK_API_KEY", "https://api.deepseek.com"), nil
		case "groq":
			return openAICompat(cfg.Providers.Groq, "GROQ_API_KEY", "https://api.groq.com/openai/v1"), nil
		case "zhipu":
			return openAICompat(cfg.Providers.Zhipu, "ZHIPU_API_KEY", "https://open.bigmodel.cn/api/paas/v4/"), nil
		case "vllm":
			return openAICompat(cfg.Providers.VLLM, "VLLM_API_KEY", ""), nil
		case "gemini":
			return openAICompat(cfg.Providers.Gemini, "GEMINI_API_KEY", "https://generativelanguage.googleapis.com/v1beta/openai/"), nil
		default:
			return nil, fmt.Errorf("unknown provider: %s", defaults.Provider)
		}
	}

	// Heuristic selection by configured key.
	if key := checkEnv(cfg.Providers.Anthropic.APIKey, "ANTHROPIC_API_KEY"); key != "" {
		return NewAnthropicProvider(key, cfg.Providers.Anthropic.APIBase, model, int64(defaults.MaxTokens)), nil
	}
	if key := checkEnv(cfg.Providers.OpenRouter.APIKey, "OPENROUTER_API_KEY"); key != "" {
		return openAICompat(cfg.Providers.OpenRouter, "OPENROUTER_API_KEY", "https://openrouter.ai/api/v1"), nil
	}
	if key := checkEnv(cfg.Providers.DeepSeek.APIKey, "DEEPSEEK_API_KEY"); key != "" {
		return openAICompat(cfg.Providers.DeepSeek, "DEEPSEEK_API_KEY", "https://api.deepseek.com"), nil
	}
	if key := checkEnv(cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY"); key != "" {
		return openAICompat(cfg.Providers.OpenAI, "OPENAI_API_KEY", ""), nil
	}
	if key := checkEnv(cfg.Providers.Gemini.APIKey, "GEMINI_API_KEY"); key != "" {
		return openAICompat(cfg.Providers.Gemini, "GEMINI_API_KEY", "https://generativelanguage.googleapis.com/v1beta/openai/"), nil
	}
	if key := checkEnv(cfg.Providers.Zhipu.APIKey, "ZHIPU_API_KEY"); key != "" {
		return openAICompat(cfg.Providers.Zhipu, "ZHIPU_API_KEY", "https://open.bigmodel.cn/api/paas/v4/"), nil
	}
	if key := checkEnv(cfg.Providers.Groq.APIKey, "GROQ_API_KEY"); key != "" {
		return openAICompat(cfg.Providers.Groq, "GROQ_API_KEY", "https://api.groq.com/openai/v1"), nil
	}
	if key := checkEnv(cfg.Providers.VLLM.APIKey, "VLLM_API_KEY"); key != "" {
		return openAICompat(cfg.Providers.VLLM, "VLLM_API_KEY", ""), nil
	}

	return nil, fmt.Errorf("no API key configured for any provider")
}
