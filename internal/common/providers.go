package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/joseph-ayodele/ape/constants"
)

// ProviderConfig describes one LLM backend entry, in priority order.
type ProviderConfig struct {
	Type             string  `mapstructure:"type"`
	Model            string  `mapstructure:"model"`
	APIKey           string  `mapstructure:"api_key"`
	APIKeyEnv        string  `mapstructure:"api_key_env"`
	BaseURL          string  `mapstructure:"base_url"`
	Region           string  `mapstructure:"region"`
	Temperature      float32 `mapstructure:"temperature"`
	MaxTokens        int     `mapstructure:"max_tokens"`
	GuardrailID      string  `mapstructure:"guardrail_id"`
	GuardrailVersion string  `mapstructure:"guardrail_version"`
}

// LoadProviders returns the ordered provider list. An explicit file
// (yaml/json/toml, read through viper) wins; otherwise entries are derived
// from whichever credentials are present, in constants.DefaultProviderOrder.
func LoadProviders(cfg *Config) ([]ProviderConfig, error) {
	if cfg.LLM.ProvidersFile != "" {
		return loadProvidersFile(cfg)
	}

	var out []ProviderConfig
	for _, p := range constants.DefaultProviderOrder {
		pc := ProviderConfig{Type: string(p), Model: constants.DefaultModels[p]}
		switch p {
		case constants.ProviderGroq:
			pc.APIKey = cfg.LLM.GroqAPIKey
		case constants.ProviderOpenAI:
			pc.APIKey = cfg.LLM.OpenAIAPIKey
		case constants.ProviderAnthropic:
			pc.APIKey = cfg.LLM.AnthropicAPIKey
		case constants.ProviderOllama:
			if cfg.LLM.OllamaHost == "" {
				continue
			}
			pc.BaseURL = cfg.LLM.OllamaHost
		case constants.ProviderBedrock:
			if !cfg.AWS.Enabled {
				continue
			}
			pc.Region = cfg.AWS.Region
			if cfg.LLM.BedrockModel != "" {
				pc.Model = cfg.LLM.BedrockModel
			}
			pc.GuardrailID = cfg.LLM.GuardrailID
			pc.GuardrailVersion = cfg.LLM.GuardrailVersion
		}
		if p != constants.ProviderOllama && p != constants.ProviderBedrock && pc.APIKey == "" {
			continue
		}
		out = append(out, applyProviderDefaults(pc, cfg))
	}
	return out, nil
}

func loadProvidersFile(cfg *Config) ([]ProviderConfig, error) {
	v := viper.New()
	v.SetConfigFile(cfg.LLM.ProvidersFile)
	if err := v.ReadInConfig(); err != nil {
		return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("read providers file %s", cfg.LLM.ProvidersFile), err)
	}

	var file struct {
		Providers []ProviderConfig `mapstructure:"providers"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "decode providers file", err)
	}

	out := make([]ProviderConfig, 0, len(file.Providers))
	for i, pc := range file.Providers {
		t, ok := constants.CanonicalProvider(pc.Type)
		if !ok {
			return nil, NewAppError("CONFIG_ERROR", fmt.Sprintf("providers[%d]: unknown type %q", i, pc.Type), ErrInvalidInput)
		}
		pc.Type = string(t)
		if pc.APIKey == "" && pc.APIKeyEnv != "" {
			pc.APIKey = os.Getenv(pc.APIKeyEnv)
		}
		if pc.Model == "" {
			pc.Model = constants.DefaultModels[t]
		}
		if t == constants.ProviderBedrock && pc.Region == "" {
			pc.Region = cfg.AWS.Region
		}
		out = append(out, applyProviderDefaults(pc, cfg))
	}
	return out, nil
}

func applyProviderDefaults(pc ProviderConfig, cfg *Config) ProviderConfig {
	if pc.Temperature == 0 {
		pc.Temperature = cfg.LLM.Temperature
	}
	if pc.MaxTokens == 0 {
		pc.MaxTokens = cfg.LLM.MaxTokens
	}
	pc.Type = strings.ToLower(pc.Type)
	return pc
}
