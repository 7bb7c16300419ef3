package config

import (
	"time"
)

type LLMConfig struct {
	APIURL           string
	APIKey           string
	Model            string
	PollInterval     time.Duration
	CompletionWindow string
	MaxTokens        int
}

func loadLLMConfig() LLMConfig {
	return LLMConfig{
		APIURL:           getEnv("LLM_API_URL", "https://api.groq.com/openai/v1"),
		APIKey:           getEnv("LLM_API_KEY", ""),
		Model:            getEnv("LLM_MODEL", "llama-3.3-70b-versatile"),
		PollInterval:     getEnvDuration("LLM_POLL_INTERVAL", 10*time.Second),
		CompletionWindow: getEnv("LLM_COMPLETION_WINDOW", "24h"),
		MaxTokens:        getEnvInt("LLM_MAX_TOKENS", 1500),
	}
}
