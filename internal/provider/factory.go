package provider

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
)

// NewFromEnv builds the chat model selected by the MODEL_PROVIDER
// environment variable, reading each backend's native credential variables.
//
// Environment variables:
//
//	MODEL_PROVIDER = ollama | openai | groq | azure | bedrock | gemini (default: groq)
//
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o-mini)
//	Groq:    GROQ_API_KEY, GROQ_MODEL (default: llama-3.3-70b-versatile),
//	         GROQ_BASE_URL (default: https://api.groq.com/openai/v1)
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Bedrock: BEDROCK_MODEL_ID, AWS_REGION (default: us-east-1),
//	         BEDROCK_ENDPOINT, BEDROCK_API_KEY
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-1.5-flash)
//
//	Shared:  MODEL_MAX_TOKENS (default: 500), MODEL_TEMPERATURE (default: 0.3)
func NewFromEnv(ctx context.Context) (model.BaseChatModel, error) {
	cfg := &Config{
		Backend: Backend(getEnvOrDefault("MODEL_PROVIDER", string(BackendGroq))),
		Ollama: ProviderOllama{
			Host:  getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: getEnvOrDefault("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Groq: ProviderGroq{
			APIKey:  os.Getenv("GROQ_API_KEY"),
			Model:   getEnvOrDefault("GROQ_MODEL", "llama-3.3-70b-versatile"),
			BaseURL: os.Getenv("GROQ_BASE_URL"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Bedrock: ProviderBedrock{
			AWSRegion: getEnvOrDefault("AWS_REGION", "us-east-1"),
			ModelID:   os.Getenv("BEDROCK_MODEL_ID"),
			Endpoint:  os.Getenv("BEDROCK_ENDPOINT"),
			APIKey:    os.Getenv("BEDROCK_API_KEY"),
		},
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:  getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Tuning: SharedTuning{
			MaxTokens:   getEnvInt("MODEL_MAX_TOKENS", 500),
			Temperature: getEnvFloat32("MODEL_TEMPERATURE", 0.3),
		},
	}

	return New(ctx, cfg)
}

// New constructs a chat model from an explicit Config, delegating to the
// matching backend constructor. Validation runs first so a bad config fails
// at startup, not on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendGroq:
		return newGroq(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendBedrock:
		return newBedrock(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q — valid values: ollama, openai, groq, azure, bedrock, gemini", cfg.Backend)
	}
}

// getEnvOrDefault reads key from the environment, substituting fallback
// when the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt parses key as an integer, substituting fallback when the
// variable is unset, empty, or malformed.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

// getEnvFloat32 parses key as a float32, substituting fallback when the
// variable is unset, empty, or malformed.
func getEnvFloat32(key string, fallback float32) float32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return fallback
	}
	return float32(f)
}
