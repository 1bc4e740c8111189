package provider

import (
	"context"
	"fmt"

	einoark "github.com/cloudwego/eino-ext/components/model/ark"
	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// groqBaseURL is the OpenAI-compatible endpoint of the Groq API.
const groqBaseURL = "https://api.groq.com/openai/v1"

// newOllama constructs a chat model backed by a local Ollama instance.
func newOllama(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	host := cfg.Ollama.Host
	if host == "" {
		host = "http://localhost:11434"
	}
	m, err := einoollama.NewChatModel(ctx, &einoollama.ChatModelConfig{
		BaseURL: host,
		Model:   cfg.Ollama.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: ollama chat model: %w", err)
	}
	return m, nil
}

// newOpenAI constructs a chat model backed by the OpenAI API.
func newOpenAI(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	m, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.OpenAI.Model,
		APIKey:      cfg.OpenAI.APIKey,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: openai chat model: %w", err)
	}
	return m, nil
}

// newGroq constructs a chat model backed by the Groq API. Groq speaks the
// OpenAI wire protocol, so the OpenAI client is pointed at the Groq
// endpoint.
func newGroq(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	baseURL := cfg.Groq.BaseURL
	if baseURL == "" {
		baseURL = groqBaseURL
	}
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	m, err := einoopenai.NewChatModel(ctx, &einoopenai.ChatModelConfig{
		Model:       cfg.Groq.Model,
		APIKey:      cfg.Groq.APIKey,
		BaseURL:     baseURL,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: groq chat model: %w", err)
	}
	return m, nil
}

// newAzure constructs a chat model backed by Azure OpenAI Service.
func newAzure(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature

	mc := &einoopenai.ChatModelConfig{
		Model:      cfg.AzureOpenAI.Deployment,
		APIKey:     cfg.AzureOpenAI.APIKey,
		BaseURL:    cfg.AzureOpenAI.Endpoint,
		ByAzure:    true,
		APIVersion: cfg.AzureOpenAI.APIVersion,
		MaxTokens:  &maxTokens,
		// Use the deployment name as-is — the default mapper strips dots/colons
		// which breaks deployment names like "gpt-4.1".
		AzureModelMapperFunc: func(model string) string { return model },
	}
	// o-series and codex deployments reject the temperature parameter.
	if !isAzureReasoningModel(cfg.AzureOpenAI.Deployment) {
		mc.Temperature = &temp
	}

	m, err := einoopenai.NewChatModel(ctx, mc)
	if err != nil {
		return nil, fmt.Errorf("provider: azure chat model: %w", err)
	}
	return m, nil
}

// newBedrock constructs a chat model backed by AWS Bedrock through its
// OpenAI-compatible runtime endpoint.
// TODO: Replace with a dedicated Bedrock implementation when available in eino-ext.
func newBedrock(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	endpoint := cfg.Bedrock.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/openai/v1", cfg.Bedrock.AWSRegion)
	}
	maxTokens := cfg.Tuning.MaxTokens
	temp := cfg.Tuning.Temperature
	m, err := einoark.NewChatModel(ctx, &einoark.ChatModelConfig{
		Model:       cfg.Bedrock.ModelID,
		APIKey:      cfg.Bedrock.APIKey,
		BaseURL:     endpoint,
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: bedrock chat model: %w", err)
	}
	return m, nil
}

// newGemini constructs a chat model backed by Google Gemini (AI Studio).
func newGemini(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Gemini.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: gemini client: %w", err)
	}
	m, err := einogemini.NewChatModel(ctx, &einogemini.Config{
		Client: client,
		Model:  cfg.Gemini.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("provider: gemini chat model: %w", err)
	}
	return m, nil
}
