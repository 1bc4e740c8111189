package provider

import (
	"fmt"
	"strings"
)

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the section matching
// Backend is read; the rest may stay zero.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Ollama holds Ollama connection settings.
	Ollama ProviderOllama

	// OpenAI holds OpenAI API settings.
	OpenAI ProviderOpenAI

	// Groq holds Groq API settings.
	Groq ProviderGroq

	// AzureOpenAI holds Azure OpenAI Service settings.
	AzureOpenAI ProviderAzureOpenAI

	// Bedrock holds AWS Bedrock settings.
	Bedrock ProviderBedrock

	// Gemini holds Google Gemini settings.
	Gemini ProviderGemini

	// Tuning holds generation parameters shared by all backends.
	Tuning SharedTuning
}

// ProviderOllama holds Ollama connection settings.
type ProviderOllama struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434).
	Host string
	// Model is the Ollama model name.
	Model string
}

// ProviderOpenAI holds OpenAI API settings.
type ProviderOpenAI struct {
	// APIKey is the OpenAI API key.
	APIKey string
	// Model is the OpenAI model name.
	Model string
}

// ProviderGroq holds Groq API settings. Groq exposes an OpenAI-compatible
// API, so only the base URL and credentials differ from OpenAI proper.
type ProviderGroq struct {
	// APIKey is the Groq API key.
	APIKey string
	// Model is the Groq model name.
	Model string
	// BaseURL overrides the default https://api.groq.com/openai/v1.
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI Service settings.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure OpenAI API key.
	APIKey string
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string
	// Deployment is the Azure OpenAI deployment name.
	Deployment string
	// APIVersion is the Azure OpenAI REST API version (e.g. "2024-02-01").
	APIVersion string
}

// ProviderBedrock holds AWS Bedrock settings.
type ProviderBedrock struct {
	// AWSRegion is the AWS region for Bedrock.
	AWSRegion string
	// ModelID is the Bedrock model identifier.
	ModelID string
	// Endpoint overrides the Bedrock-compatible runtime endpoint.
	Endpoint string
	// APIKey is the runtime credential for the compatible endpoint.
	APIKey string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	// APIKey is the Google AI Studio API key.
	APIKey string
	// Model is the Gemini model name.
	Model string
}

// SharedTuning holds generation parameters applied to every backend that
// accepts them at construction time.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Validate checks that the section selected by Backend carries everything
// its constructor needs. Error messages name the environment variable the
// operator should set.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for the ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for the openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for the openai backend")
		}
	case BackendGroq:
		if c.Groq.APIKey == "" {
			return fmt.Errorf("provider: GROQ_API_KEY is required for the groq backend")
		}
		if c.Groq.Model == "" {
			return fmt.Errorf("provider: GROQ_MODEL is required for the groq backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for the azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for the azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for the azure backend")
		}
	case BackendBedrock:
		if c.Bedrock.ModelID == "" {
			return fmt.Errorf("provider: BEDROCK_MODEL_ID is required for the bedrock backend")
		}
		if c.Bedrock.AWSRegion == "" {
			return fmt.Errorf("provider: AWS_REGION is required for the bedrock backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for the gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for the gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q — valid values: ollama, openai, groq, azure, bedrock, gemini", c.Backend)
	}
	return nil
}

// isAzureReasoningModel reports whether an Azure deployment name looks like
// an o-series or codex-class reasoning model. Those deployments reject the
// temperature parameter, so the constructor must omit it.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
