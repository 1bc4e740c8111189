package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// chatModelFragments lists name fragments of chat/completion model families.
// A dedicated embedding model never matches these; EMBEDDING_MODEL doing so
// almost always means the operator pasted the chat model name.
var chatModelFragments = []string{
	// OpenAI chat families.
	"gpt-3.5", "gpt-35", "gpt-4", "gpt-5", "o1", "o3",
	// Llama-family and other open-weight chat models.
	"llama-2", "llama-3", "llama2", "llama3",
	"mistral", "mixtral", "ministral",
	"gemma", "phi-", "phi3", "phi4",
	"qwen", "deepseek", "command-r",
	// Hosted assistants.
	"claude",
}

// looksLikeChatModel reports whether the model name matches a known chat
// family rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, frag := range chatModelFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// ValidateConfig is a pre-flight check of the embedding configuration. Every
// query embeds at least once (cache lookup) and often twice (dense search),
// so a broken embedder takes down the whole engine; this check turns that
// into a clear startup error instead of a cryptic failure on the first query.
func ValidateConfig(log *slog.Logger) error {
	backend := ResolveBackend()

	// Warn when the embedding backend is silently inherited from the chat
	// provider. The operator may have forgotten to set it.
	if backend != "ollama" && os.Getenv("EMBEDDING_PROVIDER") == "" {
		log.Warn("embedder: EMBEDDING_PROVIDER not set, falling back to MODEL_PROVIDER",
			slog.String("backend", backend),
			slog.String("hint", "set EMBEDDING_PROVIDER explicitly (ollama, openai, azure, gemini)"),
		)
	}

	switch backend {
	case "openai":
		if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: no OpenAI API key found — set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}

	case "azure":
		if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("AZURE_OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: no Azure API key found — set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if os.Getenv("EMBEDDING_ENDPOINT") == "" && os.Getenv("AZURE_OPENAI_ENDPOINT") == "" {
			return fmt.Errorf("embedder: no Azure endpoint found — set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}

	case "gemini":
		if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
			return fmt.Errorf("embedder: no Gemini API key found — set GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL names a chat model; embeddings will be poor or fail outright",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model such as nomic-embed-text or text-embedding-3-small"),
		)
	}

	return nil
}
