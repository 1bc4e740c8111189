// Package provider selects and constructs the LLM chat-model backend at
// runtime. The answer generator talks to whichever backend is configured
// through the eino model interface, so the rest of the engine never touches
// a provider SDK. Supported backends: Ollama, OpenAI, Groq, Azure OpenAI,
// AWS Bedrock, Google Gemini.
package provider

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendGroq selects the Groq API (OpenAI-compatible).
	BackendGroq Backend = "groq"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects AWS Bedrock.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)
