package llm

// ChatRequest represents an OpenAI-style chat completion request.
// Generation overrides ride inline next to the messages.
type ChatRequest struct {
	Messages []Message `json:"messages"`
	Model    string    `json:"model,omitempty"` // accepted for compatibility, ignored
	Stream   bool      `json:"stream"`
	Stop     *string   `json:"stop,omitempty"`

	Options
}

// CompletionRequest represents a raw-prompt completion request.
type CompletionRequest struct {
	Prompt string  `json:"prompt"`
	Model  string  `json:"model,omitempty"` // accepted for compatibility, ignored
	Stream bool    `json:"stream"`
	Stop   *string `json:"stop,omitempty"`

	Options
}
