package openai

// ChatRequest matches the OpenAI-compatible chat/completions request.
type ChatRequest struct {
	// Model is the provider model identifier.
	Model string `json:"model"`
	// Messages is the ordered conversation history.
	Messages []Message `json:"messages"`
	// Stream toggles server-sent events in the response.
	Stream bool `json:"stream,omitempty"`
	// StreamOptions configures streaming behavior, e.g. usage reporting.
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
	// Temperature controls randomness, forwarded verbatim when set.
	Temperature *float64 `json:"temperature,omitempty"`
	// TopP controls nucleus sampling, forwarded verbatim when set.
	TopP *float64 `json:"top_p,omitempty"`
}

// Message represents a chat message.
type Message struct {
	// Role is one of system, user, or assistant.
	Role string `json:"role"`
	// Content carries the message text.
	Content string `json:"content"`
}

// ChatResponse matches the OpenAI-compatible chat/completions response.
type ChatResponse struct {
	// ID is the request id from the provider.
	ID string `json:"id"`
	// Model is the model identifier the provider served.
	Model string `json:"model,omitempty"`
	// Choices contains the assistant messages.
	Choices []ChatChoice `json:"choices"`
	// Usage reports token counts when the provider supplies them.
	Usage *Usage `json:"usage,omitempty"`
}

// ChatChoice represents a single completion choice.
type ChatChoice struct {
	// Index is the choice index.
	Index int `json:"index"`
	// Message is the assistant response.
	Message Message `json:"message"`
	// FinishReason indicates why generation stopped.
	FinishReason string `json:"finish_reason"`
}

// Usage represents token usage info.
type Usage struct {
	// PromptTokens counts input tokens.
	PromptTokens int `json:"prompt_tokens"`
	// CompletionTokens counts output tokens.
	CompletionTokens int `json:"completion_tokens"`
	// TotalTokens is the sum of prompt and completion tokens.
	TotalTokens int `json:"total_tokens"`
}
