package openai

// StreamOptions configures OpenAI-compatible stream behavior.
type StreamOptions struct {
	// IncludeUsage requests token usage in the final stream payload.
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// StreamResponse is the OpenAI-compatible SSE response payload.
type StreamResponse struct {
	// ID is the provider request id.
	ID string `json:"id,omitempty"`
	// Model is the model identifier for the stream.
	Model string `json:"model,omitempty"`
	// Choices carries incremental delta updates.
	Choices []StreamChoice `json:"choices,omitempty"`
	// Usage reports tokens when stream_options.include_usage is enabled.
	Usage *Usage `json:"usage,omitempty"`
	// Citations lists source URLs some search-backed gateways attach to
	// the terminal chunk.
	Citations []string `json:"citations,omitempty"`
}

// StreamChoice represents a streaming choice delta.
type StreamChoice struct {
	// Index is the choice index.
	Index int `json:"index"`
	// Delta holds the incremental message update.
	Delta StreamDelta `json:"delta"`
	// FinishReason signals why generation stopped.
	FinishReason *string `json:"finish_reason,omitempty"`
}

// StreamDelta represents incremental message content.
type StreamDelta struct {
	// Role sets the assistant role on the first delta.
	Role string `json:"role,omitempty"`
	// Content holds streamed text.
	Content string `json:"content,omitempty"`
}
