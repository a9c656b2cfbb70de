package completion

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sghael/gpt-cli/internal/llm/openai"
	"github.com/sghael/gpt-cli/internal/pricing"
)

// Source is the provider response feeding a normalization pass. Exactly
// one field is set: Stream for a streaming request, Response for a
// non-streaming one.
type Source struct {
	// Stream is an open streaming response. Consumed exactly once.
	Stream *openai.ChatStream
	// Response is a complete non-streaming response.
	Response *openai.ChatResponse
}

// Normalize turns a provider response into a lazy event sequence. The
// model identifier is used to resolve the pricing tier attached to the
// Usage event; pass the vendor model name, without gateway prefixes.
//
//	events := completion.Normalize(source, model)
//	defer events.Close()
//	for events.Next() {
//	    switch event := events.Event().(type) { ... }
//	}
//	if err := events.Err(); err != nil { ... }
func Normalize(source Source, model string) *Events {
	events := &Events{
		stream: source.Stream,
		price:  pricing.Resolve(model),
	}
	if source.Stream == nil {
		events.done = true
		if source.Response != nil {
			events.enqueueResponse(source.Response)
		}
	}
	return events
}

// Events iterates normalized completion events in arrival order. It is
// single-pass and not restartable; once Next returns false the
// sequence is finished.
type Events struct {
	// stream is the live provider stream, nil in non-streaming mode.
	stream *openai.ChatStream
	// price is the tier resolved once per turn for Usage events.
	price *pricing.Price
	// queue holds events decoded from the current chunk.
	queue []Event
	// current is the event returned by Event after a true Next.
	current Event
	// err is the terminal error, if any. No events follow it.
	err error
	// done is set when the source is exhausted.
	done bool
}

// Next advances to the next event. It returns false when the sequence
// is exhausted or a terminal error occurred; check Err afterwards.
func (e *Events) Next() bool {
	if e.err != nil {
		return false
	}
	for len(e.queue) == 0 {
		if e.done {
			return false
		}
		chunk, err := e.stream.Recv()
		if errors.Is(err, io.EOF) {
			e.done = true
			return false
		}
		if err != nil {
			e.err = ProviderError(err)
			e.done = true
			return false
		}
		e.enqueueChunk(chunk)
	}
	e.current = e.queue[0]
	e.queue = e.queue[1:]
	return true
}

// Event returns the event selected by the last successful Next call.
func (e *Events) Event() Event {
	return e.current
}

// Err returns the terminal error, or nil when the sequence ended
// normally.
func (e *Events) Err() error {
	return e.err
}

// Close releases the underlying provider stream, if any.
func (e *Events) Close() error {
	e.done = true
	if e.stream != nil {
		return e.stream.Close()
	}
	return nil
}

// enqueueChunk decodes one streaming chunk into zero or more events.
// Within a chunk, text deltas come first, then the citation list, then
// usage, so that Usage always trails every TokenDelta of the turn.
func (e *Events) enqueueChunk(chunk openai.StreamResponse) {
	for _, choice := range chunk.Choices {
		if choice.Delta.Content != "" && choice.FinishReason == nil {
			e.queue = append(e.queue, TokenDelta{Text: choice.Delta.Content})
		}
	}
	if len(chunk.Citations) > 0 {
		e.queue = append(e.queue, TokenDelta{Text: formatCitations(chunk.Citations)})
	}
	if chunk.Usage != nil {
		e.queue = append(e.queue, e.usageEvent(*chunk.Usage))
	}
}

// enqueueResponse decodes a complete non-streaming response.
func (e *Events) enqueueResponse(resp *openai.ChatResponse) {
	if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
		e.queue = append(e.queue, TokenDelta{Text: resp.Choices[0].Message.Content})
	}
	if resp.Usage != nil {
		e.queue = append(e.queue, e.usageEvent(*resp.Usage))
	}
}

func (e *Events) usageEvent(usage openai.Usage) Usage {
	return Usage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		Price:            e.price,
	}
}

// formatCitations renders a 1-indexed source list appended after the
// assistant text, separated by a blank line.
func formatCitations(citations []string) string {
	var builder strings.Builder
	builder.WriteString("\n\n")
	for i, url := range citations {
		fmt.Fprintf(&builder, "%s [%d]\n", url, i+1)
	}
	return builder.String()
}

// ProviderError maps a raw provider failure onto the completion error
// taxonomy. Request-validation rejections become ErrBadRequest; every
// other failure becomes ErrCompletion. The provider's message text is
// preserved in both cases.
func ProviderError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnprocessableEntity {
			return fmt.Errorf("%w: %s", ErrBadRequest, apiErr.Body)
		}
		return fmt.Errorf("%w: status %d: %s", ErrCompletion, apiErr.StatusCode, apiErr.Body)
	}
	return fmt.Errorf("%w: %w", ErrCompletion, err)
}
