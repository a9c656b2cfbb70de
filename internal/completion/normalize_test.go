package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sghael/gpt-cli/internal/llm/openai"
	"github.com/sghael/gpt-cli/internal/pricing"
	"github.com/sghael/gpt-cli/internal/testutil"
)

// openStream serves the given SSE payloads and returns a live stream.
func openStream(testingHandle *testing.T, payloads []string) *openai.ChatStream {
	testingHandle.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		responseWriter.Header().Set("Content-Type", "text/event-stream")
		for _, payload := range payloads {
			fmt.Fprintf(responseWriter, "data: %s\n\n", payload)
		}
		fmt.Fprint(responseWriter, "data: [DONE]\n\n")
	}))
	testingHandle.Cleanup(server.Close)

	client := openai.NewClient(server.URL, "", 5*time.Second)
	stream, err := client.ChatCompletionsStream(context.Background(), &openai.ChatRequest{
		Model:    "gpt-4o",
		Messages: []openai.Message{{Role: "user", Content: "hi"}},
	})
	testutil.RequireNoError(testingHandle, err, "open stream")
	testingHandle.Cleanup(func() { stream.Close() })
	return stream
}

func collect(testingHandle *testing.T, events *Events) []Event {
	testingHandle.Helper()
	var collected []Event
	for events.Next() {
		collected = append(collected, events.Event())
	}
	return collected
}

func TestNormalizeStreaming(testingHandle *testing.T) {
	stream := openStream(testingHandle, []string{
		`{"choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"Hello "}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"world"}}]}`,
		`{"choices":[{"index":0,"delta":{"content":"ignored"},"finish_reason":"stop"}],"citations":["https://example.com/a","https://example.com/b"]}`,
		`{"choices":[],"usage":{"prompt_tokens":1000,"completion_tokens":2000,"total_tokens":3000}}`,
	})

	events := Normalize(Source{Stream: stream}, "gpt-4o")
	collected := collect(testingHandle, events)
	testutil.RequireNoError(testingHandle, events.Err(), "event iteration")
	testutil.RequireEqual(testingHandle, len(collected), 4, "event count")

	testutil.RequireEqual(testingHandle, collected[0], Event(TokenDelta{Text: "Hello "}), "first delta")
	testutil.RequireEqual(testingHandle, collected[1], Event(TokenDelta{Text: "world"}), "second delta")

	// The terminal chunk's content is suppressed but its citations are
	// appended as a numbered source list.
	testutil.RequireEqual(
		testingHandle,
		collected[2],
		Event(TokenDelta{Text: "\n\nhttps://example.com/a [1]\nhttps://example.com/b [2]\n"}),
		"citation delta",
	)

	usage, ok := collected[3].(Usage)
	testutil.RequireTrue(testingHandle, ok, "final event is usage")
	testutil.RequireEqual(testingHandle, usage.TotalTokens, 3000, "total tokens")
	cost, priced := usage.Cost()
	testutil.RequireTrue(testingHandle, priced, "gpt-4o has a pricing tier")
	testutil.RequireEqual(testingHandle, cost, pricing.Resolve("gpt-4o").Cost(1000, 2000), "turn cost")

	// Single pass: the sequence stays exhausted.
	testutil.RequireTrue(testingHandle, !events.Next(), "exhausted sequence")
}

func TestNormalizeStreamingDecodeError(testingHandle *testing.T) {
	stream := openStream(testingHandle, []string{
		`{"choices":[{"index":0,"delta":{"content":"partial"}}]}`,
		`{not json`,
		`{"choices":[{"index":0,"delta":{"content":"never seen"}}]}`,
	})

	events := Normalize(Source{Stream: stream}, "gpt-4o")
	collected := collect(testingHandle, events)
	testutil.RequireEqual(testingHandle, len(collected), 1, "events before the failure")
	testutil.RequireErrorIs(testingHandle, events.Err(), ErrCompletion, "decode failure kind")

	// No events follow a terminal error.
	testutil.RequireTrue(testingHandle, !events.Next(), "no events after error")
}

func TestNormalizeNonStreaming(testingHandle *testing.T) {
	events := Normalize(Source{Response: &openai.ChatResponse{
		Choices: []openai.ChatChoice{
			{Message: openai.Message{Role: "assistant", Content: "full answer"}},
		},
		Usage: &openai.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}}, "gpt-4o-mini")

	collected := collect(testingHandle, events)
	testutil.RequireNoError(testingHandle, events.Err(), "event iteration")
	testutil.RequireEqual(testingHandle, len(collected), 2, "event count")
	testutil.RequireEqual(testingHandle, collected[0], Event(TokenDelta{Text: "full answer"}), "content delta")

	usage, ok := collected[1].(Usage)
	testutil.RequireTrue(testingHandle, ok, "usage event present")
	testutil.RequireTrue(testingHandle, usage.Price != nil, "pricing tier attached")
}

func TestNormalizeNonStreamingWithoutUsage(testingHandle *testing.T) {
	events := Normalize(Source{Response: &openai.ChatResponse{
		Choices: []openai.ChatChoice{
			{Message: openai.Message{Role: "assistant", Content: "no accounting"}},
		},
	}}, "gpt-4o")

	collected := collect(testingHandle, events)
	testutil.RequireNoError(testingHandle, events.Err(), "event iteration")
	testutil.RequireEqual(testingHandle, collected, []Event{TokenDelta{Text: "no accounting"}}, "single delta, no usage")
}

func TestNormalizeUnknownModelOmitsPricing(testingHandle *testing.T) {
	events := Normalize(Source{Response: &openai.ChatResponse{
		Choices: []openai.ChatChoice{
			{Message: openai.Message{Role: "assistant", Content: "hi"}},
		},
		Usage: &openai.Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
	}}, "local-llama")

	collected := collect(testingHandle, events)
	usage, ok := collected[1].(Usage)
	testutil.RequireTrue(testingHandle, ok, "usage event present")
	_, priced := usage.Cost()
	testutil.RequireTrue(testingHandle, !priced, "unknown model has no cost")
}

func TestProviderError(testingHandle *testing.T) {
	cases := []struct {
		name     string
		err      error
		want     error
		contains string
	}{
		{
			name:     "bad request",
			err:      &openai.APIError{StatusCode: http.StatusBadRequest, Body: "context length exceeded"},
			want:     ErrBadRequest,
			contains: "context length exceeded",
		},
		{
			name:     "unprocessable entity",
			err:      &openai.APIError{StatusCode: http.StatusUnprocessableEntity, Body: "invalid temperature"},
			want:     ErrBadRequest,
			contains: "invalid temperature",
		},
		{
			name:     "server error",
			err:      &openai.APIError{StatusCode: http.StatusInternalServerError, Body: "overloaded"},
			want:     ErrCompletion,
			contains: "overloaded",
		},
		{
			name:     "transport error",
			err:      errors.New("connection reset"),
			want:     ErrCompletion,
			contains: "connection reset",
		},
	}
	for _, testCase := range cases {
		testingHandle.Run(testCase.name, func(testingHandle *testing.T) {
			mapped := ProviderError(testCase.err)
			testutil.RequireErrorIs(testingHandle, mapped, testCase.want, "error kind")
			testutil.RequireStringContains(testingHandle, mapped.Error(), testCase.contains, "provider message preserved")
		})
	}
}
