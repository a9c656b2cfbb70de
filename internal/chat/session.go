// Package chat holds conversation state and drives completion turns.
package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sghael/gpt-cli/internal/completion"
	"github.com/sghael/gpt-cli/internal/llm/openai"
)

// compatPrefix marks a model routed through an OpenAI-compatible
// gateway. It is stripped before dispatch so the provider sees the
// underlying vendor model name.
const compatPrefix = "oai-compat:"

// Command classifies one input line.
type Command int

const (
	// CommandPrompt is a regular chat prompt.
	CommandPrompt Command = iota
	// CommandClear resets the conversation.
	CommandClear
	// CommandQuit exits the chat loop.
	CommandQuit
	// CommandRerun repeats the last completion request.
	CommandRerun
)

var commandWords = map[string]Command{
	"clear": CommandClear,
	"c":     CommandClear,
	"quit":  CommandQuit,
	"exit":  CommandQuit,
	"q":     CommandQuit,
	"rerun": CommandRerun,
	"r":     CommandRerun,
}

// ParseCommand classifies a trimmed input line. Anything that is not a
// known command word is a prompt.
func ParseCommand(line string) Command {
	if command, ok := commandWords[strings.ToLower(strings.TrimSpace(line))]; ok {
		return command
	}
	return CommandPrompt
}

// IsCommand reports whether a line is a chat command rather than a
// prompt, used to keep command words out of the input history.
func IsCommand(line string) bool {
	return ParseCommand(line) != CommandPrompt
}

// InvalidArgumentError reports a malformed or unrecognized inline
// option, e.g. `--temperature hot`.
type InvalidArgumentError struct {
	// Name is the option name without the leading dashes.
	Name string
	// Value is the rejected value, possibly empty.
	Value string
}

func (e *InvalidArgumentError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid argument: --%s", e.Name)
	}
	return fmt.Sprintf("invalid argument: --%s %s", e.Name, e.Value)
}

// Params are the per-turn generation settings.
type Params struct {
	// Model is the model identifier, possibly carrying the gateway
	// prefix.
	Model string
	// Temperature is forwarded verbatim when set.
	Temperature *float64
	// TopP is forwarded verbatim when set.
	TopP *float64
	// Stream toggles incremental output.
	Stream bool
}

// Apply folds inline options from a parsed prompt into the turn
// parameters. Unknown names and unparseable values yield an
// InvalidArgumentError.
func (p *Params) Apply(options map[string]string) error {
	for name, value := range options {
		switch name {
		case "model":
			if value == "" {
				return &InvalidArgumentError{Name: name}
			}
			p.Model = value
		case "temperature":
			parsed, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return &InvalidArgumentError{Name: name, Value: value}
			}
			p.Temperature = &parsed
		case "top_p":
			parsed, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return &InvalidArgumentError{Name: name, Value: value}
			}
			p.TopP = &parsed
		default:
			return &InvalidArgumentError{Name: name, Value: value}
		}
	}
	return nil
}

// Session is one conversation: the accumulated message list plus the
// client used to complete turns. It is not safe for concurrent use.
type Session struct {
	client   *openai.Client
	messages []openai.Message
}

// NewSession constructs a conversation. A non-empty system prompt
// becomes the first message and survives Clear.
func NewSession(client *openai.Client, systemPrompt string) *Session {
	session := &Session{client: client}
	if systemPrompt != "" {
		session.messages = append(session.messages, openai.Message{Role: "system", Content: systemPrompt})
	}
	return session
}

// AddUser appends a user turn.
func (s *Session) AddUser(text string) {
	s.messages = append(s.messages, openai.Message{Role: "user", Content: text})
}

// AddAssistant appends a finished assistant turn.
func (s *Session) AddAssistant(text string) {
	s.messages = append(s.messages, openai.Message{Role: "assistant", Content: text})
}

// RollbackUser drops a trailing user message. Called after the service
// rejects a request so the failing prompt is not resent on the next
// turn.
func (s *Session) RollbackUser() {
	if n := len(s.messages); n > 0 && s.messages[n-1].Role == "user" {
		s.messages = s.messages[:n-1]
	}
}

// Clear resets the conversation, keeping only the system prompt.
func (s *Session) Clear() {
	if len(s.messages) > 0 && s.messages[0].Role == "system" {
		s.messages = s.messages[:1]
		return
	}
	s.messages = nil
}

// PrepareRerun drops a trailing assistant message so the last user
// prompt can be completed again. It reports whether there is a user
// prompt to rerun.
func (s *Session) PrepareRerun() bool {
	if n := len(s.messages); n > 0 && s.messages[n-1].Role == "assistant" {
		s.messages = s.messages[:n-1]
	}
	n := len(s.messages)
	return n > 0 && s.messages[n-1].Role == "user"
}

// Messages returns the accumulated message list.
func (s *Session) Messages() []openai.Message {
	return s.messages
}

// Send completes the current conversation with the given parameters
// and returns the normalized event sequence. Request failures are
// mapped onto the completion error taxonomy.
func (s *Session) Send(ctx context.Context, params Params) (*completion.Events, error) {
	model := strings.TrimPrefix(params.Model, compatPrefix)
	request := &openai.ChatRequest{
		Model:       model,
		Messages:    s.messages,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	}

	if params.Stream {
		stream, err := s.client.ChatCompletionsStream(ctx, request)
		if err != nil {
			return nil, completion.ProviderError(err)
		}
		return completion.Normalize(completion.Source{Stream: stream}, model), nil
	}

	response, err := s.client.ChatCompletions(ctx, request)
	if err != nil {
		return nil, completion.ProviderError(err)
	}
	return completion.Normalize(completion.Source{Response: response}, model), nil
}
