package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sghael/gpt-cli/internal/completion"
)

// drainTurn consumes one normalized event sequence, forwarding each
// text delta to onDelta. It returns the accumulated text and the usage
// event when the provider reported one.
func drainTurn(events *completion.Events, onDelta func(string)) (string, *completion.Usage, error) {
	defer events.Close()

	var text strings.Builder
	var usage *completion.Usage
	for events.Next() {
		switch event := events.Event().(type) {
		case completion.TokenDelta:
			text.WriteString(event.Text)
			if onDelta != nil {
				onDelta(event.Text)
			}
		case completion.Usage:
			reported := event
			usage = &reported
		}
	}
	return text.String(), usage, events.Err()
}

// formatUsage builds the after-turn accounting line.
func formatUsage(usage *completion.Usage) string {
	if usage == nil {
		return ""
	}
	line := fmt.Sprintf("Tokens: %d prompt + %d completion = %d", usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	if cost, ok := usage.Cost(); ok {
		line = fmt.Sprintf("%s | Cost: $%.6f", line, cost)
	}
	return line
}

// formatTurnError builds the user-facing message for a failed turn.
// Validation rejections tell the user the prompt was dropped; anything
// else invites a retry.
func formatTurnError(err error) string {
	if errors.Is(err, completion.ErrBadRequest) {
		return fmt.Sprintf("%v\nThe last prompt was not saved.", err)
	}
	return fmt.Sprintf("%v\nType 'r' or 'rerun' to try again.", err)
}
