package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/sghael/gpt-cli/internal/input"
	"github.com/sghael/gpt-cli/internal/render"
)

// runPrint sends one prompt and exits. With markdown enabled the full
// response is rendered once at the end; otherwise deltas stream to
// stdout as they arrive.
func (a *app) runPrint(prompt string) error {
	if prompt == "" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		prompt = strings.TrimSpace(string(raw))
	}
	if prompt == "" {
		return errors.New("prompt is required")
	}

	text, inlineOptions := input.Extract(prompt)
	params := a.params
	if err := params.Apply(inlineOptions); err != nil {
		return err
	}
	if text == "" {
		return errors.New("prompt is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a.session.AddUser(text)
	events, err := a.session.Send(ctx, params)
	if err != nil {
		return errors.New(formatTurnError(err))
	}

	display := render.NewSession(a.markdown)
	reply, usage, err := drainTurn(events, func(delta string) {
		display.Feed(delta)
		if !a.markdown {
			fmt.Print(delta)
		}
	})
	if err != nil {
		if !a.markdown {
			fmt.Println()
		}
		return errors.New(formatTurnError(err))
	}

	if a.markdown {
		fmt.Print(display.FinishTurn())
	} else {
		fmt.Println()
	}

	a.session.AddAssistant(reply)
	a.persistTurn(text, reply)
	if a.opts.Verbose {
		if line := formatUsage(usage); line != "" {
			fmt.Fprintln(os.Stderr, line)
		}
	}
	return nil
}
