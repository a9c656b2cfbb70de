package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/peterh/liner"

	"github.com/sghael/gpt-cli/internal/chat"
	"github.com/sghael/gpt-cli/internal/completion"
	"github.com/sghael/gpt-cli/internal/input"
)

// runREPL drives the line-based prompt loop. Assistant output streams
// to stdout as raw text; the full-screen UI handles markdown.
func (a *app) runREPL() error {
	editor := liner.NewLiner()
	editor.SetCtrlCAborts(true)
	defer func() {
		saveInputHistory(editor)
		editor.Close()
	}()
	loadInputHistory(editor)

	for {
		line, err := editor.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				// Interrupt aborts the pending line and re-prompts.
				fmt.Println()
				continue
			}
			// EOF exits the loop.
			fmt.Println()
			return nil
		}

		switch chat.ParseCommand(line) {
		case chat.CommandQuit:
			return nil
		case chat.CommandClear:
			a.session.Clear()
			fmt.Println("Cleared the conversation.")
			continue
		case chat.CommandRerun:
			if !a.session.PrepareRerun() {
				fmt.Fprintln(os.Stderr, "Nothing to rerun.")
				continue
			}
			a.completeTurn(a.params, a.lastUserText())
			continue
		}

		text, inlineOptions := input.Extract(line)
		if text == "" && len(inlineOptions) == 0 {
			continue
		}
		editor.AppendHistory(line)

		params := a.params
		if err := params.Apply(inlineOptions); err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if text == "" {
			// Options-only lines adjust settings for later turns.
			a.params = params
			continue
		}

		a.session.AddUser(text)
		a.completeTurn(params, text)
	}
}

// completeTurn sends the conversation, streams the reply to stdout,
// and persists the exchange when it succeeds.
func (a *app) completeTurn(params chat.Params, userText string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	events, err := a.session.Send(ctx, params)
	if err != nil {
		a.reportError(err)
		return
	}

	text, usage, err := drainTurn(events, func(delta string) {
		fmt.Print(delta)
	})
	fmt.Println()
	if err != nil {
		a.reportError(err)
		return
	}

	a.session.AddAssistant(text)
	a.persistTurn(userText, text)
	if a.opts.Verbose {
		if line := formatUsage(usage); line != "" {
			fmt.Fprintln(os.Stderr, line)
		}
	}
}

// reportError prints a failed turn and rolls back a rejected prompt.
func (a *app) reportError(err error) {
	if errors.Is(err, completion.ErrBadRequest) {
		a.session.RollbackUser()
	}
	fmt.Fprintln(os.Stderr, formatTurnError(err))
}

// loadInputHistory seeds the line editor from the history file.
func loadInputHistory(editor *liner.State) {
	file, err := os.Open(historyPath())
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = editor.ReadHistory(file)
}

// saveInputHistory writes the line editor history back to disk.
func saveInputHistory(editor *liner.State) {
	path := historyPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = editor.WriteHistory(file)
}
