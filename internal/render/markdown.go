// Package render turns streamed assistant output into terminal-ready
// text. It tolerates syntactically incomplete markdown mid-stream and
// reconciles each turn into a finalized rendering when it ends.
package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Entry is one finalized turn in the transcript view.
type Entry struct {
	// Role is "user" or "assistant".
	Role string
	// Content is the raw text of the turn, never the rendered form.
	Content string
}

// Session accumulates one conversation's display state. Each turn owns
// the live buffer exclusively until FinishTurn flushes it into the
// committed entries.
type Session struct {
	// markdown toggles structural rendering. When false, text passes
	// through verbatim.
	markdown bool
	// renderer formats markdown for the terminal when available.
	renderer *glamour.TermRenderer
	// entries holds finalized turns in order.
	entries []Entry
	// live accumulates the in-flight assistant turn.
	live strings.Builder
	// started is set after the first fragment of the current turn.
	started bool
}

// NewSession constructs a display session. Markdown rendering degrades
// to plain text when no terminal renderer can be built.
func NewSession(markdown bool) *Session {
	session := &Session{markdown: markdown}
	if markdown {
		if glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle()); err == nil {
			session.renderer = glam
		}
	}
	return session
}

// AddUser records a finalized user turn.
func (s *Session) AddUser(text string) {
	s.entries = append(s.entries, Entry{Role: "user", Content: text})
}

// Feed appends one streamed fragment to the live turn and returns a
// best-effort rendering of the turn so far. The first fragment of a
// turn drops at most one leading space, which providers often prefix
// before the model's first real character.
func (s *Session) Feed(fragment string) string {
	if !s.started {
		s.started = true
		fragment = strings.TrimPrefix(fragment, " ")
	}
	s.live.WriteString(fragment)
	return s.renderPartial(s.live.String())
}

// Live returns the raw accumulated text of the in-flight turn.
func (s *Session) Live() string {
	return s.live.String()
}

// FinishTurn flushes the live turn into the committed entries and
// returns its final rendering. The stored text is the true streamed
// text, without the synthetic fence heuristic.
func (s *Session) FinishTurn() string {
	text := s.live.String()
	s.entries = append(s.entries, Entry{Role: "assistant", Content: text})
	s.live.Reset()
	s.started = false
	return s.render(text)
}

// Entries returns the finalized turns in order.
func (s *Session) Entries() []Entry {
	return s.entries
}

// View renders the committed transcript followed by the live turn.
func (s *Session) View() string {
	var builder strings.Builder
	for _, entry := range s.entries {
		if entry.Role == "assistant" {
			builder.WriteString(s.render(entry.Content))
		} else {
			builder.WriteString(entry.Content)
		}
		builder.WriteByte('\n')
	}
	if s.live.Len() > 0 {
		builder.WriteString(s.renderPartial(s.live.String()))
	}
	return builder.String()
}

// renderPartial renders possibly-truncated markdown. An unterminated
// code fence gets a synthetic closer for this pass only; the closer is
// never persisted into the turn's text.
func (s *Session) renderPartial(text string) string {
	if s.markdown && needsClosingFence(text) {
		return s.render(text + "\n```")
	}
	return s.render(text)
}

// render formats markdown for the terminal, falling back to the raw
// text when rendering is disabled or fails. It never reports an error
// to the caller.
func (s *Session) render(text string) string {
	if !s.markdown || s.renderer == nil {
		return text
	}
	rendered, err := s.renderer.Render(text)
	if err != nil {
		return text
	}
	return rendered
}

// needsClosingFence reports whether text ends inside an open
// triple-backtick code block.
func needsClosingFence(text string) bool {
	return strings.Count(text, "```")%2 == 1
}
