package render

import (
	"testing"

	"github.com/sghael/gpt-cli/internal/testutil"
)

func TestFeedAccumulatesFragments(testingHandle *testing.T) {
	session := NewSession(false)
	for _, fragment := range []string{"Hel", "lo, ", "world"} {
		view := session.Feed(fragment)
		testutil.RequireTrue(testingHandle, view != "", "intermediate view is never empty")
	}
	testutil.RequireEqual(testingHandle, session.Live(), "Hello, world", "accumulated live text")
}

func TestFeedStripsOneLeadingSpaceOnFirstFragment(testingHandle *testing.T) {
	session := NewSession(false)
	session.Feed(" Hello")
	session.Feed(" there")
	testutil.RequireEqual(testingHandle, session.Live(), "Hello there", "only the first fragment is trimmed")

	// A fresh turn trims again.
	session.FinishTurn()
	session.Feed("  indented")
	testutil.RequireEqual(testingHandle, session.Live(), " indented", "at most one space is dropped")
}

func TestFinishTurnCommitsTrueText(testingHandle *testing.T) {
	session := NewSession(true)
	session.AddUser("show me code")
	session.Feed("Here:\n```go\nfunc main() {}")

	final := session.FinishTurn()
	testutil.RequireTrue(testingHandle, final != "", "final rendering produced")
	testutil.RequireEqual(testingHandle, session.Live(), "", "live buffer cleared at turn end")

	entries := session.Entries()
	testutil.RequireEqual(testingHandle, len(entries), 2, "entry count")
	testutil.RequireEqual(testingHandle, entries[0], Entry{Role: "user", Content: "show me code"}, "user entry")
	// The synthetic fence used while streaming is never persisted.
	testutil.RequireEqual(
		testingHandle,
		entries[1],
		Entry{Role: "assistant", Content: "Here:\n```go\nfunc main() {}"},
		"assistant entry",
	)
}

func TestFinishTurnMatchesFullRender(testingHandle *testing.T) {
	streamed := NewSession(true)
	for _, fragment := range []string{"# Title", "\n\nSome ", "*emphasis* here."} {
		streamed.Feed(fragment)
	}
	final := streamed.FinishTurn()
	testutil.RequireEqual(testingHandle, final, streamed.render("# Title\n\nSome *emphasis* here."), "final render equals whole-text render")
}

func TestPartialRenderWithOpenFenceDoesNotFail(testingHandle *testing.T) {
	session := NewSession(true)
	view := session.Feed("```python\nprint('hi')")
	testutil.RequireTrue(testingHandle, view != "", "open fence renders")
	view = session.Feed("\nprint('bye')\n```")
	testutil.RequireTrue(testingHandle, view != "", "closed fence renders")
}

func TestNeedsClosingFence(testingHandle *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"plain text", false},
		{"```go\nfmt.Println()", true},
		{"```go\nfmt.Println()\n```", false},
		{"a ```x``` b ```y", true},
	}
	for _, testCase := range cases {
		testutil.AssertEqual(testingHandle, needsClosingFence(testCase.text), testCase.want, testCase.text)
	}
}

func TestPlainModeBypassesRendering(testingHandle *testing.T) {
	session := NewSession(false)
	view := session.Feed("# not a heading\n```\nraw")
	testutil.RequireEqual(testingHandle, view, "# not a heading\n```\nraw", "plain mode skips the fence heuristic")

	final := session.FinishTurn()
	testutil.RequireEqual(testingHandle, final, "# not a heading\n```\nraw", "final plain output is the literal text")
}

func TestViewInterleavesCommittedAndLive(testingHandle *testing.T) {
	session := NewSession(false)
	session.AddUser("first question")
	session.Feed("first answer")
	session.FinishTurn()
	session.AddUser("second question")
	session.Feed("partial sec")

	view := session.View()
	testutil.RequireStringContains(testingHandle, view, "first question", "user turn present")
	testutil.RequireStringContains(testingHandle, view, "first answer", "committed turn present")
	testutil.RequireStringContains(testingHandle, view, "partial sec", "live turn present")
}
