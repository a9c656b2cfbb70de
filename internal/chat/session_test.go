package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sghael/gpt-cli/internal/completion"
	"github.com/sghael/gpt-cli/internal/llm/openai"
	"github.com/sghael/gpt-cli/internal/testutil"
)

func TestParseCommand(testingHandle *testing.T) {
	cases := []struct {
		line string
		want Command
	}{
		{"clear", CommandClear},
		{"c", CommandClear},
		{"  QUIT  ", CommandQuit},
		{"exit", CommandQuit},
		{"q", CommandQuit},
		{"rerun", CommandRerun},
		{"r", CommandRerun},
		{"what is go", CommandPrompt},
		{"clear the table", CommandPrompt},
	}
	for _, testCase := range cases {
		testutil.AssertEqual(testingHandle, ParseCommand(testCase.line), testCase.want, testCase.line)
	}
}

func TestParamsApply(testingHandle *testing.T) {
	params := Params{Model: "gpt-4o", Stream: true}
	err := params.Apply(map[string]string{
		"model":       "o1-mini",
		"temperature": "0.7",
		"top_p":       "0.9",
	})
	testutil.RequireNoError(testingHandle, err, "apply options")
	testutil.RequireEqual(testingHandle, params.Model, "o1-mini", "model override")
	testutil.RequireEqual(testingHandle, *params.Temperature, 0.7, "temperature")
	testutil.RequireEqual(testingHandle, *params.TopP, 0.9, "top_p")
}

func TestParamsApplyRejectsBadValues(testingHandle *testing.T) {
	var invalidArgument *InvalidArgumentError

	params := Params{}
	err := params.Apply(map[string]string{"temperature": "hot"})
	testutil.RequireTrue(testingHandle, errors.As(err, &invalidArgument), "bad float rejected")
	testutil.RequireEqual(testingHandle, invalidArgument.Name, "temperature", "option name reported")

	err = params.Apply(map[string]string{"frequency_penalty": "1"})
	testutil.RequireTrue(testingHandle, errors.As(err, &invalidArgument), "unknown option rejected")
}

func TestSessionHistoryManagement(testingHandle *testing.T) {
	session := NewSession(nil, "be brief")
	session.AddUser("first")
	session.AddAssistant("answer")
	session.AddUser("second")

	// A rejected request rolls back only the trailing user turn.
	session.RollbackUser()
	testutil.RequireEqual(testingHandle, len(session.Messages()), 3, "rollback removed one message")
	session.RollbackUser()
	testutil.RequireEqual(testingHandle, len(session.Messages()), 3, "rollback is a no-op after assistant turns")

	session.Clear()
	testutil.RequireEqual(testingHandle, session.Messages(), []openai.Message{
		{Role: "system", Content: "be brief"},
	}, "clear keeps the system prompt")
}

func TestPrepareRerun(testingHandle *testing.T) {
	session := NewSession(nil, "")
	testutil.RequireTrue(testingHandle, !session.PrepareRerun(), "nothing to rerun in empty chat")

	session.AddUser("question")
	session.AddAssistant("stale answer")
	testutil.RequireTrue(testingHandle, session.PrepareRerun(), "rerun possible")
	testutil.RequireEqual(testingHandle, len(session.Messages()), 1, "stale answer dropped")
	testutil.RequireEqual(testingHandle, session.Messages()[0].Role, "user", "user prompt kept for resend")
}

func TestSendStripsGatewayPrefix(testingHandle *testing.T) {
	var requestedModel string
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		var parsed openai.ChatRequest
		if err := json.NewDecoder(request.Body).Decode(&parsed); err != nil {
			http.Error(responseWriter, err.Error(), http.StatusBadRequest)
			return
		}
		requestedModel = parsed.Model
		responseWriter.Header().Set("Content-Type", "application/json")
		fmt.Fprint(responseWriter, `{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer server.Close()

	session := NewSession(openai.NewClient(server.URL, "", 5*time.Second), "")
	session.AddUser("hello")

	events, err := session.Send(context.Background(), Params{Model: "oai-compat:gpt-4o"})
	testutil.RequireNoError(testingHandle, err, "send turn")
	defer events.Close()

	testutil.RequireEqual(testingHandle, requestedModel, "gpt-4o", "vendor model dispatched")
	testutil.RequireTrue(testingHandle, events.Next(), "one delta expected")
	testutil.RequireEqual(testingHandle, events.Event(), completion.Event(completion.TokenDelta{Text: "ok"}), "full content delta")
}

func TestSendMapsValidationErrors(testingHandle *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		http.Error(responseWriter, "context length exceeded", http.StatusBadRequest)
	}))
	defer server.Close()

	session := NewSession(openai.NewClient(server.URL, "", 5*time.Second), "")
	session.AddUser("too long")

	_, err := session.Send(context.Background(), Params{Model: "gpt-4o", Stream: true})
	testutil.RequireErrorIs(testingHandle, err, completion.ErrBadRequest, "validation failures map to bad request")
	testutil.RequireStringContains(testingHandle, err.Error(), "context length exceeded", "service message preserved")
}
