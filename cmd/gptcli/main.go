package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sghael/gpt-cli/internal/chat"
	"github.com/sghael/gpt-cli/internal/config"
	"github.com/sghael/gpt-cli/internal/llm/openai"
	"github.com/sghael/gpt-cli/internal/transcript"
)

// version is the CLI build version.
const version = "0.1.0"

// options holds all CLI flags.
type options struct {
	// Continue resumes the most recent chat in the current directory.
	Continue bool
	// Model overrides the configured default model.
	Model string
	// Temperature is forwarded to the provider when the flag is set.
	Temperature float64
	// TopP is forwarded to the provider when the flag is set.
	TopP float64
	// NoMarkdown disables markdown rendering of assistant output.
	NoMarkdown bool
	// NoStream requests complete responses instead of streamed ones.
	NoStream bool
	// Plain uses the line-based prompt loop instead of the full-screen UI.
	Plain bool
	// Print sends one prompt and exits.
	Print bool
	// SessionID continues a specific stored chat.
	SessionID string
	// Verbose prints token usage and cost after each turn.
	Verbose bool
	// Version prints the CLI version.
	Version bool
}

// main wires Cobra and executes the CLI.
func main() {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:   "gptcli [prompt]",
		Short: "gptcli - terminal chat for OpenAI-compatible gateways",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Version {
				fmt.Println(version)
				return nil
			}
			return runRoot(cmd, opts, args)
		},
	}
	rootCmd.Args = cobra.ArbitraryArgs

	applyFlags(rootCmd.Flags(), opts)

	rootCmd.AddCommand(doctorCommand())
	rootCmd.AddCommand(sessionsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// applyFlags defines all CLI flags.
func applyFlags(flags *pflag.FlagSet, opts *options) {
	flags.BoolVarP(&opts.Continue, "continue", "c", false, "Continue the most recent chat in this directory")
	flags.StringVar(&opts.Model, "model", "", "Model for the session")
	flags.Float64Var(&opts.Temperature, "temperature", 0, "Sampling temperature")
	flags.Float64Var(&opts.TopP, "top_p", 0, "Nucleus sampling parameter")
	flags.BoolVar(&opts.NoMarkdown, "no-markdown", false, "Disable markdown rendering")
	flags.BoolVar(&opts.NoStream, "no-stream", false, "Wait for the complete response instead of streaming")
	flags.BoolVar(&opts.Plain, "plain", false, "Use the line-based prompt instead of the full-screen UI")
	flags.BoolVarP(&opts.Print, "print", "p", false, "Send one prompt, print the response, and exit")
	flags.StringVar(&opts.SessionID, "session-id", "", "Continue a specific stored chat")
	flags.BoolVar(&opts.Verbose, "verbose", false, "Show token usage and cost after each turn")
	flags.BoolVarP(&opts.Version, "version", "v", false, "Output the version number")
}

// doctorCommand validates the gateway configuration.
func doctorCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check gptcli configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := mustConfigPath()
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("config missing at %s", path)
			}
			mode := info.Mode().Perm()
			if mode&0o077 != 0 {
				return fmt.Errorf("config permissions too open: %s", mode)
			}
			if _, err := config.Load(path); err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			fmt.Fprintf(os.Stdout, "OK: config %s\n", path)
			return nil
		},
	}
}

// sessionsCommand lists recent stored chats.
func sessionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recent chats",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := transcript.NewStore()
			if err != nil {
				return err
			}
			ids, err := store.List(10)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Fprintln(os.Stdout, "No chats yet.")
					return nil
				}
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(os.Stdout, id)
			}
			return nil
		},
	}
}

// app carries the shared state for one CLI invocation.
type app struct {
	opts *options
	// session is the in-memory conversation.
	session *chat.Session
	// store persists chat transcripts.
	store *transcript.Store
	// transcriptID identifies the stored chat.
	transcriptID string
	// projectHash scopes the continue pointer to the working directory.
	projectHash string
	// params are the baseline per-turn generation settings.
	params chat.Params
	// markdown toggles rendering of assistant output.
	markdown bool
}

// runRoot loads configuration and dispatches to the requested mode.
func runRoot(cmd *cobra.Command, opts *options, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get cwd: %w", err)
	}

	cfg, err := config.Load("")
	if err != nil {
		if errors.Is(err, config.ErrConfigMissing) {
			return fmt.Errorf("config missing; create %s", mustConfigPath())
		}
		return fmt.Errorf("load config: %w", err)
	}

	params := chat.Params{
		Model:  cfg.ResolveModel(opts.Model),
		Stream: !opts.NoStream,
	}
	if cmd.Flags().Changed("temperature") {
		temperature := opts.Temperature
		params.Temperature = &temperature
	}
	if cmd.Flags().Changed("top_p") {
		topP := opts.TopP
		params.TopP = &topP
	}

	store, err := transcript.NewStore()
	if err != nil {
		return err
	}

	client := openai.NewClient(cfg.APIBaseURL, cfg.APIKey, time.Duration(cfg.TimeoutMS)*time.Millisecond)
	application := &app{
		opts:        opts,
		session:     chat.NewSession(client, ""),
		store:       store,
		projectHash: transcript.ProjectHash(cwd),
		params:      params,
		markdown:    cfg.MarkdownEnabled() && !opts.NoMarkdown,
	}
	if err := application.resolveTranscript(); err != nil {
		return err
	}

	prompt := strings.TrimSpace(strings.Join(args, " "))
	if opts.Print || prompt != "" {
		return application.runPrint(prompt)
	}
	if opts.Plain || !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return application.runREPL()
	}
	return application.runChatTUI()
}

// resolveTranscript picks the transcript id and seeds the conversation
// from its stored records, if any.
func (a *app) resolveTranscript() error {
	id := a.opts.SessionID
	if id == "" && a.opts.Continue {
		last, err := a.store.LoadLastTranscript(a.projectHash)
		if err == nil {
			id = last
		}
	}
	if id == "" {
		a.transcriptID = uuid.New().String()
		return nil
	}

	a.transcriptID = id
	records, err := a.store.Load(id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load chat %s: %w", id, err)
	}
	for _, record := range records {
		switch record.Role {
		case "user":
			a.session.AddUser(record.Content)
		case "assistant":
			a.session.AddAssistant(record.Content)
		}
	}
	return nil
}

// persistTurn stores a completed exchange and updates the continue
// pointer. Persistence failures are reported but never abort the chat.
func (a *app) persistTurn(userText string, assistantText string) {
	now := time.Now()
	if err := a.store.Append(a.transcriptID, transcript.Record{Role: "user", Content: userText, Time: now}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if err := a.store.Append(a.transcriptID, transcript.Record{Role: "assistant", Content: assistantText, Time: now}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	_ = a.store.SaveLastTranscript(a.projectHash, a.transcriptID)
}

// lastUserText returns the trailing user prompt, used when a rerun
// completes and the exchange is persisted.
func (a *app) lastUserText() string {
	messages := a.session.Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// historyPath returns the input history file location.
func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "gptcli_history")
	}
	return filepath.Join(home, ".gptcli", "history")
}

// mustConfigPath returns the default config path or a placeholder.
func mustConfigPath() string {
	path, err := config.Path()
	if err != nil {
		return "~/.gptcli/config.json"
	}
	return path
}
