package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samsaffron/chatstream/internal/exitcode"
	"github.com/samsaffron/chatstream/internal/llm"
	"github.com/samsaffron/chatstream/internal/orchestrator"
	"github.com/samsaffron/chatstream/internal/sse"
)

var (
	askSession     string
	askChat        int64
	askProvider    string
	askModel       string
	askTemperature float64
	askEvents      bool
)

var askCmd = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Run one turn and print the reply as it streams",
	Long: `Run a single turn through the same path the HTTP API uses and print
the reply to stdout as it is generated.

Examples:
  chatstream ask "what changed in the last release?"
  chatstream ask --provider ollama --model llama3.2 "hello"
  chatstream ask --chat 12 "and after that?"
  chatstream ask --events "hi" 2>events.log`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "cli", "Session key")
	askCmd.Flags().Int64Var(&askChat, "chat", 0, "Continue an existing chat id")
	askCmd.Flags().StringVarP(&askProvider, "provider", "p", "", "Backend to use")
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "Model override")
	askCmd.Flags().Float64VarP(&askTemperature, "temperature", "t", 0, "Sampling temperature (default from config)")
	askCmd.Flags().BoolVar(&askEvents, "events", false, "Write the raw event stream to stderr")
	_ = askCmd.RegisterFlagCompletionFunc("provider", backendFlagCompletion)
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	temperature := cfg.Temperature
	if cmd.Flags().Changed("temperature") {
		if askTemperature < 0 || askTemperature > 2 {
			return exitcode.BadUsage("--temperature must be between 0 and 2")
		}
		temperature = askTemperature
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	req := orchestrator.StreamRequest{
		SessionKey:     askSession,
		Prompt:         strings.Join(args, " "),
		ConversationID: askChat,
		Backend:        askProvider,
		Model:          askModel,
		Temperature:    temperature,
	}
	var events io.Writer
	if askEvents {
		events = cmd.ErrOrStderr()
	}
	out, err := ask(ctx, a, req, cmd.OutOrStdout(), events)
	if err != nil {
		return err
	}
	if out.Disconnected {
		return exitcode.Cancel()
	}
	return nil
}

// ask runs one turn through the bridge. Content goes to stdout; when
// events is set every frame is also written there in wire format.
func ask(ctx context.Context, a *app, req orchestrator.StreamRequest, stdout, events io.Writer) (sse.Outcome, error) {
	res, err := a.coordinator.Stream(ctx, req)
	if err != nil {
		if errors.Is(err, orchestrator.ErrConversationNotFound) {
			return sse.Outcome{}, exitcode.Missing(err.Error())
		}
		return sse.Outcome{}, err
	}

	bridge := sse.NewBridge(sse.Options{
		QueueSize:     a.cfg.Server.QueueSize,
		Heartbeat:     a.cfg.Server.Heartbeat,
		MaxConcurrent: 1,
		Logger:        a.logger,
	})
	out := bridge.Run(ctx, sse.RunRequest{
		Start: sse.StartInfo{ChatID: res.ConversationID, Backend: res.Backend, Model: res.Model},
		Open: func() (llm.Stream, error) {
			return res.Stream, nil
		},
		Emitter: &terminalEmitter{out: stdout, events: events},
	})
	if out.Err != nil {
		return out, fmt.Errorf("stream failed: %w", out.Err)
	}
	if !out.Disconnected {
		fmt.Fprintln(stdout)
	}
	a.logger.Debug("turn complete", "chat", res.ConversationID, "backend", res.Backend, "model", res.Model)
	return out, nil
}

// terminalEmitter prints content increments as they arrive.
type terminalEmitter struct {
	out    io.Writer
	events io.Writer
}

func (e *terminalEmitter) Event(name string, payload any) error {
	if e.events != nil {
		frame, err := sse.FormatEvent(name, payload)
		if err != nil {
			return err
		}
		if _, err := e.events.Write(frame); err != nil {
			return err
		}
	}
	if p, ok := payload.(sse.TextPayload); ok && name == sse.EventContent {
		_, err := io.WriteString(e.out, p.Content)
		return err
	}
	return nil
}

func (e *terminalEmitter) Heartbeat() error {
	if e.events == nil {
		return nil
	}
	_, err := e.events.Write(sse.FormatComment("heartbeat"))
	return err
}
