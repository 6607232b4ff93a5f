package cmd

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/samsaffron/chatstream/internal/exitcode"
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/chatstream/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&prof.cpuPath, "cpuprofile", "", "Write CPU profile to file")
	rootCmd.PersistentFlags().StringVar(&prof.memPath, "memprofile", "", "Write heap profile to file")
}

var rootCmd = &cobra.Command{
	Use:   "chatstream",
	Short: "Streaming chat service over multiple LLM backends",
	Long: `chatstream relays model output to clients as it is generated, keeping
per-session context, preferences and persisted conversations.

Examples:
  chatstream serve                          # HTTP API on :8000
  chatstream ask "summarize the release"    # one turn in the terminal
  chatstream chats list --session web       # persisted conversations
  chatstream backends                       # registered backends`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	SilenceUsage:      true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return prof.start()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return prof.stop()
	},
}

var (
	configPath string
	logLevel   string
	prof       profiler
)

// profiler writes a CPU profile for the lifetime of a command and a heap
// profile when it ends.
type profiler struct {
	cpuPath string
	memPath string
	cpuFile *os.File
}

func (p *profiler) start() error {
	if p.cpuPath == "" {
		return nil
	}
	f, err := os.Create(p.cpuPath)
	if err != nil {
		return fmt.Errorf("create cpu profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return fmt.Errorf("start cpu profile: %w", err)
	}
	p.cpuFile = f
	return nil
}

func (p *profiler) stop() error {
	var errs []error
	if p.cpuFile != nil {
		pprof.StopCPUProfile()
		errs = append(errs, p.cpuFile.Close())
		p.cpuFile = nil
	}
	if p.memPath != "" {
		errs = append(errs, writeHeapProfile(p.memPath))
	}
	return errors.Join(errs...)
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heap profile: %w", err)
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("write heap profile: %w", err)
	}
	return nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr exitcode.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(exitcode.Error)
	}
}
