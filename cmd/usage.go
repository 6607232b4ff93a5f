package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/samsaffron/chatstream/internal/exitcode"
	"github.com/samsaffron/chatstream/internal/usage"
)

var usageDays int

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Summarize logged turns per backend and model",
	Long: `Read the daily usage logs and summarize completed turns per backend
and model.

Examples:
  chatstream usage            # last 7 days
  chatstream usage --days 30`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().IntVar(&usageDays, "days", 7, "Number of days to include")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	if usageDays <= 0 {
		return exitcode.BadUsage("--days must be positive")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	l := usage.NewLogger(cfg.Usage.Dir)
	until := time.Now()
	since := until.AddDate(0, 0, -(usageDays - 1))
	result := l.Load(since, until)
	for _, err := range result.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}

	summary := usage.Summarize(result.Entries)
	if len(summary) == 0 {
		fmt.Printf("No usage recorded in %s\n", l.Dir())
		return nil
	}

	fmt.Printf("%-10s %-28s %7s %12s %10s\n", "Backend", "Model", "Turns", "Output", "Avg time")
	for _, s := range summary {
		avg := time.Duration(s.DurationMs/int64(s.Turns)) * time.Millisecond
		fmt.Printf("%-10s %-28s %7d %12d %10s\n", s.Backend, s.Model, s.Turns, s.OutputChars, avg.Round(time.Millisecond))
	}
	return nil
}
