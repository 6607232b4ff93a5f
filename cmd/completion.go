package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

// knownBackends are the keys a registry can hold, whether or not their
// credentials are configured on this machine.
var knownBackends = []string{"anthropic", "gemini", "ollama", "openai"}

// backendFlagCompletion handles --provider flag completion
func backendFlagCompletion(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var completions []string
	for _, name := range knownBackends {
		if strings.HasPrefix(name, strings.ToLower(toComplete)) {
			completions = append(completions, name)
		}
	}
	return completions, cobra.ShellCompDirectiveNoFileComp
}
