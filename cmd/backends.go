package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var backendsJSON bool

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List registered backends",
	Long: `List the backends turns can be routed to and the model each uses by
default. Gemini and Ollama are always registered; OpenAI and Anthropic
appear once their API keys are configured.

Examples:
  chatstream backends
  chatstream backends --json`,
	Args: cobra.NoArgs,
	RunE: runBackends,
}

func init() {
	backendsCmd.Flags().BoolVar(&backendsJSON, "json", false, "Output as JSON")
	rootCmd.AddCommand(backendsCmd)
}

type backendInfo struct {
	Name    string `json:"name"`
	Model   string `json:"model"`
	Default bool   `json:"default"`
}

func runBackends(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var infos []backendInfo
	for _, key := range a.registry.Keys() {
		src, _ := a.registry.Resolve(key)
		infos = append(infos, backendInfo{
			Name:    key,
			Model:   src.DefaultModel(),
			Default: key == a.registry.Default(),
		})
	}

	if backendsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	for _, info := range infos {
		marker := " "
		if info.Default {
			marker = "*"
		}
		fmt.Printf("%s %-10s %s\n", marker, info.Name, info.Model)
	}
	return nil
}
