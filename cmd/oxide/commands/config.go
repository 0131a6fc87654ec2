package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oxide-run/oxide/internal/config"
)

var configDir string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the resolved configuration",
	Long: `Print the fully-resolved configuration (global config.toml,
project .oxide/config.toml, and environment overrides merged together)
as JSON.`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().StringVar(&configDir, "directory", "", "Working directory")
}

func runConfig(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(configDir)
	if err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := json.MarshalIndent(appConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
