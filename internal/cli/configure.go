package cli

import (
	"fmt"
	"os"

	"github.com/harun/portalcheck/internal/config"
	"github.com/spf13/cobra"
)

var configureForce bool

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a default configuration file",
	Long: `Write a configuration file with the default settings so they can be
edited. An existing file is kept unless --force is given.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().BoolVar(&configureForce, "force", false, "overwrite an existing file")
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	configPath := loader.GetConfigPath()

	if _, err := os.Stat(configPath); err == nil && !configureForce {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.DefaultConfig()
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Configuration saved to: %s\n", configPath)
	fmt.Fprintln(cmd.OutOrStdout(), "You can now run a batch with: portalcheck run --input roster.json")
	return nil
}
