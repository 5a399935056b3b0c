package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/harun/portalcheck/pkg/resultlog"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the results file",
	Long:  `Show how many results the results file holds and how old it is.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	path := cfg.Results.File

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(out, "Results: none yet (%s)\n", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat results file: %w", err)
	}

	results, err := resultlog.New(path, nil).Load()
	if err != nil {
		return err
	}

	succeeded := 0
	for _, r := range results {
		if r.Result.Success {
			succeeded++
		}
	}

	fmt.Fprintf(out, "Results: %s\n", path)
	fmt.Fprintf(out, "Total: %d\n", len(results))
	fmt.Fprintf(out, "Succeeded: %d\n", succeeded)
	fmt.Fprintf(out, "Failed: %d\n", len(results)-succeeded)
	fmt.Fprintf(out, "Last write: %s ago\n", formatDuration(time.Since(info.ModTime())))
	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
