package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harun/portalcheck/pkg/batch"
	"github.com/harun/portalcheck/pkg/cron"
	"github.com/harun/portalcheck/pkg/resultlog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	runInput    string
	runOutput   string
	runCron     string
	runEvery    time.Duration
	runAnchor   string
	runAt       string
	runTZ       string
	runHeadless bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a batch of lookups from a JSON file",
	Long: `Run looks up every query of a JSON array file and appends one result per
query to the results file as soon as it completes.

With --cron or --every the batch is run once immediately and then repeated
on the schedule until interrupted. --anchor aligns --every runs to a fixed
instant. With --at the batch runs once at the given time.`,
	Example: `  portalcheck run --input roster.json
  portalcheck run --input roster.json --cron "0 6 * * 1-5" --tz America/Sao_Paulo
  portalcheck run --input roster.json --every 6h --anchor 2025-01-01T06:00:00-03:00
  portalcheck run --input roster.json --at 2025-03-01T22:00:00-03:00`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runInput, "input", "i", "", "JSON array of queries (- for stdin)")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "results file (default from config)")
	runCmd.Flags().StringVar(&runCron, "cron", "", "repeat on a cron expression")
	runCmd.Flags().DurationVar(&runEvery, "every", 0, "repeat at a fixed interval")
	runCmd.Flags().StringVar(&runAnchor, "anchor", "", "RFC 3339 instant --every runs are aligned to")
	runCmd.Flags().StringVar(&runAt, "at", "", "run once at an RFC 3339 time")
	runCmd.Flags().StringVar(&runTZ, "tz", "", "timezone of the cron expression")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "run Chrome without a window")
	_ = runCmd.MarkFlagRequired("input")
	runCmd.MarkFlagsMutuallyExclusive("cron", "every", "at")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	schedule, scheduled, err := runSchedule()
	if err != nil {
		return err
	}

	queries, err := readQueries(runInput, cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("headless") {
		cfg.Browser.Headless = runHeadless
	}
	if runOutput != "" {
		cfg.Results.File = runOutput
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.orchestrator()
	if err != nil {
		return err
	}
	results := resultlog.New(cfg.Results.File, a.metrics)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := func(ctx context.Context) error {
		summary, err := processBatch(ctx, orch, queries, results, cmd.OutOrStdout())
		fmt.Fprintf(cmd.OutOrStdout(), "%d queries: %d succeeded, %d failed (results in %s)\n",
			summary.Total, summary.Succeeded, summary.Failed, results.Path())
		return err
	}

	if !scheduled {
		return job(ctx)
	}

	runner, err := cron.NewRunner("batch", schedule, job)
	if err != nil {
		return err
	}
	// A one-shot schedule only runs at its time.
	return runner.Run(ctx, schedule.Kind != cron.ScheduleKindAt)
}

// runSchedule builds the repeat schedule from the flags.
func runSchedule() (cron.Schedule, bool, error) {
	if runAnchor != "" && runEvery == 0 {
		return cron.Schedule{}, false, fmt.Errorf("--anchor requires --every")
	}

	switch {
	case runCron != "":
		s := cron.Schedule{Kind: cron.ScheduleKindCron, Expr: runCron, TZ: runTZ}
		return s, true, cron.Validate(s)
	case runAt != "":
		s := cron.Schedule{Kind: cron.ScheduleKindAt, At: runAt}
		next, err := cron.NextRun(s, time.Now())
		if err != nil {
			return cron.Schedule{}, false, fmt.Errorf("invalid --at: %w", err)
		}
		if next.IsZero() {
			return cron.Schedule{}, false, fmt.Errorf("--at %s is in the past", runAt)
		}
		return s, true, nil
	case runEvery > 0:
		s := cron.Schedule{Kind: cron.ScheduleKindEvery, Every: runEvery}
		if runAnchor != "" {
			anchor, err := time.Parse(time.RFC3339, runAnchor)
			if err != nil {
				return cron.Schedule{}, false, fmt.Errorf("invalid --anchor: %w", err)
			}
			s.Anchor = &anchor
		}
		return s, true, nil
	case runEvery < 0:
		return cron.Schedule{}, false, fmt.Errorf("--every must be positive")
	default:
		return cron.Schedule{}, false, nil
	}
}

// readQueries decodes a JSON array of queries from path, or from stdin
// when path is "-".
func readQueries(path string, stdin io.Reader) ([]batch.Query, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var queries []batch.Query
	if err := json.NewDecoder(r).Decode(&queries); err != nil {
		return nil, fmt.Errorf("failed to decode input: %w", err)
	}
	return queries, nil
}

// batchSummary counts the outcomes of one batch.
type batchSummary struct {
	Total     int
	Succeeded int
	Failed    int
}

// processBatch runs queries, appends each Result to results as it arrives
// and writes one line per Result to out.
func processBatch(ctx context.Context, orch *batch.Orchestrator, queries []batch.Query, results *resultlog.Log, out io.Writer) (batchSummary, error) {
	var summary batchSummary

	run := orch.Process(ctx, queries)
	for res := range run.Results() {
		summary.Total++
		if res.Result.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}

		if err := results.Append(res); err != nil {
			log.Error().Err(err).Str("query_id", res.Payload.Identifier).Msg("Failed to persist result")
		}
		fmt.Fprintln(out, describeResult(res))
	}

	if err := run.Err(); err != nil {
		return summary, fmt.Errorf("batch %s: %w", run.ID, err)
	}
	return summary, nil
}

// describeResult renders one Result as a single line.
func describeResult(res batch.Result) string {
	id := res.Payload.Identifier
	if !res.Result.Success {
		msg := "unknown error"
		if res.Result.Error != nil {
			msg = *res.Result.Error
		}
		return fmt.Sprintf("%s\terror\t%s", id, msg)
	}

	expired := "-"
	if res.Result.ExpiredAt != nil {
		expired = *res.Result.ExpiredAt
	}
	collected := "-"
	if res.Result.CollectionDate != nil {
		collected = *res.Result.CollectionDate
	}
	return fmt.Sprintf("%s\tsuccess\texpired_at=%s\tcollection_date=%s", id, expired, collected)
}
