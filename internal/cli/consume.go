package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harun/portalcheck/internal/config"
	"github.com/harun/portalcheck/pkg/batch"
	"github.com/harun/portalcheck/pkg/queue"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var consumeWatch bool

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Process lookup requests from an SQS queue",
	Long: `Consume polls the request queue, runs every received batch of queries and
relays each result to the response queue. A request is deleted only after
its result has been relayed.

Changes to the batch, browser and portal sections of the config file are
picked up by the next poll without a restart.`,
	RunE: runConsume,
}

func init() {
	consumeCmd.Flags().BoolVar(&consumeWatch, "watch-config", true, "apply config file changes to the next poll")
	rootCmd.AddCommand(consumeCmd)
}

func runConsume(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateQueue(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := queue.NewClient(ctx, queue.ClientConfig{
		Region:          cfg.Queue.Region,
		Endpoint:        cfg.Queue.Endpoint,
		AccessKeyID:     cfg.Queue.AccessKeyID,
		SecretAccessKey: cfg.Queue.SecretAccessKey,
	})
	if err != nil {
		return err
	}

	orch, err := newLiveOrchestrator(cfg, func(c *config.Config) (*batch.Orchestrator, error) {
		return newOrchestrator(c, a.metrics)
	})
	if err != nil {
		return err
	}

	if consumeWatch {
		w, err := config.Watch(config.NewLoader(cfgFile).GetConfigPath(), config.DefaultReloadDebounce, orch.apply)
		if err != nil {
			log.Warn().Err(err).Msg("Config reload disabled")
		} else {
			defer w.Close()
		}
	}

	consumer, err := queue.NewConsumer(client, orch, queue.Config{
		RequestQueueURL:  cfg.Queue.RequestQueueURL,
		ResponseQueueURL: cfg.Queue.ResponseQueueURL,
		BatchSize:        cfg.Queue.BatchSize,
		WaitTimeSeconds:  cfg.Queue.WaitTimeSeconds,
	}, a.metrics)
	if err != nil {
		return err
	}

	return consumer.Run(ctx)
}
