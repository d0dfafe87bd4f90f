package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Vr3n/crown-vitality-research/internal/queue"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Append note lifecycle events from the queue to the audit log",
	Args:  cobra.NoArgs,
	RunE:  runConsume,
}

func runConsume(cmd *cobra.Command, _ []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("queue", cfg.EventsQueue).Str("path", cfg.AuditLogPath).Msg("consuming note events")
	err = queue.NewConsumer(cfg.RabbitURL, cfg.EventsQueue, cfg.AuditLogPath, log).Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("consumer stopped")
		return nil
	}
	return err
}
