package console

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/solarnautics/relaymail/pkg/config"
	"github.com/solarnautics/relaymail/pkg/mail"
	"github.com/solarnautics/relaymail/pkg/root"
	"github.com/solarnautics/relaymail/pkg/schedule"
)

func newScheduleCmd() *cobra.Command {
	flags := &mailFlags{}
	var spec string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Send the same email on a cron schedule",
		Long: `Send the configured email every time the cron expression fires, until
interrupted. The expression has six fields (seconds first) or is a
descriptor such as @daily or "@every 1h". A failed send is logged and the
schedule keeps running.`,
		Example: `  relaymail schedule --cron "0 0 9 * * MON-FRI" --to team@example.com --subject Daily`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if spec == "" {
				return errors.New("--cron is required")
			}

			cfg, err := flags.loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			shutdown, err := setupTelemetry(cfg)
			if err != nil {
				return err
			}
			defer shutdown()

			mailer, err := mail.NewMailer(cfg.Mail)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			kernel := schedule.DefaultKernel()
			if err := registerSend(log.Logger.WithContext(ctx), kernel, spec, mailer, cfg); err != nil {
				return err
			}

			kernel.Run(ctx)
			log.Info().Msg("Scheduler stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "Cron expression with seconds, or a descriptor like @hourly")
	flags.bind(cmd.Flags())
	return cmd
}

// registerSend validates the message once up front, then registers a job
// that sends it on every tick
func registerSend(ctx context.Context, kernel *schedule.Kernel, spec string, mailer mail.Mailer, cfg *config.Config) error {
	msg := messageFromConfig(cfg.Message)
	if _, err := mail.Build(ctx, msg, int64(cfg.Mail.MaxAttachmentSize)); err != nil {
		return err
	}

	return kernel.Register(spec, "send", func(ctx context.Context) {
		if err := mailer.Send(ctx, messageFromConfig(cfg.Message)); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Scheduled send failed")
		}
	}, schedule.WithoutOverlapping())
}

func init() {
	root.GetRoot().AddCommand(newScheduleCmd())
}
