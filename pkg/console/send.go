package console

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/solarnautics/relaymail/pkg/mail"
	"github.com/solarnautics/relaymail/pkg/root"
)

func newSendCmd() *cobra.Command {
	flags := &mailFlags{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one email through the relay",
		Example: `  relaymail send --to a@example.com,b@example.com --subject Report \
    --body '<b>hi</b>' --attachments report.pdf`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			ctx = log.Logger.WithContext(ctx)
			return mailer.Send(ctx, messageFromConfig(cfg.Message))
		},
	}

	flags.bind(cmd.Flags())
	return cmd
}

func init() {
	root.GetRoot().AddCommand(newSendCmd())
}
