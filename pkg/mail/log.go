package mail

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/solarnautics/relaymail/pkg/config"
)

// LogMailer implements Mailer by logging messages instead of sending them
type LogMailer struct {
	cfg config.MailConfig
}

// NewLogMailer creates a new LogMailer
func NewLogMailer(cfg config.MailConfig) *LogMailer {
	return &LogMailer{cfg: cfg}
}

// Send builds the message exactly as the SMTP mailer would and logs it
func (m *LogMailer) Send(ctx context.Context, msg *Message) error {
	env, err := Build(ctx, msg, int64(m.cfg.MaxAttachmentSize))
	if err != nil {
		return err
	}

	raw, err := env.Bytes()
	if err != nil {
		return err
	}

	logger := log.Ctx(ctx).With().
		Str("mailer", "log").
		Str("from", env.From).
		Strs("to", env.To).
		Str("subject", msg.Subject).
		Strs("attachments", env.Attached).
		Int("size", len(raw)).
		Logger()

	if len(env.Skipped) > 0 {
		logger = logger.With().Strs("skipped", env.Skipped).Logger()
	}

	logger.Info().Msg("Sending email")
	logger.Info().Msgf("Body:\n%s", msg.Body)
	logger.Debug().Msgf("Message:\n%s", raw)

	return nil
}
