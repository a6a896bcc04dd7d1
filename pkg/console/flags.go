package console

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/solarnautics/relaymail/pkg/config"
	"github.com/solarnautics/relaymail/pkg/mail"
	"github.com/solarnautics/relaymail/pkg/root"
	"github.com/solarnautics/relaymail/pkg/telemetry"
)

// mailFlags are the flags shared by send and schedule. Each one maps to an
// environment variable and only replaces it when given on the command line.
type mailFlags struct {
	smtpUser     string
	smtpPassword string
	smtpHost     string
	smtpPort     int
	encryption   string
	mailer       string
	timeout      time.Duration
	fromEmail    string
	to           string
	subject      string
	body         string
	attachments  string
}

func (f *mailFlags) bind(fs *pflag.FlagSet) {
	fs.StringVar(&f.smtpUser, "smtp_user", "", "SMTP username (env SMTP_USER)")
	fs.StringVar(&f.smtpPassword, "smtp_password", "", "SMTP password (env SMTP_PASSWORD)")
	fs.StringVar(&f.smtpHost, "smtp_host", "", "Relay host (env SMTP_HOST, default "+config.DefaultHost+")")
	fs.IntVar(&f.smtpPort, "smtp_port", 0, fmt.Sprintf("Relay port (env SMTP_PORT, default %d)", config.DefaultPort))
	fs.StringVar(&f.encryption, "encryption", "", "starttls, ssl or none (env SMTP_ENCRYPTION, default starttls)")
	fs.StringVar(&f.mailer, "mailer", "", "smtp or log (env MAIL_MAILER, default smtp)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Connection timeout (env SMTP_TIMEOUT, default 30s)")
	fs.StringVar(&f.fromEmail, "from_email", "", "Sender address (env FROM_EMAIL)")
	fs.StringVar(&f.to, "to", "", "Comma-separated recipients (env TO_EMAIL)")
	fs.StringVar(&f.subject, "subject", "", "Email subject (env SUBJECT)")
	fs.StringVar(&f.body, "body", "", "Email body, HTML supported (env BODY)")
	fs.StringVar(&f.attachments, "attachments", "", "Comma-separated file paths (env ATTACHMENTS)")
}

// apply copies every flag set on the command line over cfg. Flags left at
// their defaults never touch cfg, so values from the environment survive.
func (f *mailFlags) apply(fs *pflag.FlagSet, cfg *config.Config) {
	set := func(name string, fn func()) {
		if fs.Changed(name) {
			fn()
		}
	}

	set("smtp_user", func() { cfg.Mail.Username = f.smtpUser })
	set("smtp_password", func() { cfg.Mail.Password = f.smtpPassword })
	set("smtp_host", func() { cfg.Mail.Host = f.smtpHost })
	set("smtp_port", func() { cfg.Mail.Port = f.smtpPort })
	set("encryption", func() { cfg.Mail.Encryption = f.encryption })
	set("mailer", func() { cfg.Mail.Mailer = f.mailer })
	set("timeout", func() { cfg.Mail.Timeout = f.timeout })
	set("from_email", func() { cfg.Message.From = f.fromEmail })
	set("to", func() { cfg.Message.To = mail.SplitList(f.to) })
	set("subject", func() { cfg.Message.Subject = f.subject })
	set("body", func() { cfg.Message.Body = f.body })
	set("attachments", func() { cfg.Message.Attachments = mail.SplitList(f.attachments) })
}

// loadConfig layers defaults, the env file, the environment and flags
func (f *mailFlags) loadConfig(fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(root.EnvFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	f.apply(fs, cfg)
	return cfg, nil
}

func messageFromConfig(cfg config.MessageConfig) *mail.Message {
	return &mail.Message{
		From:        cfg.From,
		To:          cfg.To,
		Subject:     cfg.Subject,
		Body:        cfg.Body,
		Attachments: cfg.Attachments,
	}
}

// setupTelemetry configures logging and, with --trace, a span exporter. The
// returned func flushes the exporter.
func setupTelemetry(cfg *config.Config) (func(), error) {
	level := root.LogLevel()
	if level == "" {
		level = cfg.LogLevel
	}
	telemetry.SetGlobalLogger(level)

	if !root.TraceEnabled() {
		return func() {}, nil
	}

	tp, err := telemetry.InitTracer("relaymail", os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	return func() { shutdownTracer(tp) }, nil
}

func shutdownTracer(tp *sdktrace.TracerProvider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Error shutting down tracer")
	}
}
