package mail

import (
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/solarnautics/relaymail/pkg/config"
	"github.com/solarnautics/relaymail/pkg/telemetry"
)

// SMTPMailer implements Mailer by submitting to an SMTP relay
type SMTPMailer struct {
	cfg       config.MailConfig
	tlsConfig *tls.Config
	tracer    trace.Tracer
}

// Option configures an SMTPMailer
type Option func(*SMTPMailer)

// WithTLSConfig overrides the TLS configuration used for STARTTLS and
// implicit TLS. ServerName defaults to the relay host when empty.
func WithTLSConfig(c *tls.Config) Option {
	return func(m *SMTPMailer) {
		m.tlsConfig = c
	}
}

// WithTracer sets the tracer used for send spans
func WithTracer(t trace.Tracer) Option {
	return func(m *SMTPMailer) {
		m.tracer = t
	}
}

// NewSMTPMailer creates a new SMTPMailer
func NewSMTPMailer(cfg config.MailConfig, opts ...Option) *SMTPMailer {
	m := &SMTPMailer{
		cfg:    cfg,
		tracer: telemetry.Tracer("github.com/solarnautics/relaymail/pkg/mail"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send builds msg and submits it to the relay. The connection is closed
// before Send returns, whatever the outcome. Errors are *ConnectError,
// *AuthError or *SubmitError once the network is involved.
func (m *SMTPMailer) Send(ctx context.Context, msg *Message) (err error) {
	ctx, span := m.tracer.Start(ctx, "mail.send", trace.WithAttributes(
		attribute.String("mail.relay", m.cfg.Addr()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := log.Ctx(ctx).With().
		Str("mailer", "smtp").
		Str("relay", m.cfg.Addr()).
		Logger()

	env, err := Build(logger.WithContext(ctx), msg, int64(m.cfg.MaxAttachmentSize))
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.Int("mail.recipients", len(env.To)),
		attribute.Int("mail.attachments", len(env.Attached)),
		attribute.Int("mail.attachments_skipped", len(env.Skipped)),
	)

	if err := m.transmit(ctx, &logger, env); err != nil {
		logger.Error().Err(err).Msg("Failed to send email")
		return err
	}

	logger.Info().
		Str("from", env.From).
		Strs("to", env.To).
		Strs("attachments", env.Attached).
		Msg("Email sent")
	return nil
}

func (m *SMTPMailer) transmit(ctx context.Context, logger *zerolog.Logger, env *Envelope) error {
	c, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := m.authenticate(c); err != nil {
		return err
	}

	if err := c.Mail(env.From, nil); err != nil {
		return &SubmitError{Command: "MAIL FROM", Err: err}
	}
	for _, rcpt := range env.To {
		if err := c.Rcpt(rcpt); err != nil {
			return &SubmitError{Command: "RCPT TO", Recipient: rcpt, Err: err}
		}
	}

	w, err := c.Data()
	if err != nil {
		return &SubmitError{Command: "DATA", Err: err}
	}
	if _, err := env.WriteTo(w); err != nil {
		_ = w.Close()
		return &SubmitError{Command: "DATA", Err: err}
	}
	// The relay's acceptance arrives as the reply to the terminating dot
	if err := w.Close(); err != nil {
		return &SubmitError{Command: "DATA", Err: err}
	}

	// The message is accepted at this point, a failed QUIT changes nothing
	if err := c.Quit(); err != nil {
		logger.Debug().Err(err).Msg("QUIT failed after delivery")
	}
	return nil
}

// dial connects to the relay and negotiates TLS according to the configured
// encryption mode
func (m *SMTPMailer) dial(ctx context.Context) (*smtp.Client, error) {
	addr := m.cfg.Addr()
	dialer := &net.Dialer{Timeout: m.cfg.Timeout}

	var conn net.Conn
	var err error
	if m.cfg.Encryption == config.EncryptionSSL {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: m.clientTLSConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	if deadline, ok := m.deadline(ctx); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, &ConnectError{Addr: addr, Err: err}
		}
	}

	// NewClient closes conn itself when the greeting fails
	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	if m.cfg.Encryption == config.EncryptionStartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			_ = c.Close()
			return nil, &ConnectError{Addr: addr, Err: ErrStartTLSUnsupported}
		}
		if err := c.StartTLS(m.clientTLSConfig()); err != nil {
			_ = c.Close()
			return nil, &ConnectError{Addr: addr, Err: err}
		}
	}

	return c, nil
}

// authenticate runs AUTH PLAIN when credentials are configured
func (m *SMTPMailer) authenticate(c *smtp.Client) error {
	if m.cfg.Username == "" || m.cfg.Password == "" {
		return nil
	}
	if err := c.Auth(sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)); err != nil {
		return &AuthError{Username: m.cfg.Username, Err: err}
	}
	return nil
}

func (m *SMTPMailer) clientTLSConfig() *tls.Config {
	var c *tls.Config
	if m.tlsConfig != nil {
		c = m.tlsConfig.Clone()
	} else {
		c = &tls.Config{InsecureSkipVerify: m.cfg.SkipVerify}
	}
	if c.ServerName == "" {
		c.ServerName = m.cfg.Host
	}
	return c
}

// deadline is the earlier of the context deadline and now+timeout
func (m *SMTPMailer) deadline(ctx context.Context) (time.Time, bool) {
	deadline, ok := ctx.Deadline()
	if m.cfg.Timeout > 0 {
		t := time.Now().Add(m.cfg.Timeout)
		if !ok || t.Before(deadline) {
			return t, true
		}
	}
	return deadline, ok
}
