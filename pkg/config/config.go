package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// Default relay settings
const (
	DefaultHost = "mail.smtp2go.com"
	DefaultPort = 2525
)

// Encryption modes for the relay connection
const (
	EncryptionStartTLS = "starttls" // plaintext connect, then STARTTLS
	EncryptionSSL      = "ssl"      // implicit TLS from the first byte
	EncryptionNone     = "none"     // no TLS; local test relays only
)

// Config is the full application configuration
type Config struct {
	Mail     MailConfig
	Message  MessageConfig
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// MailConfig holds the relay connection and credentials
type MailConfig struct {
	Mailer            string        `env:"MAIL_MAILER" envDefault:"smtp"` // smtp, log
	Host              string        `env:"SMTP_HOST" envDefault:"mail.smtp2go.com"`
	Port              int           `env:"SMTP_PORT" envDefault:"2525"`
	Username          string        `env:"SMTP_USER"`
	Password          string        `env:"SMTP_PASSWORD"`
	Encryption        string        `env:"SMTP_ENCRYPTION" envDefault:"starttls"`
	Timeout           time.Duration `env:"SMTP_TIMEOUT" envDefault:"30s"`
	SkipVerify        bool          `env:"SMTP_TLS_SKIP_VERIFY"`
	MaxAttachmentSize ByteSize      `env:"MAIL_MAX_ATTACHMENT_SIZE" envDefault:"25MB"`
}

// MessageConfig holds the fields of the message to send
type MessageConfig struct {
	From        string   `env:"FROM_EMAIL"`
	To          []string `env:"TO_EMAIL" envSeparator:","`
	Subject     string   `env:"SUBJECT"`
	Body        string   `env:"BODY"`
	Attachments []string `env:"ATTACHMENTS" envSeparator:","`
}

// Addr returns host:port of the relay
func (c MailConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the relay settings that can be checked without dialing
func (c MailConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("smtp host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid smtp port: %d", c.Port)
	}
	switch c.Encryption {
	case EncryptionStartTLS, EncryptionSSL, EncryptionNone:
	default:
		return fmt.Errorf("unsupported encryption: %s", c.Encryption)
	}
	return nil
}

// ByteSize is a size in bytes that parses human sizes like "25MB"
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler
func (b *ByteSize) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*b = 0
		return nil
	}
	n, err := units.FromHumanSize(s)
	if err != nil {
		return fmt.Errorf("invalid size %q: %w", s, err)
	}
	*b = ByteSize(n)
	return nil
}

// String renders the size in human form
func (b ByteSize) String() string {
	return units.HumanSize(float64(b))
}
