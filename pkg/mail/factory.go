package mail

import (
	"fmt"

	"github.com/solarnautics/relaymail/pkg/config"
)

// NewMailer creates a new Mailer based on the configuration
func NewMailer(cfg config.MailConfig, opts ...Option) (Mailer, error) {
	switch cfg.Mailer {
	case "smtp", "":
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return NewSMTPMailer(cfg, opts...), nil
	case "log":
		return NewLogMailer(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported mailer: %s", cfg.Mailer)
	}
}
