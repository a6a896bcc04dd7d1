package mail

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/solarnautics/relaymail/pkg/config"
)

// Message represents an email message
type Message struct {
	From        string
	To          []string
	Subject     string
	Body        string   // HTML
	Attachments []string // file paths, read at send time
}

// Mailer is the interface for sending emails
type Mailer interface {
	// Send sends the given message
	Send(ctx context.Context, msg *Message) error
}

// SplitList turns a single address or a comma-separated list of addresses
// (or paths) into a slice, trimming blanks. SplitList("a@x.com") and
// SplitList("a@x.com, b@x.com") both yield what a caller would have passed
// as a list.
func SplitList(s string) []string {
	return config.CleanList(strings.Split(s, ","))
}

// recipients parses every To entry as an address list, so an entry holding
// "a@x.com, b@x.com" counts as two recipients while a quoted display name
// such as "Doe, John" <j@x.com> stays one. Blank entries are ignored.
func (m *Message) recipients() ([]*mail.Address, error) {
	var out []*mail.Address
	for _, to := range m.To {
		if strings.Trim(to, ", \t") == "" {
			continue
		}
		addrs, err := mail.ParseAddressList(to)
		if err != nil {
			return nil, fmt.Errorf("invalid recipient %q: %w", to, err)
		}
		out = append(out, addrs...)
	}
	return out, nil
}

// parseEmailAddress parses a single address using net/mail
func parseEmailAddress(input string) (*mail.Address, error) {
	return mail.ParseAddress(input)
}
