package mail

import (
	"errors"
	"fmt"
	"net/textproto"

	"github.com/emersion/go-smtp"
)

var (
	// ErrNoRecipients is returned when a message has no To address
	ErrNoRecipients = errors.New("no recipients")
	// ErrNilMessage is returned when Send or Build is given a nil message
	ErrNilMessage = errors.New("nil message")
	// ErrStartTLSUnsupported is returned when STARTTLS is required but the
	// relay does not advertise it
	ErrStartTLSUnsupported = errors.New("relay does not support STARTTLS")
)

// ConnectError covers everything before authentication: DNS, dial, the
// greeting and TLS negotiation.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError means the relay rejected the credentials
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("failed to authenticate as %s: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// SubmitError means the relay refused the envelope or the message. Recipient
// is set when a RCPT TO was rejected.
type SubmitError struct {
	Command   string
	Recipient string
	Err       error
}

func (e *SubmitError) Error() string {
	if e.Recipient != "" {
		return fmt.Sprintf("failed to set recipient %s: %v", e.Recipient, e.Err)
	}
	return fmt.Sprintf("failed at %s: %v", e.Command, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// Code returns the SMTP reply code of the rejection, or 0 when the failure
// was not a relay reply (e.g. a broken connection).
func (e *SubmitError) Code() int {
	return replyCode(e.Err)
}

// Temporary reports whether the relay answered with a 4xx code, i.e. the
// same submission may succeed later.
func (e *SubmitError) Temporary() bool {
	code := e.Code()
	return code >= 400 && code < 500
}

func replyCode(err error) int {
	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		return smtpErr.Code
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code
	}
	return 0
}
