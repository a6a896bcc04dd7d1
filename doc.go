// Package relaymail sends HTML email with file attachments through an
// authenticated SMTP relay (SMTP2GO by default).
//
// Everything is driven by environment variables, an optional .env file and
// command line flags, in that order of increasing precedence.
//
// Key subpackages:
//
//	github.com/solarnautics/relaymail/pkg/mail       - Message assembly, SMTP and log mailers, error types
//	github.com/solarnautics/relaymail/pkg/config     - Configuration structs and the .env/env loader
//	github.com/solarnautics/relaymail/pkg/schedule   - Cron kernel for repeated sends
//	github.com/solarnautics/relaymail/pkg/telemetry  - Logger and tracer setup
//	github.com/solarnautics/relaymail/pkg/console    - send and schedule commands
//
// Example Usage:
//
//	package main
//
//	import (
//		"context"
//
//		"github.com/solarnautics/relaymail/pkg/config"
//		"github.com/solarnautics/relaymail/pkg/mail"
//	)
//
//	func main() {
//		cfg, err := config.Load(config.DefaultEnvFile)
//		if err != nil {
//			panic(err)
//		}
//		mailer, err := mail.NewMailer(cfg.Mail)
//		if err != nil {
//			panic(err)
//		}
//		err = mailer.Send(context.Background(), &mail.Message{
//			From:        cfg.Message.From,
//			To:          []string{"a@example.com", "b@example.com"},
//			Subject:     "Report",
//			Body:        "<b>attached</b>",
//			Attachments: []string{"report.pdf"},
//		})
//		if err != nil {
//			panic(err)
//		}
//	}
package relaymail
