package mail

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	gomail "gopkg.in/gomail.v2"
)

// Envelope is a message ready for submission: the SMTP envelope (bare
// sender address and recipient list) plus the MIME content.
type Envelope struct {
	From     string
	To       []string
	Content  *gomail.Message
	Attached []string // base names of attached files
	Skipped  []string // paths left out because missing or too large
}

// WriteTo serializes the MIME content. gomail only opens a multipart/mixed
// container once something is attached, so a message without attachments
// is rewrapped into one holding the single HTML part.
func (e *Envelope) WriteTo(w io.Writer) (int64, error) {
	if len(e.Attached) > 0 {
		return e.Content.WriteTo(w)
	}

	var single bytes.Buffer
	if _, err := e.Content.WriteTo(&single); err != nil {
		return 0, err
	}
	raw, err := wrapMixed(single.Bytes())
	if err != nil {
		return 0, err
	}
	n, err := w.Write(raw)
	return int64(n), err
}

// Bytes returns the serialized MIME content
func (e *Envelope) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := e.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrapMixed moves the content headers and body of a single-part message
// into the only part of a multipart/mixed container
func wrapMixed(single []byte) ([]byte, error) {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(single)))
	header, err := r.ReadMIMEHeader()
	if err != nil {
		return nil, fmt.Errorf("failed to read message header: %w", err)
	}
	body, err := io.ReadAll(r.R)
	if err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	partHeader := textproto.MIMEHeader{}
	for _, k := range []string{"Content-Type", "Content-Transfer-Encoding"} {
		if v, ok := header[k]; ok {
			partHeader[k] = v
			delete(header, k)
		}
	}

	var out bytes.Buffer
	mw := multipart.NewWriter(&out)
	header.Set("Content-Type", mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": mw.Boundary()}))

	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range header[k] {
			fmt.Fprintf(&out, "%s: %s\r\n", k, v)
		}
	}
	out.WriteString("\r\n")

	pw, err := mw.CreatePart(partHeader)
	if err != nil {
		return nil, err
	}
	if _, err := pw.Write(body); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Build validates msg and assembles its MIME representation. Attachments
// that do not exist, or exceed maxAttachment bytes (0 disables the limit),
// are logged and skipped.
func Build(ctx context.Context, msg *Message, maxAttachment int64) (*Envelope, error) {
	if msg == nil {
		return nil, ErrNilMessage
	}
	logger := log.Ctx(ctx)

	to, err := msg.recipients()
	if err != nil {
		return nil, err
	}
	if len(to) == 0 {
		return nil, ErrNoRecipients
	}

	from, err := parseEmailAddress(msg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", msg.From, err)
	}

	m := gomail.NewMessage()
	rcpts := make([]string, 0, len(to))
	toHeader := make([]string, 0, len(to))
	for _, addr := range to {
		rcpts = append(rcpts, addr.Address)
		toHeader = append(toHeader, m.FormatAddress(addr.Address, addr.Name))
	}

	m.SetHeader("From", m.FormatAddress(from.Address, from.Name))
	m.SetHeader("To", toHeader...)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID(from.Address))
	m.SetBody("text/html", msg.Body)

	env := &Envelope{From: from.Address, To: rcpts, Content: m}

	for _, path := range msg.Attachments {
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Str("path", path).Msg("File not found, skipping attachment")
			env.Skipped = append(env.Skipped, path)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stat attachment %s: %w", path, err)
		}
		if maxAttachment > 0 && info.Size() > maxAttachment {
			logger.Warn().
				Str("path", path).
				Str("size", humanize.Bytes(uint64(info.Size()))).
				Str("limit", humanize.Bytes(uint64(maxAttachment))).
				Msg("Attachment too large, skipping")
			env.Skipped = append(env.Skipped, path)
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", path, err)
		}
		attach(m, path, data)
		env.Attached = append(env.Attached, filepath.Base(path))
	}

	return env, nil
}

// attach adds data as a binary part named after the base of path
func attach(m *gomail.Message, path string, data []byte) {
	name := filepath.Base(path)
	m.Attach(path,
		gomail.SetHeader(map[string][]string{
			"Content-Type":        {mime.FormatMediaType("application/octet-stream", map[string]string{"name": name})},
			"Content-Disposition": {mime.FormatMediaType("attachment", map[string]string{"filename": name})},
		}),
		gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		}),
	)
}

func messageID(from string) string {
	domain := "localhost"
	if i := strings.LastIndex(from, "@"); i >= 0 && i < len(from)-1 {
		domain = from[i+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}
