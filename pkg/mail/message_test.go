package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mimePart struct {
	ContentType string
	Params      map[string]string
	FileName    string
	Body        []byte
}

// parseMIME reads a serialized message back into its headers and leaf parts
func parseMIME(t *testing.T, raw []byte) (mail.Header, []mimePart) {
	t.Helper()

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)

	if !strings.HasPrefix(mediaType, "multipart/") {
		body, err := io.ReadAll(msg.Body)
		require.NoError(t, err)
		return msg.Header, []mimePart{{ContentType: mediaType, Params: params, Body: body}}
	}

	var parts []mimePart
	rdr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		p, err := rdr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)

		ct, ctParams, err := mime.ParseMediaType(p.Header.Get("Content-Type"))
		require.NoError(t, err)

		var body io.Reader = p
		if strings.EqualFold(p.Header.Get("Content-Transfer-Encoding"), "base64") {
			body = base64.NewDecoder(base64.StdEncoding, p)
		}
		data, err := io.ReadAll(body)
		require.NoError(t, err)

		parts = append(parts, mimePart{
			ContentType: ct,
			Params:      ctParams,
			FileName:    p.FileName(),
			Body:        data,
		})
	}
	return msg.Header, parts
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func buildRaw(t *testing.T, msg *Message, maxAttachment int64) (*Envelope, []byte) {
	t.Helper()
	env, err := Build(context.Background(), msg, maxAttachment)
	require.NoError(t, err)
	raw, err := env.Bytes()
	require.NoError(t, err)
	return env, raw
}

func TestBuild_Headers(t *testing.T) {
	env, raw := buildRaw(t, &Message{
		From:    "Bernard <bernard@solarnautics.org>",
		To:      []string{"a@x.com", "b@x.com"},
		Subject: "Test",
		Body:    "<b>hi</b>",
	}, 0)

	header, parts := parseMIME(t, raw)

	assert.Equal(t, "bernard@solarnautics.org", env.From)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, env.To)

	from, err := header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "Bernard", from[0].Name)
	assert.Equal(t, "bernard@solarnautics.org", from[0].Address)
	assert.Equal(t, "a@x.com, b@x.com", header.Get("To"))
	assert.Equal(t, "Test", header.Get("Subject"))
	assert.Equal(t, "1.0", header.Get("Mime-Version"))
	assert.NotEmpty(t, header.Get("Date"))
	assert.Regexp(t, `^<[0-9a-f-]{36}@solarnautics\.org>$`, header.Get("Message-Id"))

	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)
	assert.Empty(t, header.Get("Content-Transfer-Encoding"))

	require.Len(t, parts, 1)
	assert.Equal(t, "text/html", parts[0].ContentType)
	assert.Equal(t, "UTF-8", parts[0].Params["charset"])
	assert.Contains(t, string(parts[0].Body), "<b>hi</b>")
}

func TestBuild_SingleRecipientEqualsList(t *testing.T) {
	single := &Message{From: "f@x.com", To: SplitList("a@x.com"), Subject: "s", Body: "b"}
	list := &Message{From: "f@x.com", To: []string{"a@x.com"}, Subject: "s", Body: "b"}

	envSingle, rawSingle := buildRaw(t, single, 0)
	envList, rawList := buildRaw(t, list, 0)

	assert.Equal(t, envList.To, envSingle.To)

	hSingle, _ := parseMIME(t, rawSingle)
	hList, _ := parseMIME(t, rawList)
	assert.Equal(t, hList.Get("To"), hSingle.Get("To"))
}

func TestBuild_CommaJoinedEntrySplits(t *testing.T) {
	env, _ := buildRaw(t, &Message{From: "f@x.com", To: []string{"a@x.com, b@x.com"}}, 0)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, env.To)
}

func TestBuild_QuotedDisplayNameWithComma(t *testing.T) {
	env, raw := buildRaw(t, &Message{
		From: "f@x.com",
		To:   []string{`"Doe, John" <j@x.com>`, "a@x.com"},
	}, 0)

	assert.Equal(t, []string{"j@x.com", "a@x.com"}, env.To)

	header, _ := parseMIME(t, raw)
	to, err := header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 2)
	assert.Equal(t, "Doe, John", to[0].Name)
	assert.Equal(t, "j@x.com", to[0].Address)
	assert.Equal(t, "a@x.com", to[1].Address)
}

func TestBuild_NonASCIIDisplayName(t *testing.T) {
	env, raw := buildRaw(t, &Message{
		From: "Bérnard <b@x.com>",
		To:   []string{"Zoë <z@x.com>"},
	}, 0)

	assert.Equal(t, "b@x.com", env.From)

	header, _ := parseMIME(t, raw)
	from, err := header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "Bérnard", from[0].Name)
	assert.Equal(t, "b@x.com", from[0].Address)

	to, err := header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "Zoë", to[0].Name)
	assert.Equal(t, "z@x.com", to[0].Address)
}

func TestBuild_NilMessage(t *testing.T) {
	_, err := Build(context.Background(), nil, 0)
	assert.ErrorIs(t, err, ErrNilMessage)
}

func TestBuild_Attachments(t *testing.T) {
	dir := t.TempDir()
	report := writeFile(t, dir, "report.pdf", "%PDF-1.4 fake")
	notes := writeFile(t, dir, "notes.txt", "line one\nline two\n")

	env, raw := buildRaw(t, &Message{
		From:        "f@x.com",
		To:          []string{"a@x.com"},
		Subject:     "files",
		Body:        "<p>see attached</p>",
		Attachments: []string{report, notes},
	}, 0)

	assert.Equal(t, []string{"report.pdf", "notes.txt"}, env.Attached)
	assert.Empty(t, env.Skipped)

	header, parts := parseMIME(t, raw)
	mediaType, _, err := mime.ParseMediaType(header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/mixed", mediaType)

	require.Len(t, parts, 3)
	assert.Equal(t, "text/html", parts[0].ContentType)

	want := map[string]string{
		"report.pdf": "%PDF-1.4 fake",
		"notes.txt":  "line one\nline two\n",
	}
	for _, p := range parts[1:] {
		assert.Equal(t, "application/octet-stream", p.ContentType)
		assert.Equal(t, p.FileName, p.Params["name"])
		content, ok := want[p.FileName]
		require.True(t, ok, "unexpected attachment %q", p.FileName)
		assert.Equal(t, content, string(p.Body))
	}
}

func TestBuild_MissingAttachmentIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	dir := t.TempDir()
	present := writeFile(t, dir, "present.csv", "a,b\n1,2\n")
	missing := filepath.Join(dir, "missing.csv")

	env, err := Build(ctx, &Message{
		From:        "f@x.com",
		To:          []string{"a@x.com"},
		Attachments: []string{missing, present},
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"present.csv"}, env.Attached)
	assert.Equal(t, []string{missing}, env.Skipped)
	assert.Contains(t, buf.String(), "File not found")
	assert.Contains(t, buf.String(), missing)

	raw, err := env.Bytes()
	require.NoError(t, err)
	_, parts := parseMIME(t, raw)
	require.Len(t, parts, 2)
	assert.Equal(t, "present.csv", parts[1].FileName)
}

func TestBuild_OversizedAttachmentIsSkipped(t *testing.T) {
	dir := t.TempDir()
	big := writeFile(t, dir, "big.bin", strings.Repeat("x", 2048))
	small := writeFile(t, dir, "small.bin", "x")

	env, _ := buildRaw(t, &Message{
		From:        "f@x.com",
		To:          []string{"a@x.com"},
		Attachments: []string{big, small},
	}, 1024)

	assert.Equal(t, []string{"small.bin"}, env.Attached)
	assert.Equal(t, []string{big}, env.Skipped)
}

func TestBuild_UnreadableAttachmentFails(t *testing.T) {
	_, err := Build(context.Background(), &Message{
		From:        "f@x.com",
		To:          []string{"a@x.com"},
		Attachments: []string{t.TempDir()}, // a directory exists but cannot be read as a file
	}, 0)
	assert.Error(t, err)
}

func TestBuild_Validation(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		is   error
	}{
		{"no recipients", &Message{From: "f@x.com"}, ErrNoRecipients},
		{"blank recipients", &Message{From: "f@x.com", To: []string{" ", ","}}, ErrNoRecipients},
		{"bad from", &Message{From: "not an address", To: []string{"a@x.com"}}, nil},
		{"bad recipient", &Message{From: "f@x.com", To: []string{"a@x.com", "Invalid <b@x.com"}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(context.Background(), tt.msg, 0)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestBuild_HeaderInjection(t *testing.T) {
	_, raw := buildRaw(t, &Message{
		From:    "f@x.com",
		To:      []string{"a@x.com"},
		Subject: "Test\r\nBcc: victim@x.com",
	}, 0)

	header, _ := parseMIME(t, raw)
	assert.Empty(t, header.Get("Bcc"))
	assert.NotContains(t, string(raw), "\r\nBcc: victim@x.com")
}
