// Package mailtest provides an in-process SMTP relay for tests. It speaks
// STARTTLS with a throwaway CA certificate, enforces AUTH PLAIN against
// fixed credentials and keeps every accepted message in memory.
package mailtest

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/go-units"
	"github.com/emersion/go-smtp"
	"github.com/flashmob/go-guerrilla/tests/testcert"
)

const (
	host = "127.0.0.1"

	// DefaultUsername and DefaultPassword are accepted unless Credentials
	// says otherwise
	DefaultUsername = "relayuser"
	DefaultPassword = "relaypass"
)

var (
	errAuthRequired = &smtp.SMTPError{
		Code:         530,
		EnhancedCode: smtp.EnhancedCode{5, 7, 0},
		Message:      "Authentication required",
	}
	errBadCredentials = &smtp.SMTPError{
		Code:         535,
		EnhancedCode: smtp.EnhancedCode{5, 7, 8},
		Message:      "Authentication credentials invalid",
	}
	errMailboxUnavailable = &smtp.SMTPError{
		Code:         550,
		EnhancedCode: smtp.EnhancedCode{5, 1, 1},
		Message:      "Mailbox unavailable",
	}
)

// Received is one message accepted by the relay
type Received struct {
	Username string
	From     string
	To       []string
	Data     string
	At       time.Time
}

// Relay is an SMTP server listening on a random loopback port
type Relay struct {
	Host string
	Port int

	server   *smtp.Server
	caPool   *x509.CertPool
	username string
	password string
	reject   map[string]bool
	tls      bool

	mu       sync.Mutex
	messages []Received

	accepted atomic.Int64
	open     atomic.Int64
}

// Option configures a Relay
type Option func(*Relay)

// Credentials sets the only username/password pair the relay accepts
func Credentials(username, password string) Option {
	return func(r *Relay) {
		r.username = username
		r.password = password
	}
}

// RejectRecipient makes the relay answer 550 to RCPT TO for addr
func RejectRecipient(addr string) Option {
	return func(r *Relay) {
		r.reject[addr] = true
	}
}

// WithoutTLS disables STARTTLS and allows AUTH over plaintext
func WithoutTLS() Option {
	return func(r *Relay) {
		r.tls = false
	}
}

// NewRelay starts a relay that is shut down when the test ends
func NewRelay(t *testing.T, opts ...Option) *Relay {
	t.Helper()

	r := &Relay{
		Host:     host,
		username: DefaultUsername,
		password: DefaultPassword,
		reject:   map[string]bool{},
		tls:      true,
	}
	for _, opt := range opts {
		opt(r)
	}

	srv := smtp.NewServer(&backend{relay: r})
	srv.Domain = "localhost"
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.MaxMessageBytes = 100 * units.MiB
	srv.AllowInsecureAuth = !r.tls

	if r.tls {
		cert, pool := generateCert(t)
		srv.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		r.caPool = pool
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		t.Fatalf("mailtest: listen: %v", err)
	}
	r.Port = ln.Addr().(*net.TCPAddr).Port
	r.server = srv

	go func() {
		_ = srv.Serve(&countingListener{Listener: ln, relay: r})
	}()
	t.Cleanup(func() {
		_ = srv.Close()
	})

	return r
}

// Addr returns host:port
func (r *Relay) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// ClientTLSConfig trusts the relay's certificate
func (r *Relay) ClientTLSConfig() *tls.Config {
	return &tls.Config{RootCAs: r.caPool, ServerName: r.Host}
}

// Messages returns a copy of every message accepted so far
func (r *Relay) Messages() []Received {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Received, len(r.messages))
	copy(out, r.messages)
	return out
}

// Connections returns how many connections the relay has accepted
func (r *Relay) Connections() int {
	return int(r.accepted.Load())
}

// OpenConnections returns how many accepted connections are still open
func (r *Relay) OpenConnections() int {
	return int(r.open.Load())
}

func (r *Relay) save(m Received) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
}

// generateCert writes a CA certificate for 127.0.0.1 to a temp dir and
// loads it back
func generateCert(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()

	dir := t.TempDir() + string(os.PathSeparator)
	err := testcert.GenerateCert(
		host,
		"",        // valid from now
		time.Hour, // outlives any test
		true,      // CA, so it can sit in RootCAs
		2048,      // RSA
		"",        // no ECDSA curve
		dir,
	)
	if err != nil {
		t.Fatalf("mailtest: generate cert: %v", err)
	}

	// File names are fixed by GenerateCert
	certPath := dir + host + ".cert.pem"
	keyPath := dir + host + ".key.pem"

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		t.Fatalf("mailtest: load cert: %v", err)
	}
	pemBytes, err := os.ReadFile(certPath)
	if err != nil {
		t.Fatalf("mailtest: read cert: %v", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemBytes) {
		t.Fatalf("mailtest: no certificate in %s", certPath)
	}
	return cert, pool
}

// backend implements smtp.Backend
type backend struct {
	relay *Relay
}

// Login implements smtp.Backend
func (b *backend) Login(_ *smtp.ConnectionState, username, password string) (smtp.Session, error) {
	if username != b.relay.username || password != b.relay.password {
		return nil, errBadCredentials
	}
	return &session{relay: b.relay, username: username}, nil
}

// AnonymousLogin implements smtp.Backend. AUTH is always required.
func (b *backend) AnonymousLogin(_ *smtp.ConnectionState) (smtp.Session, error) {
	return nil, errAuthRequired
}

// session implements smtp.Session
type session struct {
	relay    *Relay
	username string
	from     string
	to       []string
}

func (s *session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *session) Logout() error { return nil }

func (s *session) Mail(from string, _ smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *session) Rcpt(to string) error {
	if s.relay.reject[to] {
		return errMailboxUnavailable
	}
	s.to = append(s.to, to)
	return nil
}

func (s *session) Data(r io.Reader) error {
	if len(s.to) == 0 {
		return errors.New("no valid recipients")
	}
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.relay.save(Received{
		Username: s.username,
		From:     s.from,
		To:       append([]string(nil), s.to...),
		Data:     string(buf),
		At:       time.Now(),
	})
	return nil
}

// countingListener tracks accepted and still open connections
type countingListener struct {
	net.Listener
	relay *Relay
}

func (l *countingListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	l.relay.accepted.Add(1)
	l.relay.open.Add(1)
	return &countingConn{Conn: conn, open: &l.relay.open}, nil
}

type countingConn struct {
	net.Conn
	open *atomic.Int64
	once sync.Once
}

func (c *countingConn) Close() error {
	c.once.Do(func() { c.open.Add(-1) })
	return c.Conn.Close()
}
