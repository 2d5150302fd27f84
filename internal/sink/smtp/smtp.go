// Package smtp implements the email delivery sink over SMTP. The
// destination target is the recipient address; server settings come from
// configuration.
package smtp

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/briefwire/briefwire/internal/producer"
	"github.com/briefwire/briefwire/internal/sink"
	"github.com/briefwire/briefwire/internal/task"
)

// Config holds SMTP server settings.
type Config struct {
	// Addr is the server address as host:port.
	Addr string

	// From is the envelope and header sender.
	From string

	// Username and Password enable PLAIN auth when both are set.
	Username string
	Password string
}

// sendFunc matches smtp.SendMail; injectable for tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Sink delivers digests as plain-text email.
type Sink struct {
	cfg  Config
	send sendFunc
}

// Compile-time interface check.
var _ sink.Sink = (*Sink)(nil)

// New creates an SMTP sink.
func New(cfg Config) *Sink {
	return &Sink{cfg: cfg, send: smtp.SendMail}
}

// Kind implements sink.Sink.
func (s *Sink) Kind() task.DestinationKind { return task.DestEmail }

// Deliver implements sink.Sink.
func (s *Sink) Deliver(_ context.Context, a producer.Artifact, dest task.Destination) sink.Outcome {
	if s.cfg.Addr == "" || s.cfg.From == "" {
		return sink.Outcome{Message: "smtp sink not configured"}
	}
	if dest.Target == "" || !strings.Contains(dest.Target, "@") {
		return sink.Outcome{Message: fmt.Sprintf("invalid recipient %q", dest.Target)}
	}

	subject := a.Title
	if subject == "" {
		subject = "Digest"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", dest.Target)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(a.Body)
	b.WriteString("\r\n")

	var auth smtp.Auth
	if s.cfg.Username != "" && s.cfg.Password != "" {
		host, _, err := net.SplitHostPort(s.cfg.Addr)
		if err != nil {
			return sink.Outcome{Message: fmt.Sprintf("bad smtp addr %q: %v", s.cfg.Addr, err)}
		}
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, host)
	}

	if err := s.send(s.cfg.Addr, auth, s.cfg.From, []string{dest.Target}, []byte(b.String())); err != nil {
		return sink.Outcome{Message: fmt.Sprintf("send: %v", err)}
	}
	return sink.Outcome{Success: true, Message: "sent to " + dest.Target}
}
