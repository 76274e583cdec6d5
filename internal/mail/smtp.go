package mail

import (
	"context"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// SMTPSender sends through an SMTP relay. net/smtp upgrades to STARTTLS
// whenever the server offers it.
type SMTPSender struct {
	addr string
	host string
	auth smtp.Auth
	from string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(host string, port int, user, password, from string) *SMTPSender {
	var auth smtp.Auth
	if user != "" {
		auth = smtp.PlainAuth("", user, password, host)
	}
	return &SMTPSender{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		host: host,
		auth: auth,
		from: from,
		send: smtp.SendMail,
	}
}

// Send blocks until the relay accepts the message or ctx is done. net/smtp
// has no context support, so a cancelled ctx abandons the in-flight send.
func (s *SMTPSender) Send(ctx context.Context, to, subject, html string) error {
	msg := buildMessage(s.from, to, subject, html, time.Now())
	done := make(chan error, 1)
	go func() { done <- s.send(s.addr, s.auth, s.from, []string{to}, msg) }()
	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, "smtp send")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func buildMessage(from, to, subject, html string, at time.Time) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + at.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}
