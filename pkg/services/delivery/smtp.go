package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"os"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// SMTPTransport sends through a relay. The connection carries the context
// deadline and is closed when the context ends, so a timed out send stops
// talking to the relay instead of finishing in the background. A message the
// relay already accepted at end-of-data counts as sent.
type SMTPTransport struct {
	config SMTPConfig
	dial   dialFunc
}

func NewSMTPTransport(config SMTPConfig) *SMTPTransport {
	if config.Port == 0 {
		config.Port = 587
	}
	return &SMTPTransport{config: config, dial: (&net.Dialer{}).DialContext}
}

func (t *SMTPTransport) Name() string {
	return "smtp"
}

func (t *SMTPTransport) Send(ctx context.Context, sender, recipient string, raw []byte) (string, error) {
	addr := net.JoinHostPort(t.config.Host, fmt.Sprint(t.config.Port))

	conn, err := t.dial(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := t.converse(conn, sender, recipient, raw); err != nil {
		switch {
		case ctx.Err() != nil:
			err = ctx.Err()
		case errors.Is(err, os.ErrDeadlineExceeded):
			// The connection deadline is the context deadline.
			err = context.DeadlineExceeded
		}
		return "", fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	return "", nil
}

func (t *SMTPTransport) converse(conn net.Conn, sender, recipient string, raw []byte) error {
	c, err := smtp.NewClient(conn, t.config.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.config.Host}); err != nil {
			return err
		}
	}
	if t.config.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("relay does not offer AUTH")
		}
		auth := smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)
		if err := c.Auth(auth); err != nil {
			return err
		}
	}
	if err := c.Mail(sender); err != nil {
		return err
	}
	if err := c.Rcpt(recipient); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	// The relay has queued the message; a failed QUIT does not undo that.
	_ = c.Quit()
	return nil
}
