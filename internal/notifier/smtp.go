package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"mailminder/pkg/config"
)

var ErrNoSender = errors.New("smtp: from address is not configured")

// SMTPNotifier 用 go-message 组装 RFC 5322 邮件，端口 465 走隐式 TLS，其余走 STARTTLS
type SMTPNotifier struct {
	cfg     config.SMTPConfig
	timeout time.Duration
	now     func() time.Time
}

func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPNotifier{
		cfg:     cfg,
		timeout: 30 * time.Second,
		now:     time.Now,
	}
}

func (n *SMTPNotifier) Send(ctx context.Context, to, subject, body string) error {
	if n.cfg.From == "" {
		return ErrNoSender
	}

	msg, err := n.compose(to, subject, body)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))
	client, err := n.dial(ctx, addr)
	if err != nil {
		return err
	}
	defer client.Close()

	if n.cfg.Username != "" {
		auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP auth: %w", err)
		}
	}

	if err := client.Mail(n.cfg.From); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("SMTP write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("SMTP close data: %w", err)
	}
	return client.Quit()
}

func (n *SMTPNotifier) dial(ctx context.Context, addr string) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: n.timeout}
	tlsConfig := &tls.Config{ServerName: n.cfg.Host}

	var conn net.Conn
	var err error
	if n.cfg.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial SMTP %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(n.timeout))
	}

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating SMTP client: %w", err)
	}

	if n.cfg.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, fmt.Errorf("SMTP STARTTLS: %w", err)
			}
		}
	}
	return client, nil
}

// compose 生成带头部的纯文本邮件
func (n *SMTPNotifier) compose(to, subject, body string) ([]byte, error) {
	var h mail.Header
	h.SetDate(n.now())
	h.SetAddressList("From", []*mail.Address{{Name: n.cfg.FromName, Address: n.cfg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(subject)
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Message-Id", fmt.Sprintf("<%s@mailminder>", uuid.NewString()))

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("compose message: %w", err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return nil, fmt.Errorf("compose message: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compose message: %w", err)
	}
	return buf.Bytes(), nil
}
