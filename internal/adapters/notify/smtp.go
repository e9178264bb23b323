package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"os"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/image-mod-relay/internal/config"
	"github.com/mikey/image-mod-relay/internal/core"
	"go.uber.org/zap"
)

const (
	dialTimeout    = 10 * time.Second
	sessionTimeout = 30 * time.Second
)

// SMTPNotifier mails a summary of every confirmed violation to the
// moderators through a local MTA
type SMTPNotifier struct {
	addr   string
	from   string
	to     []string
	logger *zap.Logger
}

// NewSMTPNotifier creates a notifier from configuration
func NewSMTPNotifier(cfg config.NotifyConfig, logger *zap.Logger) (*SMTPNotifier, error) {
	if len(cfg.To) == 0 {
		return nil, fmt.Errorf("notify.smtp.to must list at least one recipient")
	}
	return &SMTPNotifier{
		addr:   cfg.SMTPAddress,
		from:   cfg.From,
		to:     cfg.To,
		logger: logger,
	}, nil
}

// Notify sends one message per violation notice
func (n *SMTPNotifier) Notify(ctx context.Context, notice *core.ViolationNotice) error {
	// Get hostname for EHLO
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", n.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}

	// Set a deadline for the connection
	deadline := time.Now().Add(sessionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if err := c.Mail(n.from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range n.to {
		if err := c.Rcpt(recipient, nil); err != nil {
			n.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
		} else {
			recipientOK = true
		}
	}
	if !recipientOK {
		return fmt.Errorf("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(n.compose(notice)); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// the message was already accepted
		n.logger.Warn("QUIT command failed", zap.Error(err))
	}

	n.logger.Info("Moderators notified",
		zap.String("group_id", notice.GroupID),
		zap.Strings("recipients", n.to))
	return nil
}

func (n *SMTPNotifier) compose(notice *core.ViolationNotice) []byte {
	subject := fmt.Sprintf("Image violation in group %s: %s", notice.GroupID, strings.Join(notice.Labels, ", "))

	var body strings.Builder
	fmt.Fprintf(&body, "Group: %s\r\n", notice.GroupID)
	fmt.Fprintf(&body, "User: %s\r\n", notice.UserID)
	if notice.MessageID != nil {
		fmt.Fprintf(&body, "Message: %d\r\n", *notice.MessageID)
	}
	fmt.Fprintf(&body, "Labels: %s\r\n", strings.Join(notice.Labels, ", "))
	fmt.Fprintf(&body, "Recalled: %t\r\n", notice.Recalled)
	for _, location := range notice.Evidence {
		fmt.Fprintf(&body, "Evidence: %s\r\n", location)
	}
	body.WriteString("\r\n")
	body.WriteString(strings.ReplaceAll(notice.Report, "\n", "\r\n"))

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(n.to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", notice.At.Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body.String())
	msg.WriteString("\r\n")
	return msg.Bytes()
}

var _ core.Notifier = (*SMTPNotifier)(nil)
