package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"glasswallet_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host       string
	port       int
	username   string
	password   string
	fromName   string
	fromEmail  string
	appBaseURL string
}

// NewSMTPSender creates a new SMTPSender from mail configuration.
func NewSMTPSender(cfg config.MailConfig, appBaseURL string) *SMTPSender {
	return &SMTPSender{
		host:       cfg.GetSMTPHost(),
		port:       cfg.GetSMTPPort(),
		username:   cfg.GetSMTPUsername(),
		password:   cfg.GetSMTPPassword(),
		fromName:   cfg.GetEmailFromName(),
		fromEmail:  cfg.GetEmailFromAddress(),
		appBaseURL: appBaseURL,
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSender) SendLowBalanceEmail(ctx context.Context, toEmail string, balanceCents, thresholdCents int64) error {
	content, err := renderEmailTemplate("low_balance.html", lowBalanceEmailData{
		baseEmailData: baseEmailData{
			Title:    subjectLowBalance,
			Heading:  "Low credit balance",
			CTALabel: "Add credits",
			CTAURL:   s.appBaseURL + "/billing",
		},
		BalanceCents:   balanceCents,
		ThresholdCents: thresholdCents,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectLowBalance, content)
}

func (s *SMTPSender) SendConnectionExpiredEmail(ctx context.Context, toEmail, connectionName, platform string) error {
	content, err := renderEmailTemplate("connection_expired.html", connectionExpiredEmailData{
		baseEmailData: baseEmailData{
			Title:    "Connection expired",
			Heading:  "Ad platform connection expired",
			CTALabel: "Reconnect",
			CTAURL:   s.appBaseURL + "/pixels",
		},
		ConnectionName: connectionName,
		Platform:       platform,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, fmt.Sprintf(subjectConnectionExpiredFmt, connectionName), content)
}

func (s *SMTPSender) SendDeliveryFailedEmail(ctx context.Context, toEmail, destination string, attempts int, lastError string, failedAt time.Time) error {
	content, err := renderEmailTemplate("delivery_failed.html", deliveryFailedEmailData{
		baseEmailData: baseEmailData{
			Title:   subjectDeliveryFailed,
			Heading: "Webhook delivery failed",
		},
		Destination: destination,
		Attempts:    attempts,
		LastError:   lastError,
		FailedAt:    failedAt.UTC().Format(time.RFC1123),
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectDeliveryFailed, content)
}
