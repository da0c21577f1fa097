package email

import (
	"context"
	"time"
)

// Sender delivers account notifications.
type Sender interface {
	SendLowBalanceEmail(ctx context.Context, toEmail string, balanceCents, thresholdCents int64) error
	SendConnectionExpiredEmail(ctx context.Context, toEmail, connectionName, platform string) error
	SendDeliveryFailedEmail(ctx context.Context, toEmail, destination string, attempts int, lastError string, failedAt time.Time) error
}

// NoopSender drops every message. Used when SMTP is not configured.
type NoopSender struct{}

func (NoopSender) SendLowBalanceEmail(context.Context, string, int64, int64) error { return nil }
func (NoopSender) SendConnectionExpiredEmail(context.Context, string, string, string) error {
	return nil
}
func (NoopSender) SendDeliveryFailedEmail(context.Context, string, string, int, string, time.Time) error {
	return nil
}

var (
	_ Sender = NoopSender{}
	_ Sender = (*SMTPSender)(nil)
)
