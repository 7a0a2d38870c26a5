package notify

import (
	"context"

	"github.com/ehealthwave/platform/pkg/common/models"
)

// Sender hands a notification off for delivery. Delivery itself (SMS
// gateway, push) lives outside this service; senders are best-effort
// and their failures never roll back a grant's state.
type Sender interface {
	Send(ctx context.Context, notification models.Notification) error
}

// NoopSender discards notifications. Used in tests and when no broker
// is configured.
type NoopSender struct{}

func (NoopSender) Send(ctx context.Context, notification models.Notification) error {
	return nil
}
