package notify

import (
	"context"

	"github.com/ehealthwave/platform/pkg/common/kafka"
	"github.com/ehealthwave/platform/pkg/common/models"
)

// KafkaSender publishes notifications onto the delivery topic; a
// downstream worker picks them up and records delivery history.
type KafkaSender struct {
	producer *kafka.Producer
}

func NewKafkaSender(producer *kafka.Producer) *KafkaSender {
	return &KafkaSender{producer: producer}
}

func (s *KafkaSender) Send(ctx context.Context, notification models.Notification) error {
	data := map[string]interface{}{
		"notification_id": notification.ID,
		"subject_id":      notification.SubjectID,
		"phone_number":    notification.PhoneNumber,
		"message":         notification.Message,
		"language":        notification.Language,
		"metadata":        notification.Metadata,
	}
	return s.producer.PublishEvent(ctx, notification.Type, "access-service", data)
}
