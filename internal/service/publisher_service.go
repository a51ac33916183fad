package service

import (
	"context"
	"encoding/json"

	"emergency-dispatch-be/internal/dto"
	"emergency-dispatch-be/internal/mapper"
	"emergency-dispatch-be/pkg/emergency/escalation"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// IPublisherService puts session snapshots on the in-process bus. It is
// registered as a coordinator observer.
type IPublisherService interface {
	Notify(ctx context.Context, update escalation.Update) error
}

type publisherService struct {
	topicName string
	publisher message.Publisher
	sessions  *mapper.SessionMapper
}

func NewPublisherService(topicName string, publisher message.Publisher) IPublisherService {
	return &publisherService{
		topicName: topicName,
		publisher: publisher,
		sessions:  mapper.NewSessionMapper(),
	}
}

func (ps *publisherService) Notify(ctx context.Context, update escalation.Update) error {
	payload, err := json.Marshal(dto.SessionEvent{
		Type:  "session",
		Event: update.Event,
		Data:  ps.sessions.ToResponse(&update.Session),
		At:    update.At,
	})
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event", update.Event)
	msg.Metadata.Set("session_id", update.Session.Id)
	return ps.publisher.Publish(ps.topicName, msg)
}
