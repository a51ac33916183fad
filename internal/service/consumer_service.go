package service

import (
	"context"
	"encoding/json"

	"emergency-dispatch-be/internal/dto"
	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/mapper"
	"emergency-dispatch-be/internal/pkg/logger"
	"emergency-dispatch-be/internal/repository/unitofwork"

	"github.com/ThreeDotsLabs/watermill/message"
)

const consumerModule = "SnapshotConsumer"

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService writes every session snapshot from the bus to the database.
type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	uowFactory unitofwork.RepositoryFactory
	sessions   *mapper.SessionMapper
	logger     logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		uowFactory: uowFactory,
		sessions:   mapper.NewSessionMapper(),
		logger:     log,
	}
}

// Consume subscribes and processes messages until ctx is cancelled.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	for msg := range messages {
		cs.processMessage(ctx, msg)
	}
	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.SessionEvent
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error(consumerModule, "Failed to unmarshal snapshot", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	snapshot := cs.sessions.FromResponse(&payload.Data)
	written, err := cs.persist(ctx, snapshot)
	if err != nil {
		cs.logger.Error(consumerModule, "Failed to persist snapshot", map[string]interface{}{
			"session_id": snapshot.Id,
			"version":    snapshot.Version,
			"error":      err.Error(),
		})
		msg.Nack()
		return
	}

	cs.logger.Debug(consumerModule, "Snapshot processed", map[string]interface{}{
		"session_id": snapshot.Id,
		"event":      payload.Event,
		"version":    snapshot.Version,
		"written":    written,
	})
	msg.Ack()
}

func (cs *consumerService) persist(ctx context.Context, snapshot *entity.EmergencySession) (bool, error) {
	uow := cs.uowFactory.NewUnitOfWork(ctx)
	if err := uow.Begin(ctx); err != nil {
		return false, err
	}
	written, err := uow.EmergencySessionRepository().Upsert(ctx, snapshot)
	if err != nil {
		_ = uow.Rollback()
		return false, err
	}
	return written, uow.Commit()
}
