package service

import (
	"context"

	"emergency-dispatch-be/internal/pkg/logger"
	"emergency-dispatch-be/pkg/events"
	pktNats "emergency-dispatch-be/pkg/nats"
)

const (
	auditModule  = "AuditService"
	auditDurable = "dispatch-audit"
)

// EventSubscriber is satisfied by the NATS subscriber.
type EventSubscriber interface {
	Subscribe(ctx context.Context, subject, durableName string, handler pktNats.EventHandler) error
}

// AuditService keeps an append-only trail of lifecycle events in its own log file.
type AuditService struct {
	subscriber EventSubscriber
	audit      logger.ILogger
	logger     logger.ILogger
}

func NewAuditService(sub EventSubscriber, audit logger.ILogger, log logger.ILogger) *AuditService {
	return &AuditService{
		subscriber: sub,
		audit:      audit,
		logger:     log,
	}
}

// Start begins listening to the event bus.
func (s *AuditService) Start(ctx context.Context) error {
	if err := s.subscriber.Subscribe(ctx, events.AllSubjects, auditDurable, s.handleEvent); err != nil {
		s.logger.Error(auditModule, "Failed to start audit subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info(auditModule, "Audit trail listening", map[string]interface{}{"subject": events.AllSubjects})
	return nil
}

func (s *AuditService) handleEvent(_ context.Context, event events.Event) error {
	details := make(map[string]interface{}, len(event.Payload())+1)
	for k, v := range event.Payload() {
		details[k] = v
	}
	details["occurred_at"] = event.Timestamp()
	s.audit.Info(auditModule, event.EventType(), details)
	return nil
}
