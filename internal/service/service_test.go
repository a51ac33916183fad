package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"emergency-dispatch-be/internal/dto"
	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/model"
	"emergency-dispatch-be/internal/pkg/logger"
	"emergency-dispatch-be/internal/repository/memory"
	"emergency-dispatch-be/internal/repository/specification"
	"emergency-dispatch-be/internal/repository/unitofwork"
	"emergency-dispatch-be/pkg/emergency/directory"
	"emergency-dispatch-be/pkg/emergency/escalation"
	"emergency-dispatch-be/pkg/emergency/lifecycle"
	"emergency-dispatch-be/pkg/emergency/matcher"
	"emergency-dispatch-be/pkg/events"
	pktNats "emergency-dispatch-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stack struct {
	dir         *directory.Directory
	coord       *escalation.Coordinator
	assignments *memory.AssignmentRepository
	sessions    ISessionService
	responders  IResponderService
}

func newStack(t *testing.T, observers ...escalation.Observer) *stack {
	t.Helper()
	log := logger.NewNopLogger()
	dir := directory.New(log)
	assignments := memory.NewAssignmentRepository()
	coord := escalation.New(memory.NewSessionRepository(time.Hour), dir, matcher.New(dir, matcher.Config{}, log), log,
		escalation.WithAssignmentLog(assignments),
		escalation.WithObservers(observers...),
	)
	t.Cleanup(coord.Wait)
	return &stack{
		dir:         dir,
		coord:       coord,
		assignments: assignments,
		sessions:    NewSessionService(coord),
		responders:  NewResponderService(dir, assignments),
	}
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

func TestSessionService_DispatchFlow(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	_, err := s.responders.Register(ctx, &dto.RegisterResponderRequest{
		Id: "EMS-1", Name: "Medic 1", Role: "medical", UnitId: "A-12",
		Location: &dto.GeoPointRequest{Lat: 28.6139, Lng: 77.209},
	})
	require.NoError(t, err)

	created, err := s.sessions.Create(ctx, &dto.CreateSessionRequest{Language: "hi-IN"})
	require.NoError(t, err)
	assert.Equal(t, "hi-IN", created.Language)
	assert.Equal(t, "active", created.Status)

	medical, critical := "medical", "CRITICAL"
	_, err = s.sessions.UpdateClassification(ctx, created.Id, &dto.UpdateClassificationRequest{
		Type:     &medical,
		Severity: &critical,
		Location: &dto.LocationRequest{Lat: 28.6139, Lng: 77.209},
	})
	require.NoError(t, err)

	escalated, err := s.sessions.Escalate(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, "escalated", escalated.Status)
	s.coord.Wait()

	queue, err := s.sessions.Queue(ctx, []string{"assigned"})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, 1, queue[0].Priority)
	require.NotNil(t, queue[0].AssignedResponder)
	assert.Equal(t, "EMS-1", queue[0].AssignedResponder.Id)

	history, err := s.responders.Assignments(ctx, "EMS-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, created.Id, history[0].IncidentId)

	resolved, err := s.sessions.Resolve(ctx, created.Id)
	require.NoError(t, err)
	assert.Equal(t, "resolved", resolved.Session.Status)
	require.Len(t, resolved.Released, 1)
	assert.Equal(t, "EMS-1", resolved.Released[0].Id)

	busy, err := s.responders.List(ctx, &dto.ResponderListQuery{Status: "busy"})
	require.NoError(t, err)
	assert.Empty(t, busy)

	past, err := s.sessions.History(ctx)
	require.NoError(t, err)
	require.Len(t, past, 1)
}

func TestSessionService_QueueRejectsUnknownStatus(t *testing.T) {
	s := newStack(t)
	_, err := s.sessions.Queue(context.Background(), []string{"closed"})
	assert.ErrorIs(t, err, lifecycle.ErrInvalidInput)
}

func TestSessionService_CandidatesNeedLocation(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	created, err := s.sessions.Create(ctx, nil)
	require.NoError(t, err)

	_, err = s.sessions.Candidates(ctx, created.Id)
	assert.ErrorIs(t, err, escalation.ErrNoLocation)
}

func TestResponderService_Assignments_UnknownResponder(t *testing.T) {
	s := newStack(t)
	_, err := s.responders.Assignments(context.Background(), "nope")
	assert.ErrorIs(t, err, directory.ErrResponderNotFound)
}

func TestSnapshotBus_PersistsNewestVersion(t *testing.T) {
	db := testDB(t)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { pubSub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	consumer := NewConsumerService(pubSub, "snapshots", unitofwork.NewRepositoryFactory(db), logger.NewNopLogger())
	go func() { _ = consumer.Consume(ctx) }()

	s := newStack(t, NewPublisherService("snapshots", pubSub))
	// Subscription happens in the goroutine above; gochannel drops messages without subscribers
	require.Eventually(t, func() bool {
		if _, err := s.sessions.Create(ctx, nil); err != nil {
			return false
		}
		var count int64
		db.Model(&model.EmergencySession{}).Count(&count)
		return count > 0
	}, 2*time.Second, 20*time.Millisecond)

	created, err := s.sessions.Create(ctx, nil)
	require.NoError(t, err)
	_, err = s.sessions.AddMessage(ctx, created.Id, &dto.AddMessageRequest{Role: "user", Content: "There is smoke"})
	require.NoError(t, err)
	_, err = s.sessions.AddMessage(ctx, created.Id, &dto.AddMessageRequest{Role: "ai", Content: "Leave the building"})
	require.NoError(t, err)

	repo := unitofwork.NewUnitOfWork(db).EmergencySessionRepository()
	require.Eventually(t, func() bool {
		stored, err := repo.FindOne(ctx, specification.ByKey{Id: created.Id})
		return err == nil && stored != nil && len(stored.Messages) == 2
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := repo.FindOne(ctx, specification.ByKey{Id: created.Id})
	require.NoError(t, err)
	assert.Equal(t, "There is smoke", stored.Messages[0].Content)
	assert.Equal(t, entity.RoleAI, stored.Messages[1].Role)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func TestEventService_PublishesLifecycleEventsOnly(t *testing.T) {
	pub := &capturingPublisher{}
	svc := NewEventService(pub)
	ctx := context.Background()

	snap := lifecycle.New().Snapshot()
	require.NoError(t, svc.Notify(ctx, escalation.Update{Event: escalation.EventSessionUpdated, Session: snap}))
	assert.Empty(t, pub.events)

	snap, _, err := lifecycle.New().Escalate()
	require.NoError(t, err)
	require.NoError(t, svc.Notify(ctx, escalation.Update{
		Event:      escalation.EventResponderDispatched,
		Session:    snap,
		Responders: []entity.Responder{{Id: "EMS-1"}, {Id: "POL-1"}},
		At:         time.Now(),
	}))

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, escalation.EventResponderDispatched, ev.EventType())
	assert.Equal(t, snap.Id, ev.Payload()["session_id"])
	assert.Equal(t, "MEDIUM", ev.Payload()["severity"])
	assert.Equal(t, []string{"EMS-1", "POL-1"}, ev.Payload()["responder_ids"])
}

type capturingSubscriber struct {
	subject, durable string
	handler          pktNats.EventHandler
}

func (s *capturingSubscriber) Subscribe(_ context.Context, subject, durable string, handler pktNats.EventHandler) error {
	s.subject, s.durable, s.handler = subject, durable, handler
	return nil
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []string
	details []map[string]interface{}
}

func (l *recordingLogger) record(message string, details map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, message)
	l.details = append(l.details, details)
}

func (l *recordingLogger) Debug(_, message string, details map[string]interface{}) {
	l.record(message, details)
}
func (l *recordingLogger) Info(_, message string, details map[string]interface{}) {
	l.record(message, details)
}
func (l *recordingLogger) Warn(_, message string, details map[string]interface{}) {
	l.record(message, details)
}
func (l *recordingLogger) Error(_, message string, details map[string]interface{}) {
	l.record(message, details)
}
func (l *recordingLogger) Sync() error { return nil }

func TestAuditService_WritesEveryEvent(t *testing.T) {
	sub := &capturingSubscriber{}
	audit := &recordingLogger{}
	svc := NewAuditService(sub, audit, logger.NewNopLogger())

	require.NoError(t, svc.Start(context.Background()))
	assert.Equal(t, events.AllSubjects, sub.subject)
	assert.Equal(t, "dispatch-audit", sub.durable)

	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, sub.handler(context.Background(), events.BaseEvent{
		Type:       escalation.EventSessionResolved,
		Data:       map[string]interface{}{"session_id": "EM-1"},
		OccurredAt: at,
	}))

	require.Equal(t, []string{escalation.EventSessionResolved}, audit.entries)
	assert.Equal(t, "EM-1", audit.details[0]["session_id"])
	assert.Equal(t, at, audit.details[0]["occurred_at"])
}
