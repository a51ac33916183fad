package escalation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/pkg/logger"
	"emergency-dispatch-be/internal/repository/memory"
	"emergency-dispatch-be/pkg/emergency/directory"
	"emergency-dispatch-be/pkg/emergency/lifecycle"
	"emergency-dispatch-be/pkg/emergency/matcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu      sync.Mutex
	updates []Update
}

func (o *recordingObserver) Notify(_ context.Context, u Update) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.updates = append(o.updates, u)
	return nil
}

func (o *recordingObserver) events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.updates))
	for _, u := range o.updates {
		out = append(out, u.Event)
	}
	return out
}

// gatedDispatcher counts calls and can hold dispatch until the gate opens.
type gatedDispatcher struct {
	*matcher.Matcher
	gate  chan struct{}
	calls atomic.Int32
}

func (g *gatedDispatcher) Dispatch(ctx context.Context, req matcher.Request) (matcher.Result, error) {
	g.calls.Add(1)
	if g.gate != nil {
		<-g.gate
	}
	return g.Matcher.Dispatch(ctx, req)
}

// pausingDispatcher reserves, then holds the result until resume is closed.
type pausingDispatcher struct {
	*matcher.Matcher
	reserved chan struct{}
	resume   chan struct{}
}

func (p *pausingDispatcher) Dispatch(ctx context.Context, req matcher.Request) (matcher.Result, error) {
	res, err := p.Matcher.Dispatch(ctx, req)
	close(p.reserved)
	<-p.resume
	return res, err
}

type fixture struct {
	dir         *directory.Directory
	coord       *Coordinator
	sessions    *memory.SessionRepository
	assignments *memory.AssignmentRepository
	observer    *recordingObserver
	dispatcher  *gatedDispatcher
}

func steppingClock() func() time.Time {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var n atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func newFixture(t *testing.T, responders ...entity.Responder) *fixture {
	t.Helper()
	log := logger.NewNopLogger()
	dir := directory.New(log)
	for _, r := range responders {
		_, err := dir.Register(context.Background(), r)
		require.NoError(t, err)
	}

	f := &fixture{
		dir:         dir,
		sessions:    memory.NewSessionRepository(time.Hour),
		assignments: memory.NewAssignmentRepository(),
		observer:    &recordingObserver{},
		dispatcher:  &gatedDispatcher{Matcher: matcher.New(dir, matcher.Config{}, log)},
	}
	f.coord = New(f.sessions, dir, f.dispatcher, log,
		WithAssignmentLog(f.assignments),
		WithObservers(f.observer),
		WithClock(steppingClock()),
	)
	return f
}

func (f *fixture) classify(t *testing.T, id string, incident entity.IncidentType, severity entity.Severity, loc *entity.Location) {
	t.Helper()
	_, err := f.coord.UpdateClassification(context.Background(), id, lifecycle.Classification{
		Type:     &incident,
		Severity: &severity,
		Location: loc,
	})
	require.NoError(t, err)
}

func (f *fixture) assertAllAvailable(t *testing.T) {
	t.Helper()
	all, err := f.dir.List(context.Background())
	require.NoError(t, err)
	for _, r := range all {
		if r.Status == entity.ResponderOffline {
			continue
		}
		assert.Equal(t, entity.ResponderAvailable, r.Status, "responder %s", r.Id)
		assert.Nil(t, r.CurrentIncidentId, "responder %s", r.Id)
	}
}

func lastMessage(s entity.EmergencySession) entity.Message {
	return s.Messages[len(s.Messages)-1]
}

func medic(id string, lat, lng float64) entity.Responder {
	return entity.Responder{Id: id, Name: "Medic " + id, Role: entity.ResponderMedical, UnitId: "EMS-" + id, Location: &entity.GeoPoint{Lat: lat, Lng: lng}}
}

func TestStartAndMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.coord.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionActive, snap.Status)

	_, snap, err = f.coord.AddMessage(ctx, snap.Id, entity.RoleUser, "my father collapsed")
	require.NoError(t, err)
	_, snap, err = f.coord.AddMessage(ctx, snap.Id, entity.RoleAI, "Is he breathing?")
	require.NoError(t, err)
	require.Len(t, snap.Messages, 2)

	step, _, err := f.coord.AddStep(ctx, snap.Id, "Check for breathing", "")
	require.NoError(t, err)
	_, err = f.coord.CompleteStep(ctx, snap.Id, step.Id)
	require.NoError(t, err)
	_, err = f.coord.CompleteStep(ctx, snap.Id, step.Id)
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventSessionCreated, EventSessionUpdated, EventSessionUpdated, EventSessionUpdated, EventSessionUpdated,
	}, f.observer.events(), "an idempotent step completion publishes nothing")

	var last int64
	for _, u := range f.observer.updates {
		assert.Greater(t, u.Session.Version, last)
		last = u.Session.Version
	}

	_, _, err = f.coord.AddMessage(ctx, "EM-missing", entity.RoleUser, "hello")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEscalate_AssignsNearestResponder(t *testing.T) {
	f := newFixture(t, medic("1", 0, 0), medic("2", 1, 1))
	ctx := context.Background()

	snap, err := f.coord.Start(ctx)
	require.NoError(t, err)
	f.classify(t, snap.Id, entity.IncidentMedical, entity.SeverityCritical, &entity.Location{Lat: 0, Lng: 0})

	escalated, err := f.coord.Escalate(ctx, snap.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionEscalated, escalated.Status)
	f.coord.Wait()

	got, err := f.coord.Get(ctx, snap.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionAssigned, got.Status)
	require.NotNil(t, got.AssignedResponder)
	assert.Equal(t, "1", got.AssignedResponder.Id)
	assert.Equal(t, "EMS-1", got.AssignedResponder.Unit)

	msg := lastMessage(got)
	assert.Equal(t, entity.RoleSystem, msg.Role)
	assert.Equal(t, "Medic 1 (EMS-1) dispatched - ETA 2 min, 0.0 km away", msg.Content)

	one, err := f.dir.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, entity.ResponderBusy, one.Status)
	two, err := f.dir.Get(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, entity.ResponderAvailable, two.Status)

	rows, err := f.assignments.FindByIncident(ctx, snap.Id)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].ResponderId)
	assert.Nil(t, rows[0].ReleasedAt)

	assert.Contains(t, f.observer.events(), EventResponderDispatched)
}

func TestEscalate_IdempotentSingleDispatch(t *testing.T) {
	f := newFixture(t, medic("1", 0, 0))
	ctx := context.Background()

	snap, err := f.coord.Start(ctx)
	require.NoError(t, err)
	f.classify(t, snap.Id, entity.IncidentMedical, entity.SeverityHigh, &entity.Location{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.coord.Escalate(ctx, snap.Id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	f.coord.Wait()

	assert.Equal(t, int32(1), f.dispatcher.calls.Load())
}

func TestEscalateResolve_NoLocatedResponders(t *testing.T) {
	f := newFixture(t,
		entity.Responder{Id: "m", Name: "Medic", Role: entity.ResponderMedical, UnitId: "M-1"},
		entity.Responder{Id: "p", Name: "Patrol", Role: entity.ResponderPolice, UnitId: "P-1"},
	)
	ctx := context.Background()

	snap, err := f.coord.Start(ctx)
	require.NoError(t, err)
	f.classify(t, snap.Id, entity.IncidentMedical, entity.SeverityHigh, &entity.Location{Lat: 28.6, Lng: 77.2})

	_, err = f.coord.Escalate(ctx, snap.Id)
	require.NoError(t, err)
	f.coord.Wait()

	got, err := f.coord.Get(ctx, snap.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionEscalated, got.Status, "an empty dispatch is not an error state")
	assert.Nil(t, got.AssignedResponder)
	assert.True(t, strings.Contains(lastMessage(got).Content, "call 112"))
	f.assertAllAvailable(t)

	resolved, released, err := f.coord.Resolve(ctx, snap.Id)
	require.NoError(t, err)
	assert.Empty(t, released)
	assert.Equal(t, entity.SessionResolved, resolved.Status)
	f.assertAllAvailable(t)

	history := f.coord.History(ctx)
	require.Len(t, history, 1)
	assert.Equal(t, snap.Id, history[0].Id)
	assert.Empty(t, f.coord.List(ctx, ListFilter{}))

	_, _, err = f.coord.AddMessage(ctx, snap.Id, entity.RoleUser, "still there?")
	assert.ErrorIs(t, err, lifecycle.ErrSessionClosed)
	_, _, err = f.coord.Resolve(ctx, snap.Id)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
	_, err = f.coord.Escalate(ctx, snap.Id)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition)
}

func TestEscalate_WithoutLocation(t *testing.T) {
	f := newFixture(t, medic("1", 0, 0))
	ctx := context.Background()

	snap, err := f.coord.Start(ctx)
	require.NoError(t, err)
	_, err = f.coord.Escalate(ctx, snap.Id)
	require.NoError(t, err)
	f.coord.Wait()

	got, err := f.coord.Get(ctx, snap.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionEscalated, got.Status)
	assert.Contains(t, lastMessage(got).Content, "location is unknown")
	f.assertAllAvailable(t)

	_, err = f.coord.Candidates(ctx, snap.Id)
	assert.ErrorIs(t, err, ErrNoLocation)
}

func TestResolve_ReleasesEveryReservedUnit(t *testing.T) {
	f := newFixture(t,
		medic("m", 0, 0.01),
		entity.Responder{Id: "p", Name: "Patrol", Role: entity.ResponderPolice, UnitId: "P-1", Location: &entity.GeoPoint{Lat: 0, Lng: 0.02}},
	)
	ctx := context.Background()

	snap, err := f.coord.Start(ctx)
	require.NoError(t, err)
	f.classify(t, snap.Id, entity.IncidentAccident, entity.SeverityCritical, &entity.Location{})
	_, err = f.coord.Escalate(ctx, snap.Id)
	require.NoError(t, err)
	f.coord.Wait()

	got, err := f.coord.Get(ctx, snap.Id)
	require.NoError(t, err)
	assert.Equal(t, "m", got.AssignedResponder.Id)
	assert.Len(t, strings.Split(lastMessage(got).Content, "\n"), 2, "one line per dispatched unit")

	p, err := f.dir.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, entity.ResponderBusy, p.Status)

	_, released, err := f.coord.Resolve(ctx, snap.Id)
	require.NoError(t, err)
	assert.Len(t, released, 2)
	f.assertAllAvailable(t)

	rows, err := f.assignments.FindByIncident(ctx, snap.Id)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.NotNil(t, row.ReleasedAt)
		assert.Equal(t, entity.AssignmentCompleted, row.Status)
	}
}

func TestResolveDuringDispatch_DoesNotLeak(t *testing.T) {
	f := newFixture(t, medic("1", 0, 0))
	f.dispatcher.gate = make(chan struct{})
	ctx := context.Background()

	snap, err := f.coord.Start(ctx)
	require.NoError(t, err)
	f.classify(t, snap.Id, entity.IncidentMedical, entity.SeverityHigh, &entity.Location{})
	_, err = f.coord.Escalate(ctx, snap.Id)
	require.NoError(t, err)

	_, _, err = f.coord.Resolve(ctx, snap.Id)
	require.NoError(t, err)
	close(f.dispatcher.gate)
	f.coord.Wait()

	f.assertAllAvailable(t)
	got, err := f.coord.Get(ctx, snap.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionResolved, got.Status)
	assert.Nil(t, got.AssignedResponder)

	rows, err := f.assignments.FindByIncident(ctx, snap.Id)
	require.NoError(t, err)
	for _, row := range rows {
		assert.NotNil(t, row.ReleasedAt)
	}
}

func TestManualAssignDuringDispatch_KeepsAdoptedUnit(t *testing.T) {
	log := logger.NewNopLogger()
	ctx := context.Background()
	dir := directory.New(log)
	for _, r := range []entity.Responder{medic("1", 0, 0), medic("2", 0, 0.1)} {
		_, err := dir.Register(ctx, r)
		require.NoError(t, err)
	}
	paused := &pausingDispatcher{
		Matcher:  matcher.New(dir, matcher.Config{}, log),
		reserved: make(chan struct{}),
		resume:   make(chan struct{}),
	}
	coord := New(memory.NewSessionRepository(time.Hour), dir, paused, log,
		WithAssignmentLog(memory.NewAssignmentRepository()),
		WithClock(steppingClock()),
	)

	medical, high := entity.IncidentMedical, entity.SeverityHigh
	escalate := func() entity.EmergencySession {
		snap, err := coord.Start(ctx)
		require.NoError(t, err)
		_, err = coord.UpdateClassification(ctx, snap.Id, lifecycle.Classification{
			Type:     &medical,
			Severity: &high,
			Location: &entity.Location{},
		})
		require.NoError(t, err)
		_, err = coord.Escalate(ctx, snap.Id)
		require.NoError(t, err)
		return snap
	}

	first := escalate()
	<-paused.reserved

	got, err := coord.ManualAssign(ctx, first.Id, "1", false)
	require.NoError(t, err)
	require.NotNil(t, got.AssignedResponder)
	assert.Equal(t, "1", got.AssignedResponder.Id)

	close(paused.resume)
	coord.Wait()

	got, err = coord.Get(ctx, first.Id)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionAssigned, got.Status)
	require.NotNil(t, got.AssignedResponder)
	assert.Equal(t, "1", got.AssignedResponder.Id)

	one, err := dir.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, entity.ResponderBusy, one.Status)
	require.NotNil(t, one.CurrentIncidentId)
	assert.Equal(t, first.Id, *one.CurrentIncidentId)

	paused.reserved = make(chan struct{})
	paused.resume = make(chan struct{})
	close(paused.resume)
	second := escalate()
	coord.Wait()

	other, err := coord.Get(ctx, second.Id)
	require.NoError(t, err)
	require.NotNil(t, other.AssignedResponder)
	assert.Equal(t, "2", other.AssignedResponder.Id, "a unit held by another session is never booked twice")
}

func TestManualAssign(t *testing.T) {
	f := newFixture(t, medic("1", 0, 0), medic("2", 0, 0.1), medic("3", 0, 0.2))
	ctx := context.Background()

	snap, err := f.coord.Start(ctx)
	require.NoError(t, err)

	_, err = f.coord.ManualAssign(ctx, snap.Id, "2", false)
	assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "an active session cannot be assigned")
	two, err := f.dir.Get(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, entity.ResponderAvailable, two.Status, "the reservation is rolled back")

	f.classify(t, snap.Id, entity.IncidentMedical, entity.SeverityHigh, &entity.Location{})
	_, err = f.coord.Escalate(ctx, snap.Id)
	require.NoError(t, err)
	f.coord.Wait()

	got, err := f.coord.ManualAssign(ctx, snap.Id, "2", true)
	require.NoError(t, err)
	assert.Equal(t, "2", got.AssignedResponder.Id)
	assert.Contains(t, lastMessage(got).Content, "Dispatcher assigned Medic 2 (EMS-2)")

	one, err := f.dir.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, entity.ResponderAvailable, one.Status, "releasePrevious frees the replaced unit")

	got, err = f.coord.ManualAssign(ctx, snap.Id, "3", false)
	require.NoError(t, err)
	assert.Equal(t, "3", got.AssignedResponder.Id)
	two, err = f.dir.Get(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, entity.ResponderBusy, two.Status, "without releasePrevious the unit stays on the incident")

	other, err := f.coord.Start(ctx)
	require.NoError(t, err)
	_, err = f.coord.Escalate(ctx, other.Id)
	require.NoError(t, err)
	f.coord.Wait()
	_, err = f.coord.ManualAssign(ctx, other.Id, "3", false)
	assert.ErrorIs(t, err, directory.ErrResponderUnavailable)

	_, err = f.coord.Connect(ctx, snap.Id)
	require.NoError(t, err)
	_, released, err := f.coord.Resolve(ctx, snap.Id)
	require.NoError(t, err)
	assert.Len(t, released, 2)
	f.assertAllAvailable(t)

	rows, err := f.assignments.FindByResponder(ctx, "3")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Manual)
}

func TestList_DispatcherQueueOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := func(sev entity.Severity, escalate bool) string {
		snap, err := f.coord.Start(ctx)
		require.NoError(t, err)
		f.classify(t, snap.Id, entity.IncidentOther, sev, nil)
		if escalate {
			_, err = f.coord.Escalate(ctx, snap.Id)
			require.NoError(t, err)
		}
		return snap.Id
	}
	low := start(entity.SeverityLow, true)
	criticalEarly := start(entity.SeverityCritical, true)
	high := start(entity.SeverityHigh, false)
	criticalLate := start(entity.SeverityCritical, true)
	f.coord.Wait()

	queue := f.coord.List(ctx, ListFilter{})
	ids := make([]string, 0, len(queue))
	for _, s := range queue {
		ids = append(ids, s.Id)
	}
	assert.Equal(t, []string{criticalLate, criticalEarly, high, low}, ids)

	escalatedOnly := f.coord.List(ctx, ListFilter{Statuses: []entity.SessionStatus{entity.SessionEscalated}})
	assert.Len(t, escalatedOnly, 3)
}

func TestPublish_FailingObserverIsIsolated(t *testing.T) {
	f := newFixture(t)
	var attempts atomic.Int32
	f.coord.Subscribe(ObserverFunc(func(context.Context, Update) error {
		attempts.Add(1)
		return errors.New("socket closed")
	}))
	healthy := &recordingObserver{}
	f.coord.Subscribe(healthy)

	_, err := f.coord.Start(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(notifyAttempts), attempts.Load())
	assert.Equal(t, []string{EventSessionCreated}, healthy.events())
}

func TestSetDispatchNotesAndDispatcherMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap, err := f.coord.Start(ctx)
	require.NoError(t, err)

	_, err = f.coord.SetDispatchNotes(ctx, snap.Id, "caller hard of hearing")
	require.NoError(t, err)
	_, got, err := f.coord.DispatcherMessage(ctx, snap.Id, "Help is on the way")
	require.NoError(t, err)

	assert.Equal(t, "caller hard of hearing", got.DispatchNotes)
	assert.Equal(t, entity.RoleDispatch, lastMessage(got).Role)
	assert.Equal(t, entity.SessionActive, got.Status)
}

func TestAdopt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := lifecycle.New()
	_, _, err := s.Escalate()
	require.NoError(t, err)
	require.NoError(t, f.coord.Adopt(ctx, s.Snapshot()))

	got, err := f.coord.Get(ctx, s.Id())
	require.NoError(t, err)
	assert.Equal(t, entity.SessionEscalated, got.Status)

	closed := lifecycle.New()
	snap, _, err := closed.Resolve()
	require.NoError(t, err)
	require.NoError(t, f.coord.Adopt(ctx, snap))
	assert.Len(t, f.coord.History(ctx), 1)
}
