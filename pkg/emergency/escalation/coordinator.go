// Package escalation ties live sessions to responder dispatch. It runs
// automatic matching on escalation, frees reserved units on resolution and
// republishes every session mutation to observers.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/pkg/logger"
	"emergency-dispatch-be/pkg/emergency/directory"
	"emergency-dispatch-be/pkg/emergency/lifecycle"
	"emergency-dispatch-be/pkg/emergency/matcher"
	"emergency-dispatch-be/pkg/geo"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const module = "Escalation"

const (
	DefaultEmergencyNumber = "112"
	notifyAttempts         = 3
	notifyBackoff          = 20 * time.Millisecond
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoLocation      = errors.New("session has no location")
)

type ListFilter struct {
	// Statuses restricts the result; empty means every live session.
	Statuses []entity.SessionStatus
}

type Coordinator struct {
	sessions    SessionStore
	directory   Directory
	dispatcher  Dispatcher
	assignments AssignmentLog

	obsMu     sync.RWMutex
	observers []Observer

	emergencyNumber string
	logger          logger.ILogger
	tracer          trace.Tracer
	now             func() time.Time
	clockSet        bool

	inflight sync.WaitGroup
}

type Option func(*Coordinator)

func WithAssignmentLog(log AssignmentLog) Option {
	return func(c *Coordinator) { c.assignments = log }
}

func WithObservers(observers ...Observer) Option {
	return func(c *Coordinator) { c.observers = append(c.observers, observers...) }
}

func WithEmergencyNumber(number string) Option {
	return func(c *Coordinator) {
		if number != "" {
			c.emergencyNumber = number
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
		c.clockSet = true
	}
}

func New(sessions SessionStore, dir Directory, dispatcher Dispatcher, log logger.ILogger, opts ...Option) *Coordinator {
	c := &Coordinator{
		sessions:        sessions,
		directory:       dir,
		dispatcher:      dispatcher,
		emergencyNumber: DefaultEmergencyNumber,
		logger:          log,
		tracer:          otel.Tracer("emergency-dispatch-be/escalation"),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers an observer for all following updates.
func (c *Coordinator) Subscribe(o Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, o)
}

// Wait blocks until background dispatches started by Escalate have finished.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

func (c *Coordinator) Start(ctx context.Context) (entity.EmergencySession, error) {
	var opts []lifecycle.Option
	if c.clockSet {
		opts = append(opts, lifecycle.WithClock(c.now))
	}
	s := lifecycle.New(opts...)
	if err := c.sessions.Save(ctx, s); err != nil {
		return entity.EmergencySession{}, fmt.Errorf("save session: %w", err)
	}

	snap := s.Snapshot()
	c.logger.Info(module, "Session started", map[string]interface{}{"session_id": snap.Id})
	c.publish(ctx, EventSessionCreated, snap, nil)
	return snap, nil
}

// Adopt registers a session rebuilt from storage, e.g. at boot.
func (c *Coordinator) Adopt(ctx context.Context, snapshot entity.EmergencySession) error {
	if snapshot.Status == entity.SessionResolved {
		return c.sessions.Archive(ctx, snapshot)
	}
	s, err := lifecycle.Restore(snapshot)
	if err != nil {
		return err
	}
	return c.sessions.Save(ctx, s)
}

func (c *Coordinator) Get(ctx context.Context, id string) (entity.EmergencySession, error) {
	if s, ok := c.sessions.Find(ctx, id); ok {
		return s.Snapshot(), nil
	}
	if snap, ok := c.sessions.FindArchived(ctx, id); ok {
		return snap, nil
	}
	return entity.EmergencySession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

// List returns live sessions in dispatcher queue order: most urgent first,
// then most recently escalated.
func (c *Coordinator) List(ctx context.Context, filter ListFilter) []entity.EmergencySession {
	live := c.sessions.FindAll(ctx)
	out := make([]entity.EmergencySession, 0, len(live))
	for _, s := range live {
		snap := s.Snapshot()
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, snap.Status) {
			continue
		}
		out = append(out, snap)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority() != b.Priority() {
			return a.Priority() < b.Priority()
		}
		switch {
		case a.EscalatedAt != nil && b.EscalatedAt != nil && !a.EscalatedAt.Equal(*b.EscalatedAt):
			return a.EscalatedAt.After(*b.EscalatedAt)
		case a.EscalatedAt != nil && b.EscalatedAt == nil:
			return true
		case a.EscalatedAt == nil && b.EscalatedAt != nil:
			return false
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return out
}

// History returns resolved sessions, latest resolution first.
func (c *Coordinator) History(ctx context.Context) []entity.EmergencySession {
	out := c.sessions.FindAllArchived(ctx)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].ResolvedAt, out[j].ResolvedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.After(*b)
	})
	return out
}

func (c *Coordinator) AddMessage(ctx context.Context, id string, role entity.MessageRole, content string) (entity.Message, entity.EmergencySession, error) {
	s, err := c.session(ctx, id)
	if err != nil {
		return entity.Message{}, entity.EmergencySession{}, err
	}
	msg, snap, err := s.AddMessage(role, content)
	if err != nil {
		return msg, snap, err
	}
	c.publish(ctx, EventSessionUpdated, snap, nil)
	return msg, snap, nil
}

// DispatcherMessage appends a dispatch-role message. Status is unchanged.
func (c *Coordinator) DispatcherMessage(ctx context.Context, id, text string) (entity.Message, entity.EmergencySession, error) {
	s, err := c.session(ctx, id)
	if err != nil {
		return entity.Message{}, entity.EmergencySession{}, err
	}
	msg, snap, err := s.AddMessage(entity.RoleDispatch, text)
	if err != nil {
		return msg, snap, err
	}
	c.publish(ctx, EventDispatcherMessage, snap, nil)
	return msg, snap, nil
}

func (c *Coordinator) AddStep(ctx context.Context, id, text, imageUrl string) (entity.Step, entity.EmergencySession, error) {
	s, err := c.session(ctx, id)
	if err != nil {
		return entity.Step{}, entity.EmergencySession{}, err
	}
	step, snap, err := s.AddStep(text, imageUrl)
	if err != nil {
		return step, snap, err
	}
	c.publish(ctx, EventSessionUpdated, snap, nil)
	return step, snap, nil
}

func (c *Coordinator) CompleteStep(ctx context.Context, id, stepId string) (entity.EmergencySession, error) {
	return c.mutate(ctx, id, EventSessionUpdated, func(s *lifecycle.Session) (entity.EmergencySession, error) {
		return s.CompleteStep(stepId)
	})
}

func (c *Coordinator) UpdateClassification(ctx context.Context, id string, cl lifecycle.Classification) (entity.EmergencySession, error) {
	return c.mutate(ctx, id, EventClassificationChanged, func(s *lifecycle.Session) (entity.EmergencySession, error) {
		return s.UpdateClassification(cl)
	})
}

func (c *Coordinator) SetDispatchNotes(ctx context.Context, id, notes string) (entity.EmergencySession, error) {
	return c.mutate(ctx, id, EventSessionUpdated, func(s *lifecycle.Session) (entity.EmergencySession, error) {
		return s.SetDispatchNotes(notes)
	})
}

func (c *Coordinator) Connect(ctx context.Context, id string) (entity.EmergencySession, error) {
	return c.mutate(ctx, id, EventDispatcherConnected, func(s *lifecycle.Session) (entity.EmergencySession, error) {
		return s.Connect()
	})
}

// Escalate transitions the session and, when it actually changed, starts
// automatic dispatch in the background. The returned snapshot is the escalated
// state, before any assignment.
func (c *Coordinator) Escalate(ctx context.Context, id string) (entity.EmergencySession, error) {
	ctx, span := c.tracer.Start(ctx, "escalation.Escalate", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	s, err := c.session(ctx, id)
	if err != nil {
		return entity.EmergencySession{}, err
	}
	snap, changed, err := s.Escalate()
	if err != nil {
		return snap, err
	}
	if !changed {
		return snap, nil
	}

	c.logger.Info(module, "Session escalated", map[string]interface{}{
		"session_id": id,
		"type":       snap.EffectiveType(),
		"severity":   snap.EffectiveSeverity(),
	})
	c.publish(ctx, EventSessionEscalated, snap, nil)

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		c.autoDispatch(context.WithoutCancel(ctx), s)
	}()
	return snap, nil
}

func (c *Coordinator) autoDispatch(ctx context.Context, s *lifecycle.Session) {
	ctx, span := c.tracer.Start(ctx, "escalation.autoDispatch")
	defer span.End()

	snap := s.Snapshot()
	result, err := c.dispatcher.Dispatch(ctx, matcher.Request{
		IncidentId: snap.Id,
		Location:   snap.Location,
		Type:       snap.EffectiveType(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn(module, "Automatic dispatch failed", map[string]interface{}{
			"session_id": snap.Id,
			"reserved":   len(result.Reserved),
			"error":      err.Error(),
		})
	}

	if len(result.Reserved) == 0 {
		c.reportUnavailable(ctx, s, snap.Location == nil)
		return
	}

	reserved := make([]entity.Responder, 0, len(result.Reserved))
	for _, cand := range result.Reserved {
		reserved = append(reserved, cand.Responder)
		c.openAssignment(ctx, snap.Id, cand, false)
	}

	first := result.Reserved[0].Responder
	if current, err := s.AssignEscalated(first.Snapshot()); err != nil {
		// Resolved or manually assigned while matching ran. A unit the
		// dispatcher adopted from this batch stays with the session.
		for _, cand := range result.Reserved {
			if current.AssignedResponder != nil && current.AssignedResponder.Id == cand.Responder.Id {
				continue
			}
			c.release(ctx, snap.Id, cand.Responder.Id)
		}
		c.logger.Warn(module, "Session moved on during dispatch, reservations returned", map[string]interface{}{
			"session_id": snap.Id,
			"error":      err.Error(),
		})
		return
	}

	c.logger.Info(module, "Responders dispatched", map[string]interface{}{
		"session_id":   snap.Id,
		"responder_id": first.Id,
		"reserved":     len(result.Reserved),
	})

	_, _, _ = s.AddMessage(entity.RoleSystem, dispatchSummary(result.Reserved))
	c.publish(ctx, EventResponderDispatched, s.Snapshot(), reserved)
}

func (c *Coordinator) reportUnavailable(ctx context.Context, s *lifecycle.Session, noLocation bool) {
	text := fmt.Sprintf("No responders are currently available. A dispatcher has been alerted. If this is life-threatening, call %s directly.", c.emergencyNumber)
	if noLocation {
		text = fmt.Sprintf("We could not match responders because your location is unknown. A dispatcher has been alerted. If this is life-threatening, call %s directly.", c.emergencyNumber)
	}
	_, snap, err := s.AddMessage(entity.RoleSystem, text)
	if err != nil {
		return
	}
	c.logger.Warn(module, "No responders reserved", map[string]interface{}{"session_id": snap.Id})
	c.publish(ctx, EventDispatchUnavailable, snap, nil)
}

// ManualAssign lets a dispatcher override the automatic match. The responder is
// reserved first; a failed assignment rolls the reservation back. With
// releasePrevious the replaced responder goes back to available.
func (c *Coordinator) ManualAssign(ctx context.Context, id, responderId string, releasePrevious bool) (entity.EmergencySession, error) {
	ctx, span := c.tracer.Start(ctx, "escalation.ManualAssign", trace.WithAttributes(
		attribute.String("session.id", id),
		attribute.String("responder.id", responderId),
	))
	defer span.End()

	s, err := c.session(ctx, id)
	if err != nil {
		return entity.EmergencySession{}, err
	}

	responder, owned, err := c.reserveForManual(ctx, id, responderId)
	if err != nil {
		return s.Snapshot(), err
	}

	snap, previous, err := s.Assign(responder.Snapshot())
	if err != nil {
		if !owned {
			c.release(ctx, id, responder.Id)
		}
		return snap, err
	}

	cand := candidateFor(snap.Location, responder)
	if !owned {
		c.openAssignment(ctx, id, cand, true)
	}

	changed := []entity.Responder{responder}
	if releasePrevious && previous != nil && previous.Id != responder.Id {
		if r, ok := c.release(ctx, id, previous.Id); ok {
			changed = append(changed, r)
		}
	}

	text := fmt.Sprintf("Dispatcher assigned %s (%s)", responder.Name, responder.UnitId)
	if cand.EtaMinutes > 0 {
		text += fmt.Sprintf(" - ETA %d min", cand.EtaMinutes)
	}
	if _, latest, err := s.AddMessage(entity.RoleSystem, text); err == nil {
		snap = latest
	}

	c.logger.Info(module, "Responder assigned manually", map[string]interface{}{
		"session_id":   id,
		"responder_id": responder.Id,
		"replaced":     previous != nil,
	})
	c.publish(ctx, EventResponderAssigned, snap, changed)
	return snap, nil
}

// reserveForManual reserves responderId, or adopts it when it is already
// reserved for this same session (an extra unit from automatic dispatch).
func (c *Coordinator) reserveForManual(ctx context.Context, id, responderId string) (entity.Responder, bool, error) {
	r, err := c.directory.Reserve(ctx, responderId, id)
	if err == nil {
		return r, false, nil
	}
	if !errors.Is(err, directory.ErrResponderUnavailable) {
		return entity.Responder{}, false, err
	}
	current, gerr := c.directory.Get(ctx, responderId)
	if gerr == nil && current.CurrentIncidentId != nil && *current.CurrentIncidentId == id {
		return current, true, nil
	}
	return entity.Responder{}, false, err
}

// Resolve closes the session, returns every unit reserved for it to the
// directory and moves the session to history.
func (c *Coordinator) Resolve(ctx context.Context, id string) (entity.EmergencySession, []entity.Responder, error) {
	ctx, span := c.tracer.Start(ctx, "escalation.Resolve", trace.WithAttributes(attribute.String("session.id", id)))
	defer span.End()

	s, err := c.session(ctx, id)
	if err != nil {
		return entity.EmergencySession{}, nil, err
	}
	snap, assigned, err := s.Resolve()
	if err != nil {
		return snap, nil, err
	}

	released, err := c.directory.ReleaseIncident(ctx, id)
	if err != nil {
		c.logger.Error(module, "Failed to release responders", map[string]interface{}{"session_id": id, "error": err.Error()})
	}
	if assigned != nil && !containsResponder(released, assigned.Id) {
		// The assigned unit was already freed, e.g. by an operator.
		c.logger.Debug(module, "Assigned responder was not reserved at resolve", map[string]interface{}{
			"session_id":   id,
			"responder_id": assigned.Id,
		})
	}
	if c.assignments != nil {
		if err := c.assignments.CloseIncident(ctx, id, c.now()); err != nil {
			c.logger.Error(module, "Failed to close assignments", map[string]interface{}{"session_id": id, "error": err.Error()})
		}
	}
	if err := c.sessions.Archive(ctx, snap); err != nil {
		c.logger.Error(module, "Failed to archive session", map[string]interface{}{"session_id": id, "error": err.Error()})
	}

	c.logger.Info(module, "Session resolved", map[string]interface{}{"session_id": id, "released": len(released)})
	c.publish(ctx, EventSessionResolved, snap, released)
	return snap, released, nil
}

// Candidates ranks responders for a session without reserving any.
func (c *Coordinator) Candidates(ctx context.Context, id string) (matcher.Result, error) {
	snap, err := c.Get(ctx, id)
	if err != nil {
		return matcher.Result{}, err
	}
	if snap.Location == nil {
		return matcher.Result{}, fmt.Errorf("%w: %s", ErrNoLocation, id)
	}
	return c.dispatcher.Preview(ctx, *snap.Location, snap.EffectiveType())
}

func (c *Coordinator) session(ctx context.Context, id string) (*lifecycle.Session, error) {
	if s, ok := c.sessions.Find(ctx, id); ok {
		return s, nil
	}
	if snap, ok := c.sessions.FindArchived(ctx, id); ok {
		// A detached copy reports the closed-session errors without touching history.
		return lifecycle.Restore(snap)
	}
	return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
}

func (c *Coordinator) mutate(ctx context.Context, id, event string, fn func(*lifecycle.Session) (entity.EmergencySession, error)) (entity.EmergencySession, error) {
	s, err := c.session(ctx, id)
	if err != nil {
		return entity.EmergencySession{}, err
	}
	before := s.Snapshot().Version
	snap, err := fn(s)
	if err != nil {
		return snap, err
	}
	if snap.Version != before {
		c.publish(ctx, event, snap, nil)
	}
	return snap, nil
}

func (c *Coordinator) release(ctx context.Context, incidentId, responderId string) (entity.Responder, bool) {
	r, changed, err := c.directory.ReleaseFor(ctx, responderId, incidentId)
	if err != nil {
		c.logger.Error(module, "Failed to release responder", map[string]interface{}{
			"session_id":   incidentId,
			"responder_id": responderId,
			"error":        err.Error(),
		})
		return r, false
	}
	if c.assignments != nil {
		if err := c.assignments.Close(ctx, incidentId, responderId, c.now()); err != nil {
			c.logger.Error(module, "Failed to close assignment", map[string]interface{}{
				"session_id":   incidentId,
				"responder_id": responderId,
				"error":        err.Error(),
			})
		}
	}
	return r, changed
}

func (c *Coordinator) openAssignment(ctx context.Context, incidentId string, cand matcher.Candidate, manual bool) {
	if c.assignments == nil {
		return
	}
	a := &entity.IncidentAssignment{
		Id:          uuid.New(),
		IncidentId:  incidentId,
		ResponderId: cand.Responder.Id,
		Status:      entity.AssignmentAssigned,
		Manual:      manual,
		AssignedAt:  c.now(),
	}
	if cand.EtaMinutes > 0 {
		km, eta := cand.DistanceKm, cand.EtaMinutes
		a.DistanceKm = &km
		a.EtaMinutes = &eta
	}
	if err := c.assignments.Open(ctx, a); err != nil {
		c.logger.Error(module, "Failed to record assignment", map[string]interface{}{
			"session_id":   incidentId,
			"responder_id": cand.Responder.Id,
			"error":        err.Error(),
		})
	}
}

// publish delivers the update to every observer. Each observer is retried on
// its own; one failing observer never blocks the others.
func (c *Coordinator) publish(ctx context.Context, event string, snap entity.EmergencySession, responders []entity.Responder) {
	c.obsMu.RLock()
	observers := append([]Observer(nil), c.observers...)
	c.obsMu.RUnlock()

	update := Update{Event: event, Session: snap, Responders: responders, At: c.now()}
	for _, o := range observers {
		c.deliver(ctx, o, update)
	}
}

func (c *Coordinator) deliver(ctx context.Context, o Observer, update Update) {
	var err error
retry:
	for attempt := 1; attempt <= notifyAttempts; attempt++ {
		if err = o.Notify(ctx, update); err == nil {
			return
		}
		if attempt == notifyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			break retry
		case <-time.After(time.Duration(attempt) * notifyBackoff):
		}
	}
	c.logger.Error(module, "Observer failed to take update", map[string]interface{}{
		"session_id": update.Session.Id,
		"event":      update.Event,
		"version":    update.Session.Version,
		"error":      err.Error(),
	})
}

func dispatchSummary(reserved []matcher.Candidate) string {
	lines := make([]string, 0, len(reserved))
	for _, cand := range reserved {
		lines = append(lines, fmt.Sprintf("%s (%s) dispatched - ETA %d min, %.1f km away",
			cand.Responder.Name, cand.Responder.UnitId, cand.EtaMinutes, geo.RoundKm(cand.DistanceKm)))
	}
	return strings.Join(lines, "\n")
}

func candidateFor(location *entity.Location, r entity.Responder) matcher.Candidate {
	cand := matcher.Candidate{Responder: r}
	if location == nil || r.Location == nil {
		return cand
	}
	cand.DistanceKm = geo.DistanceKm(
		geo.Point{Lat: location.Lat, Lng: location.Lng},
		geo.Point{Lat: r.Location.Lat, Lng: r.Location.Lng},
	)
	cand.EtaMinutes = geo.EtaMinutes(cand.DistanceKm)
	return cand
}

func containsResponder(list []entity.Responder, id string) bool {
	return slices.ContainsFunc(list, func(r entity.Responder) bool { return r.Id == id })
}
