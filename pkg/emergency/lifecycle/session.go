// Package lifecycle holds the state machine of one emergency session.
//
// Status only moves forward:
//
//	active -> escalated -> assigned -> connected -> resolved
//	active -> resolved
//
// Every method takes the session lock, so callers never coordinate access themselves.
package lifecycle

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"time"

	"emergency-dispatch-be/internal/entity"

	"github.com/google/uuid"
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrSessionClosed     = errors.New("session is resolved")
	ErrStepNotFound      = errors.New("step not found")
	ErrInvalidInput      = errors.New("invalid session input")
)

// Classification is a partial update; nil fields leave the session untouched.
type Classification struct {
	Type     *entity.IncidentType
	Severity *entity.Severity
	Summary  *string
	Location *entity.Location
	Language *string
}

type Session struct {
	mu    sync.Mutex
	state entity.EmergencySession
	now   func() time.Time
}

type Option func(*Session)

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithId overrides the generated id, mostly for tests and imports.
func WithId(id string) Option {
	return func(s *Session) { s.state.Id = id }
}

// New creates an active session with empty messages and steps.
func New(opts ...Option) *Session {
	s := &Session{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.state.Status = entity.SessionActive
	s.state.CreatedAt = s.now()
	if s.state.Id == "" {
		s.state.Id = NewSessionId(s.state.CreatedAt)
	}
	s.state.Messages = []entity.Message{}
	s.state.Steps = []entity.Step{}
	s.state.Version = 1
	return s
}

// Restore rebuilds a session from a snapshot, e.g. after loading it from storage.
func Restore(snapshot entity.EmergencySession, opts ...Option) (*Session, error) {
	if snapshot.Id == "" || !snapshot.Status.Valid() {
		return nil, fmt.Errorf("%w: snapshot needs an id and a known status", ErrInvalidInput)
	}
	assigned := snapshot.Status == entity.SessionAssigned || snapshot.Status == entity.SessionConnected
	if assigned != (snapshot.AssignedResponder != nil) {
		return nil, fmt.Errorf("%w: assigned responder does not match status %s", ErrInvalidInput, snapshot.Status)
	}
	s := &Session{now: time.Now, state: snapshot.Clone()}
	for _, opt := range opts {
		opt(s)
	}
	if s.state.Messages == nil {
		s.state.Messages = []entity.Message{}
	}
	if s.state.Steps == nil {
		s.state.Steps = []entity.Step{}
	}
	return s, nil
}

// NewSessionId returns EM-<unix millis>-<9 random base36 chars>.
func NewSessionId(at time.Time) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return "EM-" + strconv.FormatInt(at.UnixMilli(), 10) + "-" + string(suffix)
}

func (s *Session) Id() string {
	// Id is immutable after construction.
	return s.state.Id
}

func (s *Session) Snapshot() entity.EmergencySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

func (s *Session) AddMessage(role entity.MessageRole, content string) (entity.Message, entity.EmergencySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return entity.Message{}, s.state.Clone(), err
	}
	if !role.Valid() {
		return entity.Message{}, s.state.Clone(), fmt.Errorf("%w: unknown message role %q", ErrInvalidInput, role)
	}

	msg := entity.Message{
		Id:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
	s.state.Messages = append(s.state.Messages, msg)
	s.touch()
	return msg, s.state.Clone(), nil
}

func (s *Session) AddStep(text, imageUrl string) (entity.Step, entity.EmergencySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return entity.Step{}, s.state.Clone(), err
	}

	step := entity.Step{
		Id:        uuid.NewString(),
		Text:      text,
		ImageUrl:  imageUrl,
		Timestamp: s.now(),
	}
	s.state.Steps = append(s.state.Steps, step)
	s.touch()
	return step, s.state.Clone(), nil
}

// CompleteStep marks a step done. Completing it again is a no-op and does not
// bump the version.
func (s *Session) CompleteStep(stepId string) (entity.EmergencySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return s.state.Clone(), err
	}
	for i := range s.state.Steps {
		if s.state.Steps[i].Id != stepId {
			continue
		}
		if !s.state.Steps[i].Completed {
			s.state.Steps[i].Completed = true
			s.touch()
		}
		return s.state.Clone(), nil
	}
	return s.state.Clone(), fmt.Errorf("%w: %s", ErrStepNotFound, stepId)
}

// UpdateClassification merges the provided fields. A location replaces lat/lng;
// its address only overwrites the previous one when non-empty.
func (s *Session) UpdateClassification(c Classification) (entity.EmergencySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return s.state.Clone(), err
	}
	if c.Type != nil && !c.Type.Valid() {
		return s.state.Clone(), fmt.Errorf("%w: unknown incident type %q", ErrInvalidInput, *c.Type)
	}
	if c.Severity != nil && !c.Severity.Valid() {
		return s.state.Clone(), fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, *c.Severity)
	}

	if c.Type != nil {
		t := *c.Type
		s.state.Type = &t
	}
	if c.Severity != nil {
		sev := *c.Severity
		s.state.Severity = &sev
	}
	if c.Summary != nil {
		s.state.Summary = *c.Summary
	}
	if c.Language != nil && *c.Language != "" {
		s.state.Language = *c.Language
	}
	if c.Location != nil {
		loc := entity.Location{Lat: c.Location.Lat, Lng: c.Location.Lng, Address: c.Location.Address}
		if loc.Address == "" && s.state.Location != nil {
			loc.Address = s.state.Location.Address
		}
		s.state.Location = &loc
	}
	s.touch()
	return s.state.Clone(), nil
}

// Escalate moves an active session to escalated. Repeating it on a session that
// already left active returns the current state with changed=false.
func (s *Session) Escalate() (snapshot entity.EmergencySession, changed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state.Status {
	case entity.SessionActive:
		at := s.now()
		s.state.Status = entity.SessionEscalated
		s.state.EscalatedAt = &at
		s.touch()
		return s.state.Clone(), true, nil
	case entity.SessionResolved:
		return s.state.Clone(), false, s.invalid("escalate")
	default:
		return s.state.Clone(), false, nil
	}
}

// Assign stores a responder snapshot. It is legal from escalated, or from
// assigned to replace the responder; the replaced snapshot is returned.
func (s *Session) Assign(responder entity.ResponderSnapshot) (snapshot entity.EmergencySession, previous *entity.ResponderSnapshot, err error) {
	return s.assignFrom(responder, entity.SessionEscalated, entity.SessionAssigned)
}

func (s *Session) assignFrom(responder entity.ResponderSnapshot, allowed ...entity.SessionStatus) (entity.EmergencySession, *entity.ResponderSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !slices.Contains(allowed, s.state.Status) {
		return s.state.Clone(), nil, s.invalid("assign")
	}
	if responder.Id == "" {
		return s.state.Clone(), nil, fmt.Errorf("%w: responder id is required", ErrInvalidInput)
	}

	previous := s.state.AssignedResponder
	r := responder
	s.state.AssignedResponder = &r
	s.state.Status = entity.SessionAssigned
	s.touch()
	return s.state.Clone(), previous, nil
}

// AssignEscalated is Assign restricted to a still unassigned escalated session.
// Automatic dispatch uses it so a late match never overrides a dispatcher's choice.
// On failure the returned snapshot is the session's current state.
func (s *Session) AssignEscalated(responder entity.ResponderSnapshot) (entity.EmergencySession, error) {
	snap, _, err := s.assignFrom(responder, entity.SessionEscalated)
	return snap, err
}

func (s *Session) Connect() (entity.EmergencySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status != entity.SessionAssigned {
		return s.state.Clone(), s.invalid("connect")
	}
	at := s.now()
	s.state.Status = entity.SessionConnected
	s.state.ConnectedAt = &at
	s.touch()
	return s.state.Clone(), nil
}

// Resolve closes the session from any open state. The assigned responder is
// cleared and handed back so the caller can release it.
func (s *Session) Resolve() (snapshot entity.EmergencySession, released *entity.ResponderSnapshot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Status == entity.SessionResolved {
		return s.state.Clone(), nil, s.invalid("resolve")
	}
	at := s.now()
	released = s.state.AssignedResponder
	s.state.AssignedResponder = nil
	s.state.Status = entity.SessionResolved
	s.state.ResolvedAt = &at
	s.touch()
	return s.state.Clone(), released, nil
}

func (s *Session) SetDispatchNotes(notes string) (entity.EmergencySession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureOpen(); err != nil {
		return s.state.Clone(), err
	}
	s.state.DispatchNotes = notes
	s.touch()
	return s.state.Clone(), nil
}

func (s *Session) ensureOpen() error {
	if s.state.Status == entity.SessionResolved {
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) invalid(op string) error {
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, op, s.state.Status)
}

func (s *Session) touch() {
	s.state.Version++
}
