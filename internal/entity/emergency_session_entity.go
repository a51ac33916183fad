package entity

import "time"

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionEscalated SessionStatus = "escalated"
	SessionAssigned  SessionStatus = "assigned"
	SessionConnected SessionStatus = "connected"
	SessionResolved  SessionStatus = "resolved"
)

var sessionStatusRank = map[SessionStatus]int{
	SessionActive:    0,
	SessionEscalated: 1,
	SessionAssigned:  2,
	SessionConnected: 3,
	SessionResolved:  4,
}

// Rank orders statuses along the lifecycle. Unknown statuses rank -1.
func (s SessionStatus) Rank() int {
	if r, ok := sessionStatusRank[s]; ok {
		return r
	}
	return -1
}

func (s SessionStatus) Valid() bool {
	return s.Rank() >= 0
}

type IncidentType string

const (
	IncidentMedical  IncidentType = "medical"
	IncidentFire     IncidentType = "fire"
	IncidentSafety   IncidentType = "safety"
	IncidentAccident IncidentType = "accident"
	IncidentOther    IncidentType = "other"
)

func (t IncidentType) Valid() bool {
	switch t {
	case IncidentMedical, IncidentFire, IncidentSafety, IncidentAccident, IncidentOther:
		return true
	}
	return false
}

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Priority maps a severity onto the dispatcher queue order (1 is most urgent).
func (s Severity) Priority() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityLow:
		return 4
	default:
		return 3
	}
}

type MessageRole string

const (
	RoleUser     MessageRole = "user"
	RoleAI       MessageRole = "ai"
	RoleSystem   MessageRole = "system"
	RoleDispatch MessageRole = "dispatch"
)

func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleAI, RoleSystem, RoleDispatch:
		return true
	}
	return false
}

type Location struct {
	Lat     float64
	Lng     float64
	Address string
}

type Message struct {
	Id        string
	Role      MessageRole
	Content   string
	Timestamp time.Time
}

type Step struct {
	Id        string
	Text      string
	ImageUrl  string
	Completed bool
	Timestamp time.Time
}

// ResponderSnapshot is a copy of the responder at assignment time, not a live reference.
type ResponderSnapshot struct {
	Id   string
	Name string
	Role ResponderRole
	Unit string
}

type EmergencySession struct {
	Id                string
	Status            SessionStatus
	Type              *IncidentType
	Severity          *Severity
	Summary           string
	Location          *Location
	Language          string
	DispatchNotes     string
	Messages          []Message
	Steps             []Step
	AssignedResponder *ResponderSnapshot
	CreatedAt         time.Time
	EscalatedAt       *time.Time
	ConnectedAt       *time.Time
	ResolvedAt        *time.Time
	Version           int64
}

// EffectiveSeverity returns the severity, reading unset as MEDIUM.
func (s *EmergencySession) EffectiveSeverity() Severity {
	if s.Severity == nil {
		return SeverityMedium
	}
	return *s.Severity
}

// EffectiveType returns the incident type, reading unset as other.
func (s *EmergencySession) EffectiveType() IncidentType {
	if s.Type == nil {
		return IncidentOther
	}
	return *s.Type
}

func (s *EmergencySession) Priority() int {
	return s.EffectiveSeverity().Priority()
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *EmergencySession) Clone() EmergencySession {
	c := *s
	if s.Type != nil {
		t := *s.Type
		c.Type = &t
	}
	if s.Severity != nil {
		sev := *s.Severity
		c.Severity = &sev
	}
	if s.Location != nil {
		loc := *s.Location
		c.Location = &loc
	}
	if s.AssignedResponder != nil {
		r := *s.AssignedResponder
		c.AssignedResponder = &r
	}
	c.EscalatedAt = cloneTime(s.EscalatedAt)
	c.ConnectedAt = cloneTime(s.ConnectedAt)
	c.ResolvedAt = cloneTime(s.ResolvedAt)
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	c.Steps = make([]Step, len(s.Steps))
	copy(c.Steps, s.Steps)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
