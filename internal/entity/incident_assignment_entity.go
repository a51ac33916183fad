package entity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "assigned"
	AssignmentEnRoute   AssignmentStatus = "en_route"
	AssignmentOnScene   AssignmentStatus = "on_scene"
	AssignmentCompleted AssignmentStatus = "completed"
)

var (
	ErrAssignmentNotFound          = errors.New("assignment not found")
	ErrInvalidAssignmentTransition = errors.New("invalid assignment transition")
)

// CanAdvanceTo reports whether a responder may report next after s. Progress
// only moves forward and completion is left to the session lifecycle.
func (s AssignmentStatus) CanAdvanceTo(next AssignmentStatus) bool {
	switch s {
	case AssignmentAssigned:
		return next == AssignmentEnRoute || next == AssignmentOnScene
	case AssignmentEnRoute:
		return next == AssignmentOnScene
	}
	return false
}

// IncidentAssignment records one reservation of a responder for a session.
type IncidentAssignment struct {
	Id          uuid.UUID
	IncidentId  string
	ResponderId string
	Status      AssignmentStatus
	Manual      bool
	DistanceKm  *float64
	EtaMinutes  *int
	AssignedAt  time.Time
	ReleasedAt  *time.Time
}
