package model

import (
	"time"

	"github.com/google/uuid"
)

type IncidentAssignment struct {
	Id          uuid.UUID `gorm:"type:uuid;primaryKey"`
	IncidentId  string    `gorm:"type:varchar(40);not null;index"`
	ResponderId string    `gorm:"type:varchar(64);not null;index"`
	Status      string    `gorm:"type:varchar(20);not null;default:'assigned'"`
	Manual      bool      `gorm:"default:false"`
	DistanceKm  *float64
	EtaMinutes  *int
	AssignedAt  time.Time `gorm:"not null;index"`
	ReleasedAt  *time.Time
}

func (IncidentAssignment) TableName() string {
	return "incident_assignments"
}
