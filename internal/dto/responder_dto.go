package dto

import (
	"time"

	"github.com/google/uuid"
)

type GeoPointRequest struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

type RegisterResponderRequest struct {
	Id       string           `json:"id" validate:"required,max=64"`
	Name     string           `json:"name" validate:"required,max=120"`
	Role     string           `json:"role" validate:"required,oneof=medical police fire rescue"`
	UnitId   string           `json:"unit_id" validate:"max=64"`
	Location *GeoPointRequest `json:"location"`
}

type AssignmentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=en_route on_scene"`
}

type ResponderListQuery struct {
	Role   string `query:"role" validate:"omitempty,oneof=medical police fire rescue"`
	Status string `query:"status" validate:"omitempty,oneof=available busy offline"`
}

type GeoPointResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type ResponderResponse struct {
	Id                string            `json:"id"`
	Name              string            `json:"name"`
	Role              string            `json:"role"`
	UnitId            string            `json:"unit_id"`
	Status            string            `json:"status"`
	Location          *GeoPointResponse `json:"location,omitempty"`
	CurrentIncidentId *string           `json:"current_incident_id,omitempty"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

type CandidateResponse struct {
	Responder  ResponderResponse `json:"responder"`
	DistanceKm float64           `json:"distance_km"`
	EtaMinutes int               `json:"eta_minutes"`
}

type CandidatesResponse struct {
	Ranked  []CandidateResponse `json:"ranked"`
	Skipped []ResponderResponse `json:"skipped"`
}

type AssignmentResponse struct {
	Id          uuid.UUID  `json:"id"`
	IncidentId  string     `json:"incident_id"`
	ResponderId string     `json:"responder_id"`
	Status      string     `json:"status"`
	Manual      bool       `json:"manual"`
	DistanceKm  *float64   `json:"distance_km,omitempty"`
	EtaMinutes  *int       `json:"eta_minutes,omitempty"`
	AssignedAt  time.Time  `json:"assigned_at"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
}
