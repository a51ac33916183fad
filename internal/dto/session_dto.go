package dto

import "time"

type CreateSessionRequest struct {
	Language string `json:"language" validate:"omitempty,bcp47_language_tag"`
}

type AddMessageRequest struct {
	Role    string `json:"role" validate:"required,oneof=user ai system"`
	Content string `json:"content" validate:"required,max=4000"`
}

type DispatcherMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

type AddStepRequest struct {
	Text     string `json:"text" validate:"required,max=1000"`
	ImageUrl string `json:"image_url" validate:"omitempty,url"`
}

type LocationRequest struct {
	Lat     float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng     float64 `json:"lng" validate:"gte=-180,lte=180"`
	Address string  `json:"address" validate:"max=500"`
}

// UpdateClassificationRequest is a partial update, absent fields keep their value.
type UpdateClassificationRequest struct {
	Type     *string          `json:"type" validate:"omitempty,oneof=medical fire safety accident other"`
	Severity *string          `json:"severity" validate:"omitempty,oneof=CRITICAL HIGH MEDIUM LOW"`
	Summary  *string          `json:"summary" validate:"omitempty,max=2000"`
	Location *LocationRequest `json:"location"`
	Language *string          `json:"language" validate:"omitempty,bcp47_language_tag"`
}

type ManualAssignRequest struct {
	ResponderId     string `json:"responder_id" validate:"required"`
	ReleasePrevious bool   `json:"release_previous"`
}

type DispatchNotesRequest struct {
	Notes string `json:"notes" validate:"max=4000"`
}

type LocationResponse struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

type MessageResponse struct {
	Id        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type StepResponse struct {
	Id        string    `json:"id"`
	Text      string    `json:"text"`
	ImageUrl  string    `json:"image_url,omitempty"`
	Completed bool      `json:"completed"`
	Timestamp time.Time `json:"timestamp"`
}

type ResponderSnapshotResponse struct {
	Id   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
	Unit string `json:"unit"`
}

type SessionResponse struct {
	Id                string                     `json:"id"`
	Status            string                     `json:"status"`
	Type              *string                    `json:"type,omitempty"`
	Severity          *string                    `json:"severity,omitempty"`
	Priority          int                        `json:"priority"`
	Summary           string                     `json:"summary"`
	Location          *LocationResponse          `json:"location,omitempty"`
	Language          string                     `json:"language,omitempty"`
	DispatchNotes     string                     `json:"dispatch_notes,omitempty"`
	Messages          []MessageResponse          `json:"messages"`
	Steps             []StepResponse             `json:"steps"`
	AssignedResponder *ResponderSnapshotResponse `json:"assigned_responder,omitempty"`
	CreatedAt         time.Time                  `json:"created_at"`
	EscalatedAt       *time.Time                 `json:"escalated_at,omitempty"`
	ConnectedAt       *time.Time                 `json:"connected_at,omitempty"`
	ResolvedAt        *time.Time                 `json:"resolved_at,omitempty"`
	Version           int64                      `json:"version"`
}

type ResolveSessionResponse struct {
	Session  SessionResponse             `json:"session"`
	Released []ResponderSnapshotResponse `json:"released"`
}

// SessionEvent is pushed to dispatcher feeds and the snapshot bus.
type SessionEvent struct {
	Type       string              `json:"type"`
	Event      string              `json:"event"`
	Data       SessionResponse     `json:"data"`
	Responders []ResponderResponse `json:"responders,omitempty"`
	At         time.Time           `json:"at"`
}
