package model

import (
	"time"

	"gorm.io/datatypes"
)

type SessionMessage struct {
	Id        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type SessionStep struct {
	Id        string    `json:"id"`
	Text      string    `json:"text"`
	ImageUrl  string    `json:"image_url,omitempty"`
	Completed bool      `json:"completed"`
	Timestamp time.Time `json:"timestamp"`
}

// EmergencySession is the durable row behind a session snapshot. Messages and
// steps are stored as JSON arrays so their order survives a round trip.
type EmergencySession struct {
	Id            string  `gorm:"type:varchar(40);primaryKey"`
	Status        string  `gorm:"type:varchar(20);not null;index"`
	Type          *string `gorm:"type:varchar(20)"`
	Severity      *string `gorm:"type:varchar(10)"`
	Priority      int     `gorm:"not null;default:3;index"`
	Summary       string  `gorm:"type:text"`
	Lat           *float64
	Lng           *float64
	Address       string `gorm:"type:text"`
	Language      string `gorm:"type:varchar(20)"`
	DispatchNotes string `gorm:"type:text"`

	Messages datatypes.JSONSlice[SessionMessage]
	Steps    datatypes.JSONSlice[SessionStep]

	AssignedResponderId   *string `gorm:"type:varchar(64);index"`
	AssignedResponderName string  `gorm:"type:varchar(120)"`
	AssignedResponderRole string  `gorm:"type:varchar(20)"`
	AssignedResponderUnit string  `gorm:"type:varchar(64)"`

	CreatedAt   time.Time `gorm:"not null"`
	EscalatedAt *time.Time
	ConnectedAt *time.Time
	ResolvedAt  *time.Time `gorm:"index"`
	Version     int64      `gorm:"not null;default:0"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime"`
}

func (EmergencySession) TableName() string {
	return "emergency_sessions"
}
