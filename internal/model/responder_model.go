package model

import "time"

type Responder struct {
	Id                string  `gorm:"type:varchar(64);primaryKey"`
	Name              string  `gorm:"type:varchar(120);not null"`
	Role              string  `gorm:"type:varchar(20);not null;index"`
	UnitId            string  `gorm:"type:varchar(64)"`
	Status            string  `gorm:"type:varchar(20);not null;default:'available';index"`
	Lat               *float64
	Lng               *float64
	CurrentIncidentId *string   `gorm:"type:varchar(40);index"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (Responder) TableName() string {
	return "responders"
}
