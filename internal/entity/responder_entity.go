package entity

import "time"

type ResponderRole string

const (
	ResponderMedical ResponderRole = "medical"
	ResponderPolice  ResponderRole = "police"
	ResponderFire    ResponderRole = "fire"
	ResponderRescue  ResponderRole = "rescue"
)

func (r ResponderRole) Valid() bool {
	switch r {
	case ResponderMedical, ResponderPolice, ResponderFire, ResponderRescue:
		return true
	}
	return false
}

type ResponderStatus string

const (
	ResponderAvailable ResponderStatus = "available"
	ResponderBusy      ResponderStatus = "busy"
	ResponderOffline   ResponderStatus = "offline"
)

type GeoPoint struct {
	Lat float64
	Lng float64
}

type Responder struct {
	Id                string
	Name              string
	Role              ResponderRole
	UnitId            string
	Status            ResponderStatus
	Location          *GeoPoint
	CurrentIncidentId *string
	UpdatedAt         time.Time
}

// Snapshot copies the fields a session keeps about its assigned unit.
func (r *Responder) Snapshot() ResponderSnapshot {
	return ResponderSnapshot{
		Id:   r.Id,
		Name: r.Name,
		Role: r.Role,
		Unit: r.UnitId,
	}
}

func (r *Responder) Clone() Responder {
	c := *r
	if r.Location != nil {
		loc := *r.Location
		c.Location = &loc
	}
	if r.CurrentIncidentId != nil {
		id := *r.CurrentIncidentId
		c.CurrentIncidentId = &id
	}
	return c
}
