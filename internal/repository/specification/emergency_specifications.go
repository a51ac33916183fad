package specification

import "gorm.io/gorm"

// ByKey filters by a string primary key (sessions and responders use opaque ids).
type ByKey struct {
	Id string
}

func (s ByKey) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id = ?", s.Id)
}

type ByStatuses struct {
	Statuses []string
}

func (s ByStatuses) Apply(db *gorm.DB) *gorm.DB {
	if len(s.Statuses) == 0 {
		return db
	}
	return db.Where("status IN ?", s.Statuses)
}

// NotResolved keeps sessions still being handled.
type NotResolved struct{}

func (s NotResolved) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status <> ?", "resolved")
}

type ByRole struct {
	Role string
}

func (s ByRole) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("role = ?", s.Role)
}

type ByIncident struct {
	IncidentId string
}

func (s ByIncident) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("incident_id = ?", s.IncidentId)
}

type ByResponder struct {
	ResponderId string
}

func (s ByResponder) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("responder_id = ?", s.ResponderId)
}

// OpenAssignment keeps assignments that were not released yet.
type OpenAssignment struct{}

func (s OpenAssignment) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("released_at IS NULL")
}

// DispatchQueue orders sessions the way dispatchers work them.
type DispatchQueue struct{}

func (s DispatchQueue) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("priority ASC").Order("escalated_at IS NULL").Order("escalated_at DESC").Order("created_at DESC")
}
