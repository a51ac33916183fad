// Package directory keeps the live set of dispatchable responders and guards
// their reservation state.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/pkg/logger"
)

const module = "Directory"

var (
	ErrResponderUnavailable = errors.New("responder unavailable")
	ErrResponderNotFound    = errors.New("responder not found")
	ErrInvalidResponder     = errors.New("invalid responder")
)

// Store persists responder records after every mutation.
type Store interface {
	Upsert(ctx context.Context, responder *entity.Responder) error
}

// Lease is an optional cross-instance guard taken before a local reservation.
type Lease interface {
	Acquire(ctx context.Context, responderId, incidentId string) (bool, error)
	Release(ctx context.Context, responderId string) error
}

type record struct {
	mu        sync.Mutex
	responder entity.Responder
}

type Directory struct {
	mu      sync.RWMutex
	records map[string]*record

	store  Store
	lease  Lease
	logger logger.ILogger
	now    func() time.Time
}

type Option func(*Directory)

func WithStore(store Store) Option {
	return func(d *Directory) { d.store = store }
}

func WithLease(lease Lease) Option {
	return func(d *Directory) { d.lease = lease }
}

func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

func New(log logger.ILogger, opts ...Option) *Directory {
	d := &Directory{
		records: make(map[string]*record),
		logger:  log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load hydrates the directory from previously persisted records without
// writing them back.
func (d *Directory) Load(responders []entity.Responder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range responders {
		r = normalize(r)
		d.records[r.Id] = &record{responder: r.Clone()}
	}
	d.logger.Info(module, "Directory loaded", map[string]interface{}{"count": len(responders)})
}

// Register adds a responder or refreshes the descriptive fields of an existing one.
// Status and reservation of an existing responder are left untouched.
func (d *Directory) Register(ctx context.Context, r entity.Responder) (entity.Responder, error) {
	if r.Id == "" || !r.Role.Valid() {
		return entity.Responder{}, fmt.Errorf("%w: id and a valid role are required", ErrInvalidResponder)
	}
	if r.Status == entity.ResponderBusy && r.CurrentIncidentId == nil {
		return entity.Responder{}, fmt.Errorf("%w: busy responder needs an incident", ErrInvalidResponder)
	}

	d.mu.Lock()
	rec, exists := d.records[r.Id]
	if !exists {
		n := normalize(r)
		rec = &record{responder: n.Clone()}
		rec.responder.UpdatedAt = d.now()
		d.records[r.Id] = rec
	}
	d.mu.Unlock()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if exists {
		rec.responder.Name = r.Name
		rec.responder.Role = r.Role
		rec.responder.UnitId = r.UnitId
		if r.Location != nil {
			loc := *r.Location
			rec.responder.Location = &loc
		}
		rec.responder.UpdatedAt = d.now()
	}
	d.persist(ctx, &rec.responder)
	return rec.responder.Clone(), nil
}

func (d *Directory) Get(ctx context.Context, id string) (entity.Responder, error) {
	if err := ctx.Err(); err != nil {
		return entity.Responder{}, err
	}
	rec, ok := d.lookup(id)
	if !ok {
		return entity.Responder{}, ErrResponderNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.responder.Clone(), nil
}

// List returns every responder ordered by id.
func (d *Directory) List(ctx context.Context) ([]entity.Responder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := d.collect(func(entity.Responder) bool { return true })
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

// Query returns responders whose role is in roles, optionally only the available ones.
// Order is unspecified.
func (d *Directory) Query(ctx context.Context, roles []entity.ResponderRole, onlyAvailable bool) ([]entity.Responder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted := make(map[entity.ResponderRole]struct{}, len(roles))
	for _, role := range roles {
		wanted[role] = struct{}{}
	}
	return d.collect(func(r entity.Responder) bool {
		if _, ok := wanted[r.Role]; !ok {
			return false
		}
		return !onlyAvailable || r.Status == entity.ResponderAvailable
	}), nil
}

// Reserve moves a responder from available to busy for incidentId.
// At most one concurrent caller wins; the rest get ErrResponderUnavailable.
func (d *Directory) Reserve(ctx context.Context, responderId, incidentId string) (entity.Responder, error) {
	if err := ctx.Err(); err != nil {
		return entity.Responder{}, err
	}
	rec, ok := d.lookup(responderId)
	if !ok {
		return entity.Responder{}, ErrResponderNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.responder.Status != entity.ResponderAvailable {
		return entity.Responder{}, ErrResponderUnavailable
	}

	if d.lease != nil {
		acquired, err := d.lease.Acquire(ctx, responderId, incidentId)
		if err != nil {
			return entity.Responder{}, fmt.Errorf("acquire reservation lease: %w", err)
		}
		if !acquired {
			return entity.Responder{}, ErrResponderUnavailable
		}
	}

	incident := incidentId
	rec.responder.Status = entity.ResponderBusy
	rec.responder.CurrentIncidentId = &incident
	rec.responder.UpdatedAt = d.now()
	d.persist(ctx, &rec.responder)

	d.logger.Info(module, "Responder reserved", map[string]interface{}{
		"responder_id": responderId,
		"incident_id":  incidentId,
	})
	return rec.responder.Clone(), nil
}

// Release returns a busy responder to available. Releasing an available or
// offline responder is a no-op.
func (d *Directory) Release(ctx context.Context, responderId string) (entity.Responder, error) {
	rec, ok := d.lookup(responderId)
	if !ok {
		return entity.Responder{}, ErrResponderNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	d.releaseLocked(ctx, rec)
	return rec.responder.Clone(), nil
}

// ReleaseFor releases responderId only while it is still reserved for
// incidentId. The bool reports whether anything changed.
func (d *Directory) ReleaseFor(ctx context.Context, responderId, incidentId string) (entity.Responder, bool, error) {
	rec, ok := d.lookup(responderId)
	if !ok {
		return entity.Responder{}, false, ErrResponderNotFound
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !reservedFor(rec.responder, incidentId) {
		return rec.responder.Clone(), false, nil
	}
	d.releaseLocked(ctx, rec)
	return rec.responder.Clone(), true, nil
}

// ReleaseIncident releases every responder currently reserved for incidentId.
func (d *Directory) ReleaseIncident(ctx context.Context, incidentId string) ([]entity.Responder, error) {
	d.mu.RLock()
	recs := make([]*record, 0, len(d.records))
	for _, rec := range d.records {
		recs = append(recs, rec)
	}
	d.mu.RUnlock()

	var released []entity.Responder
	for _, rec := range recs {
		rec.mu.Lock()
		if reservedFor(rec.responder, incidentId) {
			d.releaseLocked(ctx, rec)
			released = append(released, rec.responder.Clone())
		}
		rec.mu.Unlock()
	}
	return released, nil
}

func (d *Directory) UpdateLocation(ctx context.Context, responderId string, point entity.GeoPoint) (entity.Responder, error) {
	return d.mutate(ctx, responderId, func(r *entity.Responder) error {
		p := point
		r.Location = &p
		return nil
	})
}

// SetOffline takes an idle responder off the board. Busy responders must be
// released first.
func (d *Directory) SetOffline(ctx context.Context, responderId string) (entity.Responder, error) {
	return d.mutate(ctx, responderId, func(r *entity.Responder) error {
		if r.Status == entity.ResponderBusy {
			return ErrResponderUnavailable
		}
		r.Status = entity.ResponderOffline
		return nil
	})
}

func (d *Directory) SetOnline(ctx context.Context, responderId string) (entity.Responder, error) {
	return d.mutate(ctx, responderId, func(r *entity.Responder) error {
		if r.Status == entity.ResponderOffline {
			r.Status = entity.ResponderAvailable
		}
		return nil
	})
}

func (d *Directory) releaseLocked(ctx context.Context, rec *record) {
	if rec.responder.Status != entity.ResponderBusy {
		return
	}
	incident := ""
	if rec.responder.CurrentIncidentId != nil {
		incident = *rec.responder.CurrentIncidentId
	}
	rec.responder.Status = entity.ResponderAvailable
	rec.responder.CurrentIncidentId = nil
	rec.responder.UpdatedAt = d.now()

	if d.lease != nil {
		// Release must not depend on a caller deadline that may already be spent.
		if err := d.lease.Release(context.WithoutCancel(ctx), rec.responder.Id); err != nil {
			d.logger.Warn(module, "Failed to release reservation lease", map[string]interface{}{
				"responder_id": rec.responder.Id,
				"error":        err.Error(),
			})
		}
	}
	d.persist(context.WithoutCancel(ctx), &rec.responder)

	d.logger.Info(module, "Responder released", map[string]interface{}{
		"responder_id": rec.responder.Id,
		"incident_id":  incident,
	})
}

func (d *Directory) mutate(ctx context.Context, responderId string, fn func(r *entity.Responder) error) (entity.Responder, error) {
	if err := ctx.Err(); err != nil {
		return entity.Responder{}, err
	}
	rec, ok := d.lookup(responderId)
	if !ok {
		return entity.Responder{}, ErrResponderNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := fn(&rec.responder); err != nil {
		return rec.responder.Clone(), err
	}
	rec.responder.UpdatedAt = d.now()
	d.persist(ctx, &rec.responder)
	return rec.responder.Clone(), nil
}

func (d *Directory) persist(ctx context.Context, r *entity.Responder) {
	if d.store == nil {
		return
	}
	c := r.Clone()
	if err := d.store.Upsert(ctx, &c); err != nil {
		d.logger.Error(module, "Failed to persist responder", map[string]interface{}{
			"responder_id": r.Id,
			"error":        err.Error(),
		})
	}
}

func (d *Directory) lookup(id string) (*record, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.records[id]
	return rec, ok
}

func (d *Directory) collect(keep func(entity.Responder) bool) []entity.Responder {
	d.mu.RLock()
	recs := make([]*record, 0, len(d.records))
	for _, rec := range d.records {
		recs = append(recs, rec)
	}
	d.mu.RUnlock()

	out := make([]entity.Responder, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		if keep(rec.responder) {
			out = append(out, rec.responder.Clone())
		}
		rec.mu.Unlock()
	}
	return out
}

func reservedFor(r entity.Responder, incidentId string) bool {
	return r.Status == entity.ResponderBusy && r.CurrentIncidentId != nil && *r.CurrentIncidentId == incidentId
}

// normalize enforces busy <=> incident on records coming from outside.
func normalize(r entity.Responder) entity.Responder {
	if r.Status == "" || (r.Status == entity.ResponderBusy && r.CurrentIncidentId == nil) {
		r.Status = entity.ResponderAvailable
	}
	if r.Status != entity.ResponderBusy {
		r.CurrentIncidentId = nil
	}
	return r
}
