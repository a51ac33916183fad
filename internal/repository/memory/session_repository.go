package memory

import (
	"context"
	"time"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/pkg/emergency/lifecycle"

	"github.com/patrickmn/go-cache"
)

// SessionRepository keeps live sessions without expiry and resolved snapshots
// for historyTTL.
type SessionRepository struct {
	live    *cache.Cache
	history *cache.Cache
}

func NewSessionRepository(historyTTL time.Duration) *SessionRepository {
	if historyTTL <= 0 {
		historyTTL = time.Hour
	}
	// Purge expired history every 10 minutes
	return &SessionRepository{
		live:    cache.New(cache.NoExpiration, 0),
		history: cache.New(historyTTL, 10*time.Minute),
	}
}

func (r *SessionRepository) Save(_ context.Context, session *lifecycle.Session) error {
	r.live.Set(session.Id(), session, cache.NoExpiration)
	return nil
}

func (r *SessionRepository) Find(_ context.Context, id string) (*lifecycle.Session, bool) {
	if x, found := r.live.Get(id); found {
		return x.(*lifecycle.Session), true
	}
	return nil, false
}

func (r *SessionRepository) FindAll(_ context.Context) []*lifecycle.Session {
	items := r.live.Items()
	out := make([]*lifecycle.Session, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*lifecycle.Session))
	}
	return out
}

func (r *SessionRepository) Archive(_ context.Context, snapshot entity.EmergencySession) error {
	r.history.Set(snapshot.Id, snapshot.Clone(), cache.DefaultExpiration)
	r.live.Delete(snapshot.Id)
	return nil
}

func (r *SessionRepository) FindArchived(_ context.Context, id string) (entity.EmergencySession, bool) {
	if x, found := r.history.Get(id); found {
		snap := x.(entity.EmergencySession)
		return snap.Clone(), true
	}
	return entity.EmergencySession{}, false
}

func (r *SessionRepository) FindAllArchived(_ context.Context) []entity.EmergencySession {
	items := r.history.Items()
	out := make([]entity.EmergencySession, 0, len(items))
	for _, item := range items {
		snap := item.Object.(entity.EmergencySession)
		out = append(out, snap.Clone())
	}
	return out
}
