package matcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/pkg/logger"
	"emergency-dispatch-be/pkg/emergency/directory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	outcome  string
	reserved int
}

type fakeRecorder struct {
	mu   sync.Mutex
	seen []recorded
}

func (f *fakeRecorder) ObserveDispatch(outcome string, reserved int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, recorded{outcome: outcome, reserved: reserved})
}

// stealingDirectory hands out one responder to a rival incident right before
// the matcher's first reservation attempt.
type stealingDirectory struct {
	*directory.Directory
	victim string
	once   sync.Once
}

func (s *stealingDirectory) Reserve(ctx context.Context, responderId, incidentId string) (entity.Responder, error) {
	s.once.Do(func() {
		_, _ = s.Directory.Reserve(ctx, s.victim, "EM-RIVAL")
	})
	return s.Directory.Reserve(ctx, responderId, incidentId)
}

type stallingDirectory struct {
	*directory.Directory
}

func (s stallingDirectory) Reserve(ctx context.Context, _, _ string) (entity.Responder, error) {
	<-ctx.Done()
	return entity.Responder{}, ctx.Err()
}

func point(lat, lng float64) *entity.GeoPoint { return &entity.GeoPoint{Lat: lat, Lng: lng} }

func seededDirectory(t *testing.T, responders ...entity.Responder) *directory.Directory {
	t.Helper()
	d := directory.New(logger.NewNopLogger())
	for _, r := range responders {
		_, err := d.Register(context.Background(), r)
		require.NoError(t, err)
	}
	return d
}

func TestPolicy_RequiredRoles(t *testing.T) {
	tests := []struct {
		incident entity.IncidentType
		want     []entity.ResponderRole
	}{
		{entity.IncidentMedical, []entity.ResponderRole{entity.ResponderMedical, entity.ResponderRescue}},
		{entity.IncidentFire, []entity.ResponderRole{entity.ResponderFire, entity.ResponderRescue}},
		{entity.IncidentSafety, []entity.ResponderRole{entity.ResponderPolice}},
		{entity.IncidentAccident, []entity.ResponderRole{entity.ResponderMedical, entity.ResponderPolice}},
		{entity.IncidentOther, []entity.ResponderRole{entity.ResponderMedical, entity.ResponderPolice}},
		{"volcano", []entity.ResponderRole{entity.ResponderMedical, entity.ResponderPolice}},
	}
	for _, tt := range tests {
		t.Run(string(tt.incident), func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultPolicy.RequiredRoles(tt.incident))
		})
	}

	roles := DefaultPolicy.RequiredRoles(entity.IncidentSafety)
	roles[0] = entity.ResponderFire
	assert.Equal(t, entity.ResponderPolice, DefaultPolicy.RequiredRoles(entity.IncidentSafety)[0], "callers get a copy")
}

func TestDispatch_NearestPerRole(t *testing.T) {
	d := seededDirectory(t,
		entity.Responder{Id: "1", Role: entity.ResponderMedical, Location: point(0, 0)},
		entity.Responder{Id: "2", Role: entity.ResponderMedical, Location: point(1, 1)},
	)
	rec := &fakeRecorder{}
	m := New(d, Config{}, logger.NewNopLogger(), WithRecorder(rec))
	ctx := context.Background()

	res, err := m.Dispatch(ctx, Request{
		IncidentId: "EM-1",
		Location:   &entity.Location{Lat: 0, Lng: 0},
		Type:       entity.IncidentMedical,
	})
	require.NoError(t, err)
	require.Len(t, res.Reserved, 1)
	assert.Equal(t, "1", res.Reserved[0].Responder.Id)
	assert.Equal(t, entity.ResponderBusy, res.Reserved[0].Responder.Status)
	assert.InDelta(t, 0, res.Reserved[0].DistanceKm, 1e-9)
	assert.Equal(t, 2, res.Reserved[0].EtaMinutes)

	require.Len(t, res.Ranked, 2)
	assert.Equal(t, "2", res.Ranked[1].Responder.Id)
	assert.InDelta(t, 157.25, res.Ranked[1].DistanceKm, 0.05)

	second, err := d.Get(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, entity.ResponderAvailable, second.Status)

	require.Len(t, rec.seen, 1)
	assert.Equal(t, recorded{outcome: OutcomeReserved, reserved: 1}, rec.seen[0])
}

func TestDispatch_TwoRolesAndCap(t *testing.T) {
	responders := []entity.Responder{
		{Id: "amb", Role: entity.ResponderMedical, Location: point(0.01, 0)},
		{Id: "pol", Role: entity.ResponderPolice, Location: point(0.02, 0)},
	}
	loc := &entity.Location{Lat: 0, Lng: 0}

	m := New(seededDirectory(t, responders...), Config{}, logger.NewNopLogger())
	res, err := m.Dispatch(context.Background(), Request{IncidentId: "EM-1", Location: loc, Type: entity.IncidentAccident})
	require.NoError(t, err)
	require.Len(t, res.Reserved, 2)
	assert.Equal(t, "amb", res.Reserved[0].Responder.Id)
	assert.Equal(t, "pol", res.Reserved[1].Responder.Id)

	m = New(seededDirectory(t, responders...), Config{MaxAssignments: 1}, logger.NewNopLogger())
	res, err = m.Dispatch(context.Background(), Request{IncidentId: "EM-2", Location: loc, Type: entity.IncidentAccident})
	require.NoError(t, err)
	require.Len(t, res.Reserved, 1)
	assert.Equal(t, "amb", res.Reserved[0].Responder.Id)
}

func TestDispatch_TieBreaksOnId(t *testing.T) {
	d := seededDirectory(t,
		entity.Responder{Id: "b", Role: entity.ResponderPolice, Location: point(0.5, 0)},
		entity.Responder{Id: "a", Role: entity.ResponderPolice, Location: point(-0.5, 0)},
	)
	m := New(d, Config{}, logger.NewNopLogger())

	res, err := m.Dispatch(context.Background(), Request{IncidentId: "EM-1", Location: &entity.Location{}, Type: entity.IncidentSafety})
	require.NoError(t, err)
	require.Len(t, res.Reserved, 1)
	assert.Equal(t, "a", res.Reserved[0].Responder.Id)
}

func TestDispatch_FallsThroughOnLostRace(t *testing.T) {
	base := seededDirectory(t,
		entity.Responder{Id: "near", Role: entity.ResponderMedical, Location: point(0, 0)},
		entity.Responder{Id: "far", Role: entity.ResponderMedical, Location: point(0.1, 0)},
	)
	m := New(&stealingDirectory{Directory: base, victim: "near"}, Config{}, logger.NewNopLogger())

	res, err := m.Dispatch(context.Background(), Request{IncidentId: "EM-1", Location: &entity.Location{}, Type: entity.IncidentMedical})
	require.NoError(t, err)
	require.Len(t, res.Reserved, 1)
	assert.Equal(t, "far", res.Reserved[0].Responder.Id)

	near, err := base.Get(context.Background(), "near")
	require.NoError(t, err)
	assert.Equal(t, "EM-RIVAL", *near.CurrentIncidentId)
}

func TestDispatch_EmptyOutcomes(t *testing.T) {
	rec := &fakeRecorder{}
	d := seededDirectory(t,
		entity.Responder{Id: "nowhere", Role: entity.ResponderMedical},
		entity.Responder{Id: "off", Role: entity.ResponderMedical, Location: point(0, 0), Status: entity.ResponderOffline},
	)
	m := New(d, Config{}, logger.NewNopLogger(), WithRecorder(rec))
	ctx := context.Background()

	res, err := m.Dispatch(ctx, Request{IncidentId: "EM-1", Type: entity.IncidentMedical})
	require.NoError(t, err)
	assert.Empty(t, res.Reserved)

	res, err = m.Dispatch(ctx, Request{IncidentId: "EM-1", Location: &entity.Location{}, Type: entity.IncidentMedical})
	require.NoError(t, err)
	assert.Empty(t, res.Reserved)
	assert.Empty(t, res.Ranked)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "nowhere", res.Skipped[0].Id)

	require.Len(t, rec.seen, 2)
	assert.Equal(t, OutcomeNoLocation, rec.seen[0].outcome)
	assert.Equal(t, OutcomeEmpty, rec.seen[1].outcome)
}

func TestDispatch_Timeout(t *testing.T) {
	base := seededDirectory(t, entity.Responder{Id: "1", Role: entity.ResponderMedical, Location: point(0, 0)})
	rec := &fakeRecorder{}
	m := New(stallingDirectory{base}, Config{Timeout: 20 * time.Millisecond}, logger.NewNopLogger(), WithRecorder(rec))

	_, err := m.Dispatch(context.Background(), Request{IncidentId: "EM-1", Location: &entity.Location{}, Type: entity.IncidentMedical})
	assert.ErrorIs(t, err, ErrDispatchTimeout)
	require.Len(t, rec.seen, 1)
	assert.Equal(t, OutcomeTimeout, rec.seen[0].outcome)
}

func TestPreview_DoesNotReserve(t *testing.T) {
	d := seededDirectory(t,
		entity.Responder{Id: "1", Role: entity.ResponderFire, Location: point(0, 0.2)},
		entity.Responder{Id: "2", Role: entity.ResponderRescue, Location: point(0, 0.1)},
	)
	m := New(d, Config{}, logger.NewNopLogger())

	res, err := m.Preview(context.Background(), entity.Location{}, entity.IncidentFire)
	require.NoError(t, err)
	require.Len(t, res.Ranked, 2)
	assert.Equal(t, "2", res.Ranked[0].Responder.Id)
	assert.Empty(t, res.Reserved)

	all, err := d.Query(context.Background(), []entity.ResponderRole{entity.ResponderFire, entity.ResponderRescue}, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
