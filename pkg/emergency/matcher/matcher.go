// Package matcher ranks available responders by straight-line distance and
// reserves the nearest unit per required role.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/pkg/logger"
	"emergency-dispatch-be/pkg/emergency/directory"
	"emergency-dispatch-be/pkg/geo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const module = "Matcher"

const (
	DefaultMaxAssignments = 2
	DefaultTimeout        = 250 * time.Millisecond
)

const (
	OutcomeReserved   = "reserved"
	OutcomeEmpty      = "empty"
	OutcomeNoLocation = "no_location"
	OutcomeTimeout    = "timeout"
	OutcomeError      = "error"
)

var ErrDispatchTimeout = errors.New("dispatch timed out")

// Directory is the part of the responder directory the matcher needs.
type Directory interface {
	Query(ctx context.Context, roles []entity.ResponderRole, onlyAvailable bool) ([]entity.Responder, error)
	Reserve(ctx context.Context, responderId, incidentId string) (entity.Responder, error)
}

// Recorder receives one observation per dispatch call.
type Recorder interface {
	ObserveDispatch(outcome string, reserved int, elapsed time.Duration)
}

type Config struct {
	MaxAssignments int
	Timeout        time.Duration
}

type Request struct {
	IncidentId string
	Location   *entity.Location
	Type       entity.IncidentType
	// MaxAssignments overrides the configured cap when > 0.
	MaxAssignments int
}

type Candidate struct {
	Responder  entity.Responder
	DistanceKm float64
	EtaMinutes int
}

type Result struct {
	Ranked   []Candidate
	Reserved []Candidate
	// Skipped holds candidates that had no location and could not be ranked.
	Skipped []entity.Responder
}

type Matcher struct {
	directory Directory
	policy    Policy
	cfg       Config
	recorder  Recorder
	logger    logger.ILogger
	tracer    trace.Tracer
}

type Option func(*Matcher)

func WithPolicy(p Policy) Option {
	return func(m *Matcher) { m.policy = p }
}

func WithRecorder(r Recorder) Option {
	return func(m *Matcher) { m.recorder = r }
}

func New(dir Directory, cfg Config, log logger.ILogger, opts ...Option) *Matcher {
	if cfg.MaxAssignments <= 0 {
		cfg.MaxAssignments = DefaultMaxAssignments
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	m := &Matcher{
		directory: dir,
		policy:    DefaultPolicy,
		cfg:       cfg,
		logger:    log,
		tracer:    otel.Tracer("emergency-dispatch-be/matcher"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Matcher) RequiredRoles(t entity.IncidentType) []entity.ResponderRole {
	return m.policy.RequiredRoles(t)
}

// Dispatch selects and reserves up to MaxAssignments responders, at most one per role.
// A lost reservation race falls through to the next-nearest candidate of the same role.
// An empty Reserved set is a valid outcome, not an error.
func (m *Matcher) Dispatch(ctx context.Context, req Request) (result Result, err error) {
	ctx, span := m.tracer.Start(ctx, "matcher.Dispatch", trace.WithAttributes(
		attribute.String("incident.id", req.IncidentId),
		attribute.String("incident.type", string(req.Type)),
	))
	started := time.Now()
	outcome := OutcomeEmpty
	defer func() {
		span.SetAttributes(
			attribute.String("dispatch.outcome", outcome),
			attribute.Int("dispatch.reserved", len(result.Reserved)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if m.recorder != nil {
			m.recorder.ObserveDispatch(outcome, len(result.Reserved), time.Since(started))
		}
	}()

	if req.Location == nil {
		outcome = OutcomeNoLocation
		m.logger.Warn(module, "Incident has no location, nothing to rank", map[string]interface{}{"incident_id": req.IncidentId})
		return Result{}, nil
	}

	limit := m.cfg.MaxAssignments
	if req.MaxAssignments > 0 {
		limit = req.MaxAssignments
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	result, err = m.rank(ctx, req)
	if err != nil {
		outcome = failureOutcome(err)
		return result, err
	}

	usedRoles := make(map[entity.ResponderRole]bool)
	for _, c := range result.Ranked {
		if len(result.Reserved) >= limit {
			break
		}
		if usedRoles[c.Responder.Role] {
			continue
		}

		reserved, rerr := m.directory.Reserve(ctx, c.Responder.Id, req.IncidentId)
		if rerr != nil {
			if errors.Is(rerr, directory.ErrResponderUnavailable) || errors.Is(rerr, directory.ErrResponderNotFound) {
				m.logger.Info(module, "Lost reservation race, trying next candidate", map[string]interface{}{
					"incident_id":  req.IncidentId,
					"responder_id": c.Responder.Id,
					"role":         c.Responder.Role,
				})
				continue
			}
			err = m.wrap(ctx, rerr)
			outcome = failureOutcome(err)
			return result, err
		}

		c.Responder = reserved
		result.Reserved = append(result.Reserved, c)
		usedRoles[c.Responder.Role] = true
	}

	if len(result.Reserved) > 0 {
		outcome = OutcomeReserved
	}
	m.logger.Info(module, "Dispatch finished", map[string]interface{}{
		"incident_id": req.IncidentId,
		"ranked":      len(result.Ranked),
		"reserved":    len(result.Reserved),
		"skipped":     len(result.Skipped),
	})
	return result, nil
}

// Preview ranks candidates for an incident without reserving anyone.
func (m *Matcher) Preview(ctx context.Context, location entity.Location, incidentType entity.IncidentType) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	return m.rank(ctx, Request{Location: &location, Type: incidentType})
}

func (m *Matcher) rank(ctx context.Context, req Request) (Result, error) {
	roles := m.policy.RequiredRoles(req.Type)
	available, err := m.directory.Query(ctx, roles, true)
	if err != nil {
		return Result{}, m.wrap(ctx, err)
	}

	origin := geo.Point{Lat: req.Location.Lat, Lng: req.Location.Lng}
	var result Result
	for _, r := range available {
		if r.Location == nil {
			result.Skipped = append(result.Skipped, r)
			m.logger.Debug(module, "Skipping responder without location", map[string]interface{}{
				"incident_id":  req.IncidentId,
				"responder_id": r.Id,
			})
			continue
		}
		km := geo.DistanceKm(origin, geo.Point{Lat: r.Location.Lat, Lng: r.Location.Lng})
		result.Ranked = append(result.Ranked, Candidate{
			Responder:  r,
			DistanceKm: km,
			EtaMinutes: geo.EtaMinutes(km),
		})
	}

	sort.SliceStable(result.Ranked, func(i, j int) bool {
		a, b := result.Ranked[i], result.Ranked[j]
		if a.DistanceKm != b.DistanceKm {
			return a.DistanceKm < b.DistanceKm
		}
		return a.Responder.Id < b.Responder.Id
	})
	return result, nil
}

func (m *Matcher) wrap(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrDispatchTimeout, m.cfg.Timeout)
	}
	return fmt.Errorf("dispatch: %w", err)
}

func failureOutcome(err error) string {
	if errors.Is(err, ErrDispatchTimeout) {
		return OutcomeTimeout
	}
	return OutcomeError
}
