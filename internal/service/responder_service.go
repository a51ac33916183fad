package service

import (
	"context"
	"fmt"

	"emergency-dispatch-be/internal/dto"
	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/mapper"
	"emergency-dispatch-be/internal/repository/contract"
	"emergency-dispatch-be/pkg/emergency/directory"

	"github.com/google/uuid"
)

type IResponderService interface {
	List(ctx context.Context, query *dto.ResponderListQuery) ([]dto.ResponderResponse, error)
	Show(ctx context.Context, id string) (*dto.ResponderResponse, error)
	Register(ctx context.Context, req *dto.RegisterResponderRequest) (*dto.ResponderResponse, error)
	UpdateLocation(ctx context.Context, id string, req *dto.GeoPointRequest) (*dto.ResponderResponse, error)
	SetOffline(ctx context.Context, id string) (*dto.ResponderResponse, error)
	SetOnline(ctx context.Context, id string) (*dto.ResponderResponse, error)
	Assignments(ctx context.Context, id string) ([]dto.AssignmentResponse, error)
	UpdateAssignmentStatus(ctx context.Context, id string, assignmentId uuid.UUID, req *dto.AssignmentStatusRequest) (*dto.AssignmentResponse, error)
}

type responderService struct {
	directory   *directory.Directory
	assignments contract.IncidentAssignmentRepository
	responders  *mapper.ResponderMapper
	history     *mapper.AssignmentMapper
}

func NewResponderService(dir *directory.Directory, assignments contract.IncidentAssignmentRepository) IResponderService {
	return &responderService{
		directory:   dir,
		assignments: assignments,
		responders:  mapper.NewResponderMapper(),
		history:     mapper.NewAssignmentMapper(),
	}
}

func (s *responderService) List(ctx context.Context, query *dto.ResponderListQuery) ([]dto.ResponderResponse, error) {
	all, err := s.directory.List(ctx)
	if err != nil {
		return nil, err
	}

	filtered := all[:0]
	for _, r := range all {
		if query != nil && query.Role != "" && string(r.Role) != query.Role {
			continue
		}
		if query != nil && query.Status != "" && string(r.Status) != query.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	return s.responders.ToResponses(filtered), nil
}

func (s *responderService) Show(ctx context.Context, id string) (*dto.ResponderResponse, error) {
	return s.respond(s.directory.Get(ctx, id))
}

func (s *responderService) Register(ctx context.Context, req *dto.RegisterResponderRequest) (*dto.ResponderResponse, error) {
	return s.respond(s.directory.Register(ctx, s.responders.FromRegisterRequest(req)))
}

func (s *responderService) UpdateLocation(ctx context.Context, id string, req *dto.GeoPointRequest) (*dto.ResponderResponse, error) {
	return s.respond(s.directory.UpdateLocation(ctx, id, entity.GeoPoint{Lat: req.Lat, Lng: req.Lng}))
}

func (s *responderService) SetOffline(ctx context.Context, id string) (*dto.ResponderResponse, error) {
	return s.respond(s.directory.SetOffline(ctx, id))
}

func (s *responderService) SetOnline(ctx context.Context, id string) (*dto.ResponderResponse, error) {
	return s.respond(s.directory.SetOnline(ctx, id))
}

func (s *responderService) Assignments(ctx context.Context, id string) ([]dto.AssignmentResponse, error) {
	if _, err := s.directory.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.assignments.FindByResponder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load assignments for %s: %w", id, err)
	}
	return s.history.ToResponses(rows), nil
}

// UpdateAssignmentStatus records a unit's progress on one of its open assignments.
func (s *responderService) UpdateAssignmentStatus(ctx context.Context, id string, assignmentId uuid.UUID, req *dto.AssignmentStatusRequest) (*dto.AssignmentResponse, error) {
	if _, err := s.directory.Get(ctx, id); err != nil {
		return nil, err
	}
	a, err := s.assignments.Advance(ctx, id, assignmentId, entity.AssignmentStatus(req.Status))
	if err != nil {
		return nil, err
	}
	res := s.history.ToResponse(a)
	return &res, nil
}

func (s *responderService) respond(r entity.Responder, err error) (*dto.ResponderResponse, error) {
	if err != nil {
		return nil, err
	}
	res := s.responders.ToResponse(&r)
	return &res, nil
}
