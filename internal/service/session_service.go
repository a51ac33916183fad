package service

import (
	"context"
	"errors"

	"emergency-dispatch-be/internal/dto"
	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/mapper"
	"emergency-dispatch-be/internal/pkg/serverutils"
	"emergency-dispatch-be/pkg/emergency/escalation"
	"emergency-dispatch-be/pkg/emergency/lifecycle"
)

type ISessionService interface {
	Create(ctx context.Context, req *dto.CreateSessionRequest) (*dto.SessionResponse, error)
	Show(ctx context.Context, id string) (*dto.SessionResponse, error)
	AddMessage(ctx context.Context, id string, req *dto.AddMessageRequest) (*dto.SessionResponse, error)
	AddStep(ctx context.Context, id string, req *dto.AddStepRequest) (*dto.SessionResponse, error)
	CompleteStep(ctx context.Context, id, stepId string) (*dto.SessionResponse, error)
	UpdateClassification(ctx context.Context, id string, req *dto.UpdateClassificationRequest) (*dto.SessionResponse, error)
	Escalate(ctx context.Context, id string) (*dto.SessionResponse, error)
	Resolve(ctx context.Context, id string) (*dto.ResolveSessionResponse, error)

	// Dispatcher side
	Queue(ctx context.Context, statuses []string) ([]dto.SessionResponse, error)
	History(ctx context.Context) ([]dto.SessionResponse, error)
	DispatcherMessage(ctx context.Context, id string, req *dto.DispatcherMessageRequest) (*dto.SessionResponse, error)
	Assign(ctx context.Context, id string, req *dto.ManualAssignRequest) (*dto.SessionResponse, error)
	Connect(ctx context.Context, id string) (*dto.SessionResponse, error)
	SetDispatchNotes(ctx context.Context, id string, req *dto.DispatchNotesRequest) (*dto.SessionResponse, error)
	Candidates(ctx context.Context, id string) (*dto.CandidatesResponse, error)
}

type sessionService struct {
	coordinator *escalation.Coordinator
	sessions    *mapper.SessionMapper
	responders  *mapper.ResponderMapper
}

func NewSessionService(coordinator *escalation.Coordinator) ISessionService {
	return &sessionService{
		coordinator: coordinator,
		sessions:    mapper.NewSessionMapper(),
		responders:  mapper.NewResponderMapper(),
	}
}

func (s *sessionService) Create(ctx context.Context, req *dto.CreateSessionRequest) (*dto.SessionResponse, error) {
	snap, err := s.coordinator.Start(ctx)
	if err != nil {
		return nil, err
	}
	if req != nil && req.Language != "" {
		snap, err = s.coordinator.UpdateClassification(ctx, snap.Id, lifecycle.Classification{Language: &req.Language})
		if err != nil {
			return nil, err
		}
	}
	return s.respond(snap, nil)
}

func (s *sessionService) Show(ctx context.Context, id string) (*dto.SessionResponse, error) {
	return s.respond(s.coordinator.Get(ctx, id))
}

func (s *sessionService) AddMessage(ctx context.Context, id string, req *dto.AddMessageRequest) (*dto.SessionResponse, error) {
	_, snap, err := s.coordinator.AddMessage(ctx, id, entity.MessageRole(req.Role), req.Content)
	return s.respond(snap, err)
}

func (s *sessionService) AddStep(ctx context.Context, id string, req *dto.AddStepRequest) (*dto.SessionResponse, error) {
	_, snap, err := s.coordinator.AddStep(ctx, id, req.Text, req.ImageUrl)
	return s.respond(snap, err)
}

func (s *sessionService) CompleteStep(ctx context.Context, id, stepId string) (*dto.SessionResponse, error) {
	return s.respond(s.coordinator.CompleteStep(ctx, id, stepId))
}

func (s *sessionService) UpdateClassification(ctx context.Context, id string, req *dto.UpdateClassificationRequest) (*dto.SessionResponse, error) {
	return s.respond(s.coordinator.UpdateClassification(ctx, id, s.sessions.ClassificationFromRequest(req)))
}

func (s *sessionService) Escalate(ctx context.Context, id string) (*dto.SessionResponse, error) {
	return s.respond(s.coordinator.Escalate(ctx, id))
}

func (s *sessionService) Resolve(ctx context.Context, id string) (*dto.ResolveSessionResponse, error) {
	snap, released, err := s.coordinator.Resolve(ctx, id)
	if err != nil {
		return nil, s.withState(snap, err)
	}
	res := &dto.ResolveSessionResponse{
		Session:  s.sessions.ToResponse(&snap),
		Released: make([]dto.ResponderSnapshotResponse, 0, len(released)),
	}
	for _, r := range released {
		rs := r.Snapshot()
		res.Released = append(res.Released, *s.sessions.SnapshotToResponse(&rs))
	}
	return res, nil
}

func (s *sessionService) Queue(ctx context.Context, statuses []string) ([]dto.SessionResponse, error) {
	filter := escalation.ListFilter{}
	for _, raw := range statuses {
		status := entity.SessionStatus(raw)
		if !status.Valid() {
			return nil, lifecycle.ErrInvalidInput
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	return s.sessions.ToResponses(s.coordinator.List(ctx, filter)), nil
}

func (s *sessionService) History(ctx context.Context) ([]dto.SessionResponse, error) {
	return s.sessions.ToResponses(s.coordinator.History(ctx)), nil
}

func (s *sessionService) DispatcherMessage(ctx context.Context, id string, req *dto.DispatcherMessageRequest) (*dto.SessionResponse, error) {
	_, snap, err := s.coordinator.DispatcherMessage(ctx, id, req.Content)
	return s.respond(snap, err)
}

func (s *sessionService) Assign(ctx context.Context, id string, req *dto.ManualAssignRequest) (*dto.SessionResponse, error) {
	return s.respond(s.coordinator.ManualAssign(ctx, id, req.ResponderId, req.ReleasePrevious))
}

func (s *sessionService) Connect(ctx context.Context, id string) (*dto.SessionResponse, error) {
	return s.respond(s.coordinator.Connect(ctx, id))
}

func (s *sessionService) SetDispatchNotes(ctx context.Context, id string, req *dto.DispatchNotesRequest) (*dto.SessionResponse, error) {
	return s.respond(s.coordinator.SetDispatchNotes(ctx, id, req.Notes))
}

func (s *sessionService) Candidates(ctx context.Context, id string) (*dto.CandidatesResponse, error) {
	result, err := s.coordinator.Candidates(ctx, id)
	if err != nil {
		return nil, err
	}
	res := s.responders.CandidatesToResponse(result)
	return &res, nil
}

func (s *sessionService) respond(snap entity.EmergencySession, err error) (*dto.SessionResponse, error) {
	if err != nil {
		return nil, s.withState(snap, err)
	}
	res := s.sessions.ToResponse(&snap)
	return &res, nil
}

// withState attaches the unchanged session to a rejected transition.
func (s *sessionService) withState(snap entity.EmergencySession, err error) error {
	if snap.Id == "" || !(errors.Is(err, lifecycle.ErrInvalidTransition) || errors.Is(err, lifecycle.ErrSessionClosed)) {
		return err
	}
	return serverutils.WithState(err, s.sessions.ToResponse(&snap))
}
