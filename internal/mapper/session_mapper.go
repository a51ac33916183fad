package mapper

import (
	"emergency-dispatch-be/internal/dto"
	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/model"
	"emergency-dispatch-be/pkg/emergency/lifecycle"
)

type SessionMapper struct{}

func NewSessionMapper() *SessionMapper {
	return &SessionMapper{}
}

// Model Mappers

func (m *SessionMapper) ToModel(s *entity.EmergencySession) *model.EmergencySession {
	if s == nil {
		return nil
	}

	row := &model.EmergencySession{
		Id:            s.Id,
		Status:        string(s.Status),
		Type:          (*string)(s.Type),
		Severity:      (*string)(s.Severity),
		Priority:      s.Priority(),
		Summary:       s.Summary,
		Language:      s.Language,
		DispatchNotes: s.DispatchNotes,
		Messages:      make([]model.SessionMessage, len(s.Messages)),
		Steps:         make([]model.SessionStep, len(s.Steps)),
		CreatedAt:     s.CreatedAt,
		EscalatedAt:   s.EscalatedAt,
		ConnectedAt:   s.ConnectedAt,
		ResolvedAt:    s.ResolvedAt,
		Version:       s.Version,
	}
	if s.Location != nil {
		lat, lng := s.Location.Lat, s.Location.Lng
		row.Lat, row.Lng = &lat, &lng
		row.Address = s.Location.Address
	}
	for i, msg := range s.Messages {
		row.Messages[i] = model.SessionMessage{
			Id:        msg.Id,
			Role:      string(msg.Role),
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		}
	}
	for i, step := range s.Steps {
		row.Steps[i] = model.SessionStep{
			Id:        step.Id,
			Text:      step.Text,
			ImageUrl:  step.ImageUrl,
			Completed: step.Completed,
			Timestamp: step.Timestamp,
		}
	}
	if r := s.AssignedResponder; r != nil {
		id := r.Id
		row.AssignedResponderId = &id
		row.AssignedResponderName = r.Name
		row.AssignedResponderRole = string(r.Role)
		row.AssignedResponderUnit = r.Unit
	}
	return row
}

func (m *SessionMapper) ToEntity(row *model.EmergencySession) *entity.EmergencySession {
	if row == nil {
		return nil
	}

	s := &entity.EmergencySession{
		Id:            row.Id,
		Status:        entity.SessionStatus(row.Status),
		Type:          (*entity.IncidentType)(row.Type),
		Severity:      (*entity.Severity)(row.Severity),
		Summary:       row.Summary,
		Language:      row.Language,
		DispatchNotes: row.DispatchNotes,
		Messages:      make([]entity.Message, len(row.Messages)),
		Steps:         make([]entity.Step, len(row.Steps)),
		CreatedAt:     row.CreatedAt,
		EscalatedAt:   row.EscalatedAt,
		ConnectedAt:   row.ConnectedAt,
		ResolvedAt:    row.ResolvedAt,
		Version:       row.Version,
	}
	if row.Lat != nil && row.Lng != nil {
		s.Location = &entity.Location{Lat: *row.Lat, Lng: *row.Lng, Address: row.Address}
	}
	for i, msg := range row.Messages {
		s.Messages[i] = entity.Message{
			Id:        msg.Id,
			Role:      entity.MessageRole(msg.Role),
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		}
	}
	for i, step := range row.Steps {
		s.Steps[i] = entity.Step{
			Id:        step.Id,
			Text:      step.Text,
			ImageUrl:  step.ImageUrl,
			Completed: step.Completed,
			Timestamp: step.Timestamp,
		}
	}
	if row.AssignedResponderId != nil {
		s.AssignedResponder = &entity.ResponderSnapshot{
			Id:   *row.AssignedResponderId,
			Name: row.AssignedResponderName,
			Role: entity.ResponderRole(row.AssignedResponderRole),
			Unit: row.AssignedResponderUnit,
		}
	}
	return s
}

func (m *SessionMapper) ToEntities(rows []*model.EmergencySession) []*entity.EmergencySession {
	out := make([]*entity.EmergencySession, len(rows))
	for i, row := range rows {
		out[i] = m.ToEntity(row)
	}
	return out
}

// DTO Mappers

func (m *SessionMapper) ToResponse(s *entity.EmergencySession) dto.SessionResponse {
	res := dto.SessionResponse{
		Id:            s.Id,
		Status:        string(s.Status),
		Type:          (*string)(s.Type),
		Severity:      (*string)(s.Severity),
		Priority:      s.Priority(),
		Summary:       s.Summary,
		Language:      s.Language,
		DispatchNotes: s.DispatchNotes,
		Messages:      make([]dto.MessageResponse, len(s.Messages)),
		Steps:         make([]dto.StepResponse, len(s.Steps)),
		CreatedAt:     s.CreatedAt,
		EscalatedAt:   s.EscalatedAt,
		ConnectedAt:   s.ConnectedAt,
		ResolvedAt:    s.ResolvedAt,
		Version:       s.Version,
	}
	if s.Location != nil {
		res.Location = &dto.LocationResponse{Lat: s.Location.Lat, Lng: s.Location.Lng, Address: s.Location.Address}
	}
	for i, msg := range s.Messages {
		res.Messages[i] = dto.MessageResponse{
			Id:        msg.Id,
			Role:      string(msg.Role),
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		}
	}
	for i, step := range s.Steps {
		res.Steps[i] = dto.StepResponse{
			Id:        step.Id,
			Text:      step.Text,
			ImageUrl:  step.ImageUrl,
			Completed: step.Completed,
			Timestamp: step.Timestamp,
		}
	}
	res.AssignedResponder = m.SnapshotToResponse(s.AssignedResponder)
	return res
}

func (m *SessionMapper) ToResponses(sessions []entity.EmergencySession) []dto.SessionResponse {
	out := make([]dto.SessionResponse, len(sessions))
	for i := range sessions {
		out[i] = m.ToResponse(&sessions[i])
	}
	return out
}

// FromResponse rebuilds a snapshot from its wire form, used by the snapshot
// consumer.
func (m *SessionMapper) FromResponse(res *dto.SessionResponse) *entity.EmergencySession {
	s := &entity.EmergencySession{
		Id:            res.Id,
		Status:        entity.SessionStatus(res.Status),
		Type:          (*entity.IncidentType)(res.Type),
		Severity:      (*entity.Severity)(res.Severity),
		Summary:       res.Summary,
		Language:      res.Language,
		DispatchNotes: res.DispatchNotes,
		Messages:      make([]entity.Message, len(res.Messages)),
		Steps:         make([]entity.Step, len(res.Steps)),
		CreatedAt:     res.CreatedAt,
		EscalatedAt:   res.EscalatedAt,
		ConnectedAt:   res.ConnectedAt,
		ResolvedAt:    res.ResolvedAt,
		Version:       res.Version,
	}
	if res.Location != nil {
		s.Location = &entity.Location{Lat: res.Location.Lat, Lng: res.Location.Lng, Address: res.Location.Address}
	}
	for i, msg := range res.Messages {
		s.Messages[i] = entity.Message{
			Id:        msg.Id,
			Role:      entity.MessageRole(msg.Role),
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		}
	}
	for i, step := range res.Steps {
		s.Steps[i] = entity.Step{
			Id:        step.Id,
			Text:      step.Text,
			ImageUrl:  step.ImageUrl,
			Completed: step.Completed,
			Timestamp: step.Timestamp,
		}
	}
	if r := res.AssignedResponder; r != nil {
		s.AssignedResponder = &entity.ResponderSnapshot{Id: r.Id, Name: r.Name, Role: entity.ResponderRole(r.Role), Unit: r.Unit}
	}
	return s
}

func (m *SessionMapper) SnapshotToResponse(r *entity.ResponderSnapshot) *dto.ResponderSnapshotResponse {
	if r == nil {
		return nil
	}
	return &dto.ResponderSnapshotResponse{Id: r.Id, Name: r.Name, Role: string(r.Role), Unit: r.Unit}
}

// ClassificationFromRequest converts the partial update; absent fields stay nil.
func (m *SessionMapper) ClassificationFromRequest(req *dto.UpdateClassificationRequest) lifecycle.Classification {
	c := lifecycle.Classification{
		Type:     (*entity.IncidentType)(req.Type),
		Severity: (*entity.Severity)(req.Severity),
		Summary:  req.Summary,
		Language: req.Language,
	}
	if req.Location != nil {
		c.Location = &entity.Location{Lat: req.Location.Lat, Lng: req.Location.Lng, Address: req.Location.Address}
	}
	return c
}
