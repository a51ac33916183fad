package mapper

import (
	"emergency-dispatch-be/internal/dto"
	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/model"
)

type AssignmentMapper struct{}

func NewAssignmentMapper() *AssignmentMapper {
	return &AssignmentMapper{}
}

func (m *AssignmentMapper) ToModel(a *entity.IncidentAssignment) *model.IncidentAssignment {
	if a == nil {
		return nil
	}
	return &model.IncidentAssignment{
		Id:          a.Id,
		IncidentId:  a.IncidentId,
		ResponderId: a.ResponderId,
		Status:      string(a.Status),
		Manual:      a.Manual,
		DistanceKm:  a.DistanceKm,
		EtaMinutes:  a.EtaMinutes,
		AssignedAt:  a.AssignedAt,
		ReleasedAt:  a.ReleasedAt,
	}
}

func (m *AssignmentMapper) ToEntity(row *model.IncidentAssignment) *entity.IncidentAssignment {
	if row == nil {
		return nil
	}
	return &entity.IncidentAssignment{
		Id:          row.Id,
		IncidentId:  row.IncidentId,
		ResponderId: row.ResponderId,
		Status:      entity.AssignmentStatus(row.Status),
		Manual:      row.Manual,
		DistanceKm:  row.DistanceKm,
		EtaMinutes:  row.EtaMinutes,
		AssignedAt:  row.AssignedAt,
		ReleasedAt:  row.ReleasedAt,
	}
}

func (m *AssignmentMapper) ToEntities(rows []*model.IncidentAssignment) []*entity.IncidentAssignment {
	out := make([]*entity.IncidentAssignment, len(rows))
	for i, row := range rows {
		out[i] = m.ToEntity(row)
	}
	return out
}

func (m *AssignmentMapper) ToResponse(a *entity.IncidentAssignment) dto.AssignmentResponse {
	return dto.AssignmentResponse{
		Id:          a.Id,
		IncidentId:  a.IncidentId,
		ResponderId: a.ResponderId,
		Status:      string(a.Status),
		Manual:      a.Manual,
		DistanceKm:  a.DistanceKm,
		EtaMinutes:  a.EtaMinutes,
		AssignedAt:  a.AssignedAt,
		ReleasedAt:  a.ReleasedAt,
	}
}

func (m *AssignmentMapper) ToResponses(rows []*entity.IncidentAssignment) []dto.AssignmentResponse {
	out := make([]dto.AssignmentResponse, len(rows))
	for i, a := range rows {
		out[i] = m.ToResponse(a)
	}
	return out
}
