package mapper

import (
	"emergency-dispatch-be/internal/dto"
	"emergency-dispatch-be/internal/entity"
	"emergency-dispatch-be/internal/model"
	"emergency-dispatch-be/pkg/emergency/matcher"
)

type ResponderMapper struct{}

func NewResponderMapper() *ResponderMapper {
	return &ResponderMapper{}
}

func (m *ResponderMapper) ToModel(r *entity.Responder) *model.Responder {
	if r == nil {
		return nil
	}
	row := &model.Responder{
		Id:                r.Id,
		Name:              r.Name,
		Role:              string(r.Role),
		UnitId:            r.UnitId,
		Status:            string(r.Status),
		CurrentIncidentId: r.CurrentIncidentId,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.Location != nil {
		lat, lng := r.Location.Lat, r.Location.Lng
		row.Lat, row.Lng = &lat, &lng
	}
	return row
}

func (m *ResponderMapper) ToEntity(row *model.Responder) *entity.Responder {
	if row == nil {
		return nil
	}
	r := &entity.Responder{
		Id:                row.Id,
		Name:              row.Name,
		Role:              entity.ResponderRole(row.Role),
		UnitId:            row.UnitId,
		Status:            entity.ResponderStatus(row.Status),
		CurrentIncidentId: row.CurrentIncidentId,
		UpdatedAt:         row.UpdatedAt,
	}
	if row.Lat != nil && row.Lng != nil {
		r.Location = &entity.GeoPoint{Lat: *row.Lat, Lng: *row.Lng}
	}
	return r
}

func (m *ResponderMapper) ToEntities(rows []*model.Responder) []*entity.Responder {
	out := make([]*entity.Responder, len(rows))
	for i, row := range rows {
		out[i] = m.ToEntity(row)
	}
	return out
}

func (m *ResponderMapper) ToResponse(r *entity.Responder) dto.ResponderResponse {
	res := dto.ResponderResponse{
		Id:                r.Id,
		Name:              r.Name,
		Role:              string(r.Role),
		UnitId:            r.UnitId,
		Status:            string(r.Status),
		CurrentIncidentId: r.CurrentIncidentId,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.Location != nil {
		res.Location = &dto.GeoPointResponse{Lat: r.Location.Lat, Lng: r.Location.Lng}
	}
	return res
}

func (m *ResponderMapper) ToResponses(responders []entity.Responder) []dto.ResponderResponse {
	out := make([]dto.ResponderResponse, len(responders))
	for i := range responders {
		out[i] = m.ToResponse(&responders[i])
	}
	return out
}

func (m *ResponderMapper) FromRegisterRequest(req *dto.RegisterResponderRequest) entity.Responder {
	r := entity.Responder{
		Id:     req.Id,
		Name:   req.Name,
		Role:   entity.ResponderRole(req.Role),
		UnitId: req.UnitId,
		Status: entity.ResponderAvailable,
	}
	if req.Location != nil {
		r.Location = &entity.GeoPoint{Lat: req.Location.Lat, Lng: req.Location.Lng}
	}
	return r
}

func (m *ResponderMapper) CandidatesToResponse(result matcher.Result) dto.CandidatesResponse {
	res := dto.CandidatesResponse{
		Ranked:  make([]dto.CandidateResponse, len(result.Ranked)),
		Skipped: m.ToResponses(result.Skipped),
	}
	for i, c := range result.Ranked {
		res.Ranked[i] = dto.CandidateResponse{
			Responder:  m.ToResponse(&c.Responder),
			DistanceKm: c.DistanceKm,
			EtaMinutes: c.EtaMinutes,
		}
	}
	return res
}
