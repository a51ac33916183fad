package matcher

import "emergency-dispatch-be/internal/entity"

// Policy maps an incident type to the responder roles it needs.
// Keep every mapping in this table; callers only ask RequiredRoles.
type Policy map[entity.IncidentType][]entity.ResponderRole

var fallbackRoles = []entity.ResponderRole{entity.ResponderMedical, entity.ResponderPolice}

var DefaultPolicy = Policy{
	entity.IncidentMedical:  {entity.ResponderMedical, entity.ResponderRescue},
	entity.IncidentFire:     {entity.ResponderFire, entity.ResponderRescue},
	entity.IncidentSafety:   {entity.ResponderPolice},
	entity.IncidentAccident: {entity.ResponderMedical, entity.ResponderPolice},
	entity.IncidentOther:    fallbackRoles,
}

// RequiredRoles returns a copy of the roles for t; unknown types get medical+police.
func (p Policy) RequiredRoles(t entity.IncidentType) []entity.ResponderRole {
	roles, ok := p[t]
	if !ok {
		roles = fallbackRoles
	}
	return append([]entity.ResponderRole(nil), roles...)
}
