// Package roster reads responder fleets from YAML files.
package roster

import (
	"errors"
	"fmt"
	"os"

	"emergency-dispatch-be/internal/entity"

	"gopkg.in/yaml.v3"
)

type File struct {
	Responders []Entry `yaml:"responders"`
}

type Entry struct {
	Id     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Role   string   `yaml:"role"`
	Unit   string   `yaml:"unit"`
	Status string   `yaml:"status"`
	Lat    *float64 `yaml:"lat"`
	Lng    *float64 `yaml:"lng"`
}

// Load reads and validates a roster file.
func Load(path string) ([]entity.Responder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roster: read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) ([]entity.Responder, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("roster: parse: %w", err)
	}

	seen := make(map[string]bool, len(f.Responders))
	responders := make([]entity.Responder, 0, len(f.Responders))
	for i, e := range f.Responders {
		r, err := e.toResponder()
		if err != nil {
			return nil, fmt.Errorf("roster: entry %d: %w", i, err)
		}
		if seen[r.Id] {
			return nil, fmt.Errorf("roster: entry %d: duplicate id %q", i, r.Id)
		}
		seen[r.Id] = true
		responders = append(responders, r)
	}
	return responders, nil
}

func (e Entry) toResponder() (entity.Responder, error) {
	role := entity.ResponderRole(e.Role)
	if e.Id == "" || !role.Valid() {
		return entity.Responder{}, errors.New("id and a valid role are required")
	}
	if (e.Lat == nil) != (e.Lng == nil) {
		return entity.Responder{}, fmt.Errorf("%s: lat and lng must be set together", e.Id)
	}

	status := entity.ResponderStatus(e.Status)
	switch status {
	case "":
		status = entity.ResponderAvailable
	case entity.ResponderAvailable, entity.ResponderOffline:
	default:
		// A seeded responder cannot start out reserved.
		return entity.Responder{}, fmt.Errorf("%s: status must be available or offline", e.Id)
	}

	r := entity.Responder{
		Id:     e.Id,
		Name:   e.Name,
		Role:   role,
		UnitId: e.Unit,
		Status: status,
	}
	if e.Lat != nil {
		r.Location = &entity.GeoPoint{Lat: *e.Lat, Lng: *e.Lng}
	}
	return r, nil
}
