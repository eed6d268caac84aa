package registry

import (
	"errors"
	"fmt"

	"github.com/ardeus-ua/ha-addons/internal/models"
)

// Registry maps sensor IDs to display names, immutable after New
type Registry struct {
	sensors []models.Sensor
	names   map[string]string
}

// New validates the sensor list and keeps its order
func New(sensors []models.Sensor) (*Registry, error) {
	if len(sensors) == 0 {
		return nil, errors.New("sensor registry is empty")
	}

	r := &Registry{
		sensors: make([]models.Sensor, 0, len(sensors)),
		names:   make(map[string]string, len(sensors)),
	}
	for i, s := range sensors {
		if s.ID == "" {
			return nil, fmt.Errorf("sensor #%d has an empty id", i+1)
		}
		if _, dup := r.names[s.ID]; dup {
			return nil, fmt.Errorf("duplicate sensor id %q", s.ID)
		}
		name := s.Name
		if name == "" {
			name = s.ID
		}
		r.names[s.ID] = name
		r.sensors = append(r.sensors, models.Sensor{ID: s.ID, Name: name})
	}
	return r, nil
}

// Default returns the built-in registry
func Default() *Registry {
	r, err := New(DefaultSensors())
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultSensors lists the sensors used when no registry file is configured
func DefaultSensors() []models.Sensor {
	return []models.Sensor{
		{ID: "1", Name: "Ліфт п1"},
		{ID: "2", Name: "Ліфт п2"},
		{ID: "3", Name: "Ліфт п3"},
		{ID: "4", Name: "Вода"},
		{ID: "5", Name: "Опалення"},
	}
}

// Has reports whether id is registered
func (r *Registry) Has(id string) bool {
	_, ok := r.names[id]
	return ok
}

// Name returns the display name of a sensor
func (r *Registry) Name(id string) (string, bool) {
	name, ok := r.names[id]
	return name, ok
}

// Sensors returns the sensors in registration order
func (r *Registry) Sensors() []models.Sensor {
	out := make([]models.Sensor, len(r.sensors))
	copy(out, r.sensors)
	return out
}

// Len returns the number of registered sensors
func (r *Registry) Len() int {
	return len(r.sensors)
}

// Unknown returns a reading set with every sensor unknown
func (r *Registry) Unknown() models.Readings {
	out := make(models.Readings, len(r.sensors))
	for _, s := range r.sensors {
		out[s.ID] = nil
	}
	return out
}
