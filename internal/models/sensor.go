package models

// Sensor is a registered battery sensor
type Sensor struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Readings maps sensor ID to state of charge in percent; nil means unknown
type Readings map[string]*int

// Clone returns a deep copy, including the value pointers
func (r Readings) Clone() Readings {
	out := make(Readings, len(r))
	for id, v := range r {
		if v == nil {
			out[id] = nil
			continue
		}
		soc := *v
		out[id] = &soc
	}
	return out
}

// Batch is one ingestion request coming from any transport
type Batch struct {
	Source  string   // "http", "mqtt", ...
	Updates Readings // sensor ID -> SOC (nil resets to unknown)
}

// SOC returns a pointer to v
func SOC(v int) *int {
	return &v
}

const (
	MinSOC = 0
	MaxSOC = 100
)
