package api

import (
	"strconv"

	"github.com/ardeus-ua/ha-addons/internal/models"
)

const segmentCount = 10

// segment CSS classes, see templates/index.html
const (
	levelHigh  = "high"
	levelMid   = "mid"
	levelLow   = "low"
	levelEmpty = "empty"
)

type card struct {
	ID       string
	Name     string
	Label    string // "17%" or "N/A%"
	Segments []string
}

type page struct {
	Cards []card
}

func buildPage(sensors []models.Sensor, readings models.Readings) page {
	p := page{Cards: make([]card, 0, len(sensors))}
	for _, s := range sensors {
		soc := readings[s.ID]
		p.Cards = append(p.Cards, card{
			ID:       s.ID,
			Name:     s.Name,
			Label:    socLabel(soc),
			Segments: segments(soc),
		})
	}
	return p
}

func socLabel(soc *int) string {
	if soc == nil {
		return "N/A%"
	}
	return strconv.Itoa(*soc) + "%"
}

// segments fills the first ceil(soc/10) segments by level; unknown is empty
func segments(soc *int) []string {
	level := 0
	if soc != nil {
		level = *soc
	}

	fill := levelLow
	switch {
	case level >= 50:
		fill = levelHigh
	case level >= 20:
		fill = levelMid
	}

	out := make([]string, segmentCount)
	for i := range out {
		if i*10 < level {
			out[i] = fill
		} else {
			out[i] = levelEmpty
		}
	}
	return out
}
