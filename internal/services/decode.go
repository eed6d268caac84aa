package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ardeus-ua/ha-addons/internal/models"
)

// ParseError reports a malformed ingestion payload
type ParseError struct {
	Msg string
	Err error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DecodeBatch parses a JSON object mapping sensor ID to SOC percent
// Values must be whole numbers in [0,100] or null
func DecodeBatch(r io.Reader) (models.Readings, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Msg: "empty request body"}
		}
		return nil, &ParseError{Msg: "request body must be a JSON object", Err: err}
	}
	if raw == nil {
		return nil, &ParseError{Msg: "request body must be a JSON object"}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Msg: "unexpected data after JSON object"}
	}

	updates := make(models.Readings, len(raw))
	for id, value := range raw {
		soc, err := decodeSOC(value)
		if err != nil {
			return nil, &ParseError{Msg: fmt.Sprintf("invalid SOC for sensor %q", id), Err: err}
		}
		updates[id] = soc
	}
	return updates, nil
}

// ParseSOC parses a bare value such as an MQTT per-sensor payload ("42")
func ParseSOC(payload []byte) (*int, error) {
	soc, err := decodeSOC(bytes.TrimSpace(payload))
	if err != nil {
		return nil, &ParseError{Msg: "invalid SOC payload", Err: err}
	}
	return soc, nil
}

func decodeSOC(value json.RawMessage) (*int, error) {
	if len(value) == 0 {
		return nil, errors.New("empty value")
	}
	if string(value) == "null" {
		return nil, nil
	}
	if value[0] == '"' {
		return nil, fmt.Errorf("not a number: %s", value)
	}

	dec := json.NewDecoder(bytes.NewReader(value))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return nil, fmt.Errorf("not a number: %s", value)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("not a single number: %s", value)
	}

	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("not a number: %s", n)
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("not a whole percentage: %s", n)
	}
	if f < models.MinSOC || f > models.MaxSOC {
		return nil, fmt.Errorf("%s outside %d..%d", n, models.MinSOC, models.MaxSOC)
	}

	soc := int(f)
	return &soc, nil
}
