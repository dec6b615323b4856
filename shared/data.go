package shared

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/relvacode/iso8601"

	"github.com/triaxial/triaxial/internal/stats"
)

const (
	ErrorCodeNotFound          = "not_found"
	ErrorCodeDuplicateResource = "duplicate_resource"
	ErrorCodeValidationFailed  = "validation_failed"
	ErrorCodeBadRequest        = "bad_request"
)

type UserCreate struct {
	Username string `json:"username"`
}

type DeviceCreate struct {
	Username string `json:"username"`
	DeviceId string `json:"device_id"`
}

// ReadingInput is one reading as submitted by a device. Axes are pointers so that a missing field
// can be told apart from 0.
type ReadingInput struct {
	DeviceId  string        `json:"device_id"`
	Timestamp *iso8601.Time `json:"timestamp,omitempty"`
	X         *float64      `json:"x"`
	Y         *float64      `json:"y"`
	Z         *float64      `json:"z"`
}

func NewReadingInput(deviceId string, x, y, z float64, timestamp *time.Time) ReadingInput {
	input := ReadingInput{DeviceId: deviceId, X: &x, Y: &y, Z: &z}
	if timestamp != nil {
		input.Timestamp = &iso8601.Time{Time: *timestamp}
	}
	return input
}

func (r ReadingInput) Validate() error {
	if strings.TrimSpace(r.DeviceId) == "" {
		return errors.New("device_id is required")
	}
	for _, axis := range []struct {
		name  string
		value *float64
	}{{"x", r.X}, {"y", r.Y}, {"z", r.Z}} {
		if axis.value == nil {
			return fmt.Errorf("%s is required", axis.name)
		}
		if math.IsNaN(*axis.value) || math.IsInf(*axis.value, 0) {
			return fmt.Errorf("%s must be a finite number", axis.name)
		}
	}
	return nil
}

// TimestampOr returns the submitted timestamp in UTC, or fallback when none was sent.
func (r ReadingInput) TimestampOr(fallback time.Time) time.Time {
	if r.Timestamp == nil || r.Timestamp.IsZero() {
		return fallback.UTC()
	}
	return r.Timestamp.Time.UTC()
}

type MessageResponse struct {
	Message  string `json:"message"`
	UserId   uint   `json:"user_id,omitempty"`
	DeviceId string `json:"device_id,omitempty"`
	Count    int    `json:"count,omitempty"`
}

type ErrorResponse struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type DeviceStats struct {
	DeviceId string
	Stats    stats.AxesSummary
}

// DeviceStatsList is serialized as a JSON object keyed by device id, with keys in slice order.
type DeviceStatsList []DeviceStats

func (l DeviceStatsList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, entry := range l {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(entry.DeviceId)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(entry.Stats)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (l *DeviceStatsList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected a JSON object for per-device stats, got %v", tok)
	}
	out := DeviceStatsList{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected a device id key, got %v", tok)
		}
		var summary stats.AxesSummary
		if err := dec.Decode(&summary); err != nil {
			return fmt.Errorf("failed to decode stats for device %#v: %w", key, err)
		}
		out = append(out, DeviceStats{DeviceId: key, Stats: summary})
	}
	*l = out
	return nil
}

func (l DeviceStatsList) Get(deviceId string) (stats.AxesSummary, bool) {
	for _, entry := range l {
		if entry.DeviceId == deviceId {
			return entry.Stats, true
		}
	}
	return stats.AxesSummary{}, false
}

type UserStats struct {
	Aggregated stats.AxesSummary `json:"aggregated"`
	PerDevice  DeviceStatsList   `json:"per_device"`
}
