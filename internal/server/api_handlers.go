package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"github.com/triaxial/triaxial/internal/database"
	"github.com/triaxial/triaxial/internal/stats"
	"github.com/triaxial/triaxial/shared"
)

func (s *Server) createUserHandler(w http.ResponseWriter, r *http.Request) {
	var req shared.UserCreate
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" {
		respondError(w, http.StatusBadRequest, shared.ErrorCodeValidationFailed, "username is required")
		return
	}

	existing, err := s.db.UserByUsername(r.Context(), req.Username)
	checkGormError(err)
	if existing.Found {
		respondError(w, http.StatusBadRequest, shared.ErrorCodeDuplicateResource, "Username already exists")
		return
	}

	user := &database.User{Username: req.Username, CreatedAt: s.now().UTC()}
	err = s.db.CreateUser(r.Context(), user)
	if errors.Is(err, database.ErrConflict) {
		respondError(w, http.StatusBadRequest, shared.ErrorCodeDuplicateResource, "Username already exists")
		return
	}
	checkGormError(err)

	if s.statsd != nil {
		s.statsd.Incr("triaxial.user.create", []string{}, 1.0)
	}
	respondJSON(w, http.StatusOK, shared.MessageResponse{Message: "User registered successfully", UserId: user.ID})
}

func (s *Server) registerDeviceHandler(w http.ResponseWriter, r *http.Request) {
	var req shared.DeviceCreate
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.DeviceId) == "" {
		respondError(w, http.StatusBadRequest, shared.ErrorCodeValidationFailed, "username and device_id are required")
		return
	}

	user, err := s.db.UserByUsername(r.Context(), req.Username)
	checkGormError(err)
	if !user.Found {
		respondError(w, http.StatusNotFound, shared.ErrorCodeNotFound, "User not found")
		return
	}
	existing, err := s.db.DeviceByID(r.Context(), req.DeviceId)
	checkGormError(err)
	if existing.Found {
		respondError(w, http.StatusBadRequest, shared.ErrorCodeDuplicateResource, "Device ID already registered")
		return
	}

	device := &database.Device{
		DeviceId:         req.DeviceId,
		OwnerID:          user.Value.ID,
		RegistrationDate: s.now().UTC(),
	}
	err = s.db.CreateDevice(r.Context(), device)
	if errors.Is(err, database.ErrConflict) {
		respondError(w, http.StatusBadRequest, shared.ErrorCodeDuplicateResource, "Device ID already registered")
		return
	}
	checkGormError(err)

	if s.statsd != nil {
		s.statsd.Incr("triaxial.device.register", []string{}, 1.0)
	}
	respondJSON(w, http.StatusOK, shared.MessageResponse{Message: "Device registered successfully", DeviceId: device.DeviceId})
}

func (s *Server) toReading(input shared.ReadingInput) *database.Reading {
	return &database.Reading{
		DeviceId:  input.DeviceId,
		Timestamp: input.TimestampOr(s.now()),
		X:         *input.X,
		Y:         *input.Y,
		Z:         *input.Z,
	}
}

func (s *Server) receiveDataHandler(w http.ResponseWriter, r *http.Request) {
	var input shared.ReadingInput
	if !decodeBody(w, r, &input) {
		return
	}
	if err := input.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, shared.ErrorCodeValidationFailed, err.Error())
		return
	}

	device, err := s.db.DeviceByID(r.Context(), input.DeviceId)
	checkGormError(err)
	if !device.Found {
		respondError(w, http.StatusNotFound, shared.ErrorCodeNotFound, "Device not registered")
		return
	}

	reading := s.toReading(input)
	checkGormError(s.db.InsertReading(r.Context(), reading))
	s.exportReadings(r.Context(), reading)

	if s.statsd != nil {
		s.statsd.Incr("triaxial.ingest", []string{}, 1.0)
	}
	respondJSON(w, http.StatusOK, shared.MessageResponse{Message: "Data stored successfully"})
}

func (s *Server) receiveDataBatchHandler(w http.ResponseWriter, r *http.Request) {
	var inputs []shared.ReadingInput
	if !decodeBody(w, r, &inputs) {
		return
	}
	if len(inputs) == 0 {
		respondError(w, http.StatusBadRequest, shared.ErrorCodeValidationFailed, "no readings submitted")
		return
	}
	for i, input := range inputs {
		if err := input.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, shared.ErrorCodeValidationFailed, fmt.Sprintf("reading %d: %v", i, err))
			return
		}
	}

	deviceIDs := lo.Uniq(lo.Map(inputs, func(input shared.ReadingInput, _ int) string { return input.DeviceId }))
	for _, deviceID := range deviceIDs {
		device, err := s.db.DeviceByID(r.Context(), deviceID)
		checkGormError(err)
		if !device.Found {
			respondError(w, http.StatusNotFound, shared.ErrorCodeNotFound, "Device not registered: "+deviceID)
			return
		}
	}

	readings := lo.Map(inputs, func(input shared.ReadingInput, _ int) *database.Reading { return s.toReading(input) })
	checkGormError(s.db.InsertReadings(r.Context(), readings))
	s.exportReadings(r.Context(), readings...)
	s.logger.WithField("num_devices", len(deviceIDs)).Debugf("receiveDataBatchHandler: stored %d readings", len(readings))

	if s.statsd != nil {
		s.statsd.Count("triaxial.ingest", int64(len(readings)), []string{}, 1.0)
	}
	respondJSON(w, http.StatusOK, shared.MessageResponse{Message: "Data stored successfully", Count: len(readings)})
}

func (s *Server) deviceStatsHandler(w http.ResponseWriter, r *http.Request) {
	deviceID := mux.Vars(r)["device_id"]
	tr, err := parseTimeRange(r, s.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, shared.ErrorCodeBadRequest, err.Error())
		return
	}

	readings, err := s.db.ReadingsForDevice(r.Context(), deviceID, tr)
	checkGormError(err)
	summary, err := stats.SummarizeAxes(readings)
	if errors.Is(err, stats.ErrEmptyInput) {
		respondError(w, http.StatusNotFound, shared.ErrorCodeNotFound, "No data found")
		return
	}
	if err != nil {
		panic(fmt.Errorf("stats.SummarizeAxes: %w", err))
	}

	if s.statsd != nil {
		s.statsd.Incr("triaxial.stats.device", []string{}, 1.0)
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) userStatsHandler(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	tr, err := parseTimeRange(r, s.now())
	if err != nil {
		respondError(w, http.StatusBadRequest, shared.ErrorCodeBadRequest, err.Error())
		return
	}
	omitEmpty := false
	if raw := r.URL.Query().Get("omit_empty"); raw != "" {
		if omitEmpty, err = strconv.ParseBool(raw); err != nil {
			respondError(w, http.StatusBadRequest, shared.ErrorCodeBadRequest, fmt.Sprintf("invalid omit_empty=%#v", raw))
			return
		}
	}

	user, err := s.db.UserByUsername(r.Context(), username)
	checkGormError(err)
	if !user.Found {
		respondError(w, http.StatusNotFound, shared.ErrorCodeNotFound, "User not found")
		return
	}
	devices, err := s.db.DevicesForOwner(r.Context(), user.Value.ID)
	checkGormError(err)
	if len(devices) == 0 {
		respondError(w, http.StatusNotFound, shared.ErrorCodeNotFound, "No devices found for this user")
		return
	}

	deviceIDs := lo.Map(devices, func(d *database.Device, _ int) string { return d.DeviceId })
	readings, err := s.db.ReadingsForDevices(r.Context(), deviceIDs, tr)
	checkGormError(err)
	if len(readings) == 0 {
		respondError(w, http.StatusNotFound, shared.ErrorCodeNotFound, "No data found for user's devices")
		return
	}
	if omitEmpty {
		reporting := lo.SliceToMap(readings, func(r *database.Reading) (string, bool) { return r.DeviceId, true })
		deviceIDs = lo.Filter(deviceIDs, func(id string, _ int) bool { return reporting[id] })
	}

	grouped, err := stats.SummarizeGrouped(readings, deviceIDs, func(r *database.Reading) string { return r.DeviceId })
	if errors.Is(err, stats.ErrEmptyInput) {
		// An owned device without readings fails the whole request unless omit_empty is set.
		s.logger.WithError(err).WithField("username", username).Info("userStatsHandler: device without data")
		respondError(w, http.StatusNotFound, shared.ErrorCodeNotFound, "No data found for one or more of the user's devices")
		return
	}
	if err != nil {
		panic(fmt.Errorf("stats.SummarizeGrouped: %w", err))
	}

	resp := shared.UserStats{
		Aggregated: grouped.Aggregated,
		PerDevice: lo.Map(grouped.PerGroup, func(g stats.GroupSummary[string], _ int) shared.DeviceStats {
			return shared.DeviceStats{DeviceId: g.Key, Stats: g.Summary}
		}),
	}
	if s.statsd != nil {
		s.statsd.Incr("triaxial.stats.user", []string{}, 1.0)
	}
	respondJSON(w, http.StatusOK, resp)
}
