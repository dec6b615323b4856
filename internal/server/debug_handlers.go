package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rodaine/table"
)

const dateOnly = "2006-01-02"

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		panic(fmt.Errorf("failed to ping DB: %w", err))
	}
	if s.isProductionEnvironment {
		numDevices, err := s.db.CountAllDevices(r.Context())
		checkGormError(err)
		if numDevices < 1 {
			panic("no devices registered")
		}
	}
	w.Write([]byte("OK"))
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	numUsers, err := s.db.CountAllUsers(r.Context())
	checkGormError(err)

	numDevices, err := s.db.CountAllDevices(r.Context())
	checkGormError(err)

	numReadings, err := s.db.CountReadings(r.Context())
	checkGormError(err)

	_, _ = fmt.Fprintf(w, "Num users: %d\n", numUsers)
	_, _ = fmt.Fprintf(w, "Num devices: %d\n", numDevices)
	_, _ = fmt.Fprintf(w, "Num readings: %d\n", numReadings)
	_, _ = fmt.Fprintf(w, "Server time: %s\n", s.now().UTC().Format(time.RFC3339))
}

func (s *Server) deviceUsageHandler(w http.ResponseWriter, r *http.Request) {
	usage, err := s.db.DeviceUsage(r.Context())
	if err != nil {
		panic(fmt.Errorf("db.DeviceUsage: %w", err))
	}

	tbl := table.New("Device", "Owner", "Registration Date", "Num Readings")
	tbl.WithWriter(w)
	for _, u := range usage {
		tbl.AddRow(u.DeviceId, u.Username, u.RegistrationDate.Format(dateOnly), u.NumReadings)
	}
	tbl.Print()
}

func (s *Server) wipeDbEntriesHandler(w http.ResponseWriter, r *http.Request) {
	if s.isProductionEnvironment {
		panic("refusing to wipe the DB for prod")
	}
	if !s.isTestEnvironment {
		panic("refusing to wipe the DB non-test environment")
	}

	err := s.db.Unsafe_DeleteAllReadings(r.Context())
	checkGormError(err)

	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getNumConnectionsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats()
	if err != nil {
		panic(err)
	}

	_, _ = fmt.Fprintf(w, "%#v", stats.OpenConnections)
}
