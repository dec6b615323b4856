package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	pprofhttp "net/http/pprof"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/sirupsen/logrus"
	"github.com/sosodev/duration"
	muxtrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gorilla/mux"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
	"gopkg.in/DataDog/dd-trace-go.v1/profiler"

	"github.com/triaxial/triaxial/internal/database"
	"github.com/triaxial/triaxial/shared"
)

const versionHeader = "X-Triaxial-Version"

func configureObservability(releaseVersion string, logger logrus.FieldLogger) func() {
	// Profiler
	err := profiler.Start(
		profiler.WithService(serviceName),
		profiler.WithVersion(releaseVersion),
		profiler.WithAPIKey(os.Getenv("DD_API_KEY")),
		profiler.WithUDS("/var/run/datadog/apm.socket"),
		profiler.WithProfileTypes(
			profiler.CPUProfile,
			profiler.HeapProfile,
		),
	)
	if err != nil {
		logger.Warnf("Failed to start DataDog profiler: %v", err)
	}
	// Tracer
	tracer.Start(
		tracer.WithRuntimeMetrics(),
		tracer.WithService(serviceName),
		tracer.WithServiceVersion(releaseVersion),
		tracer.WithUDS("/var/run/datadog/apm.socket"),
	)

	// Func to stop all of the above
	return func() {
		profiler.Stop()
		tracer.Stop()
	}
}

func registerPprof(router *muxtrace.Router) {
	router.HandleFunc("/debug/pprof/cmdline", pprofhttp.Cmdline)
	router.HandleFunc("/debug/pprof/profile", pprofhttp.Profile)
	router.HandleFunc("/debug/pprof/symbol", pprofhttp.Symbol)
	router.HandleFunc("/debug/pprof/trace", pprofhttp.Trace)
	router.PathPrefix("/debug/pprof/").HandlerFunc(pprofhttp.Index)
}

func getVersion(r *http.Request) string {
	return r.Header.Get(versionHeader)
}

func getRemoteAddr(r *http.Request) string {
	addr, ok := r.Header["X-Real-Ip"]
	if !ok || len(addr) == 0 {
		return r.RemoteAddr
	}
	return addr[0]
}

func checkGormError(err error) {
	if err == nil {
		return
	}

	_, filename, line, _ := runtime.Caller(1)
	panic(fmt.Sprintf("DB error at %s:%d: %v", filename, line, err))
}

// respondJSON marshals before writing anything so that a marshal failure can still become a 500.
func respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	resp, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Errorf("failed to JSON marshal the response: %w", err))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(append(resp, '\n'))
}

func respondError(w http.ResponseWriter, statusCode int, code, detail string) {
	respondJSON(w, statusCode, shared.ErrorResponse{Code: code, Detail: detail})
}

// decodeBody parses the JSON request body into v, answering 400 itself when that fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, shared.ErrorCodeBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// parseTimeRange reads the optional start, end and window query parameters. window is an ISO-8601
// duration ending now and only applies when start is absent.
func parseTimeRange(r *http.Request, now time.Time) (database.TimeRange, error) {
	var tr database.TimeRange
	query := r.URL.Query()

	parseTime := func(name string) (*time.Time, error) {
		raw := strings.TrimSpace(query.Get(name))
		if raw == "" {
			return nil, nil
		}
		t, err := dateparse.ParseIn(raw, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid %s=%#v: %w", name, raw, err)
		}
		t = t.UTC()
		return &t, nil
	}

	var err error
	if tr.Start, err = parseTime("start"); err != nil {
		return tr, err
	}
	if tr.End, err = parseTime("end"); err != nil {
		return tr, err
	}

	if raw := strings.TrimSpace(query.Get("window")); raw != "" {
		window, err := duration.Parse(raw)
		if err != nil {
			return tr, fmt.Errorf("invalid window=%#v: %w", raw, err)
		}
		d := window.ToTimeDuration()
		if d <= 0 {
			return tr, fmt.Errorf("invalid window=%#v: must be positive", raw)
		}
		if tr.Start == nil {
			start := now.Add(-d).UTC()
			tr.Start = &start
		}
	}

	if tr.Start != nil && tr.End != nil && tr.Start.After(*tr.End) {
		return tr, errors.New("start must not be after end")
	}
	return tr, nil
}
