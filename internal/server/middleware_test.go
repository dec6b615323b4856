package server

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func allMessages(hook *test.Hook) string {
	var sb strings.Builder
	for _, entry := range hook.AllEntries() {
		sb.WriteString(entry.Message)
		sb.WriteString("\n")
	}
	return sb.String()
}

func TestLoggerMiddleware(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("test"))
	})
	logger, hook := test.NewNullLogger()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Add("X-Real-Ip", "127.0.0.1")
	req.Header.Add(versionHeader, "v1.2")
	logHandler := withLogging(nil, logger)(handler)
	logHandler.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Contains(t, allMessages(hook), `GET "/"`)
	entry := hook.LastEntry()
	require.Equal(t, logrus.InfoLevel, entry.Level)
	require.Equal(t, http.StatusCreated, entry.Data["status"])
	require.Equal(t, "127.0.0.1", entry.Data["remote_addr"])
	require.Equal(t, "v1.2", entry.Data["client_version"])
	require.Equal(t, "4 B", entry.Data["size"])
}

func TestLoggerMiddlewareWithPanic(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(fmt.Errorf("synthetic panic for tests"))
	})
	logger, hook := test.NewNullLogger()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Add("X-Real-Ip", "127.0.0.1")
	logHandler := withLogging(nil, logger)(handler)

	var panicError any
	func() {
		defer func() {
			panicError = recover()
		}()
		logHandler.ServeHTTP(w, req)
	}()

	require.NotNil(t, panicError, "expected panic")
	// nothing was written before the panic, so the recorder still has the default code
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, allMessages(hook), "synthetic panic for tests")
	require.Contains(t, allMessages(hook), `GET "/"`)
	require.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	require.Equal(t, "127.0.0.1", hook.LastEntry().Data["remote_addr"])
	require.Contains(t, fmt.Sprintf("%v", panicError), "synthetic panic for tests")
}

func TestPanicGuard(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(fmt.Errorf("synthetic panic for tests"))
	})
	logger, hook := test.NewNullLogger()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	wrappedHandler := withPanicGuard(logger)(handler)

	require.NotPanics(t, func() { wrappedHandler.ServeHTTP(w, req) })
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, hook.LastEntry().Message, "synthetic panic for tests")
}

func TestPanicGuardNoPanic(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	logger, hook := test.NewNullLogger()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	wrappedHandler := withPanicGuard(logger)(handler)

	require.NotPanics(t, func() { wrappedHandler.ServeHTTP(w, req) })
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, hook.AllEntries())
}

func TestMergeMiddlewares(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("test"))
	})
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(fmt.Errorf("synthetic panic for tests"))
	})

	tests := []struct {
		name               string
		handler            http.Handler
		expectedStatusCode int
		expectedPieces     []string
	}{
		{
			name:               "no panics",
			handler:            handler,
			expectedStatusCode: http.StatusOK,
			expectedPieces: []string{
				`GET "/"`,
			},
		},
		{
			name:               "panics",
			handler:            panicHandler,
			expectedStatusCode: http.StatusInternalServerError,
			expectedPieces: []string{
				`synthetic panic for tests`,
				`GET "/"`,
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			logger, hook := test.NewNullLogger()
			middlewares := mergeMiddlewares(
				withPanicGuard(logger),
				withLogging(nil, logger),
			)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Add("X-Real-Ip", "127.0.0.1")

			require.NotPanics(t, func() { middlewares(tc.handler).ServeHTTP(w, req) })
			require.Equal(t, tc.expectedStatusCode, w.Code)
			for _, expectedPiece := range tc.expectedPieces {
				require.Contains(t, allMessages(hook), expectedPiece)
			}
		})
	}
}

func TestByteCountToString(t *testing.T) {
	require.Equal(t, "999 B", byteCountToString(999))
	require.Equal(t, "1.5 kB", byteCountToString(1500))
	require.Equal(t, "2.0 MB", byteCountToString(2_000_000))
}
