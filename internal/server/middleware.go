package server

import (
	"fmt"
	"net/http"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/sirupsen/logrus"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/ext"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

type loggedResponseData struct {
	size   int
	status int
}

type loggingResponseWriter struct {
	http.ResponseWriter
	responseData *loggedResponseData
}

func (r *loggingResponseWriter) Write(b []byte) (int, error) {
	size, err := r.ResponseWriter.Write(b)
	r.responseData.size += size
	return size, err
}

func (r *loggingResponseWriter) WriteHeader(statusCode int) {
	r.responseData.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func getFunctionName(temp interface{}) string {
	strs := strings.Split((runtime.FuncForPC(reflect.ValueOf(temp).Pointer()).Name()), ".")
	return strings.TrimSuffix(strs[len(strs)-1], "-fm")
}

func byteCountToString(b int) string {
	const unit = 1000
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "kMG"[exp])
}

type Middleware func(http.Handler) http.Handler

// mergeMiddlewares creates a new middleware that runs the given middlewares in reverse order. The first middleware
// passed will be the "outermost" one
func mergeMiddlewares(middlewares ...Middleware) Middleware {
	return func(h http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// withLogging will log every request made to the wrapped endpoint. It will also log
// panics, but won't stop them.
func withLogging(s *statsd.Client, logger logrus.FieldLogger) Middleware {
	return func(h http.Handler) http.Handler {
		handlerName := getFunctionName(h)
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			responseData := loggedResponseData{status: http.StatusOK}
			lrw := loggingResponseWriter{
				ResponseWriter: rw,
				responseData:   &responseData,
			}
			start := time.Now()
			span, ctx := tracer.StartSpanFromContext(
				r.Context(),
				handlerName,
				tracer.SpanType(ext.SpanTypeWeb),
				tracer.ServiceName(serviceName),
			)
			defer span.Finish()

			requestFields := func() logrus.Fields {
				return logrus.Fields{
					"handler":        handlerName,
					"remote_addr":    getRemoteAddr(r),
					"client_version": getVersion(r),
					"duration":       time.Since(start).String(),
					"size":           byteCountToString(responseData.size),
				}
			}

			defer func() {
				if err := recover(); err != nil {
					logger.WithFields(requestFields()).Errorf("%s %#v panicked: %v", r.Method, r.RequestURI, err)
					panic(err)
				}
			}()

			h.ServeHTTP(&lrw, r.WithContext(ctx))

			duration := time.Since(start)
			fields := requestFields()
			fields["status"] = responseData.status
			logger.WithFields(fields).Infof("%s %#v", r.Method, r.RequestURI)
			if s != nil {
				tags := []string{"handler:" + handlerName, fmt.Sprintf("status:%d", responseData.status)}
				s.Distribution("triaxial.request_duration", float64(duration.Microseconds())/1_000, tags, 1.0)
				s.Incr("triaxial.request", tags, 1.0)
			}
		})
	}
}

// withPanicGuard is the last defence from a panic. it will log them and return a 500 error
// to the client and prevent the http server from breaking
func withPanicGuard(logger logrus.FieldLogger) Middleware {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("panic: %v", r)
					rw.WriteHeader(http.StatusInternalServerError)
				}
			}()
			h.ServeHTTP(rw, r)
		})
	}
}
