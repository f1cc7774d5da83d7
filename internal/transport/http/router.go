package http

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// NewRouter mounts the REST and websocket endpoints. Everything except /healthz requires a
// participant identity.
func NewRouter(api *API, ws *WSHandler, identity *Identity, log logrus.FieldLogger) http.Handler {
	r := mux.NewRouter()
	r.Use(requestLogger(log))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	authed := r.NewRoute().Subrouter()
	authed.Use(identity.Middleware)

	v1 := authed.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/quizzes/{versionId}", api.Presentation).Methods(http.MethodGet)
	v1.HandleFunc("/quizzes/{versionId}/attempts", api.Start).Methods(http.MethodPost)
	v1.HandleFunc("/quizzes/{versionId}/attempts", api.List).Methods(http.MethodGet)
	v1.HandleFunc("/attempts/{attemptId}", api.Get).Methods(http.MethodGet)
	v1.HandleFunc("/attempts/{attemptId}", api.Deactivate).Methods(http.MethodDelete)
	v1.HandleFunc("/attempts/{attemptId}/answers", api.SaveAnswers).Methods(http.MethodPut)
	v1.HandleFunc("/attempts/{attemptId}/submit", api.Submit).Methods(http.MethodPost)

	authed.HandleFunc("/ws/attempts/{attemptId}", ws.ServeWS).Methods(http.MethodGet)
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func requestLogger(log logrus.FieldLogger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			}).Debug("request")
		})
	}
}
