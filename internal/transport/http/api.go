package http

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"net/http"

	"quiz-grading-engine/internal/app"
	"quiz-grading-engine/internal/domain"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// API serves the REST endpoints of the attempt lifecycle.
type API struct {
	service *app.Service
	log     logrus.FieldLogger
}

func NewAPI(service *app.Service, log logrus.FieldLogger) *API {
	return &API{service: service, log: log}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type quizView struct {
	ID               string                  `json:"id"`
	QuizID           string                  `json:"quizId"`
	Title            string                  `json:"title,omitempty"`
	TimeLimitMinutes *int                    `json:"timeLimitMinutes,omitempty"`
	MaxAttempts      *int                    `json:"maxAttempts,omitempty"`
	Questions        []domain.PublicQuestion `json:"questions"`
}

type attemptView struct {
	domain.Attempt
	RemainingSeconds int64 `json:"remainingSeconds"`
}

// Presentation handles GET /v1/quizzes/{versionId}.
func (a *API) Presentation(w http.ResponseWriter, r *http.Request) {
	version, err := a.service.QuizVersion(r.Context(), mux.Vars(r)["versionId"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizView{
		ID:               version.ID,
		QuizID:           version.QuizID,
		Title:            version.Title,
		TimeLimitMinutes: version.Policy.TimeLimitMinutes,
		MaxAttempts:      version.Policy.MaxAttempts,
		Questions:        version.Presentation(seedFor(r.URL.Query().Get("attemptId"))),
	})
}

// Start handles POST /v1/quizzes/{versionId}/attempts.
func (a *API) Start(w http.ResponseWriter, r *http.Request) {
	versionID := mux.Vars(r)["versionId"]
	attempt, err := a.service.Start(r.Context(), versionID, ParticipantID(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeAttempt(w, r, http.StatusCreated, attempt)
}

// List handles GET /v1/quizzes/{versionId}/attempts.
func (a *API) List(w http.ResponseWriter, r *http.Request) {
	attempts, err := a.service.List(r.Context(), mux.Vars(r)["versionId"], ParticipantID(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	if attempts == nil {
		attempts = []domain.Attempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

// Get handles GET /v1/attempts/{attemptId}.
func (a *API) Get(w http.ResponseWriter, r *http.Request) {
	attempt, err := a.service.Attempt(r.Context(), mux.Vars(r)["attemptId"], ParticipantID(r.Context()))
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeAttempt(w, r, http.StatusOK, attempt)
}

// SaveAnswers handles PUT /v1/attempts/{attemptId}/answers.
func (a *API) SaveAnswers(w http.ResponseWriter, r *http.Request) {
	var answers map[string]domain.Value
	if err := json.NewDecoder(r.Body).Decode(&answers); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Code: "bad_request"})
		return
	}
	attempt, err := a.service.SaveAnswers(r.Context(), mux.Vars(r)["attemptId"], ParticipantID(r.Context()), answers)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeAttempt(w, r, http.StatusOK, attempt)
}

// Submit handles POST /v1/attempts/{attemptId}/submit.
func (a *API) Submit(w http.ResponseWriter, r *http.Request) {
	var sub domain.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body", Code: "bad_request"})
		return
	}
	result, err := a.service.Submit(r.Context(), mux.Vars(r)["attemptId"], ParticipantID(r.Context()), sub, false)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Deactivate handles DELETE /v1/attempts/{attemptId}.
func (a *API) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := a.service.Deactivate(r.Context(), mux.Vars(r)["attemptId"], ParticipantID(r.Context())); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) writeAttempt(w http.ResponseWriter, r *http.Request, status int, attempt domain.Attempt) {
	version, err := a.service.QuizVersion(r.Context(), attempt.QuizVersionID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, status, attemptView{
		Attempt:          app.LearnerView(version, attempt),
		RemainingSeconds: a.service.RemainingSeconds(version, attempt),
	})
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		a.log.WithError(err).Error("request failed")
		writeJSON(w, status, errorBody{Error: "internal error", Code: code})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAttemptLimitReached):
		return http.StatusForbidden, "attempt_limit_reached"
	case errors.Is(err, domain.ErrAttemptAlreadyOpen):
		return http.StatusConflict, "attempt_already_open"
	case errors.Is(err, domain.ErrAlreadyCompleted):
		return http.StatusConflict, "already_completed"
	case errors.Is(err, domain.ErrDefinitionMismatch):
		return http.StatusConflict, "definition_mismatch"
	case errors.Is(err, domain.ErrAttemptNumberConflict):
		return http.StatusConflict, "attempt_number_conflict"
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrAttemptNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrNotAttemptOwner):
		return http.StatusForbidden, "not_attempt_owner"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// seedFor derives a stable presentation seed so an attempt always sees the same order.
func seedFor(attemptID string) int64 {
	if attemptID == "" {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(attemptID))
	return int64(h.Sum64())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
