package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"quiz-grading-engine/internal/app"
	"quiz-grading-engine/internal/domain"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const defaultTick = time.Second

// WSHandler streams the countdown of a single attempt and accepts draft answers and the final
// submission over a websocket. When the clock reaches zero it force-submits the attempt.
type WSHandler struct {
	service  *app.Service
	hub      *app.CompletionHub
	log      logrus.FieldLogger
	tick     time.Duration
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.Service, hub *app.CompletionHub, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		log:     log,
		tick:    defaultTick,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// WithTick overrides the countdown interval.
func (h *WSHandler) WithTick(d time.Duration) *WSHandler {
	h.tick = d
	return h
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type tickPayload struct {
	RemainingSeconds int64 `json:"remainingSeconds"`
}

type savedPayload struct {
	Answered int `json:"answered"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

const (
	msgTick    = "tick"
	msgAnswers = "answers"
	msgSaved   = "saved"
	msgSubmit  = "submit"
	msgResult  = "result"
	msgError   = "error"
)

// ServeWS handles GET /ws/attempts/{attemptId}.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	attemptID := mux.Vars(r)["attemptId"]
	participantID := ParticipantID(ctx)

	attempt, err := h.service.Attempt(ctx, attemptID, participantID)
	if err != nil {
		status, code := statusFor(err)
		writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
		return
	}
	version, err := h.service.QuizVersion(ctx, attempt.QuizVersionID)
	if err != nil {
		status, code := statusFor(err)
		writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()
	logger := h.log.WithFields(logrus.Fields{"attempt_id": attemptID, "participant_id": participantID})

	completions, cancel := h.hub.Subscribe(attemptID)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	timerDone := make(chan struct{})

	// Single writer; after a result it closes the connection, which ends the read loop.
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range send {
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				logger.WithError(err).Debug("ws write error")
				failed = true
				_ = conn.Close()
				continue
			}
			if msg.Type == msgResult {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt completed"),
					time.Now().Add(time.Second))
				failed = true
				_ = conn.Close()
			}
		}
	}()

	push := func(msgType string, payload any) {
		select {
		case send <- outboundMessage[any]{Type: msgType, Payload: payload}:
		case <-closeSignals:
		}
	}
	var resultOnce sync.Once
	pushResult := func(result domain.GradingResult) {
		resultOnce.Do(func() { push(msgResult, result) })
	}

	if view := app.LearnerView(version, attempt); view.Result != nil {
		pushResult(*view.Result)
	} else {
		push(msgTick, tickPayload{RemainingSeconds: h.service.RemainingSeconds(version, attempt)})
	}

	go func() {
		defer close(timerDone)
		var ticks <-chan time.Time
		if version.Policy.TimeLimitMinutes != nil && !attempt.Completed() {
			ticker := time.NewTicker(h.tick)
			defer ticker.Stop()
			ticks = ticker.C
		}
		for {
			select {
			case <-closeSignals:
				return
			case completed, ok := <-completions:
				if !ok {
					return
				}
				if view := app.LearnerView(version, completed); view.Result != nil {
					pushResult(*view.Result)
				}
				return
			case <-ticks:
				remaining := h.service.RemainingSeconds(version, attempt)
				push(msgTick, tickPayload{RemainingSeconds: remaining})
				if remaining > 0 {
					continue
				}
				result, err := h.service.ForceSubmit(ctx, attemptID)
				switch {
				case err == nil:
					logger.Info("time limit reached, attempt force-submitted")
					pushResult(result)
					return
				case errors.Is(err, domain.ErrAlreadyCompleted):
					// another instance may have sealed it, so its hub never fires here
					stored, err := h.service.Attempt(ctx, attemptID, participantID)
					if err == nil {
						if view := app.LearnerView(version, stored); view.Result != nil {
							pushResult(*view.Result)
							return
						}
					}
					ticks = nil
				default:
					logger.WithError(err).Error("forced submission failed")
					push(msgError, errorPayload{Message: "forced submission failed"})
				}
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case msgAnswers:
			var answers map[string]domain.Value
			if err := json.Unmarshal(inbound.Payload, &answers); err != nil {
				push(msgError, errorPayload{Message: "invalid answers payload"})
				continue
			}
			saved, err := h.service.SaveAnswers(ctx, attemptID, participantID, answers)
			if err != nil {
				push(msgError, errorPayload{Message: err.Error()})
				continue
			}
			push(msgSaved, savedPayload{Answered: len(saved.Response)})
		case msgSubmit:
			var sub domain.Submission
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &sub); err != nil {
					push(msgError, errorPayload{Message: "invalid submit payload"})
					continue
				}
			}
			result, err := h.service.Submit(ctx, attemptID, participantID, sub, false)
			if err != nil {
				push(msgError, errorPayload{Message: err.Error()})
				continue
			}
			pushResult(result)
		default:
			push(msgError, errorPayload{Message: "unsupported message type"})
		}
	}

	close(closeSignals)
	<-timerDone
	close(send)
	<-writerDone
}
