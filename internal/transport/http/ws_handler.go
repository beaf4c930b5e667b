package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"medprep-study-service/internal/app"
	"medprep-study-service/internal/domain"
	"medprep-study-service/internal/stats"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler drives a study session over a websocket: the client starts,
// resumes or abandons sessions, asks for questions and submits answers, and
// receives the refreshed dashboard after every change to its progress.
type WSHandler struct {
	service  *app.StudyService
	throttle *limiters
	logger   *zap.Logger
	now      func() time.Time
	upgrader websocket.Upgrader
}

// NewWSHandler builds the study channel. throttle is shared with the HTTP
// routes; nil disables throttling.
func NewWSHandler(service *app.StudyService, throttle *limiters, logger *zap.Logger, now func() time.Time) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &WSHandler{
		service:  service,
		throttle: throttle,
		logger:   logger.Named("ws"),
		now:      now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// Serve upgrades the request; requireUser has already resolved the caller.
func (h *WSHandler) Serve(c *gin.Context) {
	userID := currentUser(c).ID
	ctx := c.Request.Context()

	updates, cancel, err := h.service.Subscribe(ctx, userID)
	if err != nil {
		c.AbortWithStatusJSON(statusFor(err), gin.H{"error": errorBody(err)})
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.String("user_id", userID), zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case rec, ok := <-updates:
				if !ok {
					return
				}
				dashboard := stats.BuildDashboard(rec, h.now())
				select {
				case send <- outboundMessage[any]{Type: "dashboard", Payload: dashboard}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	alive := true
	if session, err := h.service.ResumeSession(ctx, userID); err == nil {
		alive = deliver(send, writerDone, outboundMessage[any]{Type: "session", Payload: session})
	}

	for alive {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		msgType, payload, err := h.dispatch(c, userID, inbound)
		if err != nil {
			alive = deliver(send, writerDone, outboundMessage[any]{Type: "error", Payload: errorBody(err)})
			continue
		}
		alive = deliver(send, writerDone, outboundMessage[any]{Type: msgType, Payload: payload})
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// deliver queues msg for the writer. It reports false once the writer has
// stopped, so the read loop can end instead of blocking on a full queue.
func deliver(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

var errUnsupported = errors.New("unsupported message type")

func (h *WSHandler) dispatch(c *gin.Context, userID string, in inboundMessage) (string, any, error) {
	ctx := c.Request.Context()
	switch in.Type {
	case "start":
		var req app.StartRequest
		if err := decodePayload(in.Payload, &req); err != nil {
			return "", nil, err
		}
		session, err := h.service.StartSession(ctx, userID, req)
		return "session", session, err
	case "resume":
		session, err := h.service.ResumeSession(ctx, userID)
		return "session", session, err
	case "abandon":
		session, err := h.service.AbandonSession(ctx, userID)
		return "session", session, err
	case "question":
		if !h.throttle.allow(userID) {
			return "", nil, errRateLimited
		}
		var req app.QuestionRequest
		if err := decodePayload(in.Payload, &req); err != nil {
			return "", nil, err
		}
		q, err := h.service.GenerateQuestion(ctx, userID, req)
		return "question", q, err
	case "answer":
		var req app.ObjectiveAnswer
		if err := decodePayload(in.Payload, &req); err != nil {
			return "", nil, err
		}
		res, err := h.service.SubmitObjective(ctx, userID, req)
		return "answerResult", res, err
	case "essay":
		if !h.throttle.allow(userID) {
			return "", nil, errRateLimited
		}
		var req app.EssayAnswer
		if err := decodePayload(in.Payload, &req); err != nil {
			return "", nil, err
		}
		res, err := h.service.SubmitEssay(ctx, userID, req)
		return "answerResult", res, err
	default:
		return "", nil, errUnsupported
	}
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.Invalid("payload", "malformed JSON")
	}
	return nil
}
