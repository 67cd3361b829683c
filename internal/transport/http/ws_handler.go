package http

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"studyhub-quiz-service/internal/app"
	"studyhub-quiz-service/internal/domain"
)

// closeGrace bounds how long a finished connection waits for the client's close frame.
const closeGrace = 2 * time.Second

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService) *WSHandler {
	return &WSHandler{
		service: service,
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

type answerPayload struct {
	Option *int `json:"option" validate:"required,min=0"`
}

type violationPayload struct {
	Type string `json:"type" validate:"required"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}

// ServeWS upgrades HTTP requests to websockets and runs one quiz session per
// connection. Closing the connection before the session finishes abandons it.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	courseID := r.URL.Query().Get("courseId")
	userID := r.URL.Query().Get("userId")
	if courseID == "" || userID == "" {
		http.Error(w, "missing courseId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, err := h.service.Start(ctx, userID, courseID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer h.service.Abandon(ctx, session.ID())

	updates, cancel, err := h.service.Subscribe(ctx, session.ID())
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
			if msg.Type == string(domain.EventFinished) {
				// ask the client to close; the read loop ends on its reply or the deadline
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "quiz finished"))
				_ = conn.SetReadDeadline(time.Now().Add(closeGrace))
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: string(update.Type), Payload: update}:
				case <-closeSignals:
					return
				}
				if update.Type == domain.EventFinished {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-updatesDone:
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := decodePayload(inbound.Payload, &payload); err != nil {
				reply(errorMessage(err))
				continue
			}
			// the answer result reaches the client as a session event
			if _, err := h.service.Answer(ctx, session.ID(), *payload.Option); err != nil {
				reply(errorMessage(err))
			}
		case "violation":
			var payload violationPayload
			if err := decodePayload(inbound.Payload, &payload); err != nil {
				reply(errorMessage(err))
				continue
			}
			kind, err := domain.ParseSignalKind(payload.Type)
			if err != nil {
				reply(errorMessage(err))
				continue
			}
			if _, err := h.service.ReportViolation(ctx, session.ID(), kind); err != nil {
				reply(errorMessage(err))
			}
		default:
			reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
