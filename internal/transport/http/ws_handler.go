package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"live-quiz-service/internal/domain"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
	maxInbound   = 4096
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	NickName string `json:"nickName"`
}

type answerPayload struct {
	AnswerID string `json:"answerId"`
}

type outcomePayload struct {
	Accepted bool   `json:"accepted"`
	NickName string `json:"nickName,omitempty"`
	AnswerID string `json:"answerId,omitempty"`
}

type outboundMessage = domain.Envelope[any]

// ServeEvents upgrades to a websocket that streams the session's events.
// The first message is a snapshot; participants may also join and answer over
// the same connection.
func (h *Handler) ServeEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	// Subscribe before the snapshot so no event falls between the two.
	updates, cancel, err := h.service.Subscribe(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	snapshot, err := h.service.Session(r.Context(), sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorBody{Error: err.Error()}})
		return
	}

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	enqueue := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	// Only this goroutine writes to conn.
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(pingInterval)
		defer ping.Stop()
		for {
			select {
			case msg, ok := <-send:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(msg); err != nil {
					h.logger.Debug("ws write error", zap.String("session_id", sessionID), zap.Error(err))
					_ = conn.Close()
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					_ = conn.Close()
					return
				}
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
				if !enqueue(outboundMessage{Type: string(update.Type()), Payload: update}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	enqueue(outboundMessage{Type: "snapshot", Payload: snapshot})

	conn.SetReadLimit(maxInbound)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	nickname := ""
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		switch inbound.Type {
		case "join":
			var payload joinPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				enqueue(outboundMessage{Type: "error", Payload: errorBody{Error: "invalid join payload"}})
				continue
			}
			ok, err := h.service.AddParticipant(r.Context(), sessionID, payload.NickName)
			if err != nil {
				enqueue(outboundMessage{Type: "error", Payload: errorBody{Error: err.Error()}})
				continue
			}
			if ok {
				nickname = payload.NickName
			}
			enqueue(outboundMessage{Type: "joinResult", Payload: outcomePayload{Accepted: ok, NickName: payload.NickName}})
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				enqueue(outboundMessage{Type: "error", Payload: errorBody{Error: "invalid answer payload"}})
				continue
			}
			if nickname == "" {
				enqueue(outboundMessage{Type: "error", Payload: errorBody{Error: "join before answering"}})
				continue
			}
			ok, err := h.service.SubmitAnswer(r.Context(), sessionID, nickname, payload.AnswerID)
			if err != nil {
				enqueue(outboundMessage{Type: "error", Payload: errorBody{Error: err.Error()}})
				continue
			}
			enqueue(outboundMessage{Type: "answerResult", Payload: outcomePayload{Accepted: ok, AnswerID: payload.AnswerID}})
		default:
			enqueue(outboundMessage{Type: "error", Payload: errorBody{Error: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
