package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
)

type WSHandler struct {
	engine   *app.Engine
	upgrader websocket.Upgrader
	log      logrus.FieldLogger
}

func NewWSHandler(engine *app.Engine, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		engine: engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.WithField("component", "ws"),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Seq     uint64 `json:"seq,omitempty"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type answerReply struct {
	Seq           uint64 `json:"seq"`
	QuestionIndex int    `json:"questionIndex"`
	Reason        string `json:"reason,omitempty"`
}

// ServeWS upgrades HTTP requests to websockets and binds the connection to one
// player seat of a match. lastSeq resumes the event stream after a reconnect.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	matchID := q.Get("matchId")
	playerID := q.Get("playerId")
	if matchID == "" || playerID == "" {
		http.Error(w, "missing matchId or playerId", http.StatusBadRequest)
		return
	}
	var lastSeq uint64
	if raw := q.Get("lastSeq"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid lastSeq", http.StatusBadRequest)
			return
		}
		lastSeq = v
	}
	fingerprint := r.Header.Get("X-Device-Fingerprint")
	if fingerprint == "" {
		fingerprint = q.Get("fingerprint")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithField("error", err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.WithFields(logrus.Fields{"match": matchID, "player": playerID})
	if err := h.engine.Join(r.Context(), matchID, playerID, clientIP(r), fingerprint); err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer func() {
		if err := h.engine.Leave(matchID, playerID); err != nil && !errors.Is(err, domain.ErrMatchNotFound) {
			log.WithField("error", err).Warn("leave failed")
		}
	}()

	snap, err := h.engine.Snapshot(matchID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// single writer: gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithField("error", err).Debug("ws write error")
				// unblock the read loop
				conn.Close()
				return
			}
		}
	}()

	reply := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	reply(outboundMessage[any]{Type: "snapshot", Seq: snap.LastSeq, Payload: snap})
	if lastSeq > snap.LastSeq {
		lastSeq = snap.LastSeq
	}

	go func() {
		defer close(eventsDone)
		cursor := app.NewCursor(lastSeq)
		for {
			sub, err := h.engine.Subscribe(matchID, cursor.Last())
			if err != nil {
				return
			}
			if !h.forward(sub, cursor, send, writerDone, closeSignals) {
				sub.Cancel()
				return
			}
			if !sub.Lagged() {
				return
			}
			log.WithField("seq", cursor.Last()).Debug("resubscribing after lag")
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "ready":
			if err := h.engine.Acknowledge(matchID, playerID); err != nil {
				reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			}
		case "player_answer":
			var payload domain.AnswerSubmission
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			_, err := h.engine.SubmitAnswer(matchID, playerID, payload)
			switch {
			case errors.Is(err, domain.ErrDuplicateMessage):
				// already applied; the snapshot's inboundSeq tells the client where to continue
				reply(outboundMessage[any]{Type: "answer_duplicate", Payload: answerReply{
					Seq:           payload.Seq,
					QuestionIndex: payload.QuestionIndex,
				}})
			case err != nil:
				reply(outboundMessage[any]{Type: "answer_rejected", Payload: answerReply{
					Seq:           payload.Seq,
					QuestionIndex: payload.QuestionIndex,
					Reason:        err.Error(),
				}})
			default:
				reply(outboundMessage[any]{Type: "answer_accepted", Payload: answerReply{
					Seq:           payload.Seq,
					QuestionIndex: payload.QuestionIndex,
				}})
			}
		default:
			reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}

// forward relays events until the subscription ends. It returns false when the
// connection is closing.
func (h *WSHandler) forward(sub *app.Subscription, cursor *app.Cursor, send chan<- outboundMessage[any], writerDone, closeSignals <-chan struct{}) bool {
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return true
			}
			if !cursor.Apply(ev) {
				continue
			}
			select {
			case send <- outboundMessage[any]{Type: string(ev.Type), Seq: ev.Seq, Payload: ev.Payload}:
			case <-writerDone:
				return false
			case <-closeSignals:
				return false
			}
		case <-closeSignals:
			return false
		}
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
