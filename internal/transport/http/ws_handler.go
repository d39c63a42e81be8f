package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"report-card-service/internal/app"
	"report-card-service/internal/ingest"
)

const closeWait = time.Second

// WSHandler streams the class ranking of a session and accepts new records.
type WSHandler struct {
	service  *app.ReportService
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.ReportService, log *zap.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
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

type errorPayload struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func errorMessage(err error) outboundMessage[any] {
	payload := errorPayload{Message: err.Error()}
	var verr *ingest.ValidationError
	if errors.As(err, &verr) {
		payload = errorPayload{Message: "invalid record", Fields: verr.Fields}
	}
	return outboundMessage[any]{Type: "error", Payload: payload}
}

// ServeWS upgrades the request and pushes a "ranking" message whenever the
// session's records change. Clients may send {"type":"record"} messages to append.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	updates, cancel, err := h.service.Subscribe(r.Context(), sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.String("session", sessionID), zap.Error(err))
				conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					// session ended: stop the read loop too
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), time.Now().Add(closeWait))
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "ranking", Payload: update}:
				case <-writerDone:
					return
				case <-closeSignals:
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
		case <-writerDone:
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "record":
			var in app.AddRecordInput
			if err := json.Unmarshal(inbound.Payload, &in); err != nil {
				reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid record payload"}})
				continue
			}
			in.Source = "ws"
			rec, err := h.service.AddRecord(r.Context(), sessionID, in)
			if err != nil {
				reply(errorMessage(err))
				continue
			}
			reply(outboundMessage[any]{Type: "recordAdded", Payload: rec})
		default:
			reply(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
