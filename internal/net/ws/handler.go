package ws

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"hunt-arena/server/internal/match"
	"hunt-arena/server/internal/net/proto"
	"hunt-arena/server/internal/telemetry"
)

// Arena is the slice of a running match the handler talks to.
type Arena interface {
	Snapshot() match.Snapshot
	Enqueue(cmd match.Command) (bool, string)
}

type subscription interface {
	WriteMessage(messageType int, data []byte) error
	LastCommandSeq() uint64
	StoreLastCommandSeq(seq uint64)
}

type HandlerConfig struct {
	Logger       telemetry.Logger
	WriteTimeout time.Duration
	Now          func() time.Time
}

type Handler struct {
	arena    Arena
	hub      *Hub
	logger   telemetry.Logger
	upgrader websocket.Upgrader

	writeTimeout time.Duration
	now          func() time.Time
}

func NewHandler(arena Arena, hub *Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		arena:        arena,
		hub:          hub,
		logger:       logger,
		upgrader:     upgrader,
		writeTimeout: cfg.WriteTimeout,
		now:          now,
	}
}

// Handle upgrades the request and serves one observer session. The session
// receives the current state immediately, then every broadcast from the hub.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	sub := &session{id: uuid.NewString(), conn: conn, writeTimeout: h.writeTimeout}
	h.hub.add(sub, r.RemoteAddr)
	session := subscription(sub)

	data, err := proto.EncodeState(h.arena.Snapshot())
	if err != nil {
		h.logger.Printf("failed to marshal initial state for %s: %v", sub.id, err)
		h.hub.remove(sub.id, "marshal_failed")
		return
	}
	if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
		h.hub.remove(sub.id, "write_failed")
		return
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.remove(sub.id, "closed")
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from %s: %v", sub.id, err)
			continue
		}
		seq := msg.Seq

		writeJSON := func(payload any) bool {
			data, err := json.Marshal(payload)
			if err != nil {
				h.logger.Printf("failed to marshal response for %s: %v", sub.id, err)
				return true
			}
			if err := session.WriteMessage(websocket.TextMessage, data); err != nil {
				h.hub.remove(sub.id, "write_failed")
				return false
			}
			return true
		}

		switch msg.Type {
		case proto.TypeCommand:
			if msg.Command == nil {
				if seq > 0 && !writeJSON(proto.NewCommandReject(seq, match.CommandRejectInvalid)) {
					return
				}
				continue
			}
			if seq > 0 {
				if last := session.LastCommandSeq(); last > 0 && seq <= last {
					if !writeJSON(proto.NewCommandAck(seq, 0)) {
						return
					}
					continue
				}
			}
			cmd := *msg.Command
			cmd.OriginTick = h.arena.Snapshot().Tick
			cmd.IssuedAt = h.now()
			ok, reason := h.arena.Enqueue(cmd)
			if seq == 0 {
				continue
			}
			if ok {
				if !writeJSON(proto.NewCommandAck(seq, cmd.OriginTick)) {
					return
				}
				session.StoreLastCommandSeq(seq)
			} else if !writeJSON(proto.NewCommandReject(seq, reason)) {
				return
			}
		case proto.TypeHeartbeat:
			if !writeJSON(proto.NewHeartbeat(h.now().UnixMilli(), msg.SentAt)) {
				return
			}
		default:
			h.logger.Printf("ignoring %q message from %s", msg.Type, sub.id)
		}
	}
}
