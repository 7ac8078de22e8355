package ws

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hunt-arena/server/internal/match"
	"hunt-arena/server/internal/net/proto"
	"hunt-arena/server/internal/telemetry"
	"hunt-arena/server/logging"
	loggingNetwork "hunt-arena/server/logging/network"
)

const (
	metricBroadcastBytes = "ws.broadcast_bytes"
	metricBroadcasts     = "ws.broadcasts"
)

// session is one connected observer. Writes are serialised by mu.
type session struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex

	writeTimeout time.Duration
	lastSeq      uint64
}

func (s *session) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteMessage(messageType, data)
}

// LastCommandSeq is only touched by the session's read goroutine.
func (s *session) LastCommandSeq() uint64 { return s.lastSeq }

func (s *session) StoreLastCommandSeq(seq uint64) { s.lastSeq = seq }

// Hub tracks observer sessions and fans snapshots out to them.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session

	publisher logging.Publisher
	logger    telemetry.Logger
	metrics   telemetry.Metrics
}

// NewHub constructs an empty hub.
func NewHub(publisher logging.Publisher, logger telemetry.Logger, metrics telemetry.Metrics) *Hub {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}
	return &Hub{
		sessions:  make(map[string]*session),
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}
}

func (h *Hub) add(s *session, remote string) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	loggingNetwork.ObserverConnected(context.Background(), h.publisher, 0,
		logging.EntityRef{ID: s.id, Kind: logging.EntityKindObserver},
		loggingNetwork.ObserverPayload{RemoteAddr: remote}, nil)
}

func (h *Hub) remove(id, reason string) {
	h.mu.Lock()
	s, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if !ok {
		return
	}
	s.conn.Close()
	loggingNetwork.ObserverDisconnected(context.Background(), h.publisher, 0,
		logging.EntityRef{ID: id, Kind: logging.EntityKindObserver},
		loggingNetwork.ObserverPayload{Reason: reason}, nil)
}

// Sessions lists the connected observer ids in lexical order.
func (h *Hub) Sessions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Broadcast sends snapshot to every observer, dropping sessions whose
// connection fails.
func (h *Hub) Broadcast(snapshot match.Snapshot) {
	data, err := proto.EncodeState(snapshot)
	if err != nil {
		h.logger.Printf("failed to marshal state for tick %d: %v", snapshot.Tick, err)
		return
	}

	h.mu.Lock()
	targets := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		if err := s.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(s.id, "write_failed")
			continue
		}
		if h.metrics != nil {
			h.metrics.Add(metricBroadcasts, 1)
			h.metrics.Add(metricBroadcastBytes, uint64(len(data)))
		}
	}
}

// Close disconnects every observer.
func (h *Hub) Close() {
	for _, id := range h.Sessions() {
		h.remove(id, "shutdown")
	}
}
