package net

import (
	"encoding/json"
	nethttp "net/http"
	"time"

	"hunt-arena/server/internal/match"
	"hunt-arena/server/internal/net/ws"
	"hunt-arena/server/internal/telemetry"
	"hunt-arena/server/logging"
)

// MatchView is what the HTTP surface reads from a running match.
type MatchView interface {
	ws.Arena
	ID() string
	TickRate() int
}

type HTTPHandlerConfig struct {
	Logger       telemetry.Logger
	Metrics      *logging.Metrics
	WriteTimeout time.Duration
}

// NewHTTPHandler serves /healthz, /diagnostics and the /ws observer endpoint.
func NewHTTPHandler(mt MatchView, hub *ws.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/healthz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		snapshot := mt.Snapshot()
		var metrics map[string]uint64
		if cfg.Metrics != nil {
			metrics = cfg.Metrics.Snapshot()
		}
		payload := struct {
			Status     string            `json:"status"`
			ServerTime int64             `json:"serverTime"`
			MatchID    string            `json:"matchId"`
			Tick       uint64            `json:"tick"`
			TickRate   int               `json:"tickRate"`
			Units      int               `json:"units"`
			Observers  int               `json:"observers"`
			Telemetry  map[string]uint64 `json:"telemetry,omitempty"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			MatchID:    mt.ID(),
			Tick:       snapshot.Tick,
			TickRate:   mt.TickRate(),
			Units:      len(snapshot.Units),
			Observers:  len(hub.Sessions()),
			Telemetry:  metrics,
		}

		data, err := json.Marshal(payload)
		if err != nil {
			logger.Printf("failed to encode diagnostics: %v", err)
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	handler := ws.NewHandler(mt, hub, ws.HandlerConfig{Logger: logger, WriteTimeout: cfg.WriteTimeout})
	mux.HandleFunc("/ws", handler.Handle)

	return mux
}

var _ MatchView = (*match.Match)(nil)

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
