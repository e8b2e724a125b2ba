package net

import (
	"encoding/json"
	"io"
	"log"
	nethttp "net/http"
	"time"

	"netsync/internal/sim"
)

// Host is the runtime the HTTP surface reports on.
type Host interface {
	Role() string
	Tick() uint32
	Diagnostics() any
	ResyncAll()
	Submit(cmd sim.Command) (bool, string)
}

type HTTPHandlerConfig struct {
	Logger *log.Logger
	// Metrics serves /metrics when set.
	Metrics nethttp.Handler
	// Socket serves /ws when set.
	Socket nethttp.Handler
	// Pprof serves /debug/pprof/ when set.
	Pprof nethttp.Handler
}

func NewHTTPHandler(host Host, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string `json:"status"`
			ServerTime int64  `json:"serverTime"`
			Role       string `json:"role"`
			Tick       uint32 `json:"tick"`
			Runtime    any    `json:"runtime"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			Role:       host.Role(),
			Tick:       host.Tick(),
			Runtime:    host.Diagnostics(),
		}
		writeJSON(w, logger, payload)
	})

	mux.HandleFunc("/resync", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		host.ResyncAll()
		writeJSON(w, logger, struct {
			Status string `json:"status"`
			Tick   uint32 `json:"tick"`
		}{Status: "ok", Tick: host.Tick()})
	})

	mux.HandleFunc("/commands", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		var cmd sim.Command
		decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<16))
		if err := decoder.Decode(&cmd); err != nil {
			httpError(w, "invalid payload", nethttp.StatusBadRequest)
			return
		}
		if cmd.Type == "" {
			httpError(w, "missing command type", nethttp.StatusBadRequest)
			return
		}
		accepted, reason := host.Submit(cmd)
		status := nethttp.StatusAccepted
		switch {
		case accepted:
		case reason == sim.CommandRejectQueueFull || reason == sim.CommandRejectQueueLimit:
			status = nethttp.StatusTooManyRequests
		default:
			status = nethttp.StatusUnprocessableEntity
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(struct {
			Accepted bool   `json:"accepted"`
			Reason   string `json:"reason,omitempty"`
		}{Accepted: accepted, Reason: reason})
	})

	if cfg.Metrics != nil {
		mux.Handle("/metrics", cfg.Metrics)
	}
	if cfg.Socket != nil {
		mux.Handle("/ws", cfg.Socket)
	}
	if cfg.Pprof != nil {
		mux.Handle("/debug/pprof/", cfg.Pprof)
	}

	return mux
}

func writeJSON(w nethttp.ResponseWriter, logger *log.Logger, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("failed to encode response: %v", err)
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
