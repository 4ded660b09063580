package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"propctl/config"
	"propctl/status"
)

// Server is a small HTTP API server that reports uploads and commands.
// Construct with NewServer(cfg, mon, listenAddr)
type Server struct {
	cfg        *config.PropctlConfig
	mon        *status.Monitor
	log        *zap.Logger
	listenAddr string
	httpSrv    *http.Server
	ln         net.Listener
}

// NewServer creates a new API server instance.
func NewServer(cfg *config.PropctlConfig, mon *status.Monitor, listenAddr string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, mon: mon, listenAddr: listenAddr, log: log}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/device", s.handleDevice)
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/transfers", s.handleTransfers)
	mux.HandleFunc("/api/v1/transfers/", s.handleTransfer)
	return mux
}

// Start begins listening and serving. It returns after the server has started or an error.
func (s *Server) Start() error {
	h := &http.Server{
		Addr:              s.listenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.httpSrv = h

	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("API: listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := h.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("API: http server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr is the bound listen address, valid after Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.listenAddr
	}
	return s.ln.Addr().String()
}

// Stop attempts a graceful shutdown with a 5s timeout.
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(ctx)
}

// deviceDTO is the JSON shape returned for the configured device
type deviceDTO struct {
	Host             string `json:"host"`
	CommandPort      int    `json:"command_port"`
	DataPort         int    `json:"data_port"`
	PacketSize       int    `json:"packet_size"`
	InterPacketDelay string `json:"inter_packet_delay"`
	Interface        string `json:"interface,omitempty"`
}

type statusDTO struct {
	status.Counters
	MaxRateBitsPerSec    int64 `json:"max_rate_bps"`
	ActiveRateBitsPerSec int64 `json:"active_rate_bps"`
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	d := s.cfg.Device
	s.writeJSON(w, deviceDTO{
		Host:             d.Host,
		CommandPort:      d.CommandPort,
		DataPort:         d.DataPort,
		PacketSize:       d.PacketSize,
		InterPacketDelay: d.InterPacketDelay.Duration().String(),
		Interface:        d.InterfaceName,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	c := s.mon.Counters()
	maxRate := int64(s.cfg.Device.BandwidthLimit)
	if maxRate < 0 {
		maxRate = 0
	}
	s.writeJSON(w, statusDTO{
		Counters:             c,
		MaxRateBitsPerSec:    maxRate * 8,
		ActiveRateBitsPerSec: c.ActiveRateBytes * 8,
	})
}

func (s *Server) handleTransfers(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s.writeJSON(w, s.mon.Transfers())
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/transfers/")
	t, ok := s.mon.Transfer(id)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.writeJSON(w, t)
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.Warn("API: encode error", zap.Error(err))
	}
}
