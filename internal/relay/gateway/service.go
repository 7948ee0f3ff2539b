package gateway

import (
	"context"
	"net/http"
	"strconv"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/parlaydesk/rfqrelay/internal/auction"
)

// Service wires the auction registry, message handler and connection manager
// into the relay's WebSocket endpoint.
type Service struct {
	registry *auction.Registry
	handler  *Handler
	manager  *ConnectionManager
}

// NewService creates the gateway service.
func NewService(registry *auction.Registry, config ConnectionConfig, clock clockwork.Clock) *Service {
	handler := NewHandler(registry)
	manager := NewConnectionManager(config, clock, handler.HandleMessage)
	handler.SetManager(manager)

	return &Service{
		registry: registry,
		handler:  handler,
		manager:  manager,
	}
}

// Start runs the registry's background sweep until the context is cancelled.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting relay gateway service")
	s.registry.Run(ctx)
}

// RegisterRoutes registers the WebSocket and stats routes on an HTTP mux.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleConnection)
	mux.HandleFunc("/ws/stats", s.handleStats)
	log.Info().Msg("relay gateway routes registered")
}

// handleConnection upgrades an HTTP request to a relay connection. Makers
// announce themselves with ?role=maker; everything else is a taker.
func (s *Service) handleConnection(w http.ResponseWriter, r *http.Request) {
	role := RoleTaker
	if r.URL.Query().Get("role") == string(RoleMaker) {
		role = RoleMaker
	}

	if err := s.manager.UpgradeConnection(w, r, role); err != nil {
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

func (s *Service) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.manager.Stats()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	w.Write([]byte("{"))
	w.Write([]byte("\"makers\":" + strconv.Itoa(stats["makers"]) + ","))
	w.Write([]byte("\"takers\":" + strconv.Itoa(stats["takers"]) + ","))
	w.Write([]byte("\"bound_auctions\":" + strconv.Itoa(stats["bound_auctions"])))
	w.Write([]byte("}"))
}
