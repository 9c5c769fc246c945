package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"protrade/internal/auth"
	"protrade/internal/domain"
	"protrade/internal/gateway"
	"protrade/internal/journal"
)

// Server exposes the order gateway over HTTP.
type Server struct {
	gw      *gateway.Gateway
	creds   *auth.Store
	journal *journal.Journal
	log     *slog.Logger
}

// NewServer creates the gateway HTTP server. journal may be nil when the
// audit trail is disabled.
func NewServer(gw *gateway.Gateway, creds *auth.Store, jn *journal.Journal, log *slog.Logger) *Server {
	return &Server{gw: gw, creds: creds, journal: jn, log: log}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /account", s.handleAccount)
	mux.HandleFunc("GET /positions", s.handlePositions)
	mux.HandleFunc("GET /portfolio", s.handlePortfolio)
	mux.HandleFunc("GET /orders", s.handleGetOrders)
	mux.HandleFunc("POST /orders", s.handlePlaceOrder)
	mux.HandleFunc("GET /orders/journal", s.handleJournal)
	mux.HandleFunc("GET /bars/{symbol}", s.handleBars)
	mux.HandleFunc("GET /quote/{symbol}", s.handleQuote)
}

// Handler returns an http.Handler with CORS and request-logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(s.logMiddleware(mux))
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	e := domain.AsError(err)
	if e == nil {
		writeError(w, http.StatusInternalServerError, ErrorResponse{
			Error: ErrorBody{Kind: "internal_error", Message: err.Error()},
		})
		return
	}
	writeError(w, statusForKind(e.Kind), ErrorResponse{
		Error: ErrorBody{
			Kind:     string(e.Kind),
			Message:  e.Message,
			BrokerID: e.BrokerID,
			Op:       e.Op,
		},
	})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindUpstream:
		return http.StatusBadGateway
	case domain.KindNetwork:
		return http.StatusGatewayTimeout
	case domain.KindAmbiguous:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// brokerParam extracts the required "broker" query parameter.
func brokerParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	broker := r.URL.Query().Get("broker")
	if broker == "" {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Error: ErrorBody{Kind: string(domain.KindValidation), Message: "broker query parameter required"},
		})
		return "", false
	}
	return broker, true
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, HealthResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	brokers := make(map[string]BrokerStatus)
	for _, id := range s.gw.Brokers() {
		brokers[id] = BrokerStatus{Configured: s.creds.Configured(id)}
	}
	writeJSON(w, StatusResponse{Brokers: brokers})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	broker, ok := brokerParam(w, r)
	if !ok {
		return
	}
	snap, err := s.gw.GetAccount(r.Context(), broker)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, snap)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	broker, ok := brokerParam(w, r)
	if !ok {
		return
	}
	positions, err := s.gw.GetPositions(r.Context(), broker)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, positions)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	broker, ok := brokerParam(w, r)
	if !ok {
		return
	}
	p, err := s.gw.GetPortfolio(r.Context(), broker)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	broker, ok := brokerParam(w, r)
	if !ok {
		return
	}
	orders, err := s.gw.GetOrders(r.Context(), broker)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []domain.OrderResult{}
	}
	writeJSON(w, orders)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var order domain.UnifiedOrder
	if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{
			Error: ErrorBody{Kind: string(domain.KindValidation), Message: "invalid order body: " + err.Error()},
		})
		return
	}
	res, err := s.gw.PlaceOrder(r.Context(), order)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(res)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrorBody{Kind: "unavailable", Message: "order journal not configured"},
		})
		return
	}
	entries, err := s.journal.Recent(r.Context(), limitParam(r))
	if err != nil {
		s.log.Error("reading order journal", "error", err)
		writeError(w, http.StatusInternalServerError, ErrorResponse{
			Error: ErrorBody{Kind: "internal_error", Message: "failed to read order journal"},
		})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, JournalResponse{Entries: entries})
}

func (s *Server) handleBars(w http.ResponseWriter, r *http.Request) {
	broker, ok := brokerParam(w, r)
	if !ok {
		return
	}
	symbol := r.PathValue("symbol")
	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = "1Day"
	}
	bars, err := s.gw.GetBars(r.Context(), broker, symbol, timeframe, limitParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if bars == nil {
		bars = []domain.Bar{}
	}
	writeJSON(w, BarsResponse{
		Symbol:    strings.ToUpper(symbol),
		Timeframe: timeframe,
		Bars:      bars,
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	broker, ok := brokerParam(w, r)
	if !ok {
		return
	}
	quote, err := s.gw.GetQuote(r.Context(), broker, r.PathValue("symbol"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, quote)
}
