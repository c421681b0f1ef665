// Package feed serves the live dashboard: a websocket push channel plus
// snapshot and health endpoints.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/Jamesd000/crypto-live-dashboard/internal/hub"
	"github.com/Jamesd000/crypto-live-dashboard/internal/market"
	"github.com/Jamesd000/crypto-live-dashboard/internal/metrics"
	"github.com/Jamesd000/crypto-live-dashboard/internal/state"
)

// StatusSource reports the health of every upstream stream.
type StatusSource interface {
	Statuses() []market.StreamStatus
}

const (
	defaultWriteWait = 10 * time.Second
	defaultPongWait  = 60 * time.Second
	maxMessageSize   = 512
)

// InitialData is the first message each viewer receives.
type InitialData struct {
	Type    string                        `json:"type"`
	Symbols map[string]market.SymbolState `json:"symbols"`
	Streams []market.StreamStatus         `json:"streams"`
}

// Health is the /healthz body.
type Health struct {
	Status  string                `json:"status"`
	Time    string                `json:"time"`
	Streams []market.StreamStatus `json:"streams"`
}

// Server exposes store snapshots and hub pushes over HTTP.
type Server struct {
	store    *state.Store
	hub      *hub.Hub
	statuses StatusSource
	log      zerolog.Logger
	upgrader websocket.Upgrader

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

// Option configures a Server.
type Option func(*Server)

// WithHeartbeat overrides the pong deadline; pings go out at 9/10 of it.
func WithHeartbeat(pongWait time.Duration) Option {
	return func(s *Server) {
		if pongWait > 0 {
			s.pongWait = pongWait
			s.pingPeriod = pongWait * 9 / 10
		}
	}
}

// NewServer wires the feed to its data sources.
func NewServer(store *state.Store, h *hub.Hub, statuses StatusSource, log zerolog.Logger, opts ...Option) *Server {
	s := &Server{
		store:    store,
		hub:      h,
		statuses: statuses,
		log:      log.With().Str("component", "feed").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeWait:  defaultWriteWait,
		pongWait:   defaultPongWait,
		pingPeriod: defaultPongWait * 9 / 10,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler routes /ws, /api/snapshot/{symbol} and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /api/snapshot/{symbol}", s.handleSnapshot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// hijacked viewer connections are not tracked by Shutdown; they follow ctx instead
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("feed listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.store.Snapshot(r.PathValue("symbol"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown symbol"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	streams := s.streams()
	body := Health{Status: "healthy", Time: time.Now().Format(time.RFC3339), Streams: streams}
	code := http.StatusOK
	for _, st := range streams {
		if st.State != market.Running {
			body.Status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, body)
}

func (s *Server) streams() []market.StreamStatus {
	if s.statuses == nil {
		return []market.StreamStatus{}
	}
	return s.statuses.Statuses()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer conn.Close()

	metrics.FeedClients.Inc()
	defer metrics.FeedClients.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Subscribe before hydrating so nothing published in between is missed.
	sub := s.hub.Subscribe(ctx)

	log := s.log.With().Str("remote", r.RemoteAddr).Logger()
	log.Info().Int("viewers", s.hub.Len()).Msg("viewer connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer conn.Close()
		defer cancel()
		if err := s.writeLoop(ctx, conn, sub); err != nil {
			log.Debug().Err(err).Msg("writer stopped")
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(s.pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	cancel()
	<-writerDone
	log.Info().Uint64("dropped", sub.Dropped()).Msg("viewer disconnected")
}

// writeLoop is the only goroutine writing to conn.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sub *hub.Subscription) error {
	ticker := time.NewTicker(s.pingPeriod)
	defer ticker.Stop()

	initial := InitialData{Type: "initial_data", Symbols: s.store.SnapshotAll(), Streams: s.streams()}
	if err := s.write(conn, initial); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(s.writeWait))
			return nil
		case m, ok := <-sub.C():
			if !ok {
				return nil
			}
			if err := s.write(conn, m); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.writeWait)); err != nil {
				return err
			}
		}
	}
}

func (s *Server) write(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	return conn.WriteJSON(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
