package intake

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"sitedigest/internal/storage"
	logx "sitedigest/pkg/logx"
)

const (
	defaultAddr  = "127.0.0.1:8790"
	maxBodyBytes = 1 << 20
)

// HTTPConfig controls the intake HTTP server.
//
// A non-loopback Addr requires Token.
type HTTPConfig struct {
	Enabled bool
	Addr    string
	Token   string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Pprof mounts net/http/pprof under /debug/pprof behind the same token.
	Pprof bool
}

// Queue is the read side the server reports on.
type Queue interface {
	GetAll(ctx context.Context) (storage.Snapshot, error)
}

// Server accepts events over HTTP:
//
//	POST /v1/events   one Payload or an array of them
//	GET  /v1/queue    pending counts per recipient
//	GET  /healthz
type Server struct {
	acc   *Acceptor
	queue Queue
	log   logx.Logger

	mu       sync.Mutex
	cfg      HTTPConfig
	ln       net.Listener
	srv      *http.Server
	stopDone chan struct{}
}

func NewServer(cfg HTTPConfig, acc *Acceptor, queue Queue, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, acc: acc, queue: queue, log: log.With(logx.String("comp", "intake.http"))}
}

// Addr is the bound listen address, or "" when stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Reconfigure starts, stops or restarts the server to match cfg.
func (s *Server) Reconfigure(ctx context.Context, cfg HTTPConfig) error {
	s.mu.Lock()
	prev := s.cfg
	running := s.srv != nil
	s.cfg = cfg
	s.mu.Unlock()

	switch {
	case !cfg.Enabled:
		if running {
			s.Stop(ctx)
		}
		return nil
	case !running:
		return s.Start(ctx)
	case prev != cfg:
		s.Stop(ctx)
		return s.Start(ctx)
	}
	return nil
}

// Start binds the listener and serves in the background. It is a no-op
// when disabled or already running.
func (s *Server) Start(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.srv != nil {
			s.mu.Unlock()
			return nil
		}
		if done := s.stopDone; done != nil {
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		cur := s.cfg
		s.mu.Unlock()

		if !cur.Enabled {
			return nil
		}
		addr := strings.TrimSpace(cur.Addr)
		if addr == "" {
			addr = defaultAddr
		}
		if strings.TrimSpace(cur.Token) == "" && !isLoopbackAddr(addr) {
			return errors.New("intake: non-loopback addr " + addr + " requires a token")
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Handler:      s.handler(cur),
			ReadTimeout:  cur.ReadTimeout,
			WriteTimeout: cur.WriteTimeout,
			IdleTimeout:  cur.IdleTimeout,
		}

		s.mu.Lock()
		s.ln, s.srv = ln, srv
		s.mu.Unlock()

		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("intake server stopped with error", logx.Err(err))
			}
		}()
		s.log.Info("intake http started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", cur.Token != ""), logx.Bool("pprof", cur.Pprof))
		return nil
	}
}

// Stop shuts the server down, waiting at most until ctx is done.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.srv == nil {
		s.mu.Unlock()
		return
	}
	if done := s.stopDone; done != nil {
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	srv := s.srv
	s.srv, s.ln = nil, nil
	s.mu.Unlock()

	go func() {
		defer close(done)
		_ = srv.Shutdown(ctx)
		_ = srv.Close()
		s.mu.Lock()
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("intake http stopped")
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Handler builds the router. An empty token disables auth.
func (s *Server) Handler(token string) http.Handler {
	return s.handler(HTTPConfig{Token: token})
}

func (s *Server) handler(cfg HTTPConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(cfg.Token))
		r.Post("/v1/events", s.postEvents)
		r.Get("/v1/queue", s.getQueue)
		if cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})
	return r
}

type acceptedEvent struct {
	Seq uint64 `json:"seq"`
	ID  string `json:"id"`
}

func (s *Server) postEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	payloads, err := decodePayloads(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out := make([]acceptedEvent, 0, len(payloads))
	for _, p := range payloads {
		e, err := s.acc.Accept(r.Context(), p)
		if err != nil {
			status := http.StatusInternalServerError
			if Rejected(err) {
				status = http.StatusUnprocessableEntity
			} else {
				s.log.Error("intake store failed", logx.String("request_id", middleware.GetReqID(r.Context())), logx.Err(err))
			}
			writeJSON(w, status, map[string]any{"error": err.Error(), "accepted": out})
			return
		}
		out = append(out, acceptedEvent{Seq: e.Seq, ID: e.ID})
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": out})
}

type queueSummary struct {
	Seq        uint64         `json:"seq"`
	Events     int            `json:"events"`
	Recipients map[string]int `json:"recipients"`
}

func (s *Server) getQueue(w http.ResponseWriter, r *http.Request) {
	snap, err := s.queue.GetAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	sum := queueSummary{Seq: snap.Seq, Events: snap.Len(), Recipients: make(map[string]int, len(snap.Recipients))}
	for _, rcpt := range snap.Recipients {
		sum.Recipients[rcpt] = len(snap.Events[rcpt])
	}
	writeJSON(w, http.StatusOK, sum)
}

// decodePayloads accepts a single object or an array.
func decodePayloads(b []byte) ([]Payload, error) {
	trimmed := strings.TrimSpace(string(b))
	if strings.HasPrefix(trimmed, "[") {
		var ps []Payload
		if err := json.Unmarshal(b, &ps); err != nil {
			return nil, err
		}
		if len(ps) == 0 {
			return nil, errors.New("empty event list")
		}
		return ps, nil
	}
	var p Payload
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return []Payload{p}, nil
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	return func(next http.Handler) http.Handler {
		if tok == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const p = "Bearer "
			ah := r.Header.Get("Authorization")
			if !strings.HasPrefix(ah, p) || strings.TrimSpace(strings.TrimPrefix(ah, p)) != tok {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, errors.New("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
