// Package server exposes the HTTP surface of Heartmirror: the /ws device
// endpoint plus health and metrics routes.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"heartmirror/internal/config"
	"heartmirror/internal/health"
	"heartmirror/internal/history"
	"heartmirror/internal/observe"
	"heartmirror/internal/transcript"
	"heartmirror/pkg/audio"
	"heartmirror/pkg/provider/sentiment"
	"heartmirror/pkg/provider/stt"
)

// Options collects the dependencies for a [Server].
type Options struct {
	// VAD holds the segmentation parameters applied to each new connection.
	// Zero values use the built-in defaults.
	VAD config.VADConfig

	Recognizer stt.Recognizer
	Classifier sentiment.Classifier
	Filter     *transcript.Filter

	// Store persists accepted results. May be nil.
	Store history.Store

	// Health serves /healthz and /readyz. May be nil to skip registration.
	Health *health.Handler

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Server routes device websocket connections into per-connection sessions
// and serves the operational HTTP endpoints.
type Server struct {
	recognizer stt.Recognizer
	classifier sentiment.Classifier
	store      history.Store
	metrics    *observe.Metrics
	log        *slog.Logger

	// mu guards the hot-reloadable parts. Each new connection snapshots
	// them; established connections keep what they started with.
	mu     sync.RWMutex
	segCfg audio.SegmenterConfig
	filter *transcript.Filter
}

// New creates a Server from opts. Logger and Metrics fall back to the
// package defaults when nil; a nil Filter uses the built-in denylist.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = observe.DefaultMetrics()
	}
	filter := opts.Filter
	if filter == nil {
		filter = transcript.New(nil)
	}
	return &Server{
		segCfg:     segmenterConfig(opts.VAD),
		recognizer: opts.Recognizer,
		classifier: opts.Classifier,
		filter:     filter,
		store:      opts.Store,
		metrics:    m,
		log:        log,
	}
}

func segmenterConfig(v config.VADConfig) audio.SegmenterConfig {
	return audio.SegmenterConfig{
		StartThreshold:      v.StartThreshold,
		EndThreshold:        v.EndThreshold,
		MaxSilenceFrames:    v.MaxSilenceFrames,
		MinUtteranceSamples: v.MinUtteranceSamples,
		MaxBufferSamples:    v.MaxBufferSamples,
	}
}

// SetVAD replaces the segmentation parameters for future connections.
func (s *Server) SetVAD(v config.VADConfig) {
	s.mu.Lock()
	s.segCfg = segmenterConfig(v)
	s.mu.Unlock()
}

// SetFilter replaces the transcript filter for future connections. A nil
// filter is ignored.
func (s *Server) SetFilter(f *transcript.Filter) {
	if f == nil {
		return
	}
	s.mu.Lock()
	s.filter = f
	s.mu.Unlock()
}

// Handler returns the full HTTP handler. The /ws endpoint sits outside the
// observability middleware: the middleware's response wrapper would hide the
// hijacking interfaces the websocket upgrade needs, and a long-lived
// connection is not a request to time anyway.
func (s *Server) Handler(h *health.Handler) http.Handler {
	inner := http.NewServeMux()
	if h != nil {
		h.Register(inner)
	}
	inner.Handle("GET /metrics", promhttp.Handler())
	if s.store != nil {
		inner.HandleFunc("GET /history", s.handleHistory)
	}

	outer := http.NewServeMux()
	outer.HandleFunc("GET /ws", s.handleWS)
	outer.Handle("/", observe.Middleware(s.metrics)(inner))
	return outer
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// handleHistory returns the most recent speech results as a JSON array,
// newest first. The route is only registered when a history store is
// configured.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		s.log.Warn("history query failed", "error", err)
		http.Error(w, "history unavailable", http.StatusServiceUnavailable)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		s.log.Warn("history encode failed", "error", err)
	}
}

// handleWS upgrades one device connection and runs its session to
// completion.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	log := s.log.With("remote", r.RemoteAddr)

	s.metrics.ActiveConnections.Add(ctx, 1)
	defer s.metrics.ActiveConnections.Add(ctx, -1)

	decoder, err := audio.NewDecoder()
	if err != nil {
		log.Error("audio decoder unavailable", "error", err)
		conn.Close(websocket.StatusInternalError, "audio decoder unavailable")
		return
	}

	s.mu.RLock()
	segCfg, filter := s.segCfg, s.filter
	s.mu.RUnlock()

	sess := NewSession(SessionConfig{
		Conn:       conn,
		Decoder:    decoder,
		Segmenter:  audio.NewSegmenter(segCfg),
		Recognizer: s.recognizer,
		Classifier: s.classifier,
		Filter:     filter,
		Store:      s.store,
		Metrics:    s.metrics,
		Logger:     log,
	})

	log.Info("device connected")
	if err := sess.Run(ctx); err != nil {
		log.Warn("session ended with error", "error", err)
		return
	}
	log.Info("device disconnected")
	conn.Close(websocket.StatusNormalClosure, "")
}
