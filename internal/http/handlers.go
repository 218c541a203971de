package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"multiverse/sim/internal/input"
	"multiverse/sim/internal/logging"
	"multiverse/sim/internal/simulation"
)

// ReadinessProvider exposes host state required for readiness checks.
type ReadinessProvider interface {
	ClientCount() int
	StartupError() error
	Uptime() time.Duration
}

// StatsFunc returns cumulative broadcast and client statistics.
type StatsFunc func() (broadcasts, clients int)

// SessionInfoFunc reports the active universe mode and the current tick.
type SessionInfoFunc func() (mode string, tick uint64)

// ReplayFlusher forces buffered replay frames to disk and reports the bundle location.
type ReplayFlusher interface {
	FlushReplay() (string, error)
}

// ReplayFlusherFunc adapts a function into a ReplayFlusher.
type ReplayFlusherFunc func() (string, error)

// FlushReplay implements ReplayFlusher.
func (f ReplayFlusherFunc) FlushReplay() (string, error) { return f() }

// RateLimiter gates how frequently sensitive operations may be invoked.
type RateLimiter interface {
	Allow() bool
}

// Options configures the HandlerSet.
type Options struct {
	Logger      *logging.Logger
	Readiness   ReadinessProvider
	Stats       StatsFunc
	Session     SessionInfoFunc
	Ticks       func() simulation.TickMetricsSnapshot
	CommandGate func() map[string]input.DropCounters
	Replay      ReplayFlusher
	AdminToken  string
	RateLimiter RateLimiter
	TimeSource  func() time.Time
}

// HandlerSet bundles the host operational handlers.
type HandlerSet struct {
	logger      *logging.Logger
	readiness   ReadinessProvider
	stats       StatsFunc
	session     SessionInfoFunc
	ticks       func() simulation.TickMetricsSnapshot
	commandGate func() map[string]input.DropCounters
	replay      ReplayFlusher
	adminToken  string
	rateLimiter RateLimiter
	now         func() time.Time
}

// NewHandlerSet constructs a HandlerSet using the provided options.
func NewHandlerSet(opts Options) *HandlerSet {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	now := opts.TimeSource
	if now == nil {
		now = time.Now
	}
	return &HandlerSet{
		logger:      logger,
		readiness:   opts.Readiness,
		stats:       opts.Stats,
		session:     opts.Session,
		ticks:       opts.Ticks,
		commandGate: opts.CommandGate,
		replay:      opts.Replay,
		adminToken:  strings.TrimSpace(opts.AdminToken),
		rateLimiter: opts.RateLimiter,
		now:         now,
	}
}

// Register attaches all handlers to the provided mux.
func (h *HandlerSet) Register(mux *http.ServeMux) {
	if mux == nil {
		return
	}
	mux.HandleFunc("/livez", h.LivenessHandler())
	mux.HandleFunc("/readyz", h.ReadinessHandler())
	mux.HandleFunc("/metrics", h.MetricsHandler())
	mux.HandleFunc("/replay/flush", h.ReplayFlushHandler())
}

// LivenessHandler reports that the HTTP server is reachable.
func (h *HandlerSet) LivenessHandler() http.HandlerFunc {
	type response struct {
		Status    string `json:"status"`
		Timestamp string `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, response{
			Status:    "alive",
			Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// ReadinessHandler reports host readiness, including viewer counts and startup status.
func (h *HandlerSet) ReadinessHandler() http.HandlerFunc {
	type response struct {
		Status        string  `json:"status"`
		Message       string  `json:"message,omitempty"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Clients       int     `json:"clients"`
		Mode          string  `json:"mode,omitempty"`
		Tick          uint64  `json:"tick"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := response{Status: "ok"}
		if h.readiness != nil {
			resp.Clients = h.readiness.ClientCount()
			resp.UptimeSeconds = h.readiness.Uptime().Seconds()
			if err := h.readiness.StartupError(); err != nil {
				status = http.StatusServiceUnavailable
				resp.Status = "error"
				resp.Message = err.Error()
			}
		}
		if h.session != nil {
			resp.Mode, resp.Tick = h.session()
		}
		writeJSON(w, status, resp)
	}
}

// MetricsHandler emits Prometheus compatible text metrics.
func (h *HandlerSet) MetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		broadcasts, clients := h.trafficCounts()
		var uptime float64
		if h.readiness != nil {
			uptime = h.readiness.Uptime().Seconds()
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprintf(w, "# HELP universe_uptime_seconds Host uptime in seconds.\n")
		fmt.Fprintf(w, "# TYPE universe_uptime_seconds gauge\n")
		fmt.Fprintf(w, "universe_uptime_seconds %.0f\n", uptime)

		fmt.Fprintf(w, "# HELP universe_clients Current connected WebSocket viewers.\n")
		fmt.Fprintf(w, "# TYPE universe_clients gauge\n")
		fmt.Fprintf(w, "universe_clients %d\n", clients)

		fmt.Fprintf(w, "# HELP universe_broadcasts_total Total tick diffs delivered to viewers.\n")
		fmt.Fprintf(w, "# TYPE universe_broadcasts_total counter\n")
		fmt.Fprintf(w, "universe_broadcasts_total %d\n", broadcasts)

		if h.session != nil {
			mode, tick := h.session()
			fmt.Fprintf(w, "# HELP universe_tick Current simulation tick.\n")
			fmt.Fprintf(w, "# TYPE universe_tick counter\n")
			fmt.Fprintf(w, "universe_tick{mode=%q} %d\n", mode, tick)
		}
		if h.ticks != nil {
			snapshot := h.ticks()
			fmt.Fprintf(w, "# HELP universe_step_duration_ms Simulation step wall time in milliseconds.\n")
			fmt.Fprintf(w, "# TYPE universe_step_duration_ms gauge\n")
			fmt.Fprintf(w, "universe_step_duration_ms{stat=\"average\"} %.3f\n", durationMs(snapshot.Average))
			fmt.Fprintf(w, "universe_step_duration_ms{stat=\"max\"} %.3f\n", durationMs(snapshot.Max))
			fmt.Fprintf(w, "universe_step_duration_ms{stat=\"last\"} %.3f\n", durationMs(snapshot.Last))
			fmt.Fprintf(w, "# HELP universe_step_fps Effective simulation steps per second.\n")
			fmt.Fprintf(w, "# TYPE universe_step_fps gauge\n")
			fmt.Fprintf(w, "universe_step_fps %.2f\n", snapshot.AverageFPS())
		}
		if h.commandGate != nil {
			drops := h.commandGate()
			if len(drops) > 0 {
				fmt.Fprintf(w, "# HELP universe_command_drops_total Command frames rejected by the input gate.\n")
				fmt.Fprintf(w, "# TYPE universe_command_drops_total counter\n")
				for clientID, counters := range drops {
					fmt.Fprintf(w, "universe_command_drops_total{client=%q,reason=\"sequence\"} %d\n", clientID, counters.Sequence)
					fmt.Fprintf(w, "universe_command_drops_total{client=%q,reason=\"stale\"} %d\n", clientID, counters.Stale)
					fmt.Fprintf(w, "universe_command_drops_total{client=%q,reason=\"rate_limit\"} %d\n", clientID, counters.RateLimited)
				}
			}
		}
	}
}

// ReplayFlushHandler authorises and triggers a replay buffer flush.
func (h *HandlerSet) ReplayFlushHandler() http.HandlerFunc {
	type response struct {
		Status   string `json:"status"`
		Location string `json:"location,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := h.logger.With(
			logging.String("handler", "replay_flush"),
			logging.String("remote_addr", r.RemoteAddr),
		)
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if h.adminToken == "" {
			reqLogger.Warn("replay flush denied: admin auth disabled")
			http.Error(w, "admin authentication not configured", http.StatusForbidden)
			return
		}
		if !h.adminTokenMatches(r) {
			reqLogger.Warn("replay flush denied: unauthorized request")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if h.rateLimiter != nil && !h.rateLimiter.Allow() {
			reqLogger.Warn("replay flush denied: rate limit exceeded")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		if h.replay == nil {
			reqLogger.Warn("replay flush denied: recording disabled")
			http.Error(w, "replay recording is unavailable", http.StatusServiceUnavailable)
			return
		}
		location, err := h.replay.FlushReplay()
		if err != nil {
			reqLogger.Error("replay flush failed", logging.Error(err))
			http.Error(w, "failed to flush replay buffers", http.StatusInternalServerError)
			return
		}
		reqLogger.Info("replay flush triggered")
		writeJSON(w, http.StatusAccepted, response{Status: "accepted", Location: location})
	}
}

func (h *HandlerSet) trafficCounts() (broadcasts, clients int) {
	if h.stats != nil {
		return h.stats()
	}
	if h.readiness != nil {
		clients = h.readiness.ClientCount()
	}
	return
}

// presentedToken checks the Authorization header, the X-Admin-Token header,
// and the token query parameter, in that order.
func presentedToken(r *http.Request) string {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
			return strings.TrimSpace(header[7:])
		}
		return header
	}
	if token := strings.TrimSpace(r.Header.Get("X-Admin-Token")); token != "" {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func (h *HandlerSet) adminTokenMatches(r *http.Request) bool {
	token := presentedToken(r)
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) == 1
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}
