package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hearthnet/hearth/pkg/rpc"
	"github.com/hearthnet/hearth/server/internal/registry"
)

// maxNotifyBody bounds the POST /api/v1/notify request body.
const maxNotifyBody = 1 << 20

// Acceptor validates and delivers a notify request.
type Acceptor interface {
	Accept(req rpc.Request) error
}

// Options configures optional behaviour of the handler.
type Options struct {
	// NotifyAuth wraps POST /api/v1/notify. nil leaves it open.
	NotifyAuth func(http.Handler) http.Handler
	// StartedAt is reported as uptime by /api/v1/health. Defaults to New's call time.
	StartedAt time.Time
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	reg     *registry.Registry
	out     Acceptor
	started time.Time
	mux     *http.ServeMux
}

// New creates a Handler reading presence from reg and sending notify
// requests to out, and registers all routes.
func New(reg *registry.Registry, out Acceptor, opts Options) http.Handler {
	h := &Handler{reg: reg, out: out, started: opts.StartedAt, mux: http.NewServeMux()}
	if h.started.IsZero() {
		h.started = time.Now()
	}

	var notify http.Handler = http.HandlerFunc(h.notify)
	if opts.NotifyAuth != nil {
		notify = opts.NotifyAuth(notify)
	}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/presence", h.presence)
	h.mux.HandleFunc("/api/v1/presence/users/", h.userPresence) // subtree, extracts {id}
	h.mux.HandleFunc("/api/v1/connections", h.connections)
	h.mux.Handle("/api/v1/notify", notify)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.started).Seconds(),
		OnlineCount:   h.reg.OnlineCount(),
	})
}

// presence returns GET /api/v1/presence.
func (h *Handler) presence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rooms := h.reg.Rooms()
	out := make([]RoomResponse, 0, len(rooms))
	for room, n := range rooms {
		out = append(out, RoomResponse{Room: room, Members: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })

	jsonResp(w, http.StatusOK, PresenceResponse{
		OnlineCount:     h.reg.OnlineCount(),
		ConnectionCount: h.reg.Count(),
		IdentifiedUsers: h.reg.Identified(),
		Rooms:           out,
		GeneratedAt:     time.Now().UTC().Format(time.RFC3339),
	})
}

// userPresence returns GET /api/v1/presence/users/{id}. An offline user is
// not an error: the response reports zero sessions.
func (h *Handler) userPresence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/presence/users/")
	if id == "" || strings.Contains(id, "/") {
		jsonErr(w, http.StatusNotFound, "user id required")
		return
	}

	n := len(h.reg.RecipientsFor(id))
	jsonResp(w, http.StatusOK, UserPresenceResponse{UserID: id, Online: n > 0, Sessions: n})
}

// connections returns GET /api/v1/connections.
func (h *Handler) connections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.reg.Connections())
}

// notify handles POST /api/v1/notify.
func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req rpc.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNotifyBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Kind == "" {
		jsonErr(w, http.StatusBadRequest, "kind is required")
		return
	}

	if err := h.out.Accept(req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResp(w, http.StatusAccepted, NotifyResponse{Accepted: true})
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
