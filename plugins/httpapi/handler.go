package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/enginekit/pkg/engine"
	"github.com/bft-labs/enginekit/pkg/log"
)

// maxBodyBytes caps event trigger bodies.
const maxBodyBytes = 1 << 20

// Handler serves the control endpoints for one engine.
type Handler struct {
	host engine.Host
}

// NewHandler creates a handler backed by h.
func NewHandler(h engine.Host) *Handler {
	return &Handler{host: h}
}

// NewRouter returns a router with every control route registered.
func NewRouter(h engine.Host) *mux.Router {
	r := mux.NewRouter()
	NewHandler(h).RegisterRoutes(r)
	return r
}

// RegisterRoutes registers the control routes on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/status", h.Status).Methods("GET")
	r.HandleFunc("/enable", h.Enable).Methods("POST")
	r.HandleFunc("/disable", h.Disable).Methods("POST")
	r.HandleFunc("/events", h.ListEvents).Methods("GET")
	r.HandleFunc("/events/{key}", h.TriggerEvent).Methods("POST")
	r.Handle("/metrics", promhttp.HandlerFor(h.host.Gatherer(), promhttp.HandlerOpts{})).Methods("GET")
}

// Health reports that the control surface is up.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Status returns the engine snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.host.Status())
}

// Enable sets the desired state to enabled.
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// Disable sets the desired state to disabled.
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

// setEnabled signals the engine directly, or with ?via=host asks the host
// to send the signal.
func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	via := r.URL.Query().Get("via")
	switch via {
	case "", "signal":
		via = "signal"
		h.host.NotifyEnabled(enabled)
	case "host":
		h.host.RequestEnabled(enabled)
	default:
		http.Error(w, "via must be signal or host", http.StatusBadRequest)
		return
	}

	h.host.Logger().Info("enable change requested over http",
		log.Bool("enabled", enabled),
		log.String("via", via),
		log.String("remote", r.RemoteAddr))

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"enabled": enabled,
		"via":     via,
	})
}

// ListEvents returns the registered events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": h.host.Events(),
	})
}

// triggerRequest is the optional body of an event trigger.
type triggerRequest struct {
	Args []interface{} `json:"args"`
}

// TriggerEvent fires the event named in the path. The response reports
// whether the default handler ran.
func (h *Handler) TriggerEvent(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if !h.known(key) {
		http.Error(w, "Event not found", http.StatusNotFound)
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ctx := log.WithScope(r.Context(), log.Scope{Component: "httpapi", Operation: "trigger " + key})
	ran := h.host.Trigger(ctx, key, req.Args...)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"event":       key,
		"default_ran": ran,
	})
}

func (h *Handler) known(key string) bool {
	for _, ev := range h.host.Events() {
		if ev.Key == key {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
