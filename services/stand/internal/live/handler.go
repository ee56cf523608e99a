package live

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const keepaliveInterval = 30 * time.Second

// Handler serves the shared views and streams per-connection views over SSE.
type Handler struct {
	views     *Set
	store     docstore.Store
	catalog   CatalogSource
	logger    apt.Logger
	keepalive time.Duration
}

func NewHandler(views *Set, store docstore.Store, catalog CatalogSource, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		views:     views,
		store:     store,
		catalog:   catalog,
		logger:    logger,
		keepalive: keepaliveInterval,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/views", func(r chi.Router) {
		r.Get("/", h.ListViews)
		r.Get("/{kind}", h.GetView)
		r.Get("/{kind}/stream", h.StreamView)
	})
}

func (h *Handler) ListViews(w http.ResponseWriter, r *http.Request) {
	apt.RespondCollection(w, Kinds, "view")
}

func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	v, ok := h.views.Get(chi.URLParam(r, "kind"))
	if !ok {
		apt.RespondError(w, http.StatusNotFound, "unknown view")
		return
	}
	apt.RespondSuccess(w, v.Snapshot())
}

// StreamView opens a view of its own for the connection and sends every
// state as a snapshot event. The view is stopped when the client leaves.
func (h *Handler) StreamView(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	view, ok := New(kind, h.store, h.catalog, h.logger)
	if !ok {
		apt.RespondError(w, http.StatusNotFound, "unknown view")
		return
	}

	subscriberID := uuid.NewString()
	log := h.logger.With("request_id", apt.RequestIDFrom(r.Context()), "subscriber_id", subscriberID, "view", kind)

	if err := view.Start(r.Context()); err != nil {
		log.Error("cannot start view stream", "error", err)
		apt.RespondError(w, http.StatusServiceUnavailable, "view unavailable")
		return
	}
	defer view.Stop(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	log.Info("new SSE connection")

	fmt.Fprintf(w, ": connected\n\n")
	fmt.Fprintf(w, "retry: 2000\n\n")
	if err := sendSnapshot(w, view.Snapshot()); err != nil {
		log.Error("cannot encode snapshot", "error", err)
		return
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			log.Info("SSE client disconnected")
			return

		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flush(w)

		case _, ok := <-view.Changed():
			if !ok {
				return
			}
			if err := sendSnapshot(w, view.Snapshot()); err != nil {
				log.Error("cannot encode snapshot", "error", err)
				return
			}
		}
	}
}

func sendSnapshot(w http.ResponseWriter, state any) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	sendSSEEvent(w, "snapshot", string(data))
	return nil
}

// sendSSEEvent writes one event, prefixing every line of data.
func sendSSEEvent(w http.ResponseWriter, eventType string, data string) {
	data = strings.TrimSpace(data)

	fmt.Fprintf(w, "event: %s\n", eventType)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprintf(w, "\n")
	flush(w)
}

func flush(w http.ResponseWriter) {
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
