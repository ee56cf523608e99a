package menu

import (
	"net/http"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/pkg/enums/zone"
	"github.com/go-chi/chi/v5"
)

type Handler struct {
	provider *Provider
	logger   apt.Logger
}

func NewHandler(provider *Provider, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{provider: provider, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/menu", h.GetMenu)
	r.Get("/zones", h.ListZones)
}

func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	catalog, loaded := h.provider.Current()
	if !loaded {
		apt.Respond(w, http.StatusOK, Catalog{Categories: []Category{}}, map[string]any{"loading": true})
		return
	}
	apt.Respond(w, http.StatusOK, catalog, map[string]any{"loading": false})
}

func (h *Handler) ListZones(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(zone.All))
	for _, z := range zone.All {
		names = append(names, z.Code())
	}
	apt.RespondCollection(w, names, "zone")
}
