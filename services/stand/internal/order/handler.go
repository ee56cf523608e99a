package order

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/go-chi/chi/v5"
)

const MaxBodyBytes = 1 << 20

type Handler struct {
	cashier    *Cashier
	completer  *Completer
	reconciler *Reconciler
	logger     apt.Logger
}

type HandlerDeps struct {
	Cashier    *Cashier
	Completer  *Completer
	Reconciler *Reconciler
}

func NewHandler(deps HandlerDeps, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		cashier:    deps.Cashier,
		completer:  deps.Completer,
		reconciler: deps.Reconciler,
		logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/drafts", func(r chi.Router) {
		r.Post("/", h.OpenDraft)
		r.Get("/", h.ListDrafts)
		r.Get("/{id}", h.GetDraft)
		r.Patch("/{id}", h.UpdateDraftDetails)
		r.Delete("/{id}", h.DiscardDraft)
		r.Put("/{id}/items", h.SetDraftQuantity)
		r.Post("/{id}/review", h.ReviewDraft)
		r.Post("/{id}/confirm", h.ConfirmDraft)
		r.Post("/{id}/cancel", h.CancelDraft)
	})

	r.Post("/orders/{id}/complete", h.CompleteOrder)
	r.Patch("/orders/{id}/categories/{category}", h.ToggleCategory)
	r.Post("/specialty/{id}/complete", h.CompleteSpecialty)

	r.Route("/undo", func(r chi.Router) {
		r.Get("/", h.ListUndo)
		r.Post("/{key}", h.Undo)
		r.Delete("/{key}", h.DismissUndo)
	})

	r.Post("/reconcile", h.Reconcile)
}

type QuantityRequest struct {
	Category string `json:"category"`
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

type CompleteRequest struct {
	Number int `json:"number"`
}

type ToggleRequest struct {
	Done bool `json:"done"`
}

// Draft handlers

func (h *Handler) OpenDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.cashier.Open()
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	apt.Respond(w, http.StatusCreated, d, nil)
}

func (h *Handler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	apt.RespondCollection(w, h.cashier.List(), "draft")
}

func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.cashier.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	apt.RespondSuccess(w, d)
}

func (h *Handler) UpdateDraftDetails(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)
	req, ok := decodePayload[Details](w, r, log)
	if !ok {
		return
	}

	d, err := h.cashier.SetDetails(chi.URLParam(r, "id"), req)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	apt.RespondSuccess(w, d)
}

func (h *Handler) DiscardDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.cashier.Discard(chi.URLParam(r, "id")); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetDraftQuantity(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)
	req, ok := decodePayload[QuantityRequest](w, r, log)
	if !ok {
		return
	}
	if req.Category == "" || req.Item == "" {
		apt.RespondError(w, http.StatusBadRequest, "category and item are required")
		return
	}

	d, err := h.cashier.SetQuantity(chi.URLParam(r, "id"), req.Category, req.Item, req.Quantity)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	apt.RespondSuccess(w, d)
}

func (h *Handler) ReviewDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.cashier.Review(chi.URLParam(r, "id"))
	if errors.Is(err, ErrInvalidDraft) {
		respondValidationErrors(w, d.Errors)
		return
	}
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	apt.RespondSuccess(w, d)
}

func (h *Handler) ConfirmDraft(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)
	id := chi.URLParam(r, "id")

	orderID, d, err := h.cashier.Confirm(r.Context(), id)
	if errors.Is(err, ErrSpecialtyOrphaned) {
		log.Error("order confirmed without specialty record", "order_id", orderID, "error", err)
		apt.Respond(w, http.StatusCreated, map[string]any{"order_id": orderID, "draft": d}, map[string]any{
			"warning": "Specialty record could not be created; it will be repaired by reconciliation",
		})
		return
	}
	if err != nil {
		h.respondErr(w, r, err)
		return
	}

	log.Info("order confirmed", "draft", id, "order_id", orderID)
	apt.Respond(w, http.StatusCreated, map[string]any{"order_id": orderID, "draft": d}, nil)
}

func (h *Handler) CancelDraft(w http.ResponseWriter, r *http.Request) {
	d, err := h.cashier.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	apt.RespondSuccess(w, d)
}

// Completion handlers

func (h *Handler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)
	req, ok := decodeOptionalPayload[CompleteRequest](w, r, log)
	if !ok {
		return
	}

	a, err := h.completer.CompleteOrder(r.Context(), chi.URLParam(r, "id"), req.Number)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	apt.RespondSuccess(w, a)
}

func (h *Handler) CompleteSpecialty(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)
	req, ok := decodeOptionalPayload[CompleteRequest](w, r, log)
	if !ok {
		return
	}

	a, err := h.completer.CompleteSpecialty(r.Context(), chi.URLParam(r, "id"), req.Number)
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	apt.RespondSuccess(w, a)
}

func (h *Handler) ToggleCategory(w http.ResponseWriter, r *http.Request) {
	log := h.log(r)
	req, ok := decodePayload[ToggleRequest](w, r, log)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	category := chi.URLParam(r, "category")
	if err := h.completer.ToggleCategory(r.Context(), id, category, req.Done); err != nil {
		h.respondErr(w, r, err)
		return
	}
	apt.RespondSuccess(w, map[string]any{"id": id, "category": category, "done": req.Done})
}

func (h *Handler) ListUndo(w http.ResponseWriter, r *http.Request) {
	pending, err := h.completer.Pending(r.Context())
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	apt.Respond(w, http.StatusOK, pending, map[string]any{"count": len(pending)})
}

func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	a, err := h.completer.Undo(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		h.respondErr(w, r, err)
		return
	}
	apt.RespondSuccess(w, a)
}

func (h *Handler) DismissUndo(w http.ResponseWriter, r *http.Request) {
	if err := h.completer.Dismiss(r.Context(), chi.URLParam(r, "key")); err != nil {
		h.respondErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Run(r.Context())
	if err != nil {
		h.log(r).Error("reconcile failed", "error", err)
		apt.Respond(w, http.StatusInternalServerError, report, map[string]any{"error": err.Error()})
		return
	}
	apt.RespondSuccess(w, report)
}

// Helpers

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", apt.RequestIDFrom(r.Context()))
}

func (h *Handler) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrDraftNotFound), errors.Is(err, docstore.ErrNotFound), errors.Is(err, ErrUnknownCategory):
		status = http.StatusNotFound
	case errors.Is(err, ErrCatalogLoading):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ErrNotReviewed), errors.Is(err, ErrSubmitting):
		status = http.StatusConflict
	case errors.Is(err, ErrUndoExpired):
		status = http.StatusGone
	case errors.Is(err, docstore.ErrInvalidPath), errors.Is(err, ErrSpecialtyToggle), errors.Is(err, ErrMissingIdentifier):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		h.log(r).Error("request failed", "path", r.URL.Path, "error", err)
	} else {
		h.log(r).Debug("request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	apt.RespondError(w, status, err.Error())
}

func respondValidationErrors(w http.ResponseWriter, errs []ValidationError) {
	details := make([]apt.ValidationError, 0, len(errs))
	for _, ve := range errs {
		details = append(details, apt.ValidationError{Field: ve.Field, Code: "invalid", Message: ve.Message})
	}
	apt.Error(w, http.StatusUnprocessableEntity, "validation_failed", "Order is not valid", details...)
}

func decodePayload[T any](w http.ResponseWriter, r *http.Request, log apt.Logger) (T, bool) {
	var req T
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Debug("failed to read request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Failed to read request body")
		return req, false
	}

	if err := json.Unmarshal(body, &req); err != nil {
		log.Debug("failed to decode request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return req, false
	}
	return req, true
}

// decodeOptionalPayload accepts an empty body as the zero request.
func decodeOptionalPayload[T any](w http.ResponseWriter, r *http.Request, log apt.Logger) (T, bool) {
	var zero T
	if r.Body == nil || r.ContentLength == 0 {
		return zero, true
	}
	return decodePayload[T](w, r, log)
}
