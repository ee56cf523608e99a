package order

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/appetiteclub/stand/services/stand/internal/docstore"
	"github.com/appetiteclub/stand/services/stand/internal/undo"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"details"`
	} `json:"error"`
}

func (e envelope) detail(field string) string {
	if e.Error == nil {
		return ""
	}
	for _, d := range e.Error.Details {
		if d.Field == field {
			return d.Message
		}
	}
	return ""
}

type handlerFixture struct {
	store  *MockStore
	clock  *testClock
	router chi.Router
}

func newHandlerFixture() *handlerFixture {
	store := NewMockStore()
	clock := newTestClock()
	h := NewHandler(HandlerDeps{
		Cashier:    newTestCashier(store),
		Completer:  NewCompleter(store, undo.NewMemory(clock.Now), nil),
		Reconciler: NewReconciler(store, nil),
	}, nil)

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return &handlerFixture{store: store, clock: clock, router: r}
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		reader = &buf
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func TestNewHandler(t *testing.T) {
	h := NewHandler(HandlerDeps{}, nil)
	require.NotNil(t, h)
	assert.NotNil(t, h.logger)
}

func TestHandlerCashierFlow(t *testing.T) {
	f := newHandlerFixture()

	code, env := f.do(t, http.MethodPost, "/drafts", nil)
	require.Equal(t, http.StatusCreated, code)
	var draft Draft
	require.NoError(t, json.Unmarshal(env.Data, &draft))

	code, _ = f.do(t, http.MethodPut, "/drafts/"+draft.ID+"/items", QuantityRequest{Category: "Food", Item: "Burger", Quantity: 2})
	require.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodPut, "/drafts/"+draft.ID+"/items", QuantityRequest{Category: "Drinks", Item: "Soda", Quantity: 1})
	require.Equal(t, http.StatusOK, code)

	code, env = f.do(t, http.MethodPost, "/drafts/"+draft.ID+"/review", nil)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_failed", env.Error.Code)
	assert.Equal(t, MsgNumberRequired, env.detail("number"))

	code, _ = f.do(t, http.MethodPatch, "/drafts/"+draft.ID, map[string]any{"number": 3, "discount": "1.00", "zone": "inside"})
	require.Equal(t, http.StatusOK, code)

	code, env = f.do(t, http.MethodPost, "/drafts/"+draft.ID+"/review", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &draft))
	require.NotNil(t, draft.Candidate)
	assert.Equal(t, "21", draft.Candidate.Price.String())

	code, env = f.do(t, http.MethodPost, "/drafts/"+draft.ID+"/confirm", nil)
	require.Equal(t, http.StatusCreated, code)
	var confirmed struct {
		OrderID string `json:"order_id"`
		Draft   Draft  `json:"draft"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &confirmed))
	require.NotEmpty(t, confirmed.OrderID)
	assert.Equal(t, 0, confirmed.Draft.Form.Selection.Quantity("Food", "Burger"))
	assert.Equal(t, 1, f.store.Count(OrdersCollection))

	code, _ = f.do(t, http.MethodPost, "/drafts/"+draft.ID+"/confirm", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestHandlerCompleteAndUndo(t *testing.T) {
	f := newHandlerFixture()
	id := submitTestOrder(t, f.store, map[string]map[string]int{"Food": {"Burger": 1}})

	code, env := f.do(t, http.MethodPost, "/orders/"+id+"/complete", CompleteRequest{Number: 11})
	require.Equal(t, http.StatusOK, code)
	var a undo.Affordance
	require.NoError(t, json.Unmarshal(env.Data, &a))
	assert.Equal(t, id, a.Key)
	assert.Equal(t, 11, a.Number)

	code, env = f.do(t, http.MethodGet, "/undo", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, env.Meta["count"])

	code, _ = f.do(t, http.MethodPost, "/undo/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, getOrder(t, f.store.Memory, id).Completed)

	code, _ = f.do(t, http.MethodPost, "/undo/"+id, nil)
	assert.Equal(t, http.StatusGone, code)
}

func TestHandlerSpecialtyAndToggle(t *testing.T) {
	f := newHandlerFixture()
	id := submitTestOrder(t, f.store, map[string]map[string]int{
		"Food":      {"Burger": 1},
		"Specialty": {"CustomCake": 1},
	})

	code, _ := f.do(t, http.MethodPost, "/specialty/"+id+"/complete", nil)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, getSpecialty(t, f.store.Memory, id).Done)

	code, _ = f.do(t, http.MethodPatch, "/orders/"+id+"/categories/Food", ToggleRequest{Done: true})
	require.Equal(t, http.StatusOK, code)
	assert.True(t, getOrder(t, f.store.Memory, id).Categories["Food"].Done)

	code, _ = f.do(t, http.MethodPatch, "/orders/"+id+"/categories/Specialty", ToggleRequest{Done: false})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodPatch, "/orders/missing/categories/Food", ToggleRequest{Done: true})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHandlerSurfacesWriteFailures(t *testing.T) {
	f := newHandlerFixture()
	id := submitTestOrder(t, f.store, map[string]map[string]int{"Food": {"Burger": 1}})
	f.store.UpdateFunc = func(ctx context.Context, collection, id string, fields docstore.Fields) error {
		return errors.New("store unavailable")
	}

	code, env := f.do(t, http.MethodPost, "/orders/"+id+"/complete", nil)
	assert.Equal(t, http.StatusInternalServerError, code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "store unavailable")
}

func TestHandlerInvalidJSON(t *testing.T) {
	f := newHandlerFixture()
	code, env := f.do(t, http.MethodPost, "/drafts", nil)
	require.Equal(t, http.StatusCreated, code)
	var draft Draft
	require.NoError(t, json.Unmarshal(env.Data, &draft))

	req := httptest.NewRequest(http.MethodPut, "/drafts/"+draft.ID+"/items", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerReconcile(t *testing.T) {
	f := newHandlerFixture()
	submitTestOrder(t, f.store, map[string]map[string]int{"Specialty": {"CustomCake": 1}})

	code, env := f.do(t, http.MethodPost, "/reconcile", nil)
	require.Equal(t, http.StatusOK, code)
	var report Report
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 0, report.Created)
}
