package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/nodalwatch/sentinel/internal/monitor"
	"github.com/nodalwatch/sentinel/internal/monitor/memstore"
)

func newTestRouter(adminToken string) (*chi.Mux, monitor.Store) {
	store := memstore.New()
	api := New(nil, store, nil)
	r := chi.NewRouter()
	api.RegisterRoutes(r, adminToken)
	return r, store
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandlePing_Success(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter("")
	w := doJSON(t, r, http.MethodPost, "/api/ping", map[string]any{
		"server": map[string]string{"name": "web-1", "key": "secret"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestHandlePing_MalformedBody(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter("")
	req := httptest.NewRequest(http.MethodPost, "/api/ping", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleSetServiceStatus_KeyMismatchIs403(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter("")
	doJSON(t, r, http.MethodPost, "/api/ping", map[string]any{
		"server": map[string]string{"name": "web-1", "key": "secret"},
	})

	w := doJSON(t, r, http.MethodPost, "/api/set/service/status", map[string]any{
		"server": map[string]string{"name": "web-1", "key": "wrong"},
		"period": 60,
		"services": []map[string]any{
			{"name": "nginx", "state": "OK"},
		},
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleStatus_ListsServersAndServices(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter("")
	doJSON(t, r, http.MethodPost, "/api/set/service/status", map[string]any{
		"server": map[string]string{"name": "web-1", "key": "secret"},
		"period": 60,
		"services": []map[string]any{
			{"name": "nginx", "state": "OK"},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/ui/api/status", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if servers, ok := resp["servers"].([]any); !ok || len(servers) != 1 {
		t.Errorf("servers = %v, want one entry", resp["servers"])
	}
}

func TestHandleDeleteServer_RequiresBearerToken(t *testing.T) {
	t.Parallel()

	r, store := newTestRouter("topsecret")
	srv, err := store.CreateServer(t.Context(), "web-1", "key", "")
	if err != nil {
		t.Fatalf("CreateServer() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/ui/api/item/server/"+itoa(srv.ID), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized && w.Code != http.StatusForbidden {
		t.Errorf("status without token = %d, want 401 or 403", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/ui/api/item/server/"+itoa(srv.ID), nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status with valid token = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleDeleteServer_DisabledWithoutAdminToken(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter("")
	req := httptest.NewRequest(http.MethodDelete, "/ui/api/item/server/1", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when admin routes are disabled", w.Code)
	}
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
