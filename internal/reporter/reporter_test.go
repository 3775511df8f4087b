package reporter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPing_SendsIdentity(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ping" {
			t.Errorf("path = %q, want /api/ping", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"pong":1}`))
	}))
	defer srv.Close()

	c := New(srv.URL, ServerIdentity{Name: "web-1", Key: "secret"})
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	server, ok := gotBody["server"].(map[string]any)
	if !ok || server["name"] != "web-1" || server["key"] != "secret" {
		t.Errorf("request body server = %+v, want {name: web-1, key: secret}", gotBody["server"])
	}
}

func TestSetServiceStatus_SendsBatch(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, ServerIdentity{Name: "web-1", Key: "secret"})
	err := c.SetServiceStatus(context.Background(), 60, []ServiceReport{
		{Name: "nginx", State: "OK", Info: "fine"},
	})
	if err != nil {
		t.Fatalf("SetServiceStatus() error = %v", err)
	}

	if gotBody["period"].(float64) != 60 {
		t.Errorf("period = %v, want 60", gotBody["period"])
	}
	services, ok := gotBody["services"].([]any)
	if !ok || len(services) != 1 {
		t.Fatalf("services = %v, want one entry", gotBody["services"])
	}
}

func TestPost_NonSuccessStatusIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid server key"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, ServerIdentity{Name: "web-1", Key: "wrong"})
	err := c.Ping(context.Background())
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestSetAlerts_OptionalServiceField(t *testing.T) {
	t.Parallel()

	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, ServerIdentity{Name: "web-1", Key: "secret"})
	err := c.SetAlerts(context.Background(), []AlertReport{{Message: "server wide issue"}})
	if err != nil {
		t.Fatalf("SetAlerts() error = %v", err)
	}

	alerts := gotBody["alerts"].([]any)
	first := alerts[0].(map[string]any)
	if _, present := first["service"]; present {
		t.Errorf("alert body = %+v, want service field omitted when empty", first)
	}
}
