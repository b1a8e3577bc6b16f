package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestHandleOpenAPI(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/openapi.json", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Content-Type"); !strings.Contains(got, "application/json") {
		t.Fatalf("content-type = %q, want application/json", got)
	}

	var doc struct {
		OpenAPI string                     `json:"openapi"`
		Paths   map[string]json.RawMessage `json:"paths"`
	}
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		t.Errorf("openapi = %q", doc.OpenAPI)
	}
	for _, p := range []string{
		"/healthz",
		"/api/sessions",
		"/api/sessions/{sessionID}/tasks/{position}/complete",
		"/api/sessions/{sessionID}/shop/purchase",
		"/api/sessions/{sessionID}/treasure/{stop}/found",
		"/api/admin/sessions/{sessionID}/balance",
	} {
		if _, ok := doc.Paths[p]; !ok {
			t.Errorf("missing path %s", p)
		}
	}
}

func TestSwaggerUI(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodGet, "/docs/", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Content-Type"); !strings.Contains(got, "text/html") {
		t.Fatalf("content-type = %q, want text/html", got)
	}
	if !strings.Contains(w.Body.String(), "/openapi.json") {
		t.Fatalf("body missing /openapi.json")
	}
}
