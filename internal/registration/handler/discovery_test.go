package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/homegate/registration-server/internal/registration/model"
)

// registerFrom registers the record behind token from the given client address.
func registerFrom(t *testing.T, router *gin.Engine, token, localIP, remoteAddr string) {
	t.Helper()
	w := do(router, "/register?token="+token+"&local_ip="+localIP, remoteAddr)
	if w.Code != http.StatusOK {
		t.Fatalf("register: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func decodeDiscovered(t *testing.T, body []byte) []model.Discovered {
	t.Helper()
	var results []model.Discovered
	if err := json.Unmarshal(body, &results); err != nil {
		t.Fatalf("decode discovered: %v: %s", err, body)
	}
	return results
}

func TestPing(t *testing.T) {
	router := setupTestRouter(t)
	alpha := subscribe(t, router, "alpha")
	beta := subscribe(t, router, "beta")
	registerFrom(t, router, alpha.Token, "10.0.0.2", "203.0.113.5:1000")
	registerFrom(t, router, beta.Token, "10.0.0.3", "198.51.100.7:1000")

	w := do(router, "/ping", "203.0.113.5:2000")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	results := decodeDiscovered(t, w.Body.Bytes())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d: %v", len(results), results)
	}
	if results[0].Href != "https://local.alpha.box.example.com" {
		t.Errorf("href: got %q", results[0].Href)
	}
	if results[0].Desc != "alpha's server" {
		t.Errorf("desc: got %q", results[0].Desc)
	}
}

func TestPing_emptyArray(t *testing.T) {
	router := setupTestRouter(t)

	w := do(router, "/ping", "203.0.113.5:2000")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	// An empty result must serialize as [], not null.
	if got := w.Body.String(); got != "[]" {
		t.Errorf("body: got %s, want []", got)
	}
}

func TestAddAndDiscover(t *testing.T) {
	router := setupTestRouter(t)
	alpha := subscribe(t, router, "alpha")
	registerFrom(t, router, alpha.Token, "10.0.0.2", "203.0.113.5:1000")

	if w := do(router, "/adddiscovery?token="+alpha.Token+"&disco=d1", ""); w.Code != http.StatusOK {
		t.Fatalf("adddiscovery: expected 200, got %d", w.Code)
	}

	// Same public network: local name.
	w := do(router, "/discovery?disco=d1", "203.0.113.5:2000")
	results := decodeDiscovered(t, w.Body.Bytes())
	if len(results) != 1 || results[0].Href != "https://local.alpha.box.example.com" {
		t.Errorf("same-network discovery: got %v", results)
	}

	// Different network: remote name fallback.
	w = do(router, "/discovery?disco=d1", "198.51.100.7:2000")
	results = decodeDiscovered(t, w.Body.Bytes())
	if len(results) != 1 || results[0].Href != "https://alpha.box.example.com" {
		t.Errorf("cross-network discovery: got %v", results)
	}
}

func TestAddDiscovery_badRequests(t *testing.T) {
	router := setupTestRouter(t)

	if w := do(router, "/adddiscovery?disco=d1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing token: expected 400, got %d", w.Code)
	}
	if w := do(router, "/adddiscovery?token=nope&disco=d1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown token: expected 400, got %d", w.Code)
	}
}

func TestRevokeDiscovery(t *testing.T) {
	router := setupTestRouter(t)
	alpha := subscribe(t, router, "alpha")
	do(router, "/adddiscovery?token="+alpha.Token+"&disco=d1", "")

	if w := do(router, "/revokediscovery?token="+alpha.Token+"&disco=d1", ""); w.Code != http.StatusOK {
		t.Fatalf("revokediscovery: expected 200, got %d", w.Code)
	}
	if w := do(router, "/discovery?disco=d1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("discovery after revoke: expected 400, got %d", w.Code)
	}
}

func TestRevokeDiscovery_foreignToken(t *testing.T) {
	router := setupTestRouter(t)
	alpha := subscribe(t, router, "alpha")
	beta := subscribe(t, router, "beta")
	do(router, "/adddiscovery?token="+alpha.Token+"&disco=d1", "")

	if w := do(router, "/revokediscovery?token="+beta.Token+"&disco=d1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("foreign revoke: expected 400, got %d", w.Code)
	}
}

func TestDiscovery_missingOrUnknown(t *testing.T) {
	router := setupTestRouter(t)

	if w := do(router, "/discovery", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing disco: expected 400, got %d", w.Code)
	}
	if w := do(router, "/discovery?disco=ghost", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown disco: expected 400, got %d", w.Code)
	}
}
