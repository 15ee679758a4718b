package channel

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-invoice/backend/internal/model/channel"
)

func setupRouter() *chi.Mux {
	r := chi.NewRouter()
	New(channel.NewMemoryStore(channel.Seed())).RegisterRoutes(r)
	return r
}

func TestListChannels(t *testing.T) {
	r := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/channels", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var profiles []channel.Profile
	if err := json.Unmarshal(resp.Body.Bytes(), &profiles); err != nil {
		t.Fatalf("decode profiles: %v", err)
	}
	if len(profiles) != len(channel.Seed()) {
		t.Fatalf("expected %d profiles, got %d", len(channel.Seed()), len(profiles))
	}
}

func TestGetChannel(t *testing.T) {
	r := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/channels/whatsapp", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/channels/fax", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
