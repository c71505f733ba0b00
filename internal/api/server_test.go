package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"hubward/internal/api"
	"hubward/internal/catalog"
	"hubward/internal/events"
	"hubward/internal/logging"
	"hubward/internal/scoring"
	"hubward/internal/testsupport"
)

func newTestServer(t *testing.T, token string) (*api.Server, *catalog.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	server := api.NewServer(api.Options{
		Bind:            "127.0.0.1:0",
		Token:           token,
		Version:         "test",
		Store:           store,
		Bus:             events.NewBus(logging.NewNop()),
		ScoringConfig:   scoring.DefaultConfig(),
		ProviderWeights: map[string]float64{"filesystem": 1.0},
		ScanRoot:        cfg.WatchRoot,
		Logger:          logging.NewNop(),
	})
	if server == nil {
		t.Fatal("expected server")
	}
	return server, store
}

func TestStatusEndpointIsPublic(t *testing.T) {
	server, _ := newTestServer(t, "secret")
	req := httptest.NewRequest(http.MethodGet, "/system/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["status"] != "ok" || payload["version"] != "test" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestProtectedEndpointsRequireToken(t *testing.T) {
	server, _ := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/hubs", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/hubs", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", rec.Code)
	}
}

func TestSearchRequiresTwoCharacters(t *testing.T) {
	server, store := newTestServer(t, "")
	if _, err := store.CreateHub(context.Background(), "Dune", ""); err != nil {
		t.Fatalf("CreateHub failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/hubs/search?q=d", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for one-character query, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/hubs/search?q=du", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Dune") {
		t.Fatalf("expected Dune in results, got %s", rec.Body.String())
	}
}

func TestLockClaimAppendsAndRescores(t *testing.T) {
	server, store := newTestServer(t, "")
	ctx := context.Background()

	entityID := "edition-1"
	for _, value := range []string{"Dune", "Dune: Book One"} {
		claim := &catalog.Claim{
			EntityID:   entityID,
			ProviderID: "filesystem",
			Key:        "title",
			Value:      value,
			Confidence: 1.0,
		}
		if err := store.AppendClaim(ctx, claim); err != nil {
			t.Fatalf("AppendClaim failed: %v", err)
		}
	}

	body := `{"entity_id":"edition-1","key":"title","value":"Dune (Special Edition)"}`
	req := httptest.NewRequest(http.MethodPatch, "/metadata/lock-claim", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	claims, err := store.ListClaims(ctx, entityID)
	if err != nil {
		t.Fatalf("ListClaims failed: %v", err)
	}
	if len(claims) != 3 {
		t.Fatalf("expected appended claim, got %d claims", len(claims))
	}
	locked := claims[len(claims)-1]
	if !locked.IsUserLocked || locked.Confidence != 1.0 {
		t.Fatalf("expected locked claim with confidence 1.0, got %#v", locked)
	}

	values, err := store.CanonicalValuesFor(ctx, entityID)
	if err != nil {
		t.Fatalf("CanonicalValuesFor failed: %v", err)
	}
	if values["title"] != "Dune (Special Edition)" {
		t.Fatalf("expected locked value to win, got %q", values["title"])
	}
}

func TestResolveUpsertsCanonicalValue(t *testing.T) {
	server, store := newTestServer(t, "")

	body := `{"entity_id":"edition-1","key":"title","value":"Dune"}`
	req := httptest.NewRequest(http.MethodPatch, "/metadata/resolve", strings.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	values, err := store.CanonicalValuesFor(context.Background(), "edition-1")
	if err != nil {
		t.Fatalf("CanonicalValuesFor failed: %v", err)
	}
	if values["title"] != "Dune" {
		t.Fatalf("expected manual canonical value, got %#v", values)
	}
}

func TestEventsStreamDeliversPublishedEvents(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	bus := events.NewBus(logging.NewNop())
	server := api.NewServer(api.Options{
		Bind:    "127.0.0.1:0",
		Version: "test",
		Store:   store,
		Bus:     bus,
		Logger:  logging.NewNop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		server.Handler().ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	bus.Publish(events.MediaAdded, events.Payload{"asset_id": "a1"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := rec.Body.String()
	if !strings.Contains(body, "event: MediaAdded") || !strings.Contains(body, "a1") {
		t.Fatalf("expected SSE frame, got %q", body)
	}
}
