package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"game-battle-service/models"
	"game-battle-service/storage/storagetest"
)

type recordingCache struct {
	mu      sync.Mutex
	dropped []string
}

func (c *recordingCache) Invalidate(_ context.Context, deviceIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped = append(c.dropped, deviceIDs...)
}

type fakeSyncService struct {
	mu      sync.Mutex
	devices []RemoteDeviceProfile
	since   []string
	tokens  []string
}

func (f *fakeSyncService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.URL.Path != "/api/v1/public/devices" {
		http.NotFound(w, r)
		return
	}
	f.since = append(f.since, r.URL.Query().Get("since"))
	f.tokens = append(f.tokens, r.Header.Get("X-Service-Token"))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"devices": f.devices})
}

func TestSyncOnceUpsertsAndInvalidates(t *testing.T) {
	db := storagetest.NewDB(t).DB
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeSyncService{devices: []RemoteDeviceProfile{
		{DeviceID: "dev-a", GameSlug: "tactics-arena", DisplayName: "  Alice ", CreatedAt: t0, UpdatedAt: t0},
		{DeviceID: "dev-b", GameSlug: "tactics-arena", DisplayName: "Bob", CreatedAt: t0, UpdatedAt: t0.Add(time.Minute)},
		{DeviceID: "", DisplayName: "ghost"},
	}}
	srv := httptest.NewServer(svc)
	defer srv.Close()

	cache := &recordingCache{}
	w := NewProfileSyncWorker(db, srv.URL, "/api/v1/public/devices", "svc-token", time.Minute, cache)

	n, err := w.SyncOnce(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 upserts, got %d", n)
	}
	if len(cache.dropped) != 2 {
		t.Fatalf("expected both devices invalidated, got %v", cache.dropped)
	}
	if svc.tokens[0] != "svc-token" {
		t.Fatalf("service token not sent: %q", svc.tokens[0])
	}
	if svc.since[0] != time.Unix(0, 0).UTC().Format(time.RFC3339) {
		t.Fatalf("first sync should start from the epoch, got %q", svc.since[0])
	}

	var alice models.DeviceProfile
	if err := db.First(&alice, "device_id = ?", "dev-a").Error; err != nil {
		t.Fatalf("load dev-a: %v", err)
	}
	if alice.DisplayName != "Alice" {
		t.Fatalf("expected trimmed name, got %q", alice.DisplayName)
	}

	svc.mu.Lock()
	svc.devices = []RemoteDeviceProfile{
		{DeviceID: "dev-a", GameSlug: "tactics-arena", DisplayName: "Alicia", CreatedAt: t0, UpdatedAt: t0.Add(2 * time.Minute)},
	}
	svc.mu.Unlock()
	if _, err := w.SyncOnce(context.Background()); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if want := t0.Add(time.Minute).Format(time.RFC3339); svc.since[1] != want {
		t.Fatalf("second sync should resume from %s, got %q", want, svc.since[1])
	}
	if err := db.First(&alice, "device_id = ?", "dev-a").Error; err != nil {
		t.Fatalf("reload dev-a: %v", err)
	}
	if alice.DisplayName != "Alicia" {
		t.Fatalf("expected updated name, got %q", alice.DisplayName)
	}
	var count int64
	db.Model(&models.DeviceProfile{}).Count(&count)
	if count != 2 {
		t.Fatalf("expected 2 profiles, got %d", count)
	}
}

func TestSyncOnceReportsHTTPFailure(t *testing.T) {
	db := storagetest.NewDB(t).DB
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewProfileSyncWorker(db, srv.URL, "/devices", "", 0, nil)
	if _, err := w.SyncOnce(context.Background()); err == nil {
		t.Fatalf("expected error for 502 response")
	}
}

func TestSyncOnceEmptyFeed(t *testing.T) {
	db := storagetest.NewDB(t).DB
	srv := httptest.NewServer(&fakeSyncService{})
	defer srv.Close()

	w := NewProfileSyncWorker(db, srv.URL, "/api/v1/public/devices", "", 0, nil)
	n, err := w.SyncOnce(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got %d, %v", n, err)
	}
}
