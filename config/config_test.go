package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Port != 5200 {
		t.Fatalf("expected default port 5200, got %d", cfg.Port)
	}
	if cfg.MaxActiveBattles != 9 {
		t.Fatalf("expected default cap 9, got %d", cfg.MaxActiveBattles)
	}
	if cfg.ReconcileInterval != time.Hour {
		t.Fatalf("expected 1h reconcile interval, got %v", cfg.ReconcileInterval)
	}
	if cfg.R2.Enabled() {
		t.Fatal("archive should be disabled without bucket")
	}
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("MAX_ACTIVE_BATTLES", "3")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("R2_BUCKET_NAME", "archive")
	t.Setenv("R2_ACCESS_KEY_ID", "key")
	t.Setenv("R2_ACCOUNT_ID", "acct")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.MaxActiveBattles != 3 {
		t.Fatalf("expected cap 3, got %d", cfg.MaxActiveBattles)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.AllowedOrigins)
	}
	if !cfg.R2.Enabled() {
		t.Fatal("expected archive enabled")
	}
	if got := cfg.R2.EndpointURL(); got != "https://acct.r2.cloudflarestorage.com" {
		t.Fatalf("unexpected endpoint %q", got)
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	t.Setenv("MAX_ACTIVE_BATTLES", "0")
	if _, err := Parse(); err == nil {
		t.Fatal("expected error for zero cap")
	}

	t.Setenv("MAX_ACTIVE_BATTLES", "many")
	_, err := Parse()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

func TestCatalog(t *testing.T) {
	raw := []byte(`
games:
  - slug: tactics-arena
    name: Tactics Arena
    capabilities: [async_battles, data_store]
  - slug: puzzle-rush
    capabilities: [leaderboard]
`)
	cat, err := ParseCatalog(raw)
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	g, ok := cat.Lookup("tactics-arena")
	if !ok {
		t.Fatal("expected tactics-arena")
	}
	if !g.Has(CapabilityAsyncBattles) || g.Has(CapabilityLeaderboard) {
		t.Fatalf("unexpected capabilities: %v", g.Capabilities)
	}
	if _, ok := cat.Lookup("missing"); ok {
		t.Fatal("unexpected lookup hit")
	}
	if len(cat.Slugs()) != 2 {
		t.Fatalf("expected 2 slugs, got %v", cat.Slugs())
	}
}

func TestCatalogValidation(t *testing.T) {
	cases := map[string]string{
		"bad slug":       "games:\n  - slug: Bad Slug\n",
		"duplicate":      "games:\n  - slug: a\n  - slug: a\n",
		"unknown cap":    "games:\n  - slug: a\n    capabilities: [teleport]\n",
		"malformed yaml": "games: [",
	}
	for name, doc := range cases {
		if _, err := ParseCatalog([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.yaml")
	if err := os.WriteFile(path, []byte("games:\n  - slug: demo\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := cat.Lookup("demo"); !ok {
		t.Fatal("expected demo game")
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
