package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// Capabilities a game can enable. Endpoints for a capability are rejected for games without it.
const (
	CapabilityAsyncBattles = "async_battles"
	CapabilityDataStore    = "data_store"
	CapabilityLeaderboard  = "leaderboard"
)

var knownCapabilities = map[string]bool{
	CapabilityAsyncBattles: true,
	CapabilityDataStore:    true,
	CapabilityLeaderboard:  true,
}

// GameEntry is one game in the catalog file.
type GameEntry struct {
	Slug         string   `yaml:"slug"`
	Name         string   `yaml:"name"`
	Capabilities []string `yaml:"capabilities"`
}

// Has reports whether the game enables capability.
func (g GameEntry) Has(capability string) bool {
	for _, c := range g.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Catalog maps game slug to its entry.
type Catalog struct {
	games map[string]GameEntry
}

// NewCatalog validates entries and builds a catalog.
func NewCatalog(entries []GameEntry) (*Catalog, error) {
	c := &Catalog{games: make(map[string]GameEntry, len(entries))}
	for _, e := range entries {
		e.Slug = strings.TrimSpace(e.Slug)
		if !slug.IsSlug(e.Slug) {
			return nil, fmt.Errorf("invalid game slug %q (suggested %q)", e.Slug, slug.Make(e.Slug))
		}
		if _, dup := c.games[e.Slug]; dup {
			return nil, fmt.Errorf("duplicate game slug %q", e.Slug)
		}
		for _, capability := range e.Capabilities {
			if !knownCapabilities[capability] {
				return nil, fmt.Errorf("game %q: unknown capability %q", e.Slug, capability)
			}
		}
		c.games[e.Slug] = e
	}
	return c, nil
}

// ParseCatalog decodes the YAML catalog document.
func ParseCatalog(raw []byte) (*Catalog, error) {
	var doc struct {
		Games []GameEntry `yaml:"games"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode game catalog: %w", err)
	}
	return NewCatalog(doc.Games)
}

// LoadCatalog reads and parses the catalog file at path.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read game catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// Lookup returns the entry for slug.
func (c *Catalog) Lookup(gameSlug string) (GameEntry, bool) {
	if c == nil {
		return GameEntry{}, false
	}
	g, ok := c.games[gameSlug]
	return g, ok
}

// Slugs returns every configured slug.
func (c *Catalog) Slugs() []string {
	out := make([]string, 0, len(c.games))
	for s := range c.games {
		out = append(out, s)
	}
	return out
}
