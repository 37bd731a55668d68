package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/couchplay/server/game/engine"
)

var (
	ErrGameNotFound   = errors.New("game not found")
	ErrInvalidGameDef = errors.New("invalid game definition")
)

// GameDef describes one playable game to lobby clients: how many
// controllers it needs and what to show on the display before start.
type GameDef struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MinPlayers  int      `json:"minPlayers"`
	MaxPlayers  int      `json:"maxPlayers"`
	Rules       []string `json:"rules,omitempty"`
	Thumbnail   string   `json:"thumbnail,omitempty"`
}

// Catalog holds the game definitions served to clients. It starts from the
// built-in set and lets a definitions directory override or extend it.
type Catalog struct {
	mu    sync.RWMutex
	games map[string]*GameDef
}

// Builtin returns a catalog with the shipped game set.
func Builtin() *Catalog {
	c := &Catalog{games: make(map[string]*GameDef)}
	for _, def := range builtinDefs() {
		c.games[def.ID] = def
	}
	return c
}

// Load builds a catalog from the built-in set plus JSON override files in
// dir. Each *.json file holds one GameDef; a file whose id matches a
// built-in game replaces it wholesale.
func Load(dir string) (*Catalog, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, fmt.Errorf("catalog directory does not exist: %s", dir)
	}

	c := Builtin()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		var def GameDef
		if err := json.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		if err := validateDef(&def); err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}

		c.mu.Lock()
		c.games[def.ID] = &def
		c.mu.Unlock()
	}

	return c, nil
}

// Get returns the definition for a game id.
func (c *Catalog) Get(id string) (*GameDef, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	def, ok := c.games[id]
	if !ok {
		return nil, ErrGameNotFound
	}
	return def, nil
}

// List returns all definitions sorted by id.
func (c *Catalog) List() []*GameDef {
	c.mu.RLock()
	defer c.mu.RUnlock()

	defs := make([]*GameDef, 0, len(c.games))
	for _, def := range c.games {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
	return defs
}

// Playable reports whether the game exists and the engine can run it.
func (c *Catalog) Playable(id string) bool {
	if _, err := c.Get(id); err != nil {
		return false
	}
	_, err := engine.New(id, nil, nil)
	return err == nil
}

func validateDef(def *GameDef) error {
	if def.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidGameDef)
	}
	if def.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidGameDef)
	}
	if def.MinPlayers < 1 {
		return fmt.Errorf("%w: minPlayers must be at least 1", ErrInvalidGameDef)
	}
	if def.MaxPlayers < def.MinPlayers {
		return fmt.Errorf("%w: maxPlayers below minPlayers", ErrInvalidGameDef)
	}
	return nil
}

func builtinDefs() []*GameDef {
	return []*GameDef{
		{
			ID:          engine.GamePong,
			Name:        "Pong",
			Description: "Classic two-paddle duel. Keep the ball in play and outlast your opponent.",
			MinPlayers:  2,
			MaxPlayers:  2,
			Rules: []string{
				"Hold up or down to move your paddle.",
				"Tilt controllers can steer with the vertical axis.",
				"Missing the ball gives your opponent a point.",
			},
			Thumbnail: "/assets/games/pong.png",
		},
		{
			ID:          engine.GameDuelRacer,
			Name:        "Duel Racer",
			Description: "Two lanes, one finish line. Dodge obstacles and boost past your rival.",
			MinPlayers:  2,
			MaxPlayers:  2,
			Rules: []string{
				"Hold boost to surge ahead.",
				"Hitting an obstacle cuts your speed in half.",
				"First car over the finish line wins.",
			},
			Thumbnail: "/assets/games/duel_racer.png",
		},
		{
			ID:          engine.GameReactionBlitz,
			Name:        "Reaction Blitz",
			Description: "Targets flash on the display. Fastest thumb takes the round.",
			MinPlayers:  1,
			MaxPlayers:  4,
			Rules: []string{
				"Tap when a target appears.",
				"Targets vanish after two seconds.",
				"Highest score when the round ends wins.",
			},
			Thumbnail: "/assets/games/reaction_blitz.png",
		},
	}
}
