// Package rando implements the multiworld generator: a constraint-based item
// placement engine that assigns every randomized item to a location across all
// players' worlds while keeping each world completable under its own logic.
package rando

import (
	"fmt"
	"regexp"
	"strconv"
)

// WorldItem addresses an item or a location as an (owning player, name) pair.
// Locations share the type because a location in one player's world is
// addressed the same way as an item belonging to a player. It is comparable
// and used directly as a map key.
type WorldItem struct {
	Player int
	Name   string
}

func NewWorldItem(player int, name string) WorldItem {
	return WorldItem{Player: player, Name: name}
}

// Player ids are zero indexed in code and one indexed anywhere user facing.
func (w WorldItem) String() string {
	return fmt.Sprintf("MW(%d)_%s", w.Player+1, w.Name)
}

// WorldItem keys appear in JSON maps, so it round-trips through its string
// form.
func (w WorldItem) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *WorldItem) UnmarshalText(text []byte) error {
	parsed, err := ParseWorldItem(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

var worldItemPattern = regexp.MustCompile(`^MW\((\d+)\)_(.+)$`)

func ParseWorldItem(s string) (WorldItem, error) {
	m := worldItemPattern.FindStringSubmatch(s)
	if m == nil {
		return WorldItem{}, fmt.Errorf("parsing world item %q: bad format", s)
	}

	player, err := strconv.Atoi(m[1])
	if err != nil || player < 1 {
		return WorldItem{}, fmt.Errorf("parsing world item %q: bad player id", s)
	}

	return WorldItem{Player: player - 1, Name: m[2]}, nil
}
