package rando

import (
	stderrors "errors"

	"github.com/google/uuid"
	"github.com/pixil98/go-errors"
)

var errEmptyMultiworldID = stderrors.New("result has no multiworld id")

// Result is the immutable per-player output of a generation. Fresh from the
// engine it carries the global tables; Project strips it down to what one
// player's client may see before transmission.
type Result struct {
	PlayerID     int       `json:"player_id"`
	Players      int       `json:"players"`
	MultiworldID string    `json:"multiworld_id"`
	Settings     *Settings `json:"settings"`

	// ItemPlacements maps item -> location. Items are unique; locations are
	// not, since shops hold many items.
	ItemPlacements map[WorldItem]WorldItem `json:"item_placements"`
	ShopCosts      map[WorldItem]int       `json:"shop_costs"`
	VariableCosts  map[WorldItem]int       `json:"variable_costs"`
	LocationOrder  map[WorldItem]int       `json:"location_order"`

	StartItems  []string          `json:"start_items"`
	StartName   string            `json:"start_name"`
	Transitions map[string]string `json:"transitions,omitempty"`

	Nicknames []string `json:"nicknames"`

	// ItemsSpoiler is bound late, only for players who asked for one.
	ItemsSpoiler string `json:"items_spoiler,omitempty"`

	// DerivedSeed folds every player's settings into the base seed for
	// client-side draws that should differ between otherwise equal rooms.
	DerivedSeed int64 `json:"derived_seed"`
}

func (r *Result) Validate() error {
	el := errors.NewErrorList()
	if r.MultiworldID == "" {
		el.Add(errEmptyMultiworldID)
	}
	return el.Err()
}

// buildResults assembles one result per player, all sharing the same global
// placement tables and multiworld id.
func (e *Engine) buildResults(att *attempt, nicknames []string) []*Result {
	multiworldID := uuid.NewString()

	derivedSeed := e.settings[0].Seed
	for _, s := range e.settings {
		derivedSeed += s.SettingsHash()
	}

	placements := map[WorldItem]WorldItem{}
	for loc, item := range att.ws.nonShopItems {
		placements[item] = loc
	}
	for shop, items := range att.ws.shopItems {
		for _, item := range items {
			placements[item] = shop
		}
	}

	results := make([]*Result, 0, len(e.settings))
	for i, s := range e.settings {
		results = append(results, &Result{
			PlayerID:       i,
			Players:        len(e.settings),
			MultiworldID:   multiworldID,
			Settings:       s,
			ItemPlacements: placements,
			ShopCosts:      att.shopCosts,
			VariableCosts:  att.costOverrides,
			LocationOrder:  att.ws.locationOrder,
			StartItems:     att.startItems[i],
			StartName:      att.startNames[i],
			Transitions:    att.transitions[i],
			Nicknames:      nicknames,
			DerivedSeed:    derivedSeed,
		})
	}
	return results
}

// Project filters a global result down to the slice player PlayerID may see:
// placements of that player's items, costs of those items, and the discovery
// order of that player's own locations. Zero variable costs are dropped. The
// receiver is not modified.
func (r *Result) Project() *Result {
	out := *r

	out.ItemPlacements = map[WorldItem]WorldItem{}
	for item, loc := range r.ItemPlacements {
		if loc.Player == r.PlayerID {
			out.ItemPlacements[item] = loc
		}
	}

	out.ShopCosts = map[WorldItem]int{}
	for item, cost := range r.ShopCosts {
		if loc, ok := r.ItemPlacements[item]; ok && loc.Player == r.PlayerID {
			out.ShopCosts[item] = cost
		}
	}

	out.VariableCosts = map[WorldItem]int{}
	for loc, cost := range r.VariableCosts {
		if cost != 0 && loc.Player == r.PlayerID {
			out.VariableCosts[loc] = cost
		}
	}

	out.LocationOrder = map[WorldItem]int{}
	for loc, order := range r.LocationOrder {
		if loc.Player == r.PlayerID {
			out.LocationOrder[loc] = order
		}
	}

	return &out
}
