package rando

import (
	"fmt"
	"slices"
)

const maxValidationPasses = 400

// validateWorlds replays the finished placement with a fresh progression
// state: sweep everything currently reachable, obtain what it yields, repeat.
// If the sweep stalls before collecting every item and location, the
// placement is not completable.
func (e *Engine) validateWorlds(att *attempt) error {
	ps := NewProgressionState(e.logic, e.settings, att.costOverrides)

	// Counter items sit wherever placement put them now.
	feedCounterSources(e.logic, ps, att.ws)

	var startFlags []WorldItem
	for i := range e.settings {
		for _, flag := range att.startProgression[i] {
			startFlags = append(startFlags, NewWorldItem(i, flag))
		}
	}
	ps.AddAll(startFlags)

	locations := map[WorldItem]bool{}
	for loc := range att.ws.nonShopItems {
		locations[loc] = true
	}
	for shop := range att.ws.shopItems {
		locations[shop] = true
	}

	items := map[WorldItem]bool{}
	for _, item := range att.ws.nonShopItems {
		items[item] = true
	}
	for _, shopContents := range att.ws.shopItems {
		for _, item := range shopContents {
			items[item] = true
		}
	}

	for pass := 0; len(locations) > 0 || len(items) > 0; pass++ {
		if pass > maxValidationPasses {
			return fmt.Errorf("validation stalled: %d locations and %d items unreachable", len(locations), len(items))
		}

		progressed := false
		for _, loc := range sortedWorldItems(locations) {
			if !ps.CanGet(loc) {
				continue
			}
			delete(locations, loc)
			progressed = true

			for _, item := range placedAt(att.ws, loc) {
				delete(items, item)
				if def, ok := e.logic.ItemDef(trimDupeSuffix(item.Name)); ok && def.Progression {
					ps.Add(NewWorldItem(item.Player, trimDupeSuffix(item.Name)))
				}
			}
		}

		if !progressed {
			return fmt.Errorf("validation stalled: no reachable location among %d remaining", len(locations))
		}
	}

	return nil
}

func feedCounterSources(logic Logic, ps *ProgressionState, ws *worldState) {
	addSources := func(loc WorldItem, item WorldItem) {
		def, ok := logic.ItemDef(trimDupeSuffix(item.Name))
		if !ok {
			return
		}
		if def.Tokens > 0 {
			ps.AddTokenSource(loc.Player, loc.Name, def.Tokens)
		}
		if def.Essence > 0 {
			ps.AddEssenceSource(loc.Player, loc.Name, def.Essence)
		}
	}

	for loc, item := range ws.nonShopItems {
		addSources(loc, item)
	}
	for shop, items := range ws.shopItems {
		for _, item := range items {
			addSources(shop, item)
		}
	}
}

func placedAt(ws *worldState, loc WorldItem) []WorldItem {
	if item, ok := ws.nonShopItems[loc]; ok {
		return []WorldItem{item}
	}
	return ws.shopItems[loc]
}

func sortedWorldItems(set map[WorldItem]bool) []WorldItem {
	out := make([]WorldItem, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	slices.SortFunc(out, compareWorldItems)
	return out
}
