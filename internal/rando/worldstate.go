package rando

import (
	"math/rand"
	"slices"
)

// worldState is the engine's working set for one placement attempt: the
// unplaced item pool, the unfilled location pool, the reachable frontier, and
// the accumulating placement maps. It is discarded wholesale when an attempt
// fails.
type worldState struct {
	logic    Logic
	settings []*Settings
	players  int
	rnd      *rand.Rand
	ps       *ProgressionState

	unplaced  []WorldItem // randomized items not yet placed or parked
	unfilled  []WorldItem // randomized locations not yet filled or reserved
	reachable []WorldItem // subset of unfilled currently certified reachable

	// Discovery order: the sequence in which locations became reachable.
	locationOrder map[WorldItem]int
	orderCounter  int

	nonShopItems map[WorldItem]WorldItem   // location -> item
	shopItems    map[WorldItem][]WorldItem // shop -> items

	// First-pass side buffers, drained by the second pass.
	standbyItems       []WorldItem
	standbyProgression []WorldItem
	standbyLocations   []WorldItem

	duplicated      []WorldItem
	normalFillShops bool
}

func newWorldState(logic Logic, settings []*Settings, rnd *rand.Rand, ps *ProgressionState) *worldState {
	ws := &worldState{
		logic:         logic,
		settings:      settings,
		players:       len(settings),
		rnd:           rnd,
		ps:            ps,
		locationOrder: map[WorldItem]int{},
		nonShopItems:  map[WorldItem]WorldItem{},
		shopItems:     map[WorldItem][]WorldItem{},
	}

	shopSet := map[string]bool{}
	for _, shop := range logic.ShopNames() {
		shopSet[shop] = true
		ws.normalFillShops = true
	}

	for player, s := range settings {
		for _, name := range logic.ItemNames() {
			def, _ := logic.ItemDef(name)
			if s.RandomizesPool(def.Pool) {
				item := NewWorldItem(player, name)
				ws.unplaced = append(ws.unplaced, item)
				if def.Major && s.DuplicateMajorItems {
					ws.duplicated = append(ws.duplicated, item)
				}
			}
		}

		for _, name := range logic.LocationNames() {
			def, ok := logic.LocationDef(name)
			if !ok {
				continue
			}
			if shopSet[name] || def.Pool == "" || s.RandomizesPool(def.Pool) {
				ws.unfilled = append(ws.unfilled, NewWorldItem(player, name))
			}
		}

		ws.shopItemsInit(player)
	}

	ws.rnd.Shuffle(len(ws.unplaced), func(i, j int) {
		ws.unplaced[i], ws.unplaced[j] = ws.unplaced[j], ws.unplaced[i]
	})

	return ws
}

func (ws *worldState) shopItemsInit(player int) {
	for _, shop := range ws.logic.ShopNames() {
		ws.shopItems[NewWorldItem(player, shop)] = nil
	}
}

func (ws *worldState) availableCount() int { return len(ws.reachable) }
func (ws *worldState) anyItems() bool      { return len(ws.unplaced) > 0 }
func (ws *worldState) anyLocations() bool  { return len(ws.unfilled) > 0 }

// canGuess reports whether any unplaced progression item remains to inject
// speculatively.
func (ws *worldState) canGuess() bool {
	for _, item := range ws.unplaced {
		if ws.isProgression(item) {
			return true
		}
	}
	return false
}

func (ws *worldState) isProgression(item WorldItem) bool {
	def, ok := ws.logic.ItemDef(item.Name)
	return ok && def.Progression
}

// resetReachable recomputes the frontier from scratch, recording discovery
// order for locations seen for the first time.
func (ws *worldState) resetReachable() {
	ws.reachable = ws.reachable[:0]
	for _, loc := range ws.unfilled {
		if ws.ps.CanGet(loc) {
			ws.markReachable(loc)
		}
	}
}

// updateReachable obtains one progression flag and folds any newly reachable
// locations into the frontier.
func (ws *worldState) updateReachable(item WorldItem) {
	ws.ps.Add(item)
	for _, loc := range ws.unfilled {
		if slices.Contains(ws.reachable, loc) {
			continue
		}
		if ws.ps.CanGet(loc) {
			ws.markReachable(loc)
		}
	}
}

func (ws *worldState) markReachable(loc WorldItem) {
	ws.reachable = append(ws.reachable, loc)
	if _, seen := ws.locationOrder[loc]; !seen {
		ws.locationOrder[loc] = ws.orderCounter
		ws.orderCounter++
	}
}

// nextItem pops a random unplaced item.
func (ws *worldState) nextItem() WorldItem {
	idx := ws.rnd.Intn(len(ws.unplaced))
	item := ws.unplaced[idx]
	ws.unplaced = slices.Delete(ws.unplaced, idx, idx+1)
	return item
}

// nextLocation pops a random reachable location; with checkLogic false it
// draws from the whole unfilled pool instead.
func (ws *worldState) nextLocation(checkLogic bool) WorldItem {
	if checkLogic {
		idx := ws.rnd.Intn(len(ws.reachable))
		loc := ws.reachable[idx]
		ws.removeLocation(loc)
		return loc
	}
	idx := ws.rnd.Intn(len(ws.unfilled))
	loc := ws.unfilled[idx]
	ws.removeLocation(loc)
	return loc
}

func (ws *worldState) removeLocation(loc WorldItem) {
	if idx := slices.Index(ws.unfilled, loc); idx >= 0 {
		ws.unfilled = slices.Delete(ws.unfilled, idx, idx+1)
	}
	if idx := slices.Index(ws.reachable, loc); idx >= 0 {
		ws.reachable = slices.Delete(ws.reachable, idx, idx+1)
	}
}

// forceItem looks for an unplaced progression item that would grow the
// frontier if obtained, testing each speculatively with exact rollback.
// Returns false when nothing forces progress.
func (ws *worldState) forceItem() (WorldItem, bool) {
	for _, item := range ws.unplaced {
		if !ws.isProgression(item) {
			continue
		}

		ws.ps.AddTemp(item)
		unlocked := ws.countNewReachable()
		ws.ps.RemoveTemp()

		if unlocked > 0 {
			idx := slices.Index(ws.unplaced, item)
			ws.unplaced = slices.Delete(ws.unplaced, idx, idx+1)
			return item, true
		}
	}
	return WorldItem{}, false
}

func (ws *worldState) countNewReachable() int {
	count := 0
	for _, loc := range ws.unfilled {
		if slices.Contains(ws.reachable, loc) {
			continue
		}
		if ws.ps.CanGet(loc) {
			count++
		}
	}
	return count
}

// guessItem draws a random unplaced progression item. Caller must have
// checked canGuess.
func (ws *worldState) guessItem() WorldItem {
	var candidates []int
	for idx, item := range ws.unplaced {
		if ws.isProgression(item) {
			candidates = append(candidates, idx)
		}
	}
	idx := candidates[ws.rnd.Intn(len(candidates))]
	item := ws.unplaced[idx]
	ws.unplaced = slices.Delete(ws.unplaced, idx, idx+1)
	return item
}

// delinearize reshuffles the remaining item pool after a forced placement so
// long forced chains do not produce linear worlds.
func (ws *worldState) delinearize() {
	ws.rnd.Shuffle(len(ws.unplaced), func(i, j int) {
		ws.unplaced[i], ws.unplaced[j] = ws.unplaced[j], ws.unplaced[i]
	})
}

// placeItem commits an item to a location and, for progression items, feeds
// the gain back into the frontier.
func (ws *worldState) placeItem(item, loc WorldItem) {
	ws.commit(item, loc)
	if ws.isProgression(item) {
		ws.updateReachable(item)
	}
}

func (ws *worldState) commit(item, loc WorldItem) {
	if ws.isShop(loc) {
		ws.shopItems[loc] = append(ws.shopItems[loc], item)
	} else {
		ws.nonShopItems[loc] = item
	}
	ws.removeLocation(loc)
}

func (ws *worldState) isShop(loc WorldItem) bool {
	return slices.Contains(ws.logic.ShopNames(), loc.Name)
}

// parkJunk reserves a constrained reachable slot for the second pass instead
// of burning it on a non-progression item now.
func (ws *worldState) parkJunk(item, loc WorldItem) {
	ws.standbyItems = append(ws.standbyItems, item)
	ws.standbyLocations = append(ws.standbyLocations, loc)
	ws.removeLocation(loc)
}

// parkProgression injects a progression item speculatively: treated as
// obtained immediately, actually placed by the second pass. This is the
// overflow relaxation.
func (ws *worldState) parkProgression(item WorldItem) {
	ws.standbyProgression = append(ws.standbyProgression, item)
	ws.updateReachable(item)
}

// transferStandby folds the side buffers back into the pools for the second
// pass, standby first so parked items drain before leftovers.
func (ws *worldState) transferStandby() {
	ws.unplaced = append(append(append([]WorldItem{}, ws.standbyProgression...), ws.standbyItems...), ws.unplaced...)
	ws.unfilled = append(append([]WorldItem{}, ws.standbyLocations...), ws.unfilled...)
	ws.standbyItems = nil
	ws.standbyProgression = nil
	ws.standbyLocations = nil
}

// drainNextItem pops the frontmost item during the second pass, preserving
// standby-first order.
func (ws *worldState) drainNextItem() WorldItem {
	item := ws.unplaced[0]
	ws.unplaced = ws.unplaced[1:]
	return item
}
