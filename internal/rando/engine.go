package rando

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"slices"
	"time"
)

// ErrRandomization is raised inside an attempt when the working state becomes
// unsolvable. The engine discards the attempt and restarts from scratch with
// the continuing random sequence.
var ErrRandomization = errors.New("rando: unsolvable state, restarting generation")

// DefaultMaxAttempts bounds the full-restart retry loop. Genuinely
// contradictory settings would otherwise loop forever.
const DefaultMaxAttempts = 100

const (
	shopCostBase      = 100
	shopCostIncrement = 10
	shopCostMax       = 500
	dupeSuffix        = "_(1)"
	shopRepairMinJunk = 5
	shopRepairMaxMove = 5
)

// Engine generates one multiworld: every randomized item of every player
// assigned to exactly one location across all worlds, each world completable
// under its own logic. An Engine is single use per generation and holds no
// state between runs.
type Engine struct {
	logic       Logic
	settings    []*Settings
	rnd         *rand.Rand
	maxAttempts int
	validate    bool
}

type EngineOpt func(*Engine)

func WithMaxAttempts(n int) EngineOpt {
	return func(e *Engine) { e.maxAttempts = n }
}

// WithValidation runs a simulated collection sweep over every generated world
// before accepting it.
func WithValidation() EngineOpt {
	return func(e *Engine) { e.validate = true }
}

// NewEngine clones the submitted settings and overwrites every seed with the
// initiator's, so the run is fully determined by settings[0].Seed.
func NewEngine(logic Logic, settings []*Settings, opts ...EngineOpt) (*Engine, error) {
	if len(settings) == 0 {
		return nil, fmt.Errorf("no player settings given")
	}

	cloned := make([]*Settings, len(settings))
	for i, s := range settings {
		cloned[i] = s.Clone()
		cloned[i].Seed = settings[0].Seed
	}

	e := &Engine{
		logic:       logic,
		settings:    cloned,
		rnd:         rand.New(rand.NewSource(settings[0].Seed)),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// attempt carries everything one generation attempt produces.
type attempt struct {
	ws               *worldState
	costOverrides    map[WorldItem]int
	startItems       [][]string
	startProgression [][]string
	startNames       []string
	transitions      []map[string]string
	shopCosts        map[WorldItem]int
}

// Randomize runs generation to completion, restarting on internal failure,
// and returns one result per player carrying the global placement tables.
func (e *Engine) Randomize(nicknames []string) ([]*Result, error) {
	started := time.Now()

	for tries := 0; tries < e.maxAttempts; tries++ {
		att, err := e.attemptOnce()
		if errors.Is(err, ErrRandomization) {
			slog.Info("generation attempt failed, restarting", "attempt", tries+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		slog.Info("generation finished",
			"players", len(e.settings),
			"attempts", tries+1,
			"elapsed", time.Since(started))
		return e.buildResults(att, nicknames), nil
	}

	return nil, fmt.Errorf("generation did not converge after %d attempts", e.maxAttempts)
}

func (e *Engine) attemptOnce() (*attempt, error) {
	att := &attempt{
		costOverrides: map[WorldItem]int{},
	}

	for i, s := range e.settings {
		for name, cost := range randomizeNonShopCosts(e.rnd, e.logic, s) {
			att.costOverrides[NewWorldItem(i, name)] = cost
		}

		items, progression := randomizeStartingItems(e.rnd, e.logic, s)
		startName, progression, err := randomizeStartingLocation(e.rnd, e.logic, s, progression)
		if err != nil {
			return nil, err
		}
		s.StartName = startName
		att.startItems = append(att.startItems, items)
		att.startNames = append(att.startNames, startName)

		if s.RandomizeTransitions() {
			layout := randomizeTransitions(e.rnd, e.logic)
			att.transitions = append(att.transitions, layout)
			// Transition flags come for free once the layout is fixed;
			// the layout itself gates the world, not the logic graph.
			progression = append(progression, e.logic.TransitionNames()...)
		} else {
			att.transitions = append(att.transitions, nil)
		}

		att.startProgression = append(att.startProgression, progression)
	}

	ps := NewProgressionState(e.logic, e.settings, att.costOverrides)
	ws := newWorldState(e.logic, e.settings, e.rnd, ps)
	att.ws = ws

	var startFlags []WorldItem
	for i := range e.settings {
		for _, flag := range att.startProgression[i] {
			startFlags = append(startFlags, NewWorldItem(i, flag))
		}
	}
	ps.AddAll(startFlags)

	// Start items leave the pool; they are already owned.
	for i, items := range att.startItems {
		for _, name := range items {
			if idx := slices.Index(ws.unplaced, NewWorldItem(i, name)); idx >= 0 {
				ws.unplaced = slices.Delete(ws.unplaced, idx, idx+1)
			}
		}
	}

	ws.resetReachable()

	e.firstPass(ws)
	if err := e.secondPass(ws); err != nil {
		return nil, err
	}
	if err := e.placeDupes(ws); err != nil {
		return nil, err
	}
	att.shopCosts = e.createShopCosts(ws)

	if e.validate {
		if err := e.validateWorlds(att); err != nil {
			slog.Warn("generated world failed validation", "error", err)
			return nil, ErrRandomization
		}
	}

	return att, nil
}

// firstPass is the progression-priority fill: loop over the reachable
// frontier, placing progression items in logic order and parking junk, until
// the frontier and all guesses are exhausted.
func (e *Engine) firstPass(ws *worldState) {
	overflow := false

	for ws.anyItems() {
		var placeItem, placeLocation WorldItem

		switch ws.availableCount() {
		case 0:
			if ws.anyLocations() && ws.canGuess() {
				if !overflow {
					slog.Debug("entered overflow state", "placed", len(ws.nonShopItems))
				}
				overflow = true
				ws.parkProgression(ws.guessItem())
				continue
			}
			return
		case 1:
			forced, ok := ws.forceItem()
			if ok {
				placeItem = forced
				ws.delinearize()
			} else if ws.canGuess() {
				if !overflow {
					slog.Debug("entered overflow state at single location", "placed", len(ws.nonShopItems))
				}
				overflow = true
				ws.parkProgression(ws.guessItem())
				continue
			} else {
				placeItem = ws.nextItem()
			}
			placeLocation = ws.nextLocation(true)
		default:
			placeItem = ws.nextItem()
			placeLocation = ws.nextLocation(true)
		}

		if !overflow && !ws.isProgression(placeItem) {
			ws.parkJunk(placeItem, placeLocation)
		} else {
			ws.placeItem(placeItem, placeLocation)
		}
	}
}

// secondPass drains standby and every remaining item into the open locations
// ignoring logic, synthesizing shop capacity when ordinary slots run out,
// then repairs empty shops.
func (e *Engine) secondPass(ws *worldState) error {
	ws.transferStandby()

	for ws.anyItems() {
		item := ws.drainNextItem()

		var loc WorldItem
		if ws.anyLocations() {
			loc = ws.nextLocation(false)
		} else {
			shops := ws.logic.ShopNames()
			if len(shops) == 0 {
				slog.Warn("item overflow with no shop capacity")
				return ErrRandomization
			}
			loc = NewWorldItem(e.rnd.Intn(len(e.settings)), shops[e.rnd.Intn(len(shops))])
		}
		ws.commit(item, loc)
	}

	if ws.anyLocations() {
		slog.Error("second pass exited with unfilled locations", "count", len(ws.unfilled))
	}

	e.repairShops(ws)
	return nil
}

// repairShops moves junk out of crowded shops into empty ones, bounded so a
// degenerate layout cannot loop.
func (e *Engine) repairShops(ws *worldState) {
	if !ws.normalFillShops {
		return
	}

	shops := sortedShopKeys(ws)

	junkCount := 0
	for _, shop := range shops {
		for _, item := range ws.shopItems[shop] {
			if !ws.isProgression(item) {
				junkCount++
			}
		}
	}
	if junkCount < shopRepairMinJunk {
		return
	}

	moves := 0
	for moves < shopRepairMaxMove {
		empty, donor := WorldItem{}, WorldItem{}
		foundEmpty, foundDonor := false, false

		for _, shop := range shops {
			if len(ws.shopItems[shop]) == 0 && !foundEmpty {
				empty, foundEmpty = shop, true
			}
			if !foundDonor && countJunk(ws, shop) > 1 {
				donor, foundDonor = shop, true
			}
		}
		if !foundEmpty || !foundDonor {
			return
		}

		item, ok := takeJunk(ws, donor)
		if !ok {
			return
		}
		ws.shopItems[empty] = append(ws.shopItems[empty], item)
		moves++
	}
	slog.Error("emergency exit from shop repair")
}

func sortedShopKeys(ws *worldState) []WorldItem {
	keys := make([]WorldItem, 0, len(ws.shopItems))
	for shop := range ws.shopItems {
		keys = append(keys, shop)
	}
	slices.SortFunc(keys, compareWorldItems)
	return keys
}

func compareWorldItems(a, b WorldItem) int {
	if a.Player != b.Player {
		return a.Player - b.Player
	}
	if a.Name < b.Name {
		return -1
	}
	if a.Name > b.Name {
		return 1
	}
	return 0
}

func countJunk(ws *worldState, shop WorldItem) int {
	n := 0
	for _, item := range ws.shopItems[shop] {
		if !ws.isProgression(item) {
			n++
		}
	}
	return n
}

func takeJunk(ws *worldState, shop WorldItem) (WorldItem, bool) {
	for idx, item := range ws.shopItems[shop] {
		if !ws.isProgression(item) {
			ws.shopItems[shop] = slices.Delete(ws.shopItems[shop], idx, idx+1)
			return item, true
		}
	}
	return WorldItem{}, false
}

// placeDupes drops a duplicate of each eligible major item at a random depth
// in the discovery order, excluding the earliest fifth and the trailing slots
// reserved for the duplicates themselves. The displaced junk occupant moves
// to the lowest-occupancy shop.
func (e *Engine) placeDupes(ws *worldState) error {
	if len(ws.duplicated) == 0 {
		return nil
	}

	orderToLocation := make(map[int]WorldItem, len(ws.locationOrder))
	for loc, depth := range ws.locationOrder {
		orderToLocation[depth] = loc
	}

	total := len(ws.locationOrder)
	minDepth := min(total/5, total-2*len(ws.duplicated))
	if minDepth < 0 {
		minDepth = 0
	}

	var allowed []int
	for depth := minDepth; depth < total; depth++ {
		loc, ok := orderToLocation[depth]
		if !ok || ws.isShop(loc) {
			continue
		}
		occ, filled := ws.nonShopItems[loc]
		if filled && !ws.isProgression(occ) {
			allowed = append(allowed, depth)
		}
	}

	// Dupe depths come from a generator derived from the base seed so they
	// are independent of placement order.
	dupeRnd := rand.New(rand.NewSource(e.settings[0].Seed + 29))
	shops := sortedShopKeys(ws)
	if len(shops) == 0 {
		// Displaced occupants have nowhere to go without a shop.
		slog.Warn("duplicate placement with no shop capacity")
		return ErrRandomization
	}

	for _, major := range ws.duplicated {
		if len(allowed) == 0 {
			return nil
		}
		idx := dupeRnd.Intn(len(allowed))
		depth := allowed[idx]
		allowed = slices.Delete(allowed, idx, idx+1)

		loc := orderToLocation[depth]
		swapped := ws.nonShopItems[loc]

		target := shops[0]
		for _, shop := range shops[1:] {
			if len(ws.shopItems[shop]) < len(ws.shopItems[target]) {
				target = shop
			}
		}

		ws.nonShopItems[loc] = NewWorldItem(major.Player, major.Name+dupeSuffix)
		ws.shopItems[target] = append(ws.shopItems[target], swapped)
	}
	return nil
}

// createShopCosts prices every shop item deterministically from the base seed
// and the item's identity, independent of placement order.
func (e *Engine) createShopCosts(ws *worldState) map[WorldItem]int {
	costs := map[WorldItem]int{}
	for shop, items := range ws.shopItems {
		_ = shop
		for _, item := range items {
			costs[item] = shopCost(e.logic, e.settings[0].Seed, item)
		}
	}
	return costs
}

func shopCost(logic Logic, seed int64, item WorldItem) int {
	h := fnv.New64a()
	h.Write([]byte(item.Name))
	rnd := rand.New(rand.NewSource(seed + int64(h.Sum64())))

	cost := shopCostBase + shopCostIncrement*rnd.Intn(1+(shopCostMax-shopCostBase)/shopCostIncrement)
	cost *= logic.PriceFactor(trimDupeSuffix(item.Name))

	return max(cost, 1)
}

func trimDupeSuffix(name string) string {
	if len(name) > len(dupeSuffix) && name[len(name)-len(dupeSuffix):] == dupeSuffix {
		return name[:len(name)-len(dupeSuffix)]
	}
	return name
}
