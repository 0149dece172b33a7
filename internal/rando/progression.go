package rando

import (
	"log/slog"
)

// ProgressionState tracks which progression flags each player has obtained
// and answers reachability queries through the logic oracle. One state exists
// per placement run (and per validation pass); it is not safe for concurrent
// use.
//
// The obtained set is a fixed-size bit vector per player. Two derived
// saturating counters (tokens and essence) are recomputed after every
// mutation, short-circuiting once they pass their cap plus tolerance.
type ProgressionState struct {
	logic    Logic
	settings []*Settings

	obtained [][]uint64
	tokens   []int
	essence  []int

	// Per player: location name -> counter yield when that location is
	// reachable. Which locations count depends on whether the pool is
	// randomized and on whether the run is generating or validating.
	tokenSources   []map[string]int
	essenceSources []map[string]int

	// Randomized non-shop cost overrides, keyed by location.
	costOverrides map[WorldItem]int

	temp      bool
	tempItems []WorldItem
}

// NewProgressionState builds a fresh state for one run. Skip-rule flags from
// each player's settings are granted immediately. Counter sources default to
// the vanilla layout (each counter item sits at its own location) unless the
// player randomizes that pool, in which case they start empty and the caller
// feeds placements in via AddTokenSource/AddEssenceSource.
func NewProgressionState(logic Logic, settings []*Settings, costOverrides map[WorldItem]int) *ProgressionState {
	players := len(settings)
	ps := &ProgressionState{
		logic:          logic,
		settings:       settings,
		obtained:       make([][]uint64, players),
		tokens:         make([]int, players),
		essence:        make([]int, players),
		tokenSources:   make([]map[string]int, players),
		essenceSources: make([]map[string]int, players),
		costOverrides:  costOverrides,
	}
	if ps.costOverrides == nil {
		ps.costOverrides = map[WorldItem]int{}
	}

	for i := range settings {
		ps.obtained[i] = make([]uint64, logic.WordCount())
		ps.tokenSources[i] = vanillaSources(logic, settings[i], logic.TokenPool(), func(def ItemDef) int { return def.Tokens })
		ps.essenceSources[i] = vanillaSources(logic, settings[i], logic.EssencePool(), func(def ItemDef) int { return def.Essence })

		for _, flag := range logic.SkipFlags(settings[i]) {
			ps.setFlag(NewWorldItem(i, flag))
		}
	}

	for i := range settings {
		ps.recalculateTokens(i)
		ps.recalculateEssence(i)
	}

	return ps
}

func vanillaSources(logic Logic, s *Settings, pool string, yield func(ItemDef) int) map[string]int {
	sources := map[string]int{}
	if pool == "" || s.RandomizesPool(pool) {
		return sources
	}
	for _, name := range logic.ItemsByPool(pool) {
		def, _ := logic.ItemDef(name)
		sources[name] = yield(def)
	}
	return sources
}

func (ps *ProgressionState) Players() int { return len(ps.settings) }

func (ps *ProgressionState) Has(flag WorldItem) bool {
	bit, ok := ps.logic.FlagBit(flag.Name)
	if !ok {
		slog.Warn("no progression bit for flag", "flag", flag.Name)
		return false
	}
	return ps.obtained[flag.Player][bit.Word]&bit.Mask != 0
}

// CanGet reports whether the named location (or waypoint) is reachable for
// its owning player under the current obtained set.
func (ps *ProgressionState) CanGet(target WorldItem) bool {
	req, ok := ps.logic.Requirement(target.Name)
	if !ok {
		slog.Warn("no logic for location", "location", target.Name)
		return false
	}
	if req == nil || len(req.AnyOf) == 0 {
		return true
	}

	for _, clause := range req.AnyOf {
		if ps.clauseSatisfied(target, clause) {
			return true
		}
	}
	return false
}

func (ps *ProgressionState) clauseSatisfied(target WorldItem, clause Clause) bool {
	for _, flag := range clause.All {
		if !ps.Has(NewWorldItem(target.Player, flag)) {
			return false
		}
	}

	tokenCost, essenceCost := clause.TokenCost, clause.EssenceCost
	if override, ok := ps.costOverrides[target]; ok {
		// A cost override replaces whichever counter cost the clause carries.
		if tokenCost > 0 {
			tokenCost = override
		} else if essenceCost > 0 {
			essenceCost = override
		}
	}

	if tokenCost > 0 && ps.tokens[target.Player] < tokenCost {
		return false
	}
	if essenceCost > 0 && ps.essence[target.Player] < essenceCost {
		return false
	}
	return true
}

// Add obtains a flag for a player, recomputes both counters, and picks up any
// free waypoints that just became reachable. Unknown flags warn and no-op;
// rulesets legitimately reference optional content.
func (ps *ProgressionState) Add(flag WorldItem) {
	if !ps.setFlag(flag) {
		return
	}
	ps.recalculateTokens(flag.Player)
	ps.recalculateEssence(flag.Player)
	ps.updateWaypoints(flag.Player)
}

// AddAll is Add for a batch, recomputing once at the end.
func (ps *ProgressionState) AddAll(flags []WorldItem) {
	players := map[int]bool{}
	for _, flag := range flags {
		if ps.setFlag(flag) {
			players[flag.Player] = true
		}
	}
	for player := range players {
		ps.recalculateTokens(player)
		ps.recalculateEssence(player)
		ps.updateWaypoints(player)
	}
}

func (ps *ProgressionState) setFlag(flag WorldItem) bool {
	bit, ok := ps.logic.FlagBit(flag.Name)
	if !ok {
		slog.Warn("no progression bit for flag", "flag", flag.Name)
		return false
	}
	ps.obtained[flag.Player][bit.Word] |= bit.Mask
	if ps.temp {
		ps.tempItems = append(ps.tempItems, flag)
	}
	return true
}

// Remove clears a flag and recomputes only the counters whose source logic
// the flag can influence.
func (ps *ProgressionState) Remove(flag WorldItem) {
	bit, ok := ps.logic.FlagBit(flag.Name)
	if !ok {
		slog.Warn("no progression bit for flag", "flag", flag.Name)
		return
	}
	ps.obtained[flag.Player][bit.Word] &^= bit.Mask

	if ps.flagAffects(ps.tokenSources[flag.Player], flag.Name) {
		ps.recalculateTokens(flag.Player)
	}
	if ps.flagAffects(ps.essenceSources[flag.Player], flag.Name) {
		ps.recalculateEssence(flag.Player)
	}
}

func (ps *ProgressionState) flagAffects(sources map[string]int, flag string) bool {
	for name := range sources {
		req, ok := ps.logic.Requirement(name)
		if !ok || req == nil {
			continue
		}
		for _, clause := range req.AnyOf {
			for _, f := range clause.All {
				if f == flag {
					return true
				}
			}
		}
	}
	return false
}

// AddTemp obtains a flag speculatively. Everything added between the first
// AddTemp and the next RemoveTemp or SaveTemp is tracked for exact rollback,
// so the engine can test hypothetical futures without committing them.
func (ps *ProgressionState) AddTemp(flag WorldItem) {
	ps.temp = true
	ps.Add(flag)
}

// RemoveTemp rolls back every speculative addition since temp mode began.
func (ps *ProgressionState) RemoveTemp() {
	ps.temp = false
	for _, flag := range ps.tempItems {
		ps.Remove(flag)
	}
	ps.tempItems = nil
}

// SaveTemp commits the speculative additions as permanent.
func (ps *ProgressionState) SaveTemp() {
	ps.temp = false
	ps.tempItems = nil
}

// AddTokenSource registers a placed counter location for validation passes.
func (ps *ProgressionState) AddTokenSource(player int, location string, yield int) {
	ps.tokenSources[player][location] += yield
}

func (ps *ProgressionState) AddEssenceSource(player int, location string, yield int) {
	ps.essenceSources[player][location] += yield
}

func (ps *ProgressionState) Tokens(player int) int  { return ps.tokens[player] }
func (ps *ProgressionState) Essence(player int) int { return ps.essence[player] }

func (ps *ProgressionState) recalculateTokens(player int) {
	cap, tolerance := ps.logic.TokenCap()
	ps.tokens[player] = ps.recalculate(player, ps.tokenSources[player], cap+tolerance)
}

func (ps *ProgressionState) recalculateEssence(player int) {
	cap, tolerance := ps.logic.EssenceCap()
	ps.essence[player] = ps.recalculate(player, ps.essenceSources[player], cap+tolerance)
}

func (ps *ProgressionState) recalculate(player int, sources map[string]int, limit int) int {
	total := 0
	for _, name := range sortedKeys(sources) {
		if ps.CanGet(NewWorldItem(player, name)) {
			total += sources[name]
		}
		// Nothing costs more than the cap plus tolerance, so stop counting.
		if total >= limit {
			break
		}
	}
	return total
}

// updateWaypoints grants free waypoints that just became reachable. Room
// randomization invalidates waypoint logic, so it is skipped there.
func (ps *ProgressionState) updateWaypoints(player int) {
	if ps.settings[player].RandomizeRooms {
		return
	}
	for _, waypoint := range ps.logic.Waypoints() {
		wp := NewWorldItem(player, waypoint)
		if !ps.Has(wp) && ps.CanGet(wp) {
			ps.Add(wp)
		}
	}
}
