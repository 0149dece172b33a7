package rando

import (
	"math/rand"
)

// Pre-randomization: everything decided for a player before item placement
// begins. All draws come from the run's shared generator so the whole
// generation is determined by the initiating seed.

// randomizeNonShopCosts rerolls the counter costs of locations that carry
// one, when the player asked for randomized costs. Keys are location names in
// the player's own world.
func randomizeNonShopCosts(rnd *rand.Rand, logic Logic, s *Settings) map[string]int {
	costs := map[string]int{}
	if !s.RandomizeCosts {
		return costs
	}

	tokenCap, _ := logic.TokenCap()
	essenceCap, _ := logic.EssenceCap()

	for _, name := range logic.LocationNames() {
		req, ok := logic.Requirement(name)
		if !ok || req == nil {
			continue
		}
		for _, clause := range req.AnyOf {
			if clause.TokenCost > 0 && tokenCap > 0 {
				costs[name] = 1 + rnd.Intn(tokenCap)
				break
			}
			if clause.EssenceCost > 0 && essenceCap > 0 {
				costs[name] = 1 + rnd.Intn(essenceCap)
				break
			}
		}
	}

	return costs
}

const startItemCount = 2

// randomizeStartingItems draws the player's starting inventory. The second
// return value is the subset that carries progression, fed into the initial
// progression state.
func randomizeStartingItems(rnd *rand.Rand, logic Logic, s *Settings) (items, progression []string) {
	if !s.RandomizeStartItems {
		return nil, nil
	}

	candidates := progressionItems(logic, s)
	if len(candidates) == 0 {
		return nil, nil
	}

	for i := 0; i < startItemCount && len(candidates) > 0; i++ {
		idx := rnd.Intn(len(candidates))
		name := candidates[idx]
		candidates = append(candidates[:idx], candidates[idx+1:]...)

		items = append(items, name)
		progression = append(progression, name)
	}

	return items, progression
}

func progressionItems(logic Logic, s *Settings) []string {
	var out []string
	for _, name := range logic.ItemNames() {
		def, _ := logic.ItemDef(name)
		if def.Progression && s.RandomizesPool(def.Pool) {
			out = append(out, name)
		}
	}
	return out
}

// randomizeStartingLocation picks a start usable with the player's start
// progression. The chosen start's waypoint joins the start progression so
// logic anchored there resolves. An empty candidate set fails the run.
func randomizeStartingLocation(rnd *rand.Rand, logic Logic, s *Settings, startProgression []string) (string, []string, error) {
	defs := logic.StartDefs()

	if !s.RandomizeStartLocation {
		def := defs[0]
		if s.StartName != "" {
			for _, d := range defs {
				if d.Name == s.StartName {
					def = d
					break
				}
			}
		}
		return def.Name, withWaypoint(startProgression, def), nil
	}

	have := map[string]bool{}
	for _, flag := range startProgression {
		have[flag] = true
	}

	var usable []StartDef
	for _, def := range defs {
		ok := true
		for _, req := range def.Requires {
			if !have[req] {
				ok = false
				break
			}
		}
		if ok {
			usable = append(usable, def)
		}
	}
	if len(usable) == 0 {
		return "", nil, ErrRandomization
	}

	def := usable[rnd.Intn(len(usable))]
	return def.Name, withWaypoint(startProgression, def), nil
}

func withWaypoint(progression []string, def StartDef) []string {
	if def.Waypoint == "" {
		return progression
	}
	return append(progression, def.Waypoint)
}

// randomizeTransitions builds a symmetric pairing over the ruleset's
// transition names: a seeded shuffle paired off two at a time, mapped in both
// directions.
func randomizeTransitions(rnd *rand.Rand, logic Logic) map[string]string {
	names := append([]string(nil), logic.TransitionNames()...)
	if len(names) == 0 {
		return nil
	}

	rnd.Shuffle(len(names), func(i, j int) {
		names[i], names[j] = names[j], names[i]
	})

	layout := make(map[string]string, len(names))
	for i := 0; i+1 < len(names); i += 2 {
		layout[names[i]] = names[i+1]
		layout[names[i+1]] = names[i]
	}
	return layout
}
