package rando

import (
	"fmt"
	"slices"
)

// Ruleset is a resolved RulesetSpec: flags mapped to bit positions, pools
// indexed, and every lookup the engine performs precomputed. A Ruleset is
// immutable and satisfies Logic.
type Ruleset struct {
	spec *RulesetSpec

	bits      map[string]FlagBit
	words     int
	shops     []string
	waypoints []string
	items     []string
	locations []string
	byPool    map[string][]string
	reqs      map[string]*Requirement
}

// Resolve assigns every progression flag a (word, mask) position and builds
// the lookup tables. Flag order is sorted so bit layout is stable across
// processes.
func (s *RulesetSpec) Resolve() (*Ruleset, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating ruleset: %w", err)
	}

	r := &Ruleset{
		spec:   s,
		bits:   map[string]FlagBit{},
		byPool: map[string][]string{},
		reqs:   map[string]*Requirement{},
	}

	var flags []string
	for name, def := range s.Items {
		if def.Progression {
			flags = append(flags, name)
		}
	}
	for _, wp := range s.Waypoints {
		flags = append(flags, wp.Name)
		r.waypoints = append(r.waypoints, wp.Name)
		r.reqs[wp.Name] = wp.Logic
	}
	flags = append(flags, skipFlagNames...)
	flags = append(flags, s.Transitions...)

	slices.Sort(flags)
	flags = slices.Compact(flags)
	for i, name := range flags {
		r.bits[name] = FlagBit{Word: i / 64, Mask: 1 << (i % 64)}
	}
	r.words = (len(flags) + 63) / 64

	for name, def := range s.Items {
		r.items = append(r.items, name)
		r.byPool[def.Pool] = append(r.byPool[def.Pool], name)
	}
	for name, def := range s.Locations {
		r.locations = append(r.locations, name)
		if def.Shop {
			r.shops = append(r.shops, name)
		}
		r.reqs[name] = def.Logic
	}

	slices.Sort(r.items)
	slices.Sort(r.locations)
	slices.Sort(r.shops)
	slices.Sort(r.waypoints)
	for _, names := range r.byPool {
		slices.Sort(names)
	}

	return r, nil
}

func (r *Ruleset) WordCount() int { return r.words }

func (r *Ruleset) FlagBit(name string) (FlagBit, bool) {
	b, ok := r.bits[name]
	return b, ok
}

func (r *Ruleset) ItemDef(name string) (ItemDef, bool) {
	def, ok := r.spec.Items[name]
	if !ok {
		return ItemDef{}, false
	}
	return *def, true
}

func (r *Ruleset) LocationDef(name string) (*LocationDef, bool) {
	def, ok := r.spec.Locations[name]
	return def, ok
}

func (r *Ruleset) Requirement(name string) (*Requirement, bool) {
	req, ok := r.reqs[name]
	return req, ok
}

func (r *Ruleset) ShopNames() []string     { return r.shops }
func (r *Ruleset) Waypoints() []string     { return r.waypoints }
func (r *Ruleset) ItemNames() []string     { return r.items }
func (r *Ruleset) LocationNames() []string { return r.locations }

func (r *Ruleset) ItemsByPool(pool string) []string { return r.byPool[pool] }

func (r *Ruleset) StartDefs() []StartDef { return r.spec.Starts }

func (r *Ruleset) TransitionNames() []string { return r.spec.Transitions }

// SkipFlags maps a player's allowed-skip settings onto the pseudo-flags the
// logic evaluates against.
func (r *Ruleset) SkipFlags(s *Settings) []string {
	var flags []string
	add := func(on bool, flag string) {
		if on {
			flags = append(flags, flag)
		}
	}
	add(s.ShadeSkips, flagShadeSkips)
	add(s.AcidSkips, flagAcidSkips)
	add(s.SpikeTunnels, flagSpikeTunnels)
	add(s.MildSkips, flagMildSkips)
	add(s.SpicySkips, flagSpicySkips)
	add(s.FireballSkips, flagFireballSkips)
	add(s.DarkRooms, flagDarkRooms)
	add(s.Cursed, flagCursed)
	add(!s.Cursed, flagNotCursed)
	return flags
}

func (r *Ruleset) TokenPool() string   { return r.spec.TokenCost.Pool }
func (r *Ruleset) EssencePool() string { return r.spec.EssenceCost.Pool }

func (r *Ruleset) TokenCap() (int, int) {
	return r.spec.TokenCost.Cap, r.spec.TokenCost.Tolerance
}

func (r *Ruleset) EssenceCap() (int, int) {
	return r.spec.EssenceCost.Cap, r.spec.EssenceCost.Tolerance
}

// PriceFactor scales a shop item's generated cost by pool. Items that yield
// currency themselves are always free.
func (r *Ruleset) PriceFactor(item string) int {
	def, ok := r.spec.Items[item]
	if !ok {
		return 1
	}
	if def.Value > 0 {
		return 0
	}
	if factor, ok := r.spec.PriceFactors[def.Pool]; ok {
		return factor
	}
	return 1
}
