package rando

import (
	"fmt"

	"github.com/pixil98/go-errors"
)

// Logic is the reachability oracle the placement engine runs against. It
// answers whether a name is obtainable under an accumulated progression state
// and supplies item metadata. Implementations are immutable once built.
type Logic interface {
	WordCount() int
	FlagBit(name string) (FlagBit, bool)
	ItemDef(name string) (ItemDef, bool)
	LocationDef(name string) (*LocationDef, bool)
	Requirement(name string) (*Requirement, bool)
	ShopNames() []string
	Waypoints() []string
	ItemNames() []string
	LocationNames() []string
	ItemsByPool(pool string) []string
	StartDefs() []StartDef
	TransitionNames() []string
	SkipFlags(s *Settings) []string
	TokenPool() string
	EssencePool() string
	TokenCap() (cap, tolerance int)
	EssenceCap() (cap, tolerance int)
	PriceFactor(item string) int
}

// FlagBit locates one progression flag inside the obtained bit-vector.
type FlagBit struct {
	Word int
	Mask uint64
}

// ItemDef is the pool metadata the engine needs about a single item.
type ItemDef struct {
	Pool        string `json:"pool"`
	Progression bool   `json:"progression"`
	// Value is the currency the item itself yields when picked up. Items
	// with a positive value are never sold for a price.
	Value int `json:"value,omitempty"`
	// Tokens and Essence are the item's contributions to the two capped
	// resource counters.
	Tokens  int `json:"tokens,omitempty"`
	Essence int `json:"essence,omitempty"`
	// Major items are eligible for duplication when a player enables it.
	Major bool `json:"major,omitempty"`
}

// Clause is one way to satisfy a requirement: every flag obtained and both
// counters at or above the listed costs.
type Clause struct {
	All         []string `json:"all,omitempty"`
	TokenCost   int      `json:"token_cost,omitempty"`
	EssenceCost int      `json:"essence_cost,omitempty"`
}

// Requirement is a disjunction of clauses. An empty requirement is always
// satisfied.
type Requirement struct {
	AnyOf []Clause `json:"any_of,omitempty"`
}

// LocationDef describes a fillable location. Shop locations hold any number
// of items; others exactly one.
type LocationDef struct {
	Pool  string       `json:"pool,omitempty"`
	Shop  bool         `json:"shop,omitempty"`
	Logic *Requirement `json:"logic,omitempty"`
}

// StartDef is a candidate starting location. Usable either unconditionally or
// when the player's start progression covers every listed flag.
type StartDef struct {
	Name     string   `json:"name"`
	Waypoint string   `json:"waypoint,omitempty"`
	Requires []string `json:"requires,omitempty"`
}

// WaypointDef is a free progression flag granted as soon as its requirement
// becomes reachable.
type WaypointDef struct {
	Name  string       `json:"name"`
	Logic *Requirement `json:"logic,omitempty"`
}

// CounterSpec configures one of the two derived resource counters: which pool
// feeds it, its cap, and the tolerance past the cap at which recomputation
// short-circuits.
type CounterSpec struct {
	Pool      string `json:"pool"`
	Cap       int    `json:"cap"`
	Tolerance int    `json:"tolerance"`
}

// Skip-rule pseudo-flags. Granted per player according to settings before any
// reachability evaluation.
const (
	flagShadeSkips    = "SHADESKIPS"
	flagAcidSkips     = "ACIDSKIPS"
	flagSpikeTunnels  = "SPIKETUNNELS"
	flagMildSkips     = "MILDSKIPS"
	flagSpicySkips    = "SPICYSKIPS"
	flagFireballSkips = "FIREBALLSKIPS"
	flagDarkRooms     = "DARKROOMS"
	flagCursed        = "CURSED"
	flagNotCursed     = "NOTCURSED"
)

var skipFlagNames = []string{
	flagShadeSkips, flagAcidSkips, flagSpikeTunnels, flagMildSkips,
	flagSpicySkips, flagFireballSkips, flagDarkRooms, flagCursed, flagNotCursed,
}

// RulesetSpec is the stored form of a ruleset, loaded from JSON assets. It is
// resolved into a Ruleset before use.
type RulesetSpec struct {
	Items        map[string]*ItemDef     `json:"items"`
	Locations    map[string]*LocationDef `json:"locations"`
	Waypoints    []*WaypointDef          `json:"waypoints,omitempty"`
	Starts       []StartDef              `json:"starts"`
	Transitions  []string                `json:"transitions,omitempty"`
	TokenCost    CounterSpec             `json:"token_counter"`
	EssenceCost  CounterSpec             `json:"essence_counter"`
	PriceFactors map[string]int          `json:"price_factors,omitempty"`
}

func (s *RulesetSpec) Validate() error {
	el := errors.NewErrorList()

	if len(s.Items) == 0 {
		el.Add(fmt.Errorf("ruleset defines no items"))
	}
	if len(s.Locations) == 0 {
		el.Add(fmt.Errorf("ruleset defines no locations"))
	}
	if len(s.Starts) == 0 {
		el.Add(fmt.Errorf("ruleset defines no start locations"))
	}

	for name, loc := range s.Locations {
		el.Add(validateRequirement(name, loc.Logic, s))
	}
	for _, wp := range s.Waypoints {
		el.Add(validateRequirement(wp.Name, wp.Logic, s))
	}
	for _, start := range s.Starts {
		if _, ok := s.Locations[start.Name]; !ok {
			el.Add(fmt.Errorf("start %q is not a defined location", start.Name))
		}
	}
	if len(s.Transitions)%2 != 0 {
		el.Add(fmt.Errorf("transition list must pair up, got %d entries", len(s.Transitions)))
	}

	return el.Err()
}

func validateRequirement(owner string, req *Requirement, s *RulesetSpec) error {
	if req == nil {
		return nil
	}

	el := errors.NewErrorList()
	for _, clause := range req.AnyOf {
		for _, flag := range clause.All {
			if !s.knownFlag(flag) {
				el.Add(fmt.Errorf("%s: requirement references unknown flag %q", owner, flag))
			}
		}
		if clause.TokenCost < 0 || clause.EssenceCost < 0 {
			el.Add(fmt.Errorf("%s: negative counter cost", owner))
		}
	}
	return el.Err()
}

func (s *RulesetSpec) knownFlag(flag string) bool {
	if _, ok := s.Items[flag]; ok {
		return true
	}
	for _, wp := range s.Waypoints {
		if wp.Name == flag {
			return true
		}
	}
	for _, sk := range skipFlagNames {
		if sk == flag {
			return true
		}
	}
	for _, t := range s.Transitions {
		if t == flag {
			return true
		}
	}
	return false
}
