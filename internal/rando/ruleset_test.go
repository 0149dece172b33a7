package rando

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/pixil98/go-testutil"
)

// testSpec builds a small but fully solvable world: three progression
// skills gating a handful of locations, a junk pool, a token counter with a
// gated door, one waypoint, and two shops.
func testSpec() *RulesetSpec {
	req := func(flags ...string) *Requirement {
		return &Requirement{AnyOf: []Clause{{All: flags}}}
	}

	spec := &RulesetSpec{
		Items: map[string]*ItemDef{
			"Dash":    {Pool: "skills", Progression: true, Major: true},
			"Claw":    {Pool: "skills", Progression: true, Major: true},
			"Lantern": {Pool: "skills", Progression: true},
			"Relic_1": {Pool: "relics", Value: 50},
		},
		Locations: map[string]*LocationDef{
			"Start_Cache": {},
			"Ledge":       {Logic: req("Dash")},
			"Wall":        {Logic: req("Claw")},
			"Dark_Pit": {Logic: &Requirement{AnyOf: []Clause{
				{All: []string{"Dash", "Claw"}},
				{All: []string{"DARKROOMS"}},
			}}},
			"Token_Gate":      {Logic: &Requirement{AnyOf: []Clause{{TokenCost: 2}}}},
			"Beyond_Crossing": {Logic: req("Crossing")},
			"Shop":            {Shop: true},
			"Shop_B":          {Shop: true},
		},
		Waypoints: []*WaypointDef{
			{Name: "Crossing", Logic: req("Dash")},
		},
		Starts: []StartDef{
			{Name: "Start_Cache"},
			{Name: "Ledge", Requires: []string{"Dash"}},
		},
		Transitions: []string{"East_Door", "West_Door"},
		TokenCost:   CounterSpec{Pool: "tokens", Cap: 4, Tolerance: 2},
		EssenceCost: CounterSpec{Pool: "essence", Cap: 100},
		PriceFactors: map[string]int{
			"relics": 2,
		},
	}

	for i := 2; i <= 6; i++ {
		spec.Items[fmt.Sprintf("Relic_%d", i)] = &ItemDef{Pool: "relics"}
	}
	for i := 1; i <= 4; i++ {
		name := fmt.Sprintf("Token_Nook_%d", i)
		spec.Items[name] = &ItemDef{Pool: "tokens", Tokens: 1}
		spec.Locations[name] = &LocationDef{Pool: "tokens"}
	}

	return spec
}

func testLogic(t *testing.T) *Ruleset {
	t.Helper()
	r, err := testSpec().Resolve()
	if err != nil {
		t.Fatalf("resolving test ruleset: %v", err)
	}
	return r
}

func testSettings(seed int64) *Settings {
	return &Settings{
		RandomizePools: map[string]bool{
			"skills": true,
			"relics": true,
		},
		Seed: seed,
	}
}

func TestRulesetSpec_Validate(t *testing.T) {
	tests := map[string]struct {
		mutate func(*RulesetSpec)
		expErr string
	}{
		"valid": {
			mutate: func(s *RulesetSpec) {},
		},
		"no items": {
			mutate: func(s *RulesetSpec) { s.Items = nil },
			expErr: "defines no items",
		},
		"no locations": {
			mutate: func(s *RulesetSpec) { s.Locations = nil },
			expErr: "defines no locations",
		},
		"no starts": {
			mutate: func(s *RulesetSpec) { s.Starts = nil },
			expErr: "no start locations",
		},
		"unknown flag in location logic": {
			mutate: func(s *RulesetSpec) {
				s.Locations["Ledge"].Logic.AnyOf[0].All = []string{"NoSuchFlag"}
			},
			expErr: `unknown flag "NoSuchFlag"`,
		},
		"negative counter cost": {
			mutate: func(s *RulesetSpec) {
				s.Locations["Token_Gate"].Logic.AnyOf[0].TokenCost = -1
			},
			expErr: "negative counter cost",
		},
		"start is not a location": {
			mutate: func(s *RulesetSpec) {
				s.Starts = append(s.Starts, StartDef{Name: "Nowhere"})
			},
			expErr: `start "Nowhere" is not a defined location`,
		},
		"odd transition list": {
			mutate: func(s *RulesetSpec) {
				s.Transitions = append(s.Transitions, "Lone_Door")
			},
			expErr: "transition list must pair up",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			spec := testSpec()
			tt.mutate(spec)

			err := spec.Validate()
			if tt.expErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			testutil.AssertErrorContains(t, err, tt.expErr)
		})
	}
}

func TestResolve_FlagBits(t *testing.T) {
	logic := testLogic(t)

	// Every progression item, waypoint, skip flag, and transition gets a bit.
	for _, flag := range []string{"Dash", "Claw", "Lantern", "Crossing", "DARKROOMS", "NOTCURSED", "East_Door"} {
		if _, ok := logic.FlagBit(flag); !ok {
			t.Errorf("no bit assigned for %q", flag)
		}
	}

	// Junk never gets a bit.
	if _, ok := logic.FlagBit("Relic_1"); ok {
		t.Error("junk item got a progression bit")
	}

	// Layout is stable across resolves.
	other := testLogic(t)
	if !reflect.DeepEqual(logic.bits, other.bits) {
		t.Error("bit layout differs between resolves of the same spec")
	}
}

func TestResolve_Lookups(t *testing.T) {
	logic := testLogic(t)

	testutil.AssertEqual(t, "shops", len(logic.ShopNames()), 2)
	testutil.AssertEqual(t, "waypoints", len(logic.Waypoints()), 1)
	testutil.AssertEqual(t, "skills by pool", len(logic.ItemsByPool("skills")), 3)
	testutil.AssertEqual(t, "token pool", logic.TokenPool(), "tokens")

	cap, tol := logic.TokenCap()
	testutil.AssertEqual(t, "token cap", cap, 4)
	testutil.AssertEqual(t, "token tolerance", tol, 2)

	def, ok := logic.ItemDef("Dash")
	if !ok {
		t.Fatal("expected Dash item def")
	}
	testutil.AssertEqual(t, "dash progression", def.Progression, true)
}

func TestRuleset_SkipFlags(t *testing.T) {
	logic := testLogic(t)

	flags := logic.SkipFlags(&Settings{DarkRooms: true, ShadeSkips: true})
	want := map[string]bool{"SHADESKIPS": true, "DARKROOMS": true, "NOTCURSED": true}
	testutil.AssertEqual(t, "flag count", len(flags), len(want))
	for _, f := range flags {
		if !want[f] {
			t.Errorf("unexpected skip flag %q", f)
		}
	}

	flags = logic.SkipFlags(&Settings{Cursed: true})
	for _, f := range flags {
		if f == "NOTCURSED" {
			t.Error("cursed settings must not grant NOTCURSED")
		}
	}
}

func TestRuleset_PriceFactor(t *testing.T) {
	logic := testLogic(t)

	// Currency items are free regardless of pool factor.
	testutil.AssertEqual(t, "currency item", logic.PriceFactor("Relic_1"), 0)
	// Pool factor applies.
	testutil.AssertEqual(t, "pool factor", logic.PriceFactor("Relic_2"), 2)
	// Default factor.
	testutil.AssertEqual(t, "default factor", logic.PriceFactor("Dash"), 1)
	// Unknown items price at face value.
	testutil.AssertEqual(t, "unknown item", logic.PriceFactor("Mystery"), 1)
}
