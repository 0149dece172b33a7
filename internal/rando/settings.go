package rando

import (
	"hash/fnv"
	"maps"
	"slices"
)

// Settings is the per-player bundle of generation options submitted on
// ready-up. It is treated as immutable once a generation starts; the engine
// clones it before overwriting the seed with the initiator's.
type Settings struct {
	// Randomized item pools, keyed by ruleset pool name.
	RandomizePools map[string]bool `json:"randomize_pools"`

	// Logic rules (allowed skips). Each maps to a pseudo-flag granted at the
	// start of every reachability evaluation.
	ShadeSkips    bool `json:"shade_skips"`
	AcidSkips     bool `json:"acid_skips"`
	SpikeTunnels  bool `json:"spike_tunnels"`
	MildSkips     bool `json:"mild_skips"`
	SpicySkips    bool `json:"spicy_skips"`
	FireballSkips bool `json:"fireball_skips"`
	DarkRooms     bool `json:"dark_rooms"`

	// Layout randomization.
	RandomizeAreas bool `json:"randomize_areas"`
	RandomizeRooms bool `json:"randomize_rooms"`

	// Extras.
	StartName              string `json:"start_name"`
	RandomizeStartItems    bool   `json:"randomize_start_items"`
	RandomizeStartLocation bool   `json:"randomize_start_location"`
	RandomizeCosts         bool   `json:"randomize_costs"`
	DuplicateMajorItems    bool   `json:"duplicate_major_items"`
	CreateSpoilerLog       bool   `json:"create_spoiler_log"`
	Cursed                 bool   `json:"cursed"`

	// Seed drives the whole generation. Only the initiating player's seed is
	// used; every result reports it.
	Seed int64 `json:"seed"`
}

// RandomizeTransitions reports whether any layout randomization is active.
func (s *Settings) RandomizeTransitions() bool {
	return s.RandomizeAreas || s.RandomizeRooms
}

func (s *Settings) RandomizesPool(pool string) bool {
	return s.RandomizePools[pool]
}

func (s *Settings) Clone() *Settings {
	out := *s
	out.RandomizePools = make(map[string]bool, len(s.RandomizePools))
	for k, v := range s.RandomizePools {
		out.RandomizePools[k] = v
	}
	return &out
}

// SettingsHash folds every option except the seed into a stable value. Summed
// across players it decorrelates derived seeds between otherwise identical
// runs.
func (s *Settings) SettingsHash() int64 {
	h := fnv.New64a()

	writeBool := func(b bool) {
		if b {
			h.Write([]byte{1})
		} else {
			h.Write([]byte{0})
		}
	}

	for _, pool := range sortedKeys(s.RandomizePools) {
		h.Write([]byte(pool))
		writeBool(s.RandomizePools[pool])
	}

	for _, b := range []bool{
		s.ShadeSkips, s.AcidSkips, s.SpikeTunnels, s.MildSkips,
		s.SpicySkips, s.FireballSkips, s.DarkRooms,
		s.RandomizeAreas, s.RandomizeRooms,
		s.RandomizeStartItems, s.RandomizeStartLocation, s.RandomizeCosts,
		s.DuplicateMajorItems, s.Cursed,
	} {
		writeBool(b)
	}
	h.Write([]byte(s.StartName))

	return int64(h.Sum64())
}

func (s *Settings) Validate() error {
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := slices.Collect(maps.Keys(m))
	slices.Sort(keys)
	return keys
}
