package rando

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ItemSpoiler renders the complete placement of a generation as text, ordered
// by location discovery where known. Built from a pre-projection result so it
// covers every player.
func ItemSpoiler(r *Result) string {
	type row struct {
		item  WorldItem
		loc   WorldItem
		order int
	}

	rows := make([]row, 0, len(r.ItemPlacements))
	for item, loc := range r.ItemPlacements {
		order, ok := r.LocationOrder[loc]
		if !ok {
			order = len(r.LocationOrder)
		}
		rows = append(rows, row{item: item, loc: loc, order: order})
	}
	slices.SortFunc(rows, func(a, b row) int {
		if a.order != b.order {
			return a.order - b.order
		}
		return compareWorldItems(a.item, b.item)
	})

	var sb strings.Builder
	fmt.Fprintf(&sb, "Multiworld %s, %d players, seed %d\n\n", r.MultiworldID, r.Players, r.Settings.Seed)
	for _, row := range rows {
		fmt.Fprintf(&sb, "%s <- %s", row.loc, row.item)
		if cost, ok := r.ShopCosts[row.item]; ok {
			fmt.Fprintf(&sb, " (cost %d)", cost)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// WriteSpoiler saves the spoiler text under dir, named by the generation's
// multiworld id.
func WriteSpoiler(dir string, r *Result, spoiler string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating spoiler dir: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s.txt", r.MultiworldID))
	if err := os.WriteFile(path, []byte(spoiler), 0644); err != nil {
		return "", fmt.Errorf("writing spoiler: %w", err)
	}
	return path, nil
}
