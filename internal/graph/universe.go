package graph

import (
	"context"
	"sort"

	"galos/internal/galaxy"
)

// Universe is an in-memory set of systems keyed by address. It answers range
// queries by linear scan and serves as a Locator for small galaxies and tests.
type Universe struct {
	Systems map[uint64]galaxy.System
}

// NewUniverse creates an empty Universe.
func NewUniverse() *Universe {
	return &Universe{Systems: make(map[uint64]galaxy.System)}
}

// Add stores s, replacing any system with the same address.
func (u *Universe) Add(systems ...galaxy.System) {
	for _, s := range systems {
		u.Systems[s.Address] = s
	}
}

// SystemsWithin returns all systems at most radius from center, sorted by address.
func (u *Universe) SystemsWithin(ctx context.Context, center galaxy.Coordinate, radius float64) ([]galaxy.System, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []galaxy.System
	for _, s := range u.Systems {
		if center.Within(s.Position, radius) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}
