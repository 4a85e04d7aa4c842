package graph

import (
	"context"
	"math"
	"sort"

	"galos/internal/galaxy"
)

// Locator answers 3-D range queries. *db.DB and *Universe satisfy it.
type Locator interface {
	SystemsWithin(ctx context.Context, center galaxy.Coordinate, radius float64) ([]galaxy.System, error)
}

// Neighbor is a successor together with the cost of the hop that reaches it.
type Neighbor struct {
	System galaxy.System
	Cost   float64
}

// Expander produces the successors of a system. It must return the same set
// for the same system while the underlying store is unchanged.
type Expander interface {
	Neighbors(ctx context.Context, s galaxy.System) ([]Neighbor, error)
}

// CostFunc prices a single hop. Returning ok=false drops the hop.
type CostFunc func(from, to galaxy.System) (cost float64, ok bool)

// UnitCost prices every hop at one jump.
func UnitCost(from, to galaxy.System) (float64, bool) {
	return 1, true
}

// FuelCost prices a hop by the fuel the drive burns for a ship of the given
// total mass. Hops above the drive's MaxFuelPerJump are dropped.
func FuelCost(fsd galaxy.FSD, mass float64) CostFunc {
	return func(from, to galaxy.System) (float64, bool) {
		fuel := fsd.FuelCost(from.Distance(to), mass)
		if math.IsNaN(fuel) || math.IsInf(fuel, 0) {
			return 0, false
		}
		if fsd.MaxFuelPerJump > 0 && fuel > fsd.MaxFuelPerJump {
			return 0, false
		}
		return fuel, true
	}
}

// RangeExpander turns a Locator into an Expander: the successors of s are all
// systems within the jump range of s, s itself included.
type RangeExpander struct {
	loc       Locator
	jumpRange float64
	cost      CostFunc
	unitCost  bool
}

// ExpanderOption configures a RangeExpander.
type ExpanderOption func(*RangeExpander)

// WithCost replaces the unit hop cost.
func WithCost(fn CostFunc) ExpanderOption {
	return func(e *RangeExpander) {
		e.cost = fn
		e.unitCost = false
	}
}

// NewRangeExpander returns an expander over loc for the given jump range.
func NewRangeExpander(loc Locator, jumpRange float64, opts ...ExpanderOption) *RangeExpander {
	e := &RangeExpander{loc: loc, jumpRange: jumpRange, cost: UnitCost, unitCost: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Heuristic returns the admissible heuristic for the expander's cost:
// JumpHeuristic for unit cost and ZeroHeuristic otherwise.
func (e *RangeExpander) Heuristic() Heuristic {
	if e.unitCost {
		return JumpHeuristic(e.jumpRange)
	}
	return ZeroHeuristic
}

// Neighbors returns the systems within range of s, sorted by address.
func (e *RangeExpander) Neighbors(ctx context.Context, s galaxy.System) ([]Neighbor, error) {
	found, err := e.loc.SystemsWithin(ctx, s.Position, e.jumpRange)
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Address < found[j].Address })

	out := make([]Neighbor, 0, len(found))
	for _, t := range found {
		c, ok := e.cost(s, t)
		if !ok || math.IsNaN(c) || c < 0 {
			continue
		}
		out = append(out, Neighbor{System: t, Cost: c})
	}
	return out, nil
}
