package galaxy

import (
	"math"
	"strings"
	"time"
)

// Coordinate is a point in galactic space, in light-years relative to Sol.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the 3-D Euclidean distance between two coordinates.
func (c Coordinate) Distance(o Coordinate) float64 {
	dx, dy, dz := o.X-c.X, o.Y-c.Y, o.Z-c.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Within reports whether o lies in the closed ball of the given radius around c.
// Squared distances are compared so the boundary matches the store's predicate.
func (c Coordinate) Within(o Coordinate, radius float64) bool {
	dx, dy, dz := o.X-c.X, o.Y-c.Y, o.Z-c.Z
	return dx*dx+dy*dy+dz*dz <= radius*radius
}

// Finite reports whether all three components are finite numbers.
func (c Coordinate) Finite() bool {
	for _, v := range [3]float64{c.X, c.Y, c.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// System is a star system, the vertex of the routing graph.
// Identity is Address alone; two values with the same Address are the same system.
type System struct {
	Address          uint64     `json:"address"`
	Name             string     `json:"name"`
	Position         Coordinate `json:"position"`
	Population       uint64     `json:"population"`
	Security         Security   `json:"security,omitempty"`
	Government       Government `json:"government,omitempty"`
	Allegiance       Allegiance `json:"allegiance,omitempty"`
	PrimaryEconomy   Economy    `json:"primary_economy,omitempty"`
	SecondaryEconomy Economy    `json:"secondary_economy,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Distance returns the distance in light-years between two systems.
func (s System) Distance(o System) float64 {
	return s.Position.Distance(o.Position)
}

// NormalizeName returns the stored form of a system name.
func NormalizeName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
