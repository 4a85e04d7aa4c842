package galaxy

import (
	"time"

	"github.com/google/uuid"
)

// FuelType is the fuel a jump consumed. These are the game's names.
type FuelType string

const (
	// FuelTritium is burned by fleet carrier jumps.
	FuelTritium FuelType = "tritium"
	// FuelHydrogen is burned by a ship's frame shift drive.
	FuelHydrogen FuelType = "hydrogen"
)

// Cost is what a single jump consumed.
type Cost struct {
	Fuel     FuelType `json:"fuel_type"`
	Distance float64  `json:"distance"`
	Used     float64  `json:"used"`
	Level    float64  `json:"level_after"`
}

// Jump is one hyperspace transition, recorded from telemetry or planned.
// Jumps form a singly-linked chain through NextJumpID.
type Jump struct {
	ID                   uuid.UUID     `json:"id"`
	CurrentSystemAddress uint64        `json:"current_system_address"`
	Cost                 *Cost         `json:"cost,omitempty"`
	Future               bool          `json:"future"`
	Timestamp            *time.Time    `json:"timestamp,omitempty"`
	NextJumpID           uuid.NullUUID `json:"next_jump_id"`
}

// NewJump returns an observed jump into the given system.
// Cost is nil for carrier jumps, which burn no ship fuel.
func NewJump(address uint64, cost *Cost, at time.Time) Jump {
	j := Jump{
		ID:                   uuid.New(),
		CurrentSystemAddress: address,
		Cost:                 cost,
	}
	if !at.IsZero() {
		t := at.UTC()
		j.Timestamp = &t
	}
	return j
}
