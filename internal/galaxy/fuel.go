package galaxy

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Linear constant L of the hyperspace fuel equation, by drive rating.
var ratingConstant = map[byte]float64{
	'A': 12,
	'B': 10,
	'C': 8,
	'D': 10,
	'E': 11,
}

// Power constant P of the hyperspace fuel equation, by drive class.
var classPower = map[int]float64{
	2: 2.00,
	3: 2.15,
	4: 2.30,
	5: 2.45,
	6: 2.60,
	7: 2.75,
	8: 2.90,
}

// FuelUse evaluates L * 0.001 * (distance * mass / optimalMass)^P.
func FuelUse(distance, mass, optimalMass, l, p float64) float64 {
	return l * 0.001 * math.Pow(distance*mass/optimalMass, p)
}

// FSD describes a frame shift drive.
type FSD struct {
	Class       int
	Rating      byte
	OptimalMass float64
	// MaxFuelPerJump caps a single jump; zero means uncapped.
	MaxFuelPerJump float64
}

// ParseFSD parses a drive designation such as "5A".
func ParseFSD(s string) (FSD, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return FSD{}, fmt.Errorf("invalid drive %q", s)
	}
	class, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return FSD{}, fmt.Errorf("invalid drive class %q", s)
	}
	fsd := FSD{Class: class, Rating: s[len(s)-1]}
	if err := fsd.Validate(); err != nil {
		return FSD{}, err
	}
	return fsd, nil
}

// Validate checks that the class and rating are known to the fuel equation.
func (f FSD) Validate() error {
	if _, ok := classPower[f.Class]; !ok {
		return fmt.Errorf("unknown drive class %d", f.Class)
	}
	if _, ok := ratingConstant[f.Rating]; !ok {
		return fmt.Errorf("unknown drive rating %q", string(f.Rating))
	}
	return nil
}

// FuelCost returns the fuel, in tons, a jump of the given distance burns for a
// ship of the given total mass.
func (f FSD) FuelCost(distance, mass float64) float64 {
	return FuelUse(distance, mass, f.OptimalMass, ratingConstant[f.Rating], classPower[f.Class])
}

// String returns the drive designation, e.g. "5A".
func (f FSD) String() string {
	return fmt.Sprintf("%d%c", f.Class, f.Rating)
}
