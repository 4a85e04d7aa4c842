package galaxy

import "strings"

// Security is a system's security level. The zero value means unknown.
type Security string

const (
	SecurityHigh    Security = "High"
	SecurityMedium  Security = "Medium"
	SecurityLow     Security = "Low"
	SecurityAnarchy Security = "Anarchy"
)

// Government is a faction or system government type. The zero value means unknown.
type Government string

const (
	GovernmentAnarchy      Government = "Anarchy"
	GovernmentCommunism    Government = "Communism"
	GovernmentConfederacy  Government = "Confederacy"
	GovernmentCooperative  Government = "Cooperative"
	GovernmentCorporate    Government = "Corporate"
	GovernmentDemocracy    Government = "Democracy"
	GovernmentDictatorship Government = "Dictatorship"
	GovernmentFeudal       Government = "Feudal"
	GovernmentPatronage    Government = "Patronage"
	GovernmentPrison       Government = "Prison"
	GovernmentPrisonColony Government = "PrisonColony"
	GovernmentTheocracy    Government = "Theocracy"
	GovernmentEngineer     Government = "Engineer"
	GovernmentCarrier      Government = "Carrier"
	GovernmentNone         Government = "None"
)

// Allegiance is the superpower a system is aligned with. The zero value means unknown.
type Allegiance string

const (
	AllegianceAlliance         Allegiance = "Alliance"
	AllegianceEmpire           Allegiance = "Empire"
	AllegianceFederation       Allegiance = "Federation"
	AllegianceIndependent      Allegiance = "Independent"
	AllegianceGuardian         Allegiance = "Guardian"
	AllegianceThargoid         Allegiance = "Thargoid"
	AllegiancePilotsFederation Allegiance = "PilotsFederation"
	AllegianceNone             Allegiance = "None"
)

// Economy is a system economy type. The zero value means unknown.
type Economy string

const (
	EconomyAgriculture  Economy = "Agriculture"
	EconomyColony       Economy = "Colony"
	EconomyExtraction   Economy = "Extraction"
	EconomyHighTech     Economy = "HighTech"
	EconomyIndustrial   Economy = "Industrial"
	EconomyMilitary     Economy = "Military"
	EconomyRefinery     Economy = "Refinery"
	EconomyService      Economy = "Service"
	EconomyTerraforming Economy = "Terraforming"
	EconomyTourism      Economy = "Tourism"
	EconomyPrison       Economy = "Prison"
	EconomyDamaged      Economy = "Damaged"
	EconomyRescue       Economy = "Rescue"
	EconomyRepair       Economy = "Repair"
	EconomyCarrier      Economy = "Carrier"
	EconomyEngineer     Economy = "Engineer"
	EconomyNone         Economy = "None"
)

var securities = index(
	SecurityHigh, SecurityMedium, SecurityLow, SecurityAnarchy,
)

var governments = index(
	GovernmentAnarchy, GovernmentCommunism, GovernmentConfederacy, GovernmentCooperative,
	GovernmentCorporate, GovernmentDemocracy, GovernmentDictatorship, GovernmentFeudal,
	GovernmentPatronage, GovernmentPrison, GovernmentPrisonColony, GovernmentTheocracy,
	GovernmentEngineer, GovernmentCarrier, GovernmentNone,
)

var allegiances = index(
	AllegianceAlliance, AllegianceEmpire, AllegianceFederation, AllegianceIndependent,
	AllegianceGuardian, AllegianceThargoid, AllegiancePilotsFederation, AllegianceNone,
)

var economies = index(
	EconomyAgriculture, EconomyColony, EconomyExtraction, EconomyHighTech,
	EconomyIndustrial, EconomyMilitary, EconomyRefinery, EconomyService,
	EconomyTerraforming, EconomyTourism, EconomyPrison, EconomyDamaged,
	EconomyRescue, EconomyRepair, EconomyCarrier, EconomyEngineer, EconomyNone,
)

func init() {
	// Aliases seen in the feeds.
	securities["lawless"] = SecurityAnarchy
	securities["highsecurity"] = SecurityHigh
	securities["mediumsecurity"] = SecurityMedium
	securities["lowsecurity"] = SecurityLow
	economies["agri"] = EconomyAgriculture
}

func index[T ~string](values ...T) map[string]T {
	m := make(map[string]T, len(values))
	for _, v := range values {
		m[canonical(string(v))] = v
	}
	return m
}

// canonical reduces feed spellings ("$economy_HighTech;", "High Tech",
// "$SYSTEM_SECURITY_medium;") to a lookup key ("hightech", "medium").
func canonical(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "$") {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "$"), ";")
		if i := strings.LastIndex(s, "_"); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.ToLower(s)
	s = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
	return s
}

// ParseSecurity maps a feed value to a Security. Unknown values yield the zero value.
func ParseSecurity(s string) Security { return securities[canonical(s)] }

// ParseGovernment maps a feed value to a Government. Unknown values yield the zero value.
func ParseGovernment(s string) Government { return governments[canonical(s)] }

// ParseAllegiance maps a feed value to an Allegiance. Unknown values yield the zero value.
func ParseAllegiance(s string) Allegiance { return allegiances[canonical(s)] }

// ParseEconomy maps a feed value to an Economy. Unknown values yield the zero value.
func ParseEconomy(s string) Economy { return economies[canonical(s)] }
