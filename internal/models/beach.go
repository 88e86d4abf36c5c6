package models

// ProtectionLevel describes a beach's natural shelter from wind in general.
type ProtectionLevel string

const (
	ProtectionHigh     ProtectionLevel = "high"
	ProtectionModerate ProtectionLevel = "moderate"
	ProtectionLow      ProtectionLevel = "low"
)

// Valid reports whether p is one of the known protection levels.
func (p ProtectionLevel) Valid() bool {
	switch p {
	case ProtectionHigh, ProtectionModerate, ProtectionLow:
		return true
	}
	return false
}

// MeltemiShield rates shelter from northerly meltemi winds specifically.
// The zero value means the beach has no rating.
type MeltemiShield string

const (
	ShieldExcellent MeltemiShield = "excellent"
	ShieldGood      MeltemiShield = "good"
	ShieldModerate  MeltemiShield = "moderate"
	ShieldPoor      MeltemiShield = "poor"
)

// Valid reports whether s is a known rating or empty.
func (s MeltemiShield) Valid() bool {
	switch s {
	case "", ShieldExcellent, ShieldGood, ShieldModerate, ShieldPoor:
		return true
	}
	return false
}

// Beach is a static catalog record. Never mutated after catalog load.
type Beach struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Lat           float64         `json:"lat"`
	Lon           float64         `json:"lon"`
	Protection    ProtectionLevel `json:"protection"`
	MeltemiShield MeltemiShield   `json:"meltemiShield,omitempty"`
	Island        string          `json:"island"`
}

// Location is a coordinate pair as exposed in API responses.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
