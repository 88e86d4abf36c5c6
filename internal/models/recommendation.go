package models

// ProtectionResult is the sheltered-wind assessment of one beach for one reading.
type ProtectionResult struct {
	EffectiveWindSpeed  float64         `json:"effectiveWindSpeed"`
	OriginalWindSpeed   float64         `json:"originalWindSpeed"`
	SwimmingConditions  string          `json:"swimmingConditions"`
	ProtectionScore     ProtectionLevel `json:"protectionScore"`
	MeltemiProtection   MeltemiShield   `json:"meltemiProtection,omitempty"`
	IsMeltemiConditions bool            `json:"isMeltemiConditions"`
	SwimmabilityScore   int             `json:"swimmabilityScore"`
	WindReduction       int             `json:"windReduction"`
}

// Recommendation pairs a beach with its reading and assessment.
type Recommendation struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Location    Location         `json:"location"`
	Weather     WeatherReading   `json:"weather"`
	Protection  ProtectionResult `json:"protection"`
	Score       int              `json:"score"`
	Island      string           `json:"island"`
}

// IslandRecommendations is the ranked result for one island.
type IslandRecommendations struct {
	Island             string           `json:"island"`
	Date               string           `json:"date"`
	Time               string           `json:"time"`
	TotalBeaches       int              `json:"totalBeaches"`
	AverageTemperature float64          `json:"averageTemperature"`
	MeltemiConditions  bool             `json:"meltemiConditions"`
	TopRecommendation  Recommendation   `json:"topRecommendation"`
	AllRecommendations []Recommendation `json:"allRecommendations"`
}
