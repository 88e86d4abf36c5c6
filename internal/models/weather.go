package models

import "time"

// WeatherReading is the forecast resolved to a single hour at one location.
type WeatherReading struct {
	Source            string    `json:"source"`
	Location          Location  `json:"location"`
	WindSpeed         float64   `json:"windSpeed"`
	WindDirection     int       `json:"windDirection"`
	WindDirectionText string    `json:"windDirectionText"`
	Temperature       float64   `json:"temperature"`
	Conditions        string    `json:"conditions"`
	WeatherCode       int       `json:"weatherCode"`
	IsMeltemi         bool      `json:"isMeltemi"`
	Timestamp         time.Time `json:"timestamp"`
	Cached            bool      `json:"cached,omitempty"` // set on copies served from cache
}

// HourlySeries holds the upstream parallel arrays indexed by hour.
// Value entries are nil where the upstream reported null.
type HourlySeries struct {
	Time          []time.Time
	Temperature   []*float64
	WindSpeed     []*float64
	WindDirection []*float64
	WeatherCode   []*float64
}

// Len returns the number of hours in the series.
func (s HourlySeries) Len() int {
	return len(s.Time)
}
