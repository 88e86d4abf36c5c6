package service

import (
	"fmt"
	"strconv"
	"time"

	"github.com/kjstillabower/aegeanswim-service/internal/client"
	"github.com/kjstillabower/aegeanswim-service/internal/models"
	"github.com/kjstillabower/aegeanswim-service/internal/protection"
)

// CurrentSentinel stands in for an absent date or time slot in cache keys.
const CurrentSentinel = "current"

// MeltemiReadingThreshold is the speed (km/h) above which a northerly reading
// is flagged as meltemi in the forecast itself.
const MeltemiReadingThreshold = 25.0

const dateLayout = "2006-01-02"

// DefaultSlotHour is used for absent or unrecognized time slots.
const DefaultSlotHour = 12

var slotHours = map[string]int{
	"early-morning": 7,
	"morning":       10,
	"midday":        13,
	"afternoon":     16,
	"evening":       19,
}

var compassPoints = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// CacheKey identifies a reading by exact coordinates plus the raw date and
// slot strings. Coordinates are not rounded, so nearby beaches never share
// an entry.
func CacheKey(q ForecastQuery) string {
	date, slot := q.Date, q.TimeSlot
	if date == "" {
		date = CurrentSentinel
	}
	if slot == "" {
		slot = CurrentSentinel
	}
	return coordKey(q.Lat, q.Lon) + ":" + date + ":" + slot
}

func coordKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + ":" + strconv.FormatFloat(lon, 'f', -1, 64)
}

// SlotHour maps a time slot to its local hour of day.
func SlotHour(slot string) int {
	if h, ok := slotHours[slot]; ok {
		return h
	}
	return DefaultSlotHour
}

// ValidateQuery rejects a date that is not YYYY-MM-DD. Callers fanning one
// query out over many locations check it once up front.
func ValidateQuery(q ForecastQuery) error {
	if q.Date == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, q.Date); err != nil {
		return fmt.Errorf("%w: date %q: %v", ErrInvalidQuery, q.Date, err)
	}
	return nil
}

// TargetTime is the instant a query asks about. Without a date it is now and
// the slot is ignored.
func TargetTime(q ForecastQuery, now time.Time, loc *time.Location) (time.Time, error) {
	if q.Date == "" {
		return now.In(loc), nil
	}
	day, err := time.ParseInLocation(dateLayout, q.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", ErrInvalidQuery, q.Date, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), SlotHour(q.TimeSlot), 0, 0, 0, loc), nil
}

// ResolveHour returns the index of the first hour at or after target. It
// falls back to index 0 when every hour precedes target or the chosen hour
// has no usable wind speed. Null and 0 km/h both count as unusable.
func ResolveHour(series models.HourlySeries, target time.Time) int {
	for i, ts := range series.Time {
		if ts.Before(target) {
			continue
		}
		if v, ok := valueAt(series.WindSpeed, i); ok && v != 0 {
			return i
		}
		return 0
	}
	return 0
}

// CompassDirection names the nearest of the eight compass points.
func CompassDirection(degrees float64) string {
	idx := models.RoundInt(degrees/45) % 8
	if idx < 0 {
		idx += 8
	}
	return compassPoints[idx]
}

// IsMeltemiReading is the forecast's own meltemi flag. Callers pass the
// upstream values before rounding.
func IsMeltemiReading(direction, speed float64) bool {
	return protection.IsNortherly(direction) && speed > MeltemiReadingThreshold
}

// ConditionsFor turns a WMO weather code into a short description.
func ConditionsFor(code int) string {
	switch {
	case code < 3:
		return "Clear"
	case code < 50:
		return "Partly Cloudy"
	case code < 70:
		return "Cloudy"
	case code < 80:
		return "Rainy"
	default:
		return "Stormy"
	}
}

// buildReading extracts hour i of series as a rounded reading.
func buildReading(series models.HourlySeries, i int, lat, lon float64, source string) (models.WeatherReading, error) {
	if series.Len() == 0 {
		return models.WeatherReading{}, fmt.Errorf("%w: empty hourly series", client.ErrMalformedResponse)
	}
	speed, ok1 := valueAt(series.WindSpeed, i)
	direction, ok2 := valueAt(series.WindDirection, i)
	temp, ok3 := valueAt(series.Temperature, i)
	code, ok4 := valueAt(series.WeatherCode, i)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return models.WeatherReading{}, fmt.Errorf("%w: missing values at hour %s", client.ErrMalformedResponse, series.Time[i].Format(time.RFC3339))
	}

	windSpeed := models.RoundTo(speed, 1)
	windDirection := models.RoundInt(direction) % 360
	if windDirection < 0 {
		windDirection += 360
	}
	weatherCode := models.RoundInt(code)

	return models.WeatherReading{
		Source:            source,
		Location:          models.Location{Lat: lat, Lon: lon},
		WindSpeed:         windSpeed,
		WindDirection:     windDirection,
		WindDirectionText: CompassDirection(direction),
		Temperature:       models.RoundTo(temp, 1),
		Conditions:        ConditionsFor(weatherCode),
		WeatherCode:       weatherCode,
		IsMeltemi:         IsMeltemiReading(direction, speed),
		Timestamp:         series.Time[i],
	}, nil
}

func valueAt(values []*float64, i int) (float64, bool) {
	if i < 0 || i >= len(values) || values[i] == nil {
		return 0, false
	}
	return *values[i], true
}
