// Package validation checks request parameters before any I/O happens.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is wrapped by every validation failure; the message names the
// offending fields.
var ErrInvalid = errors.New("invalid request")

const (
	maxNameLen  = 40
	maxQueryLen = 64
)

var slotPattern = regexp.MustCompile(`^[a-z][a-z-]{0,31}$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func instance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
		_ = v.RegisterValidation("slot", func(fl validator.FieldLevel) bool {
			return slotPattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("name", func(fl validator.FieldLevel) bool {
			return isAllowedName(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// ForecastRequest is the raw query of a single-point forecast lookup.
type ForecastRequest struct {
	Lat  string `json:"lat" validate:"required,latitude"`
	Lon  string `json:"lon" validate:"required,longitude"`
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time string `json:"time" validate:"omitempty,slot"`
}

// ForecastParams is a validated ForecastRequest.
type ForecastParams struct {
	Lat, Lon   float64
	Date, Time string
}

// RecommendationRequest is the raw query of an island recommendation.
type RecommendationRequest struct {
	Island string `json:"island" validate:"required,max=40,name"`
	Date   string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time   string `json:"time" validate:"omitempty,slot"`
}

// BeachFilterRequest narrows a catalog listing.
type BeachFilterRequest struct {
	Protection    string `json:"protection" validate:"omitempty,oneof=high moderate low"`
	MeltemiShield string `json:"meltemiShield" validate:"omitempty,oneof=excellent good moderate poor"`
}

// ValidateForecast checks req and parses its coordinates.
func ValidateForecast(req ForecastRequest) (ForecastParams, error) {
	req.Lat = strings.TrimSpace(req.Lat)
	req.Lon = strings.TrimSpace(req.Lon)
	if err := check(req); err != nil {
		return ForecastParams{}, err
	}
	lat, err := strconv.ParseFloat(req.Lat, 64)
	if err != nil {
		return ForecastParams{}, fmt.Errorf("%w: lat: %v", ErrInvalid, err)
	}
	lon, err := strconv.ParseFloat(req.Lon, 64)
	if err != nil {
		return ForecastParams{}, fmt.Errorf("%w: lon: %v", ErrInvalid, err)
	}
	return ForecastParams{Lat: lat, Lon: lon, Date: req.Date, Time: req.Time}, nil
}

// ValidateRecommendation checks req and returns it with the island trimmed.
func ValidateRecommendation(req RecommendationRequest) (RecommendationRequest, error) {
	req.Island = strings.TrimSpace(req.Island)
	if err := check(req); err != nil {
		return RecommendationRequest{}, err
	}
	return req, nil
}

// ValidateBeachFilter checks the optional catalog filters.
func ValidateBeachFilter(req BeachFilterRequest) error {
	return check(req)
}

// ValidateSearchQuery trims the input and bounds its length. Any printable
// text is a valid substring; control characters are rejected.
func ValidateSearchQuery(input string) (string, error) {
	s := strings.TrimSpace(input)
	n := len([]rune(s))
	switch {
	case n == 0:
		return "", fmt.Errorf("%w: query is required", ErrInvalid)
	case n > maxQueryLen:
		return "", fmt.Errorf("%w: query too long", ErrInvalid)
	case strings.IndexFunc(s, unicode.IsControl) >= 0:
		return "", fmt.Errorf("%w: query contains control characters", ErrInvalid)
	}
	return s, nil
}

func check(req interface{}) error {
	err := instance().Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Field()+": "+describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "latitude":
		return "must be a latitude between -90 and 90"
	case "longitude":
		return "must be a longitude between -180 and 180"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "slot":
		return "must be a time slot such as morning or afternoon"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "is too long"
	case "name":
		return "contains invalid characters"
	default:
		return "is invalid"
	}
}

// isAllowedName reports whether s holds only letters (Unicode), digits,
// space, comma and hyphen.
func isAllowedName(s string) bool {
	for _, c := range s {
		if unicode.IsLetter(c) || unicode.IsNumber(c) {
			continue
		}
		switch c {
		case ' ', ',', '-':
			continue
		}
		return false
	}
	return true
}
