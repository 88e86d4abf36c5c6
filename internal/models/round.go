package models

import "math"

// RoundTo rounds v to the given number of decimal places, with halves
// rounded toward positive infinity.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Floor(v*p+0.5) / p
}

// RoundInt rounds v to the nearest integer, halves toward positive infinity.
func RoundInt(v float64) int {
	return int(math.Floor(v + 0.5))
}
