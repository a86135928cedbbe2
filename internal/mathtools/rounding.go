package mathtools

import (
	"encoding/json"
	"fmt"
	"math"
)

// RoundingMode selects how an arithmetic result is rounded before it is
// rendered into the chain.
type RoundingMode string

const (
	RoundNone    RoundingMode = "none"
	RoundNearest RoundingMode = "nearest"
	RoundZero    RoundingMode = "zero"
	RoundUp      RoundingMode = "up"
	RoundDown    RoundingMode = "down"
)

// IsValid reports whether m is a recognised rounding mode.
func (m RoundingMode) IsValid() bool {
	switch m {
	case RoundNone, RoundNearest, RoundZero, RoundUp, RoundDown:
		return true
	}
	return false
}

// Round applies the mode to v. The zero value leaves v unchanged.
func (m RoundingMode) Round(v float64) float64 {
	switch m {
	case RoundNearest:
		return math.Round(v)
	case RoundZero:
		return math.Trunc(v)
	case RoundUp:
		return math.Ceil(v)
	case RoundDown:
		return math.Floor(v)
	}
	return v
}

// UnmarshalJSON validates the wire value against the declared variants, so an
// unknown mode fails argument parsing instead of silently not rounding.
func (m *RoundingMode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	mode := RoundingMode(s)
	if !mode.IsValid() {
		return fmt.Errorf("mathtools: unknown rounding mode %q", s)
	}
	*m = mode
	return nil
}
