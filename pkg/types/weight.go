package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AverageWeight is the textual sentinel for mean-based bands
const AverageWeight = "average"

// UncertaintyWeight selects how trial outcomes collapse into one band: either the
// arithmetic mean of every trial or a percentile in [0, 100]. The zero value is
// the average mode.
type UncertaintyWeight struct {
	percentile float64
	fixed      bool
}

// Average returns the mean-based weight
func Average() UncertaintyWeight {
	return UncertaintyWeight{}
}

// Percentile returns a percentile weight; p is clamped to [0, 100]
func Percentile(p float64) UncertaintyWeight {
	if p < 0 {
		p = 0
	} else if p > 100 {
		p = 100
	}
	return UncertaintyWeight{percentile: p, fixed: true}
}

// IsAverage reports whether the weight is the average sentinel
func (w UncertaintyWeight) IsAverage() bool {
	return !w.fixed
}

// Value returns the percentile and true, or 0 and false in average mode
func (w UncertaintyWeight) Value() (float64, bool) {
	return w.percentile, w.fixed
}

func (w UncertaintyWeight) String() string {
	if !w.fixed {
		return AverageWeight
	}
	return strconv.FormatFloat(w.percentile, 'f', -1, 64)
}

// ParseUncertaintyWeight parses "average" or a number between 0 and 100
func ParseUncertaintyWeight(s string) (UncertaintyWeight, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, AverageWeight) {
		return Average(), nil
	}
	p, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return UncertaintyWeight{}, fmt.Errorf("invalid uncertainty weight %q: want %q or 0-100", s, AverageWeight)
	}
	if p < 0 || p > 100 {
		return UncertaintyWeight{}, fmt.Errorf("uncertainty weight %v out of range 0-100", p)
	}
	return Percentile(p), nil
}

// MarshalJSON writes "average" or the bare percentile number
func (w UncertaintyWeight) MarshalJSON() ([]byte, error) {
	if !w.fixed {
		return json.Marshal(AverageWeight)
	}
	return json.Marshal(w.percentile)
}

// UnmarshalJSON accepts a JSON string or number
func (w *UncertaintyWeight) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*w = Average()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseUncertaintyWeight(s)
		if err != nil {
			return err
		}
		*w = parsed
		return nil
	}
	var p float64
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid uncertainty weight %s", string(data))
	}
	parsed, err := ParseUncertaintyWeight(strconv.FormatFloat(p, 'f', -1, 64))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// MarshalYAML writes "average" or the bare percentile number
func (w UncertaintyWeight) MarshalYAML() (interface{}, error) {
	if !w.fixed {
		return AverageWeight, nil
	}
	return w.percentile, nil
}
