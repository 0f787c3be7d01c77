package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Points is a fixed-point score in thousandths. Sums and equality checks are exact.
type Points int64

const PointsScale = 1000

const (
	ZeroPoints Points = 0
	OnePoint   Points = PointsScale
)

func PointsFromFloat(f float64) Points {
	return Points(math.Round(f * PointsScale))
}

func PointsFromInt(n int) Points {
	return Points(int64(n) * PointsScale)
}

// ParsePoints accepts plain decimal strings such as "8", "8.5" or "-0.25".
func ParsePoints(s string) (Points, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty points value")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid points value %q: %w", s, err)
	}
	return PointsFromFloat(f), nil
}

func (p Points) Float() float64 {
	return float64(p) / PointsScale
}

func (p Points) IsIntegral() bool {
	return p%PointsScale == 0
}

// Mul scales p by a coefficient that is itself expressed in Points (OnePoint == ×1).
func (p Points) Mul(coef Points) Points {
	return Points(int64(p) * int64(coef) / PointsScale)
}

// Display prints integral values without a decimal point and everything else with one decimal.
func (p Points) Display() string {
	if p.IsIntegral() {
		return strconv.FormatInt(int64(p)/PointsScale, 10)
	}
	return strconv.FormatFloat(p.Float(), 'f', 1, 64)
}

// String is the exact decimal form used for persistence.
func (p Points) String() string {
	return strconv.FormatFloat(p.Float(), 'f', -1, 64)
}

func (p Points) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Points) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var f float64
		if ferr := json.Unmarshal(data, &f); ferr != nil {
			return fmt.Errorf("points must be a decimal string: %w", err)
		}
		*p = PointsFromFloat(f)
		return nil
	}
	v, err := ParsePoints(s)
	if err != nil {
		return err
	}
	*p = v
	return nil
}
