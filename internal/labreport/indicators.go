// Package labreport turns extracted document text into the lab report the
// backend serves: indicators with reference ranges, deviations and
// recommendations, plus a rendered PDF.
package labreport

import (
	"regexp"
	"strconv"
	"strings"
)

// Deviation values.
const (
	DeviationLow    = "low"
	DeviationHigh   = "high"
	DeviationNormal = "normal"
)

// Indicator is one measured lab value.
type Indicator struct {
	TestName  string   `json:"test_name"`
	Value     *float64 `json:"value"`
	Units     string   `json:"units"`
	RefMin    *float64 `json:"ref_min"`
	RefMax    *float64 `json:"ref_max"`
	Deviation *string  `json:"deviation"`
	Comment   *string  `json:"comment"`
}

// ReferenceTest describes a recognized test and its reference range.
type ReferenceTest struct {
	TestName string  `json:"test_name"`
	Units    string  `json:"units"`
	RefMin   float64 `json:"ref_min"`
	RefMax   float64 `json:"ref_max"`
}

type matcher struct {
	ref ReferenceTest
	re  *regexp.Regexp
}

var matchers = []matcher{
	{
		ref: ReferenceTest{TestName: "Glucose", Units: "mmol/L", RefMin: 3.9, RefMax: 5.5},
		re:  regexp.MustCompile(`(?i)(glucose|глюкоз[аы])\s*[:\-]?\s*([0-9]+[.,]?[0-9]*)`),
	},
	{
		ref: ReferenceTest{TestName: "Cholesterol", Units: "mg/dL", RefMin: 0, RefMax: 200},
		re:  regexp.MustCompile(`(?i)(cholesterol|холестерин)\s*[:\-]?\s*([0-9]+[.,]?[0-9]*)`),
	},
}

// References lists the tests ParseIndicators recognizes.
func References() []ReferenceTest {
	out := make([]ReferenceTest, 0, len(matchers))
	for _, m := range matchers {
		out = append(out, m.ref)
	}
	return out
}

// ParseIndicators finds the first value of every recognized test in text.
// Whitespace is collapsed first so values split across lines still match.
func ParseIndicators(text string) []Indicator {
	norm := strings.Join(strings.Fields(text), " ")
	if norm == "" {
		return nil
	}
	var out []Indicator
	for _, m := range matchers {
		sub := m.re.FindStringSubmatch(norm)
		if sub == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.Replace(sub[2], ",", ".", 1), 64)
		if err != nil {
			continue
		}
		out = append(out, NewIndicator(m.ref, v))
	}
	return out
}

// MockIndicators is the fixed fallback set used when nothing was parsed and
// mock results are enabled.
func MockIndicators() []Indicator {
	refs := References()
	return []Indicator{
		NewIndicator(refs[0], 5.6),
		NewIndicator(refs[1], 190),
	}
}

// NewIndicator builds an indicator for ref with its deviation computed.
func NewIndicator(ref ReferenceTest, value float64) Indicator {
	v, lo, hi := value, ref.RefMin, ref.RefMax
	ind := Indicator{
		TestName: ref.TestName,
		Value:    &v,
		Units:    ref.Units,
		RefMin:   &lo,
		RefMax:   &hi,
	}
	if dev := ComputeDeviation(ind.Value, ind.RefMin, ind.RefMax); dev != "" {
		ind.Deviation = &dev
	}
	return ind
}

// ComputeDeviation compares value with the range. It returns "" when any
// input is missing.
func ComputeDeviation(value, refMin, refMax *float64) string {
	if value == nil || refMin == nil || refMax == nil {
		return ""
	}
	switch {
	case *value < *refMin:
		return DeviationLow
	case *value > *refMax:
		return DeviationHigh
	default:
		return DeviationNormal
	}
}
