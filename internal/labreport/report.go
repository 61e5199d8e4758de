package labreport

import "fmt"

const deviationReason = "Cause to be clarified by a physician"

// DeviationEntry is an out-of-range indicator.
type DeviationEntry struct {
	Test      string   `json:"test"`
	Value     *float64 `json:"value"`
	Units     string   `json:"units"`
	Deviation string   `json:"deviation"`
	Reason    string   `json:"reason"`
}

// Recommendation is a templated advice line.
type Recommendation struct {
	Text          string  `json:"text"`
	DoctorContact *string `json:"doctor_contact"`
}

// Report is the JSON document served for an analysis.
type Report struct {
	AnalysisID      int64            `json:"analysis_id"`
	OCRText         *string          `json:"ocr_text"`
	Deviations      []DeviationEntry `json:"deviations"`
	Recommendations []Recommendation `json:"recommendations"`
	Indicators      []Indicator      `json:"indicators"`
}

// Build assembles the report for one analysis.
func Build(analysisID int64, ocrText string, indicators []Indicator) Report {
	r := Report{
		AnalysisID: analysisID,
		Deviations: Deviations(indicators),
		Indicators: indicators,
	}
	if r.Indicators == nil {
		r.Indicators = []Indicator{}
	}
	if ocrText != "" {
		r.OCRText = &ocrText
	}
	r.Recommendations = Recommendations(r.Deviations)
	return r
}

// Deviations keeps the low and high indicators.
func Deviations(indicators []Indicator) []DeviationEntry {
	out := []DeviationEntry{}
	for _, ind := range indicators {
		if ind.Deviation == nil {
			continue
		}
		if *ind.Deviation != DeviationLow && *ind.Deviation != DeviationHigh {
			continue
		}
		out = append(out, DeviationEntry{
			Test:      ind.TestName,
			Value:     ind.Value,
			Units:     ind.Units,
			Deviation: *ind.Deviation,
			Reason:    deviationReason,
		})
	}
	return out
}

// Recommendations returns one advice line per deviation, or a single
// all-clear line when there are none.
func Recommendations(devs []DeviationEntry) []Recommendation {
	if len(devs) == 0 {
		return []Recommendation{{Text: "All values are within range. Keep up a healthy lifestyle."}}
	}
	var out []Recommendation
	for _, d := range devs {
		test := d.Test
		if test == "" {
			test = "Indicator"
		}
		switch d.Deviation {
		case DeviationHigh:
			out = append(out, Recommendation{Text: fmt.Sprintf("%s: value above range. Retake the test fasting and discuss it with a physician.", test)})
		case DeviationLow:
			out = append(out, Recommendation{Text: fmt.Sprintf("%s: value below range. Check diet and deficiencies and discuss it with a physician.", test)})
		}
	}
	if len(out) == 0 {
		out = append(out, Recommendation{Text: "Deviations found. A physician consultation is recommended."})
	}
	return out
}
