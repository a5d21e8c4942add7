package domain

import "time"

// SwingClass labels a swing point relative to the previous one on its side.
type SwingClass string

const (
	HigherHigh SwingClass = "HH"
	LowerHigh  SwingClass = "LH"
	HigherLow  SwingClass = "HL"
	LowerLow   SwingClass = "LL"
)

// SwingPoint is a classified local price extremum. Swing points are derived
// data: recomputed wholesale on every analysis pass, never patched.
type SwingPoint struct {
	Price          float64    `json:"price"`
	Time           time.Time  `json:"time"`
	Classification SwingClass `json:"classification"`
	SourceIndex    int        `json:"source_index"`
	IsHigh         bool       `json:"is_high"`
}

// AnalysisSettings are the shared swing-analysis parameters broadcast to all
// panels. The registry is the single durable owner of these values.
type AnalysisSettings struct {
	SwingEnabled     bool `json:"swing_enabled"`
	ComparisonWindow int  `json:"comparison_window"`
	ForwardWindow    int  `json:"forward_window"`
	AnalysisWindow   int  `json:"analysis_window"`
}
