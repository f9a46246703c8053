// Package compare implements the acceptance check for DWI conversion output.
// A candidate volume is compared against a reference volume across geometry,
// voxel values and diffusion metadata (b-value, gradient directions and
// measurement frame).
package compare

import "fmt"

// Tolerances holds the numeric limits used by the comparators
type Tolerances struct {
	// Coordinate is the absolute tolerance for spacing, origin and direction
	Coordinate float64

	// BValueRelative is the maximum accepted |first-second|/first for b-values
	BValueRelative float64

	// GradientDegrees is the maximum angle between two gradient directions,
	// after accounting for sign ambiguity, that still counts as colinear
	GradientDegrees float64
}

// DefaultTolerances returns the tolerances used by the conversion test suite
func DefaultTolerances() Tolerances {
	return Tolerances{
		Coordinate:      1e-3,
		BValueRelative:  0.5,
		GradientDegrees: 1,
	}
}

// Findings accumulates non-fatal differences
type Findings struct {
	Differs     bool
	Diagnostics []string
}

func (f *Findings) fail(format string, args ...interface{}) {
	f.Differs = true
	f.Diagnostics = append(f.Diagnostics, fmt.Sprintf(format, args...))
}

// Merge folds other into f
func (f *Findings) Merge(other Findings) {
	f.Differs = f.Differs || other.Differs
	f.Diagnostics = append(f.Diagnostics, other.Diagnostics...)
}
