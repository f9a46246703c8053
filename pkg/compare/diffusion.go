package compare

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"dwicompare/internal/models"
)

// Metadata keys recognised by the diffusion comparator
const (
	BValueKey               = "DWMRI_b-value"
	GradientKeyPattern      = "DWMRI_gradient"
	MeasurementFrameKeyPart = "NRRD_measurement frame"
)

var (
	ErrMissingKey               = errors.New("key missing in second volume")
	ErrBValueMismatch           = errors.New("b-values differ")
	ErrMeasurementFrameMismatch = errors.New("measurement frames do not match")
	ErrMalformedValue           = errors.New("malformed metadata value")
)

// FatalError stops the comparison immediately. It unwraps to one of the
// sentinel errors above.
type FatalError struct {
	Key    string
	Detail string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Key, e.Err, e.Detail)
}

func (e *FatalError) Unwrap() error { return e.Err }

// KeyClass is the kind of diffusion field a metadata key names
type KeyClass int

const (
	KeyIgnored KeyClass = iota
	KeyBValue
	KeyGradient
	KeyMeasurementFrame
)

// Classify maps a metadata key to its class. The b-value key must match
// exactly; gradient and measurement-frame keys match by substring.
func Classify(key string) KeyClass {
	switch {
	case key == BValueKey:
		return KeyBValue
	case strings.Contains(key, GradientKeyPattern):
		return KeyGradient
	case strings.Contains(key, MeasurementFrameKeyPart):
		return KeyMeasurementFrame
	}
	return KeyIgnored
}

// CompareDiffusion walks the keys of first in lexicographic order and checks
// each recognised diffusion field against second. The b-value is therefore
// checked before the gradients, and the gradients before the measurement
// frame, whatever the header layout. Missing keys, b-values beyond
// tolerance and measurement-frame differences return a *FatalError at once,
// together with the findings gathered so far. Gradient directions that are
// not colinear are accumulated and the walk continues.
//
// Keys present only in second are never inspected.
func CompareDiffusion(first, second *models.Metadata, tol Tolerances) (Findings, error) {
	var f Findings

	keys := first.Keys()
	sort.Strings(keys)

	for _, key := range keys {
		class := Classify(key)
		if class == KeyIgnored {
			continue
		}

		v1, _ := first.Get(key)
		v2, ok := second.Get(key)
		if !ok {
			return f, &FatalError{Key: key, Err: ErrMissingKey}
		}

		var err error
		switch class {
		case KeyBValue:
			err = compareBValue(key, v1, v2, tol.BValueRelative)
		case KeyGradient:
			err = compareGradient(&f, key, v1, v2, tol.GradientDegrees)
		case KeyMeasurementFrame:
			err = compareMeasurementFrame(key, v1, v2)
		}
		if err != nil {
			return f, err
		}
	}

	return f, nil
}

func compareBValue(key string, v1, v2 models.MetaValue, tol float64) error {
	b1, err := ParseBValue(v1.Text)
	if err != nil {
		return &FatalError{Key: key, Detail: err.Error(), Err: ErrMalformedValue}
	}
	b2, err := ParseBValue(v2.Text)
	if err != nil {
		return &FatalError{Key: key, Detail: err.Error(), Err: ErrMalformedValue}
	}

	if rel := BValueRelativeDifference(b1, b2); rel > tol {
		return &FatalError{
			Key:    key,
			Detail: fmt.Sprintf("%s != %s (relative difference %.3f)", v1.Text, v2.Text, rel),
			Err:    ErrBValueMismatch,
		}
	}
	return nil
}

func compareGradient(f *Findings, key string, v1, v2 models.MetaValue, tolDegrees float64) error {
	g1, err := ParseGradient(v1.Text)
	if err != nil {
		return &FatalError{Key: key, Detail: err.Error(), Err: ErrMalformedValue}
	}
	g2, err := ParseGradient(v2.Text)
	if err != nil {
		return &FatalError{Key: key, Detail: err.Error(), Err: ErrMalformedValue}
	}

	g1, g2 = normalize(g1), normalize(g2)
	if formatVec(g1) == formatVec(g2) {
		return nil
	}

	angle, ok := MinimalGradientAngle(g1, g2)
	if !ok || angle > tolDegrees {
		f.fail("GradientValueStrings don't match! %s: %s != %s (angle %.4f degrees)",
			key, v1.Text, v2.Text, angle)
	}
	return nil
}

func compareMeasurementFrame(key string, v1, v2 models.MetaValue) error {
	m1, err := ParseMeasurementFrame(v1)
	if err != nil {
		return &FatalError{Key: key, Detail: err.Error(), Err: ErrMalformedValue}
	}
	m2, err := ParseMeasurementFrame(v2)
	if err != nil {
		return &FatalError{Key: key, Detail: err.Error(), Err: ErrMalformedValue}
	}

	if !mat.Equal(m1, m2) {
		return &FatalError{
			Key: key,
			Detail: fmt.Sprintf("first %v, second %v",
				mat.Formatted(m1, mat.FormatMATLAB()), mat.Formatted(m2, mat.FormatMATLAB())),
			Err: ErrMeasurementFrameMismatch,
		}
	}
	return nil
}

// ParseBValue reads an integer b-value. Decimal text such as "1000.000" is
// truncated toward zero.
func ParseBValue(s string) (int, error) {
	s = strings.TrimSpace(s)
	if b, err := strconv.Atoi(s); err == nil {
		return b, nil
	}
	fv, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(fv) || math.IsInf(fv, 0) {
		return 0, fmt.Errorf("invalid b-value %q", s)
	}
	if fv >= float64(math.MaxInt64) || fv < float64(math.MinInt64) {
		return 0, fmt.Errorf("b-value %q out of range", s)
	}
	return int(fv), nil
}

// BValueRelativeDifference returns |first-second|/first. A zero reference
// gives 0 when second is also zero and +Inf otherwise.
func BValueRelativeDifference(first, second int) float64 {
	diff := math.Abs(float64(first) - float64(second))
	if first == 0 {
		if diff == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return diff / math.Abs(float64(first))
}

// ParseGradient reads three whitespace-separated components
func ParseGradient(s string) (r3.Vec, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return r3.Vec{}, fmt.Errorf("gradient %q: expected 3 components, got %d", s, len(fields))
	}
	var c [3]float64
	for i, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("gradient %q: %w", s, err)
		}
		c[i] = v
	}
	return r3.Vec{X: c[0], Y: c[1], Z: c[2]}, nil
}

// MinimalGradientAngle returns the angle in degrees between a and b, folded
// so that a direction and its negation are 0 degrees apart. ok is false when
// either vector has no length and no angle can be formed.
func MinimalGradientAngle(a, b r3.Vec) (angle float64, ok bool) {
	magnitudes := r3.Norm(a) * r3.Norm(b)
	if math.Abs(magnitudes) <= eps {
		return math.NaN(), false
	}

	cos := r3.Dot(a, b) / magnitudes
	cos = math.Max(-1, math.Min(1, cos))

	angle = math.Abs(math.Acos(cos) * 180 / math.Pi)
	return math.Min(angle, math.Abs(180-angle)), true
}

// ParseMeasurementFrame returns the 3x3 frame from a parsed matrix value or
// from NRRD text of the form "(a,b,c) (d,e,f) (g,h,i)".
func ParseMeasurementFrame(v models.MetaValue) (*mat.Dense, error) {
	rows := v.Matrix
	if rows == nil {
		var err error
		rows, err = ParseVectorList(v.Text)
		if err != nil {
			return nil, err
		}
	}
	if len(rows) != 3 {
		return nil, fmt.Errorf("measurement frame: expected 3 vectors, got %d", len(rows))
	}
	data := make([]float64, 0, 9)
	for _, row := range rows {
		if len(row) != 3 {
			return nil, fmt.Errorf("measurement frame: expected 3 components, got %d", len(row))
		}
		data = append(data, row...)
	}
	return mat.NewDense(3, 3, data), nil
}

// ParseVectorList parses NRRD vector text "(1,0,0) (0,1,0)" into rows
func ParseVectorList(s string) ([][]float64, error) {
	var rows [][]float64
	rest := strings.TrimSpace(s)
	for rest != "" {
		if rest[0] != '(' {
			return nil, fmt.Errorf("vector list %q: expected '('", s)
		}
		end := strings.IndexByte(rest, ')')
		if end < 0 {
			return nil, fmt.Errorf("vector list %q: unterminated vector", s)
		}
		parts := strings.Split(rest[1:end], ",")
		row := make([]float64, len(parts))
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("vector list %q: %w", s, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
		rest = strings.TrimSpace(rest[end+1:])
	}
	return rows, nil
}

// eps is the float64 machine epsilon
const eps = 2.220446049250313e-16

// normalize scales v to unit length, leaving a zero vector untouched
func normalize(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n == 0 {
		return v
	}
	return r3.Scale(1/n, v)
}

func formatVec(v r3.Vec) string {
	return strconv.FormatFloat(v.X, 'g', -1, 64) + " " +
		strconv.FormatFloat(v.Y, 'g', -1, 64) + " " +
		strconv.FormatFloat(v.Z, 'g', -1, 64)
}
