package compare

import (
	"errors"
	"math"
	"strings"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"dwicompare/internal/models"
)

// createTestMetadata returns a typical DWI header dictionary
func createTestMetadata() *models.Metadata {
	m := models.NewMetadata()
	m.SetText("modality", "DWMRI")
	m.SetText(BValueKey, "1000")
	m.SetText("DWMRI_gradient_0000", "0 0 0")
	m.SetText("DWMRI_gradient_0001", "1 0 0")
	m.SetText("DWMRI_gradient_0002", "0 0.707107 0.707107")
	m.Set(MeasurementFrameKeyPart, models.MetaValue{Matrix: [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}})
	return m
}

func TestClassify(t *testing.T) {
	tests := []struct {
		key  string
		want KeyClass
	}{
		{"DWMRI_b-value", KeyBValue},
		{"DWMRI_b-value_extra", KeyIgnored},
		{"DWMRI_gradient_0003", KeyGradient},
		{"NRRD_measurement frame", KeyMeasurementFrame},
		{"modality", KeyIgnored},
		{"NRRD_space", KeyIgnored},
	}
	for _, tt := range tests {
		if got := Classify(tt.key); got != tt.want {
			t.Errorf("Classify(%q): expected %d, got %d", tt.key, tt.want, got)
		}
	}
}

// TestCompareDiffusionIdentical verifies idempotence on one dictionary
func TestCompareDiffusionIdentical(t *testing.T) {
	m := createTestMetadata()
	for _, other := range []*models.Metadata{m, m.Clone()} {
		f, err := CompareDiffusion(m, other, DefaultTolerances())
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if f.Differs || len(f.Diagnostics) != 0 {
			t.Errorf("Expected no findings, got %v", f.Diagnostics)
		}
	}
}

func TestCompareDiffusionBValue(t *testing.T) {
	tests := []struct {
		second string
		fatal  bool
	}{
		{"1000", false},
		{"1400", false},
		{"600", false},
		{"1500", false},
		{"1600", true},
		{"400", true},
		{"1000.000000", false},
	}
	for _, tt := range tests {
		second := createTestMetadata()
		second.SetText(BValueKey, tt.second)

		_, err := CompareDiffusion(createTestMetadata(), second, DefaultTolerances())
		if tt.fatal {
			var fe *FatalError
			if !errors.As(err, &fe) || !errors.Is(err, ErrBValueMismatch) {
				t.Errorf("b-value %s: expected fatal b-value mismatch, got %v", tt.second, err)
			} else if fe.Key != BValueKey {
				t.Errorf("b-value %s: expected key %s, got %s", tt.second, BValueKey, fe.Key)
			}
		} else if err != nil {
			t.Errorf("b-value %s: unexpected error %v", tt.second, err)
		}
	}
}

func TestParseBValueRange(t *testing.T) {
	for _, s := range []string{"1e30", "-1e30", "9.3e18"} {
		if b, err := ParseBValue(s); err == nil {
			t.Errorf("ParseBValue(%q): expected range error, got %d", s, b)
		}
	}
	if b, err := ParseBValue(" 3000.9 "); err != nil || b != 3000 {
		t.Errorf("Expected 3000, got %d (%v)", b, err)
	}

	second := createTestMetadata()
	second.SetText(BValueKey, "1e30")
	if _, err := CompareDiffusion(createTestMetadata(), second, DefaultTolerances()); !errors.Is(err, ErrMalformedValue) {
		t.Errorf("Expected malformed b-value error, got %v", err)
	}
}

func TestBValueRelativeDifference(t *testing.T) {
	if got := BValueRelativeDifference(1000, 1400); math.Abs(got-0.4) > 1e-12 {
		t.Errorf("Expected 0.4, got %f", got)
	}
	if got := BValueRelativeDifference(1000, 1600); math.Abs(got-0.6) > 1e-12 {
		t.Errorf("Expected 0.6, got %f", got)
	}
	if got := BValueRelativeDifference(0, 0); got != 0 {
		t.Errorf("Expected 0 for two zero b-values, got %f", got)
	}
	if got := BValueRelativeDifference(0, 5); !math.IsInf(got, 1) {
		t.Errorf("Expected +Inf for zero reference, got %f", got)
	}
}

func TestMinimalGradientAngle(t *testing.T) {
	x := r3.Vec{X: 1}
	tests := []struct {
		name  string
		b     r3.Vec
		angle float64
		ok    bool
	}{
		{"same", r3.Vec{X: 2}, 0, true},
		{"opposite", r3.Vec{X: -1}, 0, true},
		{"orthogonal", r3.Vec{Y: 1}, 90, true},
		{"nearly opposite", r3.Vec{X: -1, Y: 0.001}, 0.0573, true},
		{"zero", r3.Vec{}, math.NaN(), false},
	}
	for _, tt := range tests {
		angle, ok := MinimalGradientAngle(x, tt.b)
		if ok != tt.ok {
			t.Errorf("%s: expected ok=%v, got %v", tt.name, tt.ok, ok)
			continue
		}
		if ok && math.Abs(angle-tt.angle) > 1e-3 {
			t.Errorf("%s: expected %.4f degrees, got %.4f", tt.name, tt.angle, angle)
		}
	}
}

// TestMinimalGradientAngleClamped checks that drift past |cos|=1 is clamped
func TestMinimalGradientAngleClamped(t *testing.T) {
	v := r3.Vec{X: 0.1, Y: 0.2, Z: 0.3}
	for i := 0; i < 100; i++ {
		angle, ok := MinimalGradientAngle(v, r3.Scale(float64(i+1)*0.37, v))
		if !ok || math.IsNaN(angle) {
			t.Fatalf("Expected a defined angle for parallel vectors, got %f", angle)
		}
	}
}

func TestCompareDiffusionGradient(t *testing.T) {
	tests := []struct {
		name    string
		second  string
		differs bool
	}{
		{"identical text", "1 0 0", false},
		{"scaled", "2 0 0", false},
		{"flipped", "-1 0 0", false},
		{"flipped with drift", "-1 0.001 0", false},
		{"within one degree", "1 0.017 0", false},
		{"beyond one degree", "1 0.02 0", true},
		{"orthogonal", "0 1 0", true},
		{"zero vector", "0 0 0", true},
	}
	for _, tt := range tests {
		second := createTestMetadata()
		second.SetText("DWMRI_gradient_0001", tt.second)

		f, err := CompareDiffusion(createTestMetadata(), second, DefaultTolerances())
		if err != nil {
			t.Errorf("%s: gradient mismatch must not be fatal, got %v", tt.name, err)
			continue
		}
		if f.Differs != tt.differs {
			t.Errorf("%s: expected differs=%v, got %v (%v)", tt.name, tt.differs, f.Differs, f.Diagnostics)
		}
	}
}

// TestCompareDiffusionGradientContinues verifies that a gradient mismatch
// does not stop later keys from being checked
func TestCompareDiffusionGradientContinues(t *testing.T) {
	second := createTestMetadata()
	second.SetText("DWMRI_gradient_0001", "0 1 0")
	second.SetText("DWMRI_gradient_0002", "1 0 0")

	f, err := CompareDiffusion(createTestMetadata(), second, DefaultTolerances())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(f.Diagnostics) != 2 {
		t.Errorf("Expected two gradient diagnostics, got %v", f.Diagnostics)
	}

	second.Set(MeasurementFrameKeyPart, models.MetaValue{Text: "(1,0,0) (0,-1,0) (0,0,1)"})
	f, err = CompareDiffusion(createTestMetadata(), second, DefaultTolerances())
	if !errors.Is(err, ErrMeasurementFrameMismatch) {
		t.Fatalf("Expected measurement frame mismatch, got %v", err)
	}
	if len(f.Diagnostics) != 2 {
		t.Errorf("Expected gradient findings to survive the fatal exit, got %v", f.Diagnostics)
	}
}

func TestCompareDiffusionMeasurementFrame(t *testing.T) {
	second := createTestMetadata()
	second.Set(MeasurementFrameKeyPart, models.MetaValue{Matrix: [][]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1.0000000001},
	}})

	_, err := CompareDiffusion(createTestMetadata(), second, DefaultTolerances())
	if !errors.Is(err, ErrMeasurementFrameMismatch) {
		t.Errorf("Expected exact measurement frame mismatch, got %v", err)
	}

	// text and parsed forms of the same frame are equal
	second.Set(MeasurementFrameKeyPart, models.MetaValue{Text: "(1,0,0) (0,1,0) (0,0,1)"})
	if _, err := CompareDiffusion(createTestMetadata(), second, DefaultTolerances()); err != nil {
		t.Errorf("Expected equal frames, got %v", err)
	}
}

// TestCompareDiffusionMissingKey verifies that each recognised key class is
// fatal when absent from the second dictionary
func TestCompareDiffusionMissingKey(t *testing.T) {
	for _, key := range []string{BValueKey, "DWMRI_gradient_0002", MeasurementFrameKeyPart} {
		second := createTestMetadata()
		second.Delete(key)

		_, err := CompareDiffusion(createTestMetadata(), second, DefaultTolerances())
		var fe *FatalError
		if !errors.As(err, &fe) || !errors.Is(err, ErrMissingKey) {
			t.Errorf("%s: expected missing key error, got %v", key, err)
			continue
		}
		if fe.Key != key {
			t.Errorf("Expected missing key %s, got %s", key, fe.Key)
		}
	}

	// keys only in the second dictionary and unrecognised keys are ignored
	first := createTestMetadata()
	first.Delete("modality")
	second := createTestMetadata()
	second.SetText("DWMRI_gradient_0099", "0 1 0")
	if _, err := CompareDiffusion(first, second, DefaultTolerances()); err != nil {
		t.Errorf("Expected extra keys in second dictionary to be ignored, got %v", err)
	}
}

func TestCompareDiffusionMalformed(t *testing.T) {
	tests := map[string]string{
		BValueKey:               "high",
		"DWMRI_gradient_0001":   "1 0",
		MeasurementFrameKeyPart: "(1,0) (0,1)",
	}
	for key, value := range tests {
		second := createTestMetadata()
		second.Set(key, models.MetaValue{Text: value})

		_, err := CompareDiffusion(createTestMetadata(), second, DefaultTolerances())
		if !errors.Is(err, ErrMalformedValue) {
			t.Errorf("%s=%q: expected malformed value error, got %v", key, value, err)
		}
	}
}

// headerOrderMetadata lays keys out the way a NRRD header does: the
// measurement frame field comes before the key/value pairs
func headerOrderMetadata(bValue, gradient string, frame [][]float64) *models.Metadata {
	m := models.NewMetadata()
	m.Set(MeasurementFrameKeyPart, models.MetaValue{Matrix: frame})
	m.SetText("modality", "DWMRI")
	m.SetText(BValueKey, bValue)
	m.SetText("DWMRI_gradient_0000", gradient)
	return m
}

// TestCompareDiffusionKeyOrder verifies that keys are checked in sorted
// order rather than header order
func TestCompareDiffusionKeyOrder(t *testing.T) {
	identity := [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	flipped := [][]float64{{1, 0, 0}, {0, -1, 0}, {0, 0, 1}}
	first := headerOrderMetadata("1000", "1 0 0", identity)

	// b-value sorts before the measurement frame
	_, err := CompareDiffusion(first, headerOrderMetadata("3000", "0 1 0", flipped), DefaultTolerances())
	if !errors.Is(err, ErrBValueMismatch) {
		t.Errorf("Expected b-value mismatch to be reported first, got %v", err)
	}

	// gradients sort before the measurement frame and are kept
	f, err := CompareDiffusion(first, headerOrderMetadata("1000", "0 1 0", flipped), DefaultTolerances())
	if !errors.Is(err, ErrMeasurementFrameMismatch) {
		t.Fatalf("Expected measurement frame mismatch, got %v", err)
	}
	if len(f.Diagnostics) != 1 || !strings.Contains(f.Diagnostics[0], "DWMRI_gradient_0000") {
		t.Errorf("Expected the gradient diagnostic before the frame abort, got %v", f.Diagnostics)
	}
	if strings.Contains(err.Error(), "\n") {
		t.Errorf("Expected single-line frame error, got %q", err.Error())
	}

	if got := first.Keys()[0]; got != MeasurementFrameKeyPart {
		t.Errorf("Expected dictionary to keep header order, first key %q", got)
	}
}
