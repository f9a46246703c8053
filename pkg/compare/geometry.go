package compare

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"dwicompare/internal/models"
)

// PixelReport summarises the voxel-by-voxel comparison
type PixelReport struct {
	Findings

	// Mismatched is the number of voxels with at least one differing component
	Mismatched int

	// MeanAbsDiff and MaxAbsDiff are taken over the differing components of
	// voxels present in both volumes
	MeanAbsDiff float64
	MaxAbsDiff  float64

	// DiffMap holds, per voxel of the first volume, the largest absolute
	// component difference. Voxels missing from the second volume are NaN.
	DiffMap []float64
}

// VolumeReport is the combined result of the geometry and pixel checks
type VolumeReport struct {
	Findings
	Pixels PixelReport
}

// CompareGeometry checks spacing, origin and direction within tol and the
// grid extent exactly. Every check runs regardless of earlier failures.
func CompareGeometry(first, second *models.Geometry, tol float64) Findings {
	var f Findings

	if !vectorsEqual(first.Spacing, second.Spacing, tol) {
		f.fail("The first image Spacing does not match second image Information: first %v, second %v",
			first.Spacing, second.Spacing)
	}

	if !vectorsEqual(first.Origin, second.Origin, tol) {
		f.fail("The first image Origin does not match second image Information: first %v, second %v",
			first.Origin, second.Origin)
	}

	if !matricesEqual(first.Direction, second.Direction, tol) {
		f.fail("The first image Direction does not match second image Information: first %v, second %v",
			mat.Formatted(direction(first), mat.FormatMATLAB()), mat.Formatted(direction(second), mat.FormatMATLAB()))
	}

	if first.Region != second.Region {
		f.fail("The first image Size does not match second image Information: first %v, second %v",
			first.Region, second.Region)
	}

	return f
}

// ComparePixels walks both volumes in grid order and checks every component
// for exact equality. Only the first mismatch produces a diagnostic line; the
// scan continues so the counts and difference map cover the whole volume. A
// volume running out of voxels before the other is a mismatch as well.
func ComparePixels[T models.Sample](first, second *models.Volume[T]) PixelReport {
	var r PixelReport

	n1, n2 := first.NumPixels(), second.NumPixels()
	r.DiffMap = make([]float64, n1)
	var diffs []float64

	mismatch := func() {
		if r.Mismatched == 0 {
			r.fail("ERROR: Pixel values are different")
		}
		r.Mismatched++
	}

	for i := 0; i < n1; i++ {
		if i >= n2 {
			r.DiffMap[i] = math.NaN()
			mismatch()
			continue
		}

		p1, p2 := first.Pixel(i), second.Pixel(i)
		differs := len(p1) != len(p2)
		worst := 0.0
		for c := 0; c < len(p1) && c < len(p2); c++ {
			if sameSample(p1[c], p2[c]) {
				continue
			}
			differs = true
			d := math.Abs(float64(p1[c]) - float64(p2[c]))
			diffs = append(diffs, d)
			worst = math.Max(worst, d)
		}
		r.DiffMap[i] = worst
		if differs {
			mismatch()
		}
	}

	for i := n1; i < n2; i++ {
		mismatch()
	}

	if len(diffs) > 0 {
		r.MeanAbsDiff = stat.Mean(diffs, nil)
		r.MaxAbsDiff = floats.Max(diffs)
	}

	return r
}

// CompareVolumes runs the geometry check followed by the pixel check
func CompareVolumes[T models.Sample](first, second *models.Volume[T], tol Tolerances) VolumeReport {
	var r VolumeReport
	r.Merge(CompareGeometry(&first.Geometry, &second.Geometry, tol.Coordinate))
	r.Pixels = ComparePixels(first, second)
	r.Merge(r.Pixels.Findings)
	return r
}

// sameSample treats two NaN components as equal so a float volume always
// matches itself
func sameSample[T models.Sample](a, b T) bool {
	return a == b || (a != a && b != b)
}

func vectorsEqual(a, b [3]float64, tol float64) bool {
	for i := range a {
		if !scalar.EqualWithinAbs(a[i], b[i], tol) {
			return false
		}
	}
	return true
}

func matricesEqual(a, b *mat.Dense, tol float64) bool {
	if a == nil {
		a = models.IdentityDirection()
	}
	if b == nil {
		b = models.IdentityDirection()
	}
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb || ca != cb {
		return false
	}
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			if !scalar.EqualWithinAbs(a.At(i, j), b.At(i, j), tol) {
				return false
			}
		}
	}
	return true
}

func direction(g *models.Geometry) *mat.Dense {
	if g.Direction == nil {
		return models.IdentityDirection()
	}
	return g.Direction
}
