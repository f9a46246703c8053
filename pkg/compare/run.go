package compare

import (
	"errors"
	"fmt"

	"dwicompare/internal/models"
	"dwicompare/pkg/nrrd"
)

var (
	ErrUnsupportedComponent = errors.New("component type not supported")
	ErrComponentMismatch    = errors.New("component types differ")
)

// Report is the outcome of a full comparison run
type Report struct {
	Findings

	// Pixels carries the voxel statistics of the volume comparison
	Pixels PixelReport
}

// Passed reports whether no difference was found
func (r *Report) Passed() bool {
	return !r.Differs
}

// CompareImages decodes both images with the reference's component type and
// runs the geometry and pixel comparison. float64 and unknown component
// types are rejected before anything is compared.
func CompareImages(first, second *nrrd.Image, tol Tolerances) (VolumeReport, error) {
	switch first.Component {
	case models.ComponentFloat64:
		return VolumeReport{}, fmt.Errorf("%w: DOUBLE type not currently supported", ErrUnsupportedComponent)
	case models.ComponentUnknown:
		return VolumeReport{}, fmt.Errorf("%w: unknown component type %q", ErrUnsupportedComponent, first.TypeName)
	}
	if first.Component != second.Component {
		return VolumeReport{}, fmt.Errorf("%w: %s and %s", ErrComponentMismatch, first.Component, second.Component)
	}

	switch first.Component {
	case models.ComponentUint8:
		return compareAs[uint8](first, second, tol)
	case models.ComponentInt8:
		return compareAs[int8](first, second, tol)
	case models.ComponentUint16:
		return compareAs[uint16](first, second, tol)
	case models.ComponentInt16:
		return compareAs[int16](first, second, tol)
	case models.ComponentUint32:
		return compareAs[uint32](first, second, tol)
	case models.ComponentInt32:
		return compareAs[int32](first, second, tol)
	case models.ComponentUint64:
		return compareAs[uint64](first, second, tol)
	case models.ComponentInt64:
		return compareAs[int64](first, second, tol)
	case models.ComponentFloat32:
		return compareAs[float32](first, second, tol)
	}
	return VolumeReport{}, fmt.Errorf("%w: %s", ErrUnsupportedComponent, first.Component)
}

func compareAs[T models.Sample](first, second *nrrd.Image, tol Tolerances) (VolumeReport, error) {
	v1, err := nrrd.Samples[T](first)
	if err != nil {
		return VolumeReport{}, fmt.Errorf("first volume: %w", err)
	}
	v2, err := nrrd.Samples[T](second)
	if err != nil {
		return VolumeReport{}, fmt.Errorf("second volume: %w", err)
	}
	return CompareVolumes(v1, v2, tol), nil
}

// Run compares the volumes and then the diffusion metadata of two loaded
// images. A non-nil error is either a type error from dispatch or a
// *FatalError from the metadata walk; in the latter case the report still
// holds every finding recorded before the walk stopped.
func Run(first, second *nrrd.Image, tol Tolerances) (*Report, error) {
	vr, err := CompareImages(first, second, tol)
	if err != nil {
		return nil, err
	}

	r := &Report{Pixels: vr.Pixels}
	r.Merge(vr.Findings)

	mf, err := CompareDiffusion(first.Meta, second.Meta, tol)
	r.Merge(mf)
	if err != nil {
		r.Differs = true
		return r, err
	}
	return r, nil
}
