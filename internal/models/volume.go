package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ComponentType identifies the scalar type stored in each voxel component
type ComponentType int

const (
	ComponentUnknown ComponentType = iota
	ComponentUint8
	ComponentInt8
	ComponentUint16
	ComponentInt16
	ComponentUint32
	ComponentInt32
	ComponentUint64
	ComponentInt64
	ComponentFloat32
	ComponentFloat64
)

var componentNames = map[ComponentType]string{
	ComponentUnknown: "unknown",
	ComponentUint8:   "uint8",
	ComponentInt8:    "int8",
	ComponentUint16:  "uint16",
	ComponentInt16:   "int16",
	ComponentUint32:  "uint32",
	ComponentInt32:   "int32",
	ComponentUint64:  "uint64",
	ComponentInt64:   "int64",
	ComponentFloat32: "float32",
	ComponentFloat64: "float64",
}

func (c ComponentType) String() string {
	if name, ok := componentNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ComponentType(%d)", int(c))
}

// Size returns the number of bytes in one component, or 0 when unknown
func (c ComponentType) Size() int {
	switch c {
	case ComponentUint8, ComponentInt8:
		return 1
	case ComponentUint16, ComponentInt16:
		return 2
	case ComponentUint32, ComponentInt32, ComponentFloat32:
		return 4
	case ComponentUint64, ComponentInt64, ComponentFloat64:
		return 8
	}
	return 0
}

// Sample is the set of component types a volume can be compared with.
// float64 is deliberately absent.
type Sample interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~uint64 | ~int64 | ~float32
}

// Region is the index range of a voxel grid
type Region struct {
	Index [3]int
	Size  [3]int
}

// NumPixels returns the number of voxels inside the region
func (r Region) NumPixels() int {
	return r.Size[0] * r.Size[1] * r.Size[2]
}

func (r Region) String() string {
	return fmt.Sprintf("index %v size %v", r.Index, r.Size)
}

// Geometry describes where a voxel grid sits in physical space
type Geometry struct {
	// Spacing is the physical distance between voxel centres along each axis in mm
	Spacing [3]float64

	// Origin is the physical position of the first voxel
	Origin [3]float64

	// Direction holds the direction cosines of the grid axes as columns
	Direction *mat.Dense

	// Region is the largest possible region of the grid
	Region Region
}

// IdentityDirection returns a 3x3 identity direction matrix
func IdentityDirection() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

// Volume is a 3D grid of voxels, each holding Components samples of type T.
// Data is pixel-interleaved: all components of voxel 0, then voxel 1, in
// x-fastest order.
type Volume[T Sample] struct {
	Geometry

	// Components is the number of samples per voxel (one per DWI acquisition)
	Components int

	// Data holds Region.NumPixels()*Components samples
	Data []T
}

// NumPixels returns the number of complete voxels held in Data
func (v *Volume[T]) NumPixels() int {
	if v.Components <= 0 {
		return 0
	}
	return len(v.Data) / v.Components
}

// Pixel returns the components of voxel i. The slice aliases Data.
func (v *Volume[T]) Pixel(i int) []T {
	return v.Data[i*v.Components : (i+1)*v.Components]
}
