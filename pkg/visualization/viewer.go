// Package visualization renders voxel difference maps as image slices so an
// operator can see where a converted volume departs from its reference.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"
)

// Viewer slices a per-voxel difference map
type Viewer struct {
	// diffMap holds the absolute difference of each voxel, x fastest.
	// NaN marks a voxel missing from the candidate volume.
	diffMap []float64

	// dimensions of the volume
	width  int
	height int
	depth  int

	// scale maps the largest finite difference to full intensity
	scale float64
}

// NewViewer creates a viewer over a difference map of the given size
func NewViewer(diffMap []float64, width, height, depth int) *Viewer {
	maxDiff := 0.0
	for _, d := range diffMap {
		if !math.IsNaN(d) && !math.IsInf(d, 0) {
			maxDiff = math.Max(maxDiff, d)
		}
	}
	scale := 0.0
	if maxDiff > 0 {
		scale = 65535 / maxDiff
	}
	return &Viewer{
		diffMap: diffMap,
		width:   width,
		height:  height,
		depth:   depth,
		scale:   scale,
	}
}

func (v *Viewer) intensity(idx int) (uint16, bool) {
	if idx >= len(v.diffMap) {
		return 0, false
	}
	d := v.diffMap[idx]
	switch {
	case math.IsNaN(d) || math.IsInf(d, 0):
		return 65535, true
	case d == 0:
		return 0, false
	}
	return uint16(math.Max(1, math.Min(65535, d*v.scale))), true
}

// ExtractSlice extracts a 2D difference slice along the specified axis.
// changed reports whether any voxel in the slice differs.
func (v *Viewer) ExtractSlice(axis string, position int) (img *image.Gray16, changed bool, err error) {
	if position < 0 {
		return nil, false, fmt.Errorf("position must be non-negative")
	}

	var w, h, limit int
	var index func(a, b int) int
	switch axis {
	case "x", "X":
		// YZ plane
		w, h, limit = v.depth, v.height, v.width
		index = func(z, y int) int { return z*v.width*v.height + y*v.width + position }
	case "y", "Y":
		// XZ plane
		w, h, limit = v.width, v.depth, v.height
		index = func(x, z int) int { return z*v.width*v.height + position*v.width + x }
	case "z", "Z":
		// XY plane
		w, h, limit = v.width, v.height, v.depth
		index = func(x, y int) int { return position*v.width*v.height + y*v.width + x }
	default:
		return nil, false, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
	if position >= limit {
		return nil, false, fmt.Errorf("position %d exceeds axis size %d", position, limit)
	}

	img = image.NewGray16(image.Rect(0, 0, w, h))
	for b := 0; b < h; b++ {
		for a := 0; a < w; a++ {
			value, diff := v.intensity(index(a, b))
			if diff {
				changed = true
				img.SetGray16(a, b, color.Gray16{Y: value})
			}
		}
	}
	return img, changed, nil
}

// SaveSlice saves a slice as a deflate-compressed 16-bit TIFF
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
}

// SaveSliceSequence saves every slice along axis that contains a difference
// and returns the number of files written
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.width
	case "y", "Y":
		maxPos = v.height
	case "z", "Z":
		maxPos = v.depth
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	written := 0
	for pos := 0; pos < maxPos; pos++ {
		img, changed, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return written, err
		}
		if !changed {
			continue
		}

		if written == 0 {
			if err := os.MkdirAll(outputDir, 0755); err != nil {
				return 0, err
			}
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("diff_%s_%03d.tif", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return written, err
		}
		written++
	}

	return written, nil
}
