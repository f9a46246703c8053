// Package nrrd reads and writes the NRRD volumes produced by DWI conversion.
// Only what the comparator needs is supported: attached or detached raw and
// gzip data, 3D scalar volumes and 4D volumes with one non-spatial axis.
package nrrd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"dwicompare/internal/models"
)

// MeasurementFrameKey is the metadata key the measurement frame field is
// stored under
const MeasurementFrameKey = "NRRD_measurement frame"

var (
	ErrNotNRRD             = errors.New("not a NRRD file")
	ErrUnsupportedEncoding = errors.New("unsupported NRRD encoding")
)

// Image is a loaded volume whose samples have not yet been decoded into a
// typed slice. Raw is pixel-interleaved in ByteOrder.
type Image struct {
	Geometry   models.Geometry
	Component  models.ComponentType
	Components int
	ByteOrder  binary.ByteOrder
	Raw        []byte
	Meta       *models.Metadata

	// TypeName is the type string from the header, kept for error messages
	TypeName string
}

// Samples converts the raw samples of img into a typed volume
func Samples[T models.Sample](img *Image) (*models.Volume[T], error) {
	size := img.Component.Size()
	if size == 0 {
		return nil, fmt.Errorf("cannot decode component type %s", img.Component)
	}
	if len(img.Raw)%size != 0 {
		return nil, fmt.Errorf("raw data length %d is not a multiple of %d", len(img.Raw), size)
	}

	data := make([]T, len(img.Raw)/size)
	if binary.Size(data) != len(img.Raw) {
		return nil, fmt.Errorf("component type %s does not match sample type %T", img.Component, data)
	}
	order := img.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}
	if err := binary.Read(bytes.NewReader(img.Raw), order, data); err != nil {
		return nil, fmt.Errorf("failed to decode samples: %w", err)
	}

	return &models.Volume[T]{
		Geometry:   img.Geometry,
		Components: img.Components,
		Data:       data,
	}, nil
}

// FromVolume builds an Image from a typed volume, encoding the samples in
// little-endian order
func FromVolume[T models.Sample](v *models.Volume[T], component models.ComponentType, meta *models.Metadata) (*Image, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v.Data); err != nil {
		return nil, fmt.Errorf("failed to encode samples: %w", err)
	}
	if component.Size() == 0 || binary.Size(v.Data) != len(v.Data)*component.Size() {
		return nil, fmt.Errorf("component type %s does not match sample type %T", component, v.Data)
	}
	if meta == nil {
		meta = models.NewMetadata()
	}
	return &Image{
		Geometry:   v.Geometry,
		Component:  component,
		Components: v.Components,
		ByteOrder:  binary.LittleEndian,
		Raw:        buf.Bytes(),
		Meta:       meta,
		TypeName:   typeNames[component],
	}, nil
}
