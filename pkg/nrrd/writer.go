package nrrd

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"dwicompare/internal/models"
)

var typeNames = map[models.ComponentType]string{
	models.ComponentUint8:   "uint8",
	models.ComponentInt8:    "int8",
	models.ComponentUint16:  "uint16",
	models.ComponentInt16:   "int16",
	models.ComponentUint32:  "uint32",
	models.ComponentInt32:   "int32",
	models.ComponentUint64:  "uint64",
	models.ComponentInt64:   "int64",
	models.ComponentFloat32: "float",
	models.ComponentFloat64: "double",
}

// EncodeOptions controls how an image is written
type EncodeOptions struct {
	// Gzip compresses the data section
	Gzip bool
}

// Save writes img to path as an attached-data NRRD file
func Save(path string, img *Image, opts EncodeOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Encode(f, img, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Encode writes img as NRRD0005 with the data attached. A multi-component
// image is written with the component axis first, the layout DWI converters
// produce.
func Encode(w io.Writer, img *Image, opts EncodeOptions) error {
	typeName, ok := typeNames[img.Component]
	if !ok {
		return fmt.Errorf("cannot encode component type %s", img.Component)
	}

	bw := bufio.NewWriter(w)
	g := img.Geometry
	vector := img.Components > 1

	fmt.Fprintln(bw, "NRRD0005")
	fmt.Fprintf(bw, "type: %s\n", typeName)
	if vector {
		fmt.Fprintln(bw, "dimension: 4")
		fmt.Fprintf(bw, "sizes: %d %d %d %d\n", img.Components, g.Region.Size[0], g.Region.Size[1], g.Region.Size[2])
		fmt.Fprintln(bw, "kinds: list domain domain domain")
	} else {
		fmt.Fprintln(bw, "dimension: 3")
		fmt.Fprintf(bw, "sizes: %d %d %d\n", g.Region.Size[0], g.Region.Size[1], g.Region.Size[2])
		fmt.Fprintln(bw, "kinds: domain domain domain")
	}
	if img.ByteOrder == binary.BigEndian {
		fmt.Fprintln(bw, "endian: big")
	} else {
		fmt.Fprintln(bw, "endian: little")
	}
	if opts.Gzip {
		fmt.Fprintln(bw, "encoding: gzip")
	} else {
		fmt.Fprintln(bw, "encoding: raw")
	}
	fmt.Fprintln(bw, "space dimension: 3")

	dirs := make([]string, 0, 4)
	if vector {
		dirs = append(dirs, "none")
	}
	direction := g.Direction
	if direction == nil {
		direction = models.IdentityDirection()
	}
	for c := 0; c < 3; c++ {
		dirs = append(dirs, formatVector([]float64{
			direction.At(0, c) * g.Spacing[c],
			direction.At(1, c) * g.Spacing[c],
			direction.At(2, c) * g.Spacing[c],
		}))
	}
	fmt.Fprintf(bw, "space directions: %s\n", strings.Join(dirs, " "))
	fmt.Fprintf(bw, "space origin: %s\n", formatVector(g.Origin[:]))

	if img.Meta != nil {
		for _, key := range img.Meta.Keys() {
			v, _ := img.Meta.Get(key)
			if key == MeasurementFrameKey {
				fmt.Fprintf(bw, "measurement frame: %s\n", formatFrame(v))
				continue
			}
			if strings.HasPrefix(key, "NRRD_") {
				continue
			}
			fmt.Fprintf(bw, "%s:=%s\n", key, v.Text)
		}
	}
	fmt.Fprintln(bw)

	if opts.Gzip {
		zw := gzip.NewWriter(bw)
		if _, err := zw.Write(img.Raw); err != nil {
			return fmt.Errorf("failed to write data: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to write data: %w", err)
		}
	} else if _, err := bw.Write(img.Raw); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	return bw.Flush()
}

func formatVector(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', 17, 64)
	}
	return "(" + strings.Join(parts, ",") + ")"
}

func formatFrame(v models.MetaValue) string {
	if v.Matrix == nil {
		return v.Text
	}
	rows := make([]string, len(v.Matrix))
	for i, row := range v.Matrix {
		rows[i] = formatVector(row)
	}
	return strings.Join(rows, " ")
}
