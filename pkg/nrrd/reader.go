package nrrd

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"dwicompare/internal/models"
)

var componentTypes = map[string]models.ComponentType{
	"uchar": models.ComponentUint8, "unsigned char": models.ComponentUint8,
	"uint8": models.ComponentUint8, "uint8_t": models.ComponentUint8,

	"signed char": models.ComponentInt8, "int8": models.ComponentInt8, "int8_t": models.ComponentInt8,

	"short": models.ComponentInt16, "short int": models.ComponentInt16,
	"signed short": models.ComponentInt16, "signed short int": models.ComponentInt16,
	"int16": models.ComponentInt16, "int16_t": models.ComponentInt16,

	"ushort": models.ComponentUint16, "unsigned short": models.ComponentUint16,
	"unsigned short int": models.ComponentUint16, "uint16": models.ComponentUint16,
	"uint16_t": models.ComponentUint16,

	"int": models.ComponentInt32, "signed int": models.ComponentInt32,
	"int32": models.ComponentInt32, "int32_t": models.ComponentInt32,

	"uint": models.ComponentUint32, "unsigned int": models.ComponentUint32,
	"uint32": models.ComponentUint32, "uint32_t": models.ComponentUint32,

	"longlong": models.ComponentInt64, "long long": models.ComponentInt64,
	"long long int": models.ComponentInt64, "signed long long": models.ComponentInt64,
	"signed long long int": models.ComponentInt64, "int64": models.ComponentInt64,
	"int64_t": models.ComponentInt64,

	"ulonglong": models.ComponentUint64, "unsigned long long": models.ComponentUint64,
	"unsigned long long int": models.ComponentUint64, "uint64": models.ComponentUint64,
	"uint64_t": models.ComponentUint64,

	"float":  models.ComponentFloat32,
	"double": models.ComponentFloat64,
}

// header holds the parsed fields of a NRRD header
type header struct {
	typeName   string
	dimension  int
	sizes      []int
	directions [][]float64 // nil entry for a "none" axis
	origin     []float64
	spacings   []float64
	kinds      []string
	endian     string
	encoding   string
	dataFile   string
	meta       *models.Metadata
}

// Load reads a NRRD file from disk. A detached data file is resolved
// relative to the header's directory.
func Load(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, err := decode(bufio.NewReader(f), filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return img, nil
}

// Decode reads a NRRD stream with attached data
func Decode(r io.Reader) (*Image, error) {
	return decode(bufio.NewReader(r), "")
}

func decode(br *bufio.Reader, dir string) (*Image, error) {
	h, err := readHeader(br)
	if err != nil {
		return nil, err
	}

	var data io.Reader = br
	if h.dataFile != "" {
		if dir == "" {
			return nil, fmt.Errorf("detached data file %q needs a header path", h.dataFile)
		}
		path := h.dataFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		df, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open data file: %w", err)
		}
		defer df.Close()
		data = df
	}

	return h.build(data)
}

func readHeader(br *bufio.Reader) (*header, error) {
	magic, err := br.ReadString('\n')
	if err != nil && magic == "" {
		return nil, fmt.Errorf("%w: %v", ErrNotNRRD, err)
	}
	if !strings.HasPrefix(magic, "NRRD000") {
		return nil, ErrNotNRRD
	}

	h := &header{encoding: "raw", meta: models.NewMetadata()}
	for {
		line, err := br.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			// blank line ends the header; EOF without one means detached data
			break
		}
		if err := h.parseLine(trimmed); err != nil {
			return nil, err
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read header: %w", err)
		}
	}

	return h, h.validate()
}

func (h *header) parseLine(line string) error {
	if strings.HasPrefix(line, "#") {
		return nil
	}

	if i := strings.Index(line, ":="); i >= 0 {
		h.meta.SetText(line[:i], line[i+2:])
		return nil
	}

	i := strings.Index(line, ": ")
	if i < 0 {
		return fmt.Errorf("malformed header line %q", line)
	}
	field, value := strings.ToLower(strings.TrimSpace(line[:i])), strings.TrimSpace(line[i+2:])

	var err error
	switch field {
	case "type":
		h.typeName = value
	case "dimension":
		h.dimension, err = strconv.Atoi(value)
	case "sizes":
		h.sizes, err = parseInts(value)
	case "space directions":
		h.directions, err = parseDirections(value)
	case "space origin":
		var rows [][]float64
		rows, err = parseVectors(value)
		if err == nil && len(rows) != 1 {
			err = fmt.Errorf("expected one vector, got %d", len(rows))
		}
		if err == nil {
			h.origin = rows[0]
		}
	case "spacings":
		h.spacings, err = parseFloats(value)
	case "kinds":
		h.kinds = strings.Fields(value)
	case "endian":
		h.endian = value
	case "encoding":
		h.encoding = value
	case "data file", "datafile":
		h.dataFile = value
	case "measurement frame":
		var rows [][]float64
		rows, err = parseVectors(value)
		if err == nil {
			h.meta.Set(MeasurementFrameKey, models.MetaValue{Text: value, Matrix: rows})
		}
	default:
		h.meta.SetText("NRRD_"+field, value)
	}
	if err != nil {
		return fmt.Errorf("field %q: %w", field, err)
	}
	return nil
}

func (h *header) validate() error {
	if h.dimension == 0 {
		return fmt.Errorf("missing dimension field")
	}
	if len(h.sizes) != h.dimension {
		return fmt.Errorf("sizes has %d entries, dimension is %d", len(h.sizes), h.dimension)
	}
	total := 1
	for i, n := range h.sizes {
		if n <= 0 {
			return fmt.Errorf("sizes[%d] must be positive, got %d", i, n)
		}
		if total > math.MaxInt32/n {
			return fmt.Errorf("sizes %v describe too many samples", h.sizes)
		}
		total *= n
	}
	if h.directions != nil && len(h.directions) != h.dimension {
		return fmt.Errorf("space directions has %d entries, dimension is %d", len(h.directions), h.dimension)
	}
	if h.spacings != nil && len(h.spacings) != h.dimension {
		return fmt.Errorf("spacings has %d entries, dimension is %d", len(h.spacings), h.dimension)
	}
	if h.typeName == "" {
		return fmt.Errorf("missing type field")
	}
	return nil
}

// vectorAxis returns the index of the single non-spatial axis, or -1
func (h *header) vectorAxis() (int, error) {
	axis := -1
	for i := 0; i < h.dimension; i++ {
		spatial := true
		switch {
		case h.directions != nil:
			spatial = h.directions[i] != nil
		case h.spacings != nil:
			spatial = !math.IsNaN(h.spacings[i])
		case h.kinds != nil && i < len(h.kinds):
			spatial = h.kinds[i] == "domain" || h.kinds[i] == "space"
		}
		if spatial {
			continue
		}
		if axis >= 0 {
			return 0, fmt.Errorf("more than one non-spatial axis")
		}
		axis = i
	}
	if h.dimension == 4 && axis < 0 {
		return 0, fmt.Errorf("4D volume without a non-spatial axis")
	}
	return axis, nil
}

func (h *header) build(data io.Reader) (*Image, error) {
	axis, err := h.vectorAxis()
	if err != nil {
		return nil, err
	}
	if h.dimension-boolToInt(axis >= 0) != 3 {
		return nil, fmt.Errorf("expected 3 spatial axes, dimension is %d", h.dimension)
	}

	img := &Image{
		Component:  componentTypes[h.typeName],
		Components: 1,
		ByteOrder:  binary.LittleEndian,
		Meta:       h.meta,
		TypeName:   h.typeName,
	}
	if h.endian == "big" {
		img.ByteOrder = binary.BigEndian
	}
	if axis >= 0 {
		img.Components = h.sizes[axis]
	}

	g := &img.Geometry
	g.Direction = mat.NewDense(3, 3, nil)
	s := 0
	for i := 0; i < h.dimension; i++ {
		if i == axis {
			continue
		}
		g.Region.Size[s] = h.sizes[i]
		if h.directions != nil {
			dir := h.directions[i]
			g.Spacing[s] = floats.Norm(dir, 2)
			for r := 0; r < 3 && r < len(dir); r++ {
				g.Direction.Set(r, s, dir[r]/g.Spacing[s])
			}
		} else {
			g.Spacing[s] = 1
			if h.spacings != nil {
				g.Spacing[s] = h.spacings[i]
			}
			g.Direction.Set(s, s, 1)
		}
		s++
	}
	copy(g.Origin[:], h.origin)

	// Samples of unknown type cannot be sized; they are rejected before
	// comparison so the payload is left unread.
	size := img.Component.Size()
	if size == 0 {
		return img, nil
	}

	switch h.encoding {
	case "raw":
	case "gzip", "gz":
		zr, err := gzip.NewReader(data)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip data: %w", err)
		}
		defer zr.Close()
		data = zr
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, h.encoding)
	}

	total := size
	for _, n := range h.sizes {
		total *= n
	}
	raw := make([]byte, total)
	if _, err := io.ReadFull(data, raw); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes of data: %w", total, err)
	}

	if axis > 0 {
		raw = interleave(raw, h.sizes, axis, size)
	}
	img.Raw = raw
	return img, nil
}

// interleave moves the non-spatial axis to the fastest position so that all
// components of a voxel are contiguous
func interleave(raw []byte, sizes []int, axis, size int) []byte {
	out := make([]byte, len(raw))
	components := sizes[axis]
	coords := make([]int, len(sizes))

	for in := 0; in < len(raw)/size; in++ {
		rem := in
		for d, n := range sizes {
			coords[d] = rem % n
			rem /= n
		}

		voxel, stride := 0, 1
		for d, n := range sizes {
			if d == axis {
				continue
			}
			voxel += coords[d] * stride
			stride *= n
		}

		dst := (voxel*components + coords[axis]) * size
		copy(out[dst:dst+size], raw[in*size:(in+1)*size])
	}
	return out
}

func parseInts(s string) ([]int, error) {
	fields := strings.Fields(s)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	out := make([]float64, len(fields))
	for i, f := range fields {
		if strings.EqualFold(f, "nan") {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// parseDirections parses "none (a,b,c) (d,e,f) (g,h,i)"
func parseDirections(s string) ([][]float64, error) {
	var out [][]float64
	for _, tok := range splitVectors(s) {
		if tok == "none" {
			out = append(out, nil)
			continue
		}
		rows, err := parseVectors(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, rows[0])
	}
	return out, nil
}

// splitVectors splits on whitespace outside parentheses
func splitVectors(s string) []string {
	var out []string
	var cur bytes.Buffer
	depth := 0
	for _, r := range s {
		switch {
		case r == '(':
			depth++
		case r == ')':
			depth--
		case (r == ' ' || r == '\t') && depth == 0:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// parseVectors parses "(a,b,c) (d,e,f)" into rows
func parseVectors(s string) ([][]float64, error) {
	var rows [][]float64
	for _, tok := range splitVectors(s) {
		if len(tok) < 2 || tok[0] != '(' || tok[len(tok)-1] != ')' {
			return nil, fmt.Errorf("malformed vector %q", tok)
		}
		parts := strings.Split(tok[1:len(tok)-1], ",")
		row := make([]float64, len(parts))
		for i, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("malformed vector %q: %w", tok, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no vectors in %q", s)
	}
	return rows, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
