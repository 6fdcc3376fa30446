// Package ingest reads run files into raw curves. A file that cannot be
// parsed is rejected as a whole, wrapped in curve.ErrInvalidInput. Curves
// that parse are returned without curve-level validation: a well with
// mismatched lengths, infinite values or repeated cycles is left for the
// analysis to reject on its own, so one bad well does not discard the plate.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/curve"
	"github.com/jon06041/MDL-PCR-Analyzer-sub005/internal/fsutil"
)

// MaxFileSize bounds the run files ReadFile accepts.
const MaxFileSize = 64 * 1024 * 1024

// CSV column names. imported_cq is optional.
const (
	colWell       = "well"
	colChannel    = "channel"
	colCycle      = "cycle"
	colRFU        = "rfu"
	colImportedCq = "imported_cq"
)

// ReadFile loads a .csv or .json run file from disk.
func ReadFile(path string) ([]curve.RawCurve, error) {
	return ReadFileFS(fsutil.OSFileSystem{}, path)
}

// ReadFileFS loads a .csv or .json run file from fsys.
func ReadFileFS(fsys fsutil.FileSystem, path string) ([]curve.RawCurve, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".csv" && ext != ".json" {
		return nil, fmt.Errorf("run file must have .csv or .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat run file: %w", err)
	}
	if fileInfo.Size() > MaxFileSize {
		return nil, fmt.Errorf("run file too large: %d bytes (max %d)", fileInfo.Size(), MaxFileSize)
	}

	f, err := fsys.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open run file: %w", err)
	}
	defer f.Close()

	if ext == ".json" {
		return ReadJSON(f)
	}
	return ReadCSV(f)
}

type point struct {
	cycle, rfu float64
}

type wellKey struct {
	well, channel string
}

type pending struct {
	key      wellKey
	points   []point
	imported *float64
}

// ReadCSV parses the long format, one reading per row:
//
//	well,channel,cycle,rfu[,imported_cq]
//
// The header row is required; column order is free. An empty rfu cell is a
// missing reading. Curves are returned in first-seen order with their
// readings sorted by cycle.
func ReadCSV(r io.Reader) ([]curve.RawCurve, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty run file", curve.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", curve.ErrInvalidInput, err)
	}
	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var order []*pending
	byKey := make(map[wellKey]*pending)

	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", curve.ErrInvalidInput, line, err)
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("%w: line %d: expected %d fields, got %d", curve.ErrInvalidInput, line, len(header), len(record))
		}

		key := wellKey{well: record[cols[colWell]], channel: record[cols[colChannel]]}
		if key.well == "" {
			return nil, fmt.Errorf("%w: line %d: empty well", curve.ErrInvalidInput, line)
		}

		cycle, err := strconv.ParseFloat(record[cols[colCycle]], 64)
		if err != nil || math.IsNaN(cycle) || math.IsInf(cycle, 0) {
			return nil, fmt.Errorf("%w: line %d: invalid cycle %q", curve.ErrInvalidInput, line, record[cols[colCycle]])
		}
		rfu, err := parseOptional(record[cols[colRFU]])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: invalid rfu %q", curve.ErrInvalidInput, line, record[cols[colRFU]])
		}

		p, ok := byKey[key]
		if !ok {
			p = &pending{key: key}
			byKey[key] = p
			order = append(order, p)
		}
		p.points = append(p.points, point{cycle: cycle, rfu: rfu})

		if idx, ok := cols[colImportedCq]; ok {
			cq, err := parseOptional(record[idx])
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: invalid imported_cq %q", curve.ErrInvalidInput, line, record[idx])
			}
			if !math.IsNaN(cq) {
				if p.imported != nil && *p.imported != cq {
					return nil, fmt.Errorf("%w: line %d: conflicting imported_cq for %s/%s", curve.ErrInvalidInput, line, key.well, key.channel)
				}
				p.imported = &cq
			}
		}
	}

	curves := make([]curve.RawCurve, 0, len(order))
	for _, p := range order {
		curves = append(curves, p.build())
	}
	return curves, nil
}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{colWell, colChannel, colCycle, colRFU} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: header is missing column %q (want well,channel,cycle,rfu[,imported_cq])", curve.ErrInvalidInput, required)
		}
	}
	return cols, nil
}

// parseOptional parses a numeric cell; an empty cell is NaN.
func parseOptional(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// build sorts the points by cycle. Repeated cycles are kept; curve.Validate
// rejects them.
func (p *pending) build() curve.RawCurve {
	sort.SliceStable(p.points, func(i, j int) bool { return p.points[i].cycle < p.points[j].cycle })

	c := curve.RawCurve{
		Well:       p.key.well,
		Channel:    p.key.channel,
		Cycles:     make([]float64, len(p.points)),
		Readings:   make([]float64, len(p.points)),
		ImportedCq: p.imported,
	}
	for i, pt := range p.points {
		c.Cycles[i] = pt.cycle
		c.Readings[i] = pt.rfu
	}
	return c
}

// jsonCurve is the JSON run-file shape. A null reading is a missing one.
type jsonCurve struct {
	Well       string     `json:"well"`
	Channel    string     `json:"channel"`
	Cycles     []float64  `json:"cycles"`
	Readings   []*float64 `json:"readings"`
	ImportedCq *float64   `json:"imported_cq,omitempty"`
}

// ReadJSON parses an array of curves. Like ReadCSV it leaves curve-level
// checks to curve.Validate.
func ReadJSON(r io.Reader) ([]curve.RawCurve, error) {
	var in []jsonCurve
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("%w: decoding run file: %v", curve.ErrInvalidInput, err)
	}

	curves := make([]curve.RawCurve, 0, len(in))
	for i, jc := range in {
		if jc.Well == "" {
			return nil, fmt.Errorf("%w: curve %d: empty well", curve.ErrInvalidInput, i)
		}
		c := curve.RawCurve{
			Well:       jc.Well,
			Channel:    jc.Channel,
			Cycles:     jc.Cycles,
			Readings:   make([]float64, len(jc.Readings)),
			ImportedCq: jc.ImportedCq,
		}
		for j, v := range jc.Readings {
			if v == nil {
				c.Readings[j] = math.NaN()
				continue
			}
			c.Readings[j] = *v
		}
		curves = append(curves, c)
	}
	return curves, nil
}
