// Package chipdb identifies a flash chip by scoring a CSV database of known
// parts against the observed JEDEC bytes and observed average operation
// timings. It consumes only those observations; it never talks to the bus.
package chipdb

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/apex/log"
)

// Entry is one database row. Timings are the datasheet's typical and maximum
// values.
type Entry struct {
	Name         string
	Manufacturer byte
	DeviceID     [2]byte
	ReadUs       float64
	ProgramMs    float64
	ProgramMaxMs float64
	EraseMs      float64
	EraseMaxMs   float64
}

// Observation is what the benchmark measured on the attached chip.
type Observation struct {
	Manufacturer byte
	MemoryType   byte
	Capacity     byte
	ReadUs       float64
	ProgramMs    float64
	EraseMs      float64
}

// Expected CSV columns:
//
//	name,0xMM,0xD0,0xD1,read_us,write_ms,write_ms_max,erase_ms,erase_ms_max
//
// The first line is a header and is skipped. Malformed rows are skipped with a
// debug log, matching the original tool's tolerant loader.
func Load(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read chip database: %w", err)
	}
	if len(rows) > 0 {
		rows = rows[1:] // header
	}

	var entries []Entry
	for _, row := range rows {
		e, err := parseRow(row)
		if err != nil {
			log.WithError(err).Debugf("skipped chip database row %q", strings.Join(row, ","))
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseRow(row []string) (Entry, error) {
	var e Entry
	if len(row) != 9 {
		return e, fmt.Errorf("want 9 fields, got %d", len(row))
	}

	e.Name = strings.TrimSpace(row[0])

	ids := make([]byte, 3)
	for i := 1; i <= 3; i++ {
		s := strings.TrimPrefix(strings.TrimSpace(row[i]), "0x")
		v, err := strconv.ParseUint(s, 16, 8)
		if err != nil {
			return e, fmt.Errorf("field %d: %w", i, err)
		}
		ids[i-1] = byte(v)
	}
	e.Manufacturer = ids[0]
	e.DeviceID = [2]byte{ids[1], ids[2]}

	vals := make([]float64, 5)
	for i := 4; i <= 8; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			return e, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i-4] = v
	}
	e.ReadUs, e.ProgramMs, e.ProgramMaxMs, e.EraseMs, e.EraseMaxMs =
		vals[0], vals[1], vals[2], vals[3], vals[4]

	return e, nil
}

// Scoring weights. Identity agreement earns a negative bonus; timing
// disagreement adds squared relative error. Lower is better.
const (
	idMatchBonus   = -1.5
	idPartialBonus = -0.6
	weightRead     = 1.0
	weightProgram  = 0.8
	weightErase    = 0.6
)

func rel2(observed, reference float64) float64 {
	const eps = 1e-6
	if reference == 0 {
		return 0
	}
	r := (observed - reference) / (abs(reference) + eps)
	return r * r
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Score rates how well one database entry explains the observation.
func Score(e Entry, obs Observation) float64 {
	s := 0.0

	if e.Manufacturer == obs.Manufacturer &&
		e.DeviceID[0] == obs.MemoryType &&
		e.DeviceID[1] == obs.Capacity {
		s += idMatchBonus
	} else if e.Manufacturer == obs.Manufacturer {
		s += idPartialBonus
	}

	s += weightRead * rel2(obs.ReadUs, e.ReadUs)
	s += weightProgram * rel2(obs.ProgramMs, e.ProgramMs)
	s += weightErase * rel2(obs.EraseMs, e.EraseMs)

	return s
}

type Match struct {
	Entry Entry
	Score float64
}

// TopMatches ranks the database against the observation and returns the best
// n matches. Entries with missing timing data are ignored.
func TopMatches(entries []Entry, obs Observation, n int) []Match {
	if n < 1 {
		n = 1
	}

	var matches []Match
	for _, e := range entries {
		if e.ReadUs <= 0 || e.ProgramMs <= 0 || e.EraseMs <= 0 {
			continue
		}
		matches = append(matches, Match{Entry: e, Score: Score(e, obs)})
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score < matches[j].Score
	})

	if len(matches) > n {
		matches = matches[:n]
	}
	return matches
}
