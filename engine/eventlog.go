package engine

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"
)

var csvHeader = []string{
	"session_id", "phase", "cycle", "expected_s", "actual_s",
	"started_at", "offset_s", "outcome", "flips", "expected_flips",
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
}

func parseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(math.Round(f * float64(time.Second))), nil
}

// WriteCSV writes one row per recorded phase.
func (rep *Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range rep.Phases {
		err := cw.Write([]string{
			rep.ID,
			p.Kind.String(),
			strconv.Itoa(p.Cycle),
			formatSeconds(p.Expected),
			formatSeconds(p.Actual),
			p.StartedAt.Format(time.RFC3339Nano),
			formatSeconds(p.Offset),
			p.Outcome.String(),
			strconv.Itoa(p.Flips),
			strconv.Itoa(p.ExpectedFlips),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (rep *Report) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rep.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write timing log %s: %w", path, err)
	}
	return f.Close()
}

// LoadReport reads back a timing log written by Save. Session level fields
// are reconstructed from the rows; Expected covers the recorded phases only.
func LoadReport(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: empty timing log", path)
	}

	rep := &Report{}
	for i, record := range records[1:] {
		line := i + 2
		if len(record) < len(csvHeader) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(csvHeader), len(record))
		}
		kind, ok := ParsePhaseKind(record[1])
		if !ok {
			return nil, fmt.Errorf("line %d: unknown phase: %s", line, record[1])
		}
		p := PhaseRecord{Kind: kind}
		if p.Cycle, err = strconv.Atoi(record[2]); err != nil {
			return nil, fmt.Errorf("line %d: invalid cycle: %v", line, err)
		}
		if p.Expected, err = parseSeconds(record[3]); err != nil {
			return nil, fmt.Errorf("line %d: invalid expected duration: %v", line, err)
		}
		if p.Actual, err = parseSeconds(record[4]); err != nil {
			return nil, fmt.Errorf("line %d: invalid actual duration: %v", line, err)
		}
		if p.StartedAt, err = time.Parse(time.RFC3339Nano, record[5]); err != nil {
			return nil, fmt.Errorf("line %d: invalid timestamp: %v", line, err)
		}
		if p.Offset, err = parseSeconds(record[6]); err != nil {
			return nil, fmt.Errorf("line %d: invalid offset: %v", line, err)
		}
		if record[7] == Cancelled.String() {
			p.Outcome = Cancelled
		}
		if p.Flips, err = strconv.Atoi(record[8]); err != nil {
			return nil, fmt.Errorf("line %d: invalid flip count: %v", line, err)
		}
		if p.ExpectedFlips, err = strconv.Atoi(record[9]); err != nil {
			return nil, fmt.Errorf("line %d: invalid expected flip count: %v", line, err)
		}

		if len(rep.Phases) == 0 {
			rep.ID = record[0]
			rep.StartedAt = p.StartedAt.Add(-p.Offset)
		}
		rep.Phases = append(rep.Phases, p)
		rep.Expected += p.Expected
		rep.Total = p.Offset + p.Actual
		if p.Outcome == Cancelled {
			rep.Outcome = Cancelled
		}
	}
	rep.Drift = rep.Total - rep.Expected
	rep.DriftExceeded = rep.Outcome == Completed && (rep.Drift > DriftThreshold || rep.Drift < -DriftThreshold)
	return rep, nil
}
