package months

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// Cycle is one mission cycle row in the persisted CSV
// (`cycle,start,end`, ISO dates).
type Cycle struct {
	Number int
	Start  time.Time
	End    time.Time
}

const cycleDateLayout = "2006-01-02"

// CyclesFromMonths derives mission cycles from a date index: one
// cycle per month, spanning the measurement days.
func CyclesFromMonths(ms []Month) []Cycle {
	var cycles []Cycle
	for _, m := range ms {
		cycles = append(cycles, Cycle{
			Number: m.Number,
			Start:  yearDay(m.StartYear, m.StartDay),
			End:    yearDay(m.EndYear, m.EndDay),
		})
	}
	return cycles
}

func yearDay(year, day int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day-1)
}

// WriteCycles writes the mission-cycle CSV with a header row.
func WriteCycles(w io.Writer, cycles []Cycle) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"cycle", "start", "end"}); err != nil {
		return err
	}
	for _, c := range cycles {
		record := []string{
			strconv.Itoa(c.Number),
			c.Start.Format(cycleDateLayout),
			c.End.Format(cycleDateLayout),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseCycles reads the mission-cycle CSV back.
func ParseCycles(r io.Reader) ([]Cycle, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading cycle csv")
	}
	var cycles []Cycle
	for i, record := range records {
		if i == 0 {
			continue // header
		}
		if len(record) != 3 {
			return nil, errors.Errorf("malformed cycle row %v", record)
		}
		var c Cycle
		if c.Number, err = strconv.Atoi(record[0]); err != nil {
			return nil, errors.Wrapf(err, "cycle row %v", record)
		}
		if c.Start, err = time.Parse(cycleDateLayout, record[1]); err != nil {
			return nil, errors.Wrapf(err, "cycle row %v", record)
		}
		if c.End, err = time.Parse(cycleDateLayout, record[2]); err != nil {
			return nil, errors.Wrapf(err, "cycle row %v", record)
		}
		cycles = append(cycles, c)
	}
	return cycles, nil
}
