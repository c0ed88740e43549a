// Package months models the GRACE/GRACE-FO month index: the
// plain-text per-dataset date files kept under version control, and
// the summary table generated from them.
package months

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// FirstMonth is the first GRACE month with data (004, April 2002).
const FirstMonth = 4

// Month is one row of a dataset's date index: the month number and the
// start/end days of the underlying measurement span.
type Month struct {
	Date                float64 // mid-date in decimal years
	Number              int
	StartYear, StartDay int
	EndYear, EndDay     int
}

// Calendar returns the calendar year and month for a GRACE month
// number; month 004 is April 2002.
func Calendar(number int) (int, time.Month) {
	year := 2002 + (number-1)/12
	month := time.Month((number-1)%12 + 1)
	return year, month
}

// Label returns the short label used in the summary table, e.g.
// "Apr 2002".
func (m Month) Label() string {
	year, month := Calendar(m.Number)
	return fmt.Sprintf("%s %d", month.String()[:3], year)
}

// ParseIndex reads a date index file: a header line, then one row per
// month with columns mid-date (decimal years), month number, start
// year, start day-of-year, end year, end day-of-year.
func ParseIndex(r io.Reader) ([]Month, error) {
	var months []Month
	scanner := bufio.NewScanner(r)
	header := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if header {
			header = false
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			return nil, errors.Errorf("malformed index row %q", line)
		}
		var m Month
		var err error
		if m.Date, err = strconv.ParseFloat(fields[0], 64); err != nil {
			return nil, errors.Wrapf(err, "index row %q", line)
		}
		ints := make([]int, 5)
		for i, f := range fields[1:6] {
			if ints[i], err = strconv.Atoi(f); err != nil {
				return nil, errors.Wrapf(err, "index row %q", line)
			}
		}
		m.Number, m.StartYear, m.StartDay, m.EndYear, m.EndDay = ints[0], ints[1], ints[2], ints[3], ints[4]
		months = append(months, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading date index")
	}
	return months, nil
}

// ParseIndexFile reads the date index at path.
func ParseIndexFile(path string) ([]Month, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening date index %s", path)
	}
	defer f.Close()
	months, err := ParseIndex(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing date index %s", path)
	}
	return months, nil
}

// WriteIndex writes a date index in the persisted plain-text layout,
// so that parsing then writing reproduces the same rows.
func WriteIndex(w io.Writer, months []Month) error {
	if _, err := fmt.Fprintln(w, "Mid-date Month Start_Year Start_Day End_Year End_Day"); err != nil {
		return err
	}
	for _, m := range months {
		_, err := fmt.Fprintf(w, "%13.8f %03d %4d %3d %4d %3d\n",
			m.Date, m.Number, m.StartYear, m.StartDay, m.EndYear, m.EndDay)
		if err != nil {
			return err
		}
	}
	return nil
}

// Merge unions month sets from several processing centers. A month
// present in more than one set keeps the widest measurement span.
func Merge(sets ...[]Month) []Month {
	byNumber := map[int]Month{}
	for _, set := range sets {
		for _, m := range set {
			have, ok := byNumber[m.Number]
			if !ok {
				byNumber[m.Number] = m
				continue
			}
			if before(m.StartYear, m.StartDay, have.StartYear, have.StartDay) {
				have.StartYear, have.StartDay = m.StartYear, m.StartDay
			}
			if before(have.EndYear, have.EndDay, m.EndYear, m.EndDay) {
				have.EndYear, have.EndDay = m.EndYear, m.EndDay
			}
			byNumber[m.Number] = have
		}
	}
	var numbers []int
	for n := range byNumber {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	merged := make([]Month, 0, len(numbers))
	for _, n := range numbers {
		merged = append(merged, byNumber[n])
	}
	return merged
}

func before(y1, d1, y2, d2 int) bool {
	return y1 < y2 || (y1 == y2 && d1 < d2)
}
