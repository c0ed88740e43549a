// Package params implements the parameter file format used to drive
// the external processing and plotting tools. A parameter file is a
// sequence of `KEY value` lines, split on whitespace; `#` introduces a
// comment; a blank value or the literal `None` means "unset";
// multi-value fields are comma-separated. Parsing is permissive:
// unknown keys are kept, malformed lines are skipped.
package params

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Unset is the literal used in parameter files for a placeholder
// value.
const Unset = "None"

// Params is an ordered set of named parameter values. Order is kept so
// that serialising a parsed file reproduces the original layout.
type Params struct {
	keys   []string
	values map[string]string
}

func New() *Params {
	return &Params{values: map[string]string{}}
}

// Parse reads parameter assignments from r. Comments and blank lines
// are dropped; a line with a key but no value records the key as
// unset.
func Parse(r io.Reader) (*Params, error) {
	p := New()
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		switch len(fields) {
		case 0:
			continue
		case 1:
			p.Set(fields[0], Unset)
		default:
			p.Set(fields[0], fields[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading parameter file")
	}
	return p, nil
}

// ParseFile reads the parameter file at path.
func ParseFile(path string) (*Params, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening parameter file %s", path)
	}
	defer f.Close()
	p, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing parameter file %s", path)
	}
	return p, nil
}

// Set records a value for a key, preserving the position of the key if
// it has been seen before.
func (p *Params) Set(key, value string) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Keys returns the parameter names in file order.
func (p *Params) Keys() []string {
	keys := make([]string, len(p.keys))
	copy(keys, p.keys)
	return keys
}

func (p *Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// IsSet returns true if the key is present and its value is not a
// placeholder.
func (p *Params) IsSet(key string) bool {
	v, ok := p.values[key]
	return ok && v != "" && !strings.EqualFold(v, Unset)
}

// String returns the raw value for a key, or "" if the key is absent
// or unset.
func (p *Params) String(key string) string {
	if !p.IsSet(key) {
		return ""
	}
	return p.values[key]
}

func (p *Params) Int(key string) (int, error) {
	if !p.IsSet(key) {
		return 0, errors.Errorf("parameter %s is not set", key)
	}
	n, err := strconv.Atoi(p.values[key])
	if err != nil {
		return 0, errors.Wrapf(err, "parameter %s", key)
	}
	return n, nil
}

func (p *Params) Float(key string) (float64, error) {
	if !p.IsSet(key) {
		return 0, errors.Errorf("parameter %s is not set", key)
	}
	f, err := strconv.ParseFloat(p.values[key], 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parameter %s", key)
	}
	return f, nil
}

// Bool interprets the Y/N flag convention used by the parameter files.
func (p *Params) Bool(key string) bool {
	v := p.values[key]
	return v == "Y" || v == "y"
}

// IntList parses a comma-separated list of integers, tolerating
// whitespace around elements. An unset parameter yields an empty list.
func (p *Params) IntList(key string) ([]int, error) {
	if !p.IsSet(key) {
		return nil, nil
	}
	var list []int
	for _, s := range strings.Split(p.values[key], ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %s", key)
		}
		list = append(list, n)
	}
	return list, nil
}

// FloatList parses a comma-separated list of floats.
func (p *Params) FloatList(key string) ([]float64, error) {
	if !p.IsSet(key) {
		return nil, nil
	}
	var list []float64
	for _, s := range strings.Split(p.values[key], ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %s", key)
		}
		list = append(list, f)
	}
	return list, nil
}

// Serialize writes the parameters back out, one `KEY value` line per
// key in original order. Comments are not preserved.
func (p *Params) Serialize(w io.Writer) error {
	for _, key := range p.keys {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", key, p.values[key]); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether two parameter sets contain the same key/value
// pairs, regardless of order.
func (p *Params) Equal(q *Params) bool {
	if len(p.values) != len(q.values) {
		return false
	}
	for k, v := range p.values {
		if qv, ok := q.values[k]; !ok || qv != v {
			return false
		}
	}
	return true
}
