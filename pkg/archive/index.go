package archive

import (
	"bufio"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// IndexFile is the per-product listing of granules, tracked in the
// data directory and consumed by the external processing tools.
const IndexFile = "index.txt"

// granulePattern matches level-2 product filenames, e.g.
// GSM-2_2002095-2002120_GRAC_UTCSR_BA01_0600 (optionally gzipped).
// Submatches: dates field, version field.
var granulePattern = regexp.MustCompile(`^G[A-Z]{2}-2_(\d{7}-\d{7})_(?:GRAC|GRFO)_[0-9A-Z]+_[0-9A-Z]+_(\d+)(?:\.gz)?$`)

// ReduceByDate reduces a list of granule filenames to one per
// measurement span, keeping the highest version. Names that do not
// look like granules are dropped.
func ReduceByDate(names []string) []string {
	type candidate struct {
		name    string
		version string
	}
	best := map[string]candidate{}
	for _, name := range names {
		m := granulePattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		dates, version := m[1], m[2]
		if prev, ok := best[dates]; !ok || version > prev.version {
			best[dates] = candidate{name: name, version: version}
		}
	}
	reduced := make([]string, 0, len(best))
	for _, c := range best {
		reduced = append(reduced, c.name)
	}
	sort.Strings(reduced)
	return reduced
}

// WriteIndex regenerates the index file for a product directory from
// the granules present in it. The listing is deterministic, so
// untouched holdings yield a byte-identical index.
func WriteIndex(dir string) error {
	infos, err := ioutil.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, info := range infos {
		if !info.IsDir() {
			names = append(names, info.Name())
		}
	}
	reduced := ReduceByDate(names)

	f, err := os.Create(filepath.Join(dir, IndexFile))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, name := range reduced {
		if _, err := io.WriteString(w, name+"\n"); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeFile streams r to path via a temporary file, so a failed
// transfer never leaves a truncated granule behind.
func writeFile(path string, r io.Reader) error {
	tmp := path + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
