package months

import (
	"fmt"
	"html/template"
	"io"
	"sort"

	"github.com/pkg/errors"
)

// Dataset is the month index for one processing center and release.
type Dataset struct {
	Center  string // CSR, GFZ, JPL
	Release string // e.g. RL06
	Months  []Month
}

// Name is the column heading used in the summary table, e.g.
// "CSR RL06".
func (d Dataset) Name() string {
	return fmt.Sprintf("%s %s", d.Center, d.Release)
}

// Table is the merged view of several datasets, from which the
// summary page is rendered. Rows run from FirstMonth to the maximum
// month present in any dataset; a dataset missing a month shows as
// missing.
type Table struct {
	Datasets []Dataset
}

// MaxMonth returns the largest month number present in any dataset.
func (t Table) MaxMonth() int {
	max := 0
	for _, d := range t.Datasets {
		for _, m := range d.Months {
			if m.Number > max {
				max = m.Number
			}
		}
	}
	return max
}

// Missing returns the months between FirstMonth and the dataset
// maximum that are absent from the dataset, in ascending order.
func (d Dataset) Missing() []int {
	present := map[int]bool{}
	max := 0
	for _, m := range d.Months {
		present[m.Number] = true
		if m.Number > max {
			max = m.Number
		}
	}
	var missing []int
	for n := FirstMonth; n <= max; n++ {
		if !present[n] {
			missing = append(missing, n)
		}
	}
	sort.Ints(missing)
	return missing
}

type tableCell struct {
	Text    string
	Missing bool
}

type tableRow struct {
	Month string
	Cells []tableCell
}

type tableData struct {
	Title   string
	Columns []string
	Rows    []tableRow
}

var tableTemplate = template.Must(template.New("months").Parse(`<!DOCTYPE html>
<html>
	<head>
	<meta charset="utf-8">
	<title>{{.Title}}</title>
	</head>
	<body id="preview">
		<table>
			<tr>
				<th style="text-align:center">Month</th>
{{- range .Columns}}
				<th style="text-align:center">{{.}}</th>
{{- end}}
			</tr>
{{- range .Rows}}
			<tr>
				<td style="text-align:center"><b>{{.Month}}</b></td>
{{- range .Cells}}
{{- if .Missing}}
				<td style="text-align:center"><em>missing</em></td>
{{- else}}
				<td style="text-align:center">{{.Text}}</td>
{{- end}}
{{- end}}
			</tr>
{{- end}}
		</table>
	</body>
</html>
`))

// RenderHTML writes the month summary table. Every month from
// FirstMonth to the overall maximum gets a row; datasets without that
// month are marked missing.
func (t Table) RenderHTML(w io.Writer, title string) error {
	data := tableData{Title: title}
	for _, d := range t.Datasets {
		data.Columns = append(data.Columns, d.Name())
	}

	byNumber := make([]map[int]Month, len(t.Datasets))
	for i, d := range t.Datasets {
		byNumber[i] = map[int]Month{}
		for _, m := range d.Months {
			byNumber[i][m.Number] = m
		}
	}

	max := t.MaxMonth()
	for n := FirstMonth; n <= max; n++ {
		row := tableRow{Month: fmt.Sprintf("%s (%03d)", Month{Number: n}.Label(), n)}
		for i := range t.Datasets {
			if m, ok := byNumber[i][n]; ok {
				text := fmt.Sprintf("%d/%03d - %d/%03d", m.StartYear, m.StartDay, m.EndYear, m.EndDay)
				row.Cells = append(row.Cells, tableCell{Text: text})
			} else {
				row.Cells = append(row.Cells, tableCell{Missing: true})
			}
		}
		data.Rows = append(data.Rows, row)
	}

	if err := tableTemplate.Execute(w, data); err != nil {
		return errors.Wrap(err, "rendering month table")
	}
	return nil
}
