package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column is one table column; numeric columns are right aligned.
type column struct {
	title   string
	numeric bool
}

func textCol(title string) column { return column{title: title} }
func numCol(title string) column  { return column{title: title, numeric: true} }

// listTable renders rows under a header. Short rows are padded, long rows
// truncated to the column count.
type listTable struct {
	title   string
	columns []column
	rows    [][]string
	footer  []string
}

func newListTable(columns ...column) *listTable {
	return &listTable{columns: columns}
}

func (t *listTable) withTitle(format string, args ...any) *listTable {
	t.title = fmt.Sprintf(format, args...)
	return t
}

func (t *listTable) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *listTable) withFooter(cells ...string) *listTable {
	t.footer = cells
	return t
}

func (t *listTable) String() string {
	if len(t.columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if t.title != "" {
		tw.SetTitle(t.title)
	}
	tw.AppendHeader(t.fit(titles(t.columns)))
	for _, row := range t.rows {
		tw.AppendRow(t.fit(row))
	}
	if len(t.footer) > 0 {
		tw.AppendFooter(t.fit(t.footer))
	}

	configs := make([]table.ColumnConfig, len(t.columns))
	for i, c := range t.columns {
		align := text.AlignLeft
		if c.numeric {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignFooter: align, AlignHeader: text.AlignLeft}
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func (t *listTable) fit(cells []string) table.Row {
	row := make(table.Row, len(t.columns))
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	return row
}

func titles(columns []column) []string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = c.title
	}
	return out
}

// fieldTable renders label/value pairs without a header, for summaries.
func fieldTable(pairs [][2]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	for _, p := range pairs {
		tw.AppendRow(table.Row{p[0], p[1]})
	}
	return tw.Render()
}
