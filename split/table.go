package split

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/grailbio/base/tsv"
)

// Column names every subject/session table must carry. Extra columns are
// passed through untouched.
const (
	ColParticipant = "participant_id"
	ColSession     = "session_id"
	ColDiagnosis   = "diagnosis"
)

// Table is an immutable subject/session table parsed once from a
// tab-separated file. Rows keep the source column order and cells keep the
// exact strings read, so writing a table back reproduces its input bytes.
type Table struct {
	cols     []string
	colIndex map[string]int
	rows     [][]string
}

// ReadTable parses a tab-separated file with one header row into a Table.
// The whole file is read up front; all later access is in-memory.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse table %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("table %s has no header row", path)
	}
	t, err := NewTable(records[0], records[1:])
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", path, err)
	}
	return t, nil
}

// NewTable builds a Table from a header and data rows. Every row must have
// exactly one cell per column. The slices are retained, not copied.
func NewTable(cols []string, rows [][]string) (*Table, error) {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, dup := idx[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		idx[c] = i
	}
	for i, row := range rows {
		if len(row) != len(cols) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(cols))
		}
	}
	return &Table{cols: cols, colIndex: idx, rows: rows}, nil
}

// Columns returns the column names in source order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.cols))
	copy(out, t.cols)
	return out
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.rows) }

// Row returns the cells of row i. The slice is shared with the table and
// must not be modified.
func (t *Table) Row(i int) []string { return t.rows[i] }

// ColumnIndex returns the position of a named column.
func (t *Table) ColumnIndex(name string) (int, bool) {
	i, ok := t.colIndex[name]
	return i, ok
}

// Require verifies that the named columns are all present.
func (t *Table) Require(names ...string) error {
	for _, n := range names {
		if _, ok := t.colIndex[n]; !ok {
			return &MissingColumnError{Column: n}
		}
	}
	return nil
}

// Value returns the cell at row i in the named column.
func (t *Table) Value(i int, name string) (string, error) {
	j, ok := t.colIndex[name]
	if !ok {
		return "", &MissingColumnError{Column: name}
	}
	return t.rows[i][j], nil
}

// Subset returns a new table holding the rows at the given positions, in the
// given order. Row storage is shared with the receiver.
func (t *Table) Subset(indices []int) (*Table, error) {
	rows := make([][]string, len(indices))
	for k, i := range indices {
		if i < 0 || i >= len(t.rows) {
			return nil, fmt.Errorf("row index %d out of range [0, %d)", i, len(t.rows))
		}
		rows[k] = t.rows[i]
	}
	return &Table{cols: t.cols, colIndex: t.colIndex, rows: rows}, nil
}

// SubjectGroups returns the distinct participant ids in first-appearance
// order, together with the row positions belonging to each subject.
func (t *Table) SubjectGroups() ([]string, map[string][]int, error) {
	pcol, ok := t.colIndex[ColParticipant]
	if !ok {
		return nil, nil, &MissingColumnError{Column: ColParticipant}
	}
	var order []string
	groups := make(map[string][]int)
	for i, row := range t.rows {
		id := row[pcol]
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], i)
	}
	return order, groups, nil
}

// WriteTSV writes the table, header first, to path as tab-separated text.
func (t *Table) WriteTSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w := tsv.NewWriter(f)
	for _, c := range t.cols {
		w.WriteString(c)
	}
	if err := w.EndLine(); err != nil {
		f.Close()
		return fmt.Errorf("write header of %s: %w", path, err)
	}
	for i, row := range t.rows {
		for _, cell := range row {
			w.WriteString(cell)
		}
		if err := w.EndLine(); err != nil {
			f.Close()
			return fmt.Errorf("write row %d of %s: %w", i, path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}

// tableBuilder accumulates rows for a table with known columns, so callers
// can grow a result without re-concatenating whole tables.
type tableBuilder struct {
	cols     []string
	colIndex map[string]int
	rows     [][]string
}

// newTableBuilder starts a builder that shares src's column layout and
// pre-sizes its row storage.
func newTableBuilder(src *Table, sizeHint int) *tableBuilder {
	return &tableBuilder{
		cols:     src.cols,
		colIndex: src.colIndex,
		rows:     make([][]string, 0, sizeHint),
	}
}

func (b *tableBuilder) appendRow(row []string) {
	b.rows = append(b.rows, row)
}

func (b *tableBuilder) table() *Table {
	return &Table{cols: b.cols, colIndex: b.colIndex, rows: b.rows}
}
